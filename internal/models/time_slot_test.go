package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationSettingsNormalizeDefaults(t *testing.T) {
	var settings GenerationSettings
	settings.Normalize()

	assert.Equal(t, DefaultWorkingDays, settings.WorkingDays)
	assert.Equal(t, 7, settings.DailyPeriods)
	assert.Equal(t, 45, settings.PeriodDuration)
	assert.Equal(t, "08:30", settings.StartOfDay)
	assert.Equal(t, 35, settings.TotalLessonSlots())
}

func TestBuildTimeSlotsInterleavesBreaks(t *testing.T) {
	settings := GenerationSettings{
		WorkingDays:    []string{"monday"},
		DailyPeriods:   4,
		PeriodDuration: 45,
		StartOfDay:     "08:00",
		Breaks:         []BreakWindow{{AfterPeriod: 2, Minutes: 20}},
	}

	slots, err := settings.BuildTimeSlots()
	require.NoError(t, err)
	require.Len(t, slots, 5)

	assert.Equal(t, "08:00", slots[0].StartTime)
	assert.Equal(t, "08:45", slots[0].EndTime)
	assert.Equal(t, SlotTypeLesson, slots[0].Type)

	// Break sits between period 2 and 3 and shifts the rest of the day.
	assert.Equal(t, SlotTypeBreak, slots[2].Type)
	assert.Equal(t, "09:30", slots[2].StartTime)
	assert.Equal(t, "09:50", slots[2].EndTime)
	assert.Equal(t, 3, slots[3].Period)
	assert.Equal(t, "09:50", slots[3].StartTime)
}

func TestBuildTimeSlotsIgnoresTrailingBreak(t *testing.T) {
	settings := GenerationSettings{
		WorkingDays:    []string{"monday"},
		DailyPeriods:   2,
		PeriodDuration: 45,
		StartOfDay:     "08:00",
		Breaks:         []BreakWindow{{AfterPeriod: 2, Minutes: 15}},
	}

	slots, err := settings.BuildTimeSlots()
	require.NoError(t, err)
	assert.Len(t, slots, 2)
	for _, slot := range slots {
		assert.Equal(t, SlotTypeLesson, slot.Type)
	}
}

func TestBuildTimeSlotsRejectsBadStart(t *testing.T) {
	settings := GenerationSettings{
		WorkingDays:    []string{"monday"},
		DailyPeriods:   2,
		PeriodDuration: 45,
		StartOfDay:     "8 o'clock",
	}

	_, err := settings.BuildTimeSlots()
	require.Error(t, err)
}

func TestDayIndexOrdering(t *testing.T) {
	assert.Equal(t, 0, DayIndex("monday"))
	assert.Equal(t, 4, DayIndex("friday"))
	assert.Equal(t, -1, DayIndex("someday"))
}

func TestTeachingLoadSlotHelpers(t *testing.T) {
	load := TeachingLoad{
		PreferredSlots:   []SlotRef{{Day: "monday", Period: 1}},
		UnavailableSlots: []SlotRef{{Day: "friday", Period: 7}},
		IdealDistribution: []DayPlan{
			{Day: "monday", Lessons: 2},
			{Day: "tuesday", Lessons: 1},
		},
	}

	assert.True(t, load.PrefersSlot("monday", 1))
	assert.False(t, load.PrefersSlot("monday", 2))
	assert.True(t, load.IsUnavailable("friday", 7))
	assert.False(t, load.IsUnavailable("friday", 6))
	assert.Equal(t, 3, load.PlannedHours())
}
