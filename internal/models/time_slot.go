package models

import (
	"fmt"
	"time"
)

// SlotType distinguishes lesson periods from breaks.
type SlotType string

const (
	SlotTypeLesson SlotType = "lesson"
	SlotTypeBreak  SlotType = "break"
)

// TimeSlot is one cell of the weekly grid.
type TimeSlot struct {
	Day             string   `json:"day"`
	Period          int      `json:"period"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	DurationMinutes int      `json:"duration_minutes"`
	Type            SlotType `json:"type"`
}

// BreakWindow inserts a pause of the given length after a period.
type BreakWindow struct {
	AfterPeriod int `json:"after_period"`
	Minutes     int `json:"minutes"`
}

// GenerationSettings shape the weekly grid for a run.
type GenerationSettings struct {
	WorkingDays    []string      `json:"working_days"`
	DailyPeriods   int           `json:"daily_periods"`
	PeriodDuration int           `json:"period_duration"`
	StartOfDay     string        `json:"start_of_day"`
	Breaks         []BreakWindow `json:"breaks,omitempty"`

	MorningCoreBias bool `json:"morning_core_bias"`
}

// DefaultWorkingDays is the standard five day teaching week.
var DefaultWorkingDays = []string{"monday", "tuesday", "wednesday", "thursday", "friday"}

var dayOrder = map[string]int{
	"monday":    0,
	"tuesday":   1,
	"wednesday": 2,
	"thursday":  3,
	"friday":    4,
	"saturday":  5,
	"sunday":    6,
}

// DayIndex returns the ordinal of a day name, -1 when unknown.
func DayIndex(day string) int {
	if idx, ok := dayOrder[day]; ok {
		return idx
	}
	return -1
}

// Normalize fills zero-valued settings with sensible defaults.
func (s *GenerationSettings) Normalize() {
	if len(s.WorkingDays) == 0 {
		s.WorkingDays = append([]string(nil), DefaultWorkingDays...)
	}
	if s.DailyPeriods <= 0 {
		s.DailyPeriods = 7
	}
	if s.PeriodDuration <= 0 {
		s.PeriodDuration = 45
	}
	if s.StartOfDay == "" {
		s.StartOfDay = "08:30"
	}
}

// TotalLessonSlots is working days times daily periods.
func (s GenerationSettings) TotalLessonSlots() int {
	return len(s.WorkingDays) * s.DailyPeriods
}

// BuildTimeSlots expands the settings into the concrete weekly grid,
// lesson and break slots interleaved per day.
func (s GenerationSettings) BuildTimeSlots() ([]TimeSlot, error) {
	start, err := time.Parse("15:04", s.StartOfDay)
	if err != nil {
		return nil, fmt.Errorf("parse start of day %q: %w", s.StartOfDay, err)
	}
	if len(s.WorkingDays) == 0 || s.DailyPeriods <= 0 {
		return nil, fmt.Errorf("settings produce an empty grid")
	}

	breakAfter := make(map[int]int, len(s.Breaks))
	for _, b := range s.Breaks {
		breakAfter[b.AfterPeriod] = b.Minutes
	}

	slots := make([]TimeSlot, 0, len(s.WorkingDays)*s.DailyPeriods)
	for _, day := range s.WorkingDays {
		cursor := start
		for period := 1; period <= s.DailyPeriods; period++ {
			end := cursor.Add(time.Duration(s.PeriodDuration) * time.Minute)
			slots = append(slots, TimeSlot{
				Day:             day,
				Period:          period,
				StartTime:       cursor.Format("15:04"),
				EndTime:         end.Format("15:04"),
				DurationMinutes: s.PeriodDuration,
				Type:            SlotTypeLesson,
			})
			cursor = end

			if minutes, ok := breakAfter[period]; ok && period < s.DailyPeriods {
				breakEnd := cursor.Add(time.Duration(minutes) * time.Minute)
				slots = append(slots, TimeSlot{
					Day:             day,
					Period:          period,
					StartTime:       cursor.Format("15:04"),
					EndTime:         breakEnd.Format("15:04"),
					DurationMinutes: minutes,
					Type:            SlotTypeBreak,
				})
				cursor = breakEnd
			}
		}
	}

	return slots, nil
}
