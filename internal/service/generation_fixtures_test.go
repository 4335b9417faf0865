package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func fixtureSettings(days []string, periods int) models.GenerationSettings {
	settings := models.GenerationSettings{
		WorkingDays:    days,
		DailyPeriods:   periods,
		PeriodDuration: 45,
		StartOfDay:     "08:00",
	}
	settings.Normalize()
	return settings
}

func fixtureLoad(id, teacherID, subjectID, classID string, hours int) models.TeachingLoad {
	return models.TeachingLoad{
		ID:          id,
		TeacherID:   teacherID,
		TeacherName: "Teacher " + teacherID,
		SubjectID:   subjectID,
		SubjectName: subjectID,
		ClassID:     classID,
		ClassName:   "Class " + classID,
		WeeklyHours: hours,
	}
}

func fixtureRoom(id string, capacity int, lab bool) models.Room {
	return models.Room{
		ID:       id,
		Name:     "Room " + id,
		Capacity: capacity,
		IsLab:    lab,
		Active:   true,
	}
}

// buildRun places the loads on a fresh matrix and fails the test on a
// build error.
func buildRun(t *testing.T, loads []models.TeachingLoad, rooms []models.Room, settings models.GenerationSettings) *engineRun {
	t.Helper()
	engine := NewGenerationEngine(nil)
	run, err := engine.Build(context.Background(), loads, rooms, settings)
	require.NoError(t, err)
	return run
}
