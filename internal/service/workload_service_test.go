package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

type stubWorkloadFetcher struct {
	loads []models.TeachingLoad
	err   error
	calls int
}

func (s *stubWorkloadFetcher) ListActive(ctx context.Context, institutionID, academicYearID string) ([]models.TeachingLoad, error) {
	s.calls++
	return s.loads, s.err
}

func TestWorkloadServicePrepareComputesIdealDistribution(t *testing.T) {
	svc := NewWorkloadService(nil, nil, WorkloadConfig{}, nil)
	settings := fixtureSettings(nil, 0)

	report, err := svc.Prepare([]models.TeachingLoad{
		fixtureLoad("l1", "t1", "mathematics", "c1", 7),
	}, settings)
	require.NoError(t, err)
	require.Len(t, report.ValidLoads, 1)

	plans := report.ValidLoads[0].IdealDistribution
	require.Len(t, plans, 5)
	// 7 hours over 5 days: two days get 2 lessons, three get 1.
	assert.Equal(t, 2, plans[0].Lessons)
	assert.Equal(t, 2, plans[1].Lessons)
	assert.Equal(t, 1, plans[2].Lessons)
	assert.Equal(t, 7, report.ValidLoads[0].PlannedHours())
}

func TestWorkloadServicePrepareDropsBrokenLoads(t *testing.T) {
	svc := NewWorkloadService(nil, nil, WorkloadConfig{}, nil)
	settings := fixtureSettings(nil, 0)

	report, err := svc.Prepare([]models.TeachingLoad{
		fixtureLoad("ok", "t1", "math", "c1", 4),
		{ID: "no-teacher", SubjectID: "math", ClassID: "c1", WeeklyHours: 4},
		fixtureLoad("zero-hours", "t1", "math", "c1", 0),
		fixtureLoad("too-many", "t1", "math", "c1", 41),
	}, settings)
	require.NoError(t, err)

	assert.Len(t, report.ValidLoads, 1)
	require.Len(t, report.Errors, 3)
	assert.Equal(t, "missing_teacher", report.Errors[0].Code)
	assert.Equal(t, "invalid_hours", report.Errors[1].Code)
	assert.Equal(t, "invalid_hours", report.Errors[2].Code)
}

func TestWorkloadServicePrepareFailsWhenNothingSurvives(t *testing.T) {
	svc := NewWorkloadService(nil, nil, WorkloadConfig{}, nil)

	_, err := svc.Prepare([]models.TeachingLoad{
		{ID: "broken", WeeklyHours: 4},
	}, fixtureSettings(nil, 0))
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNoActiveLoads.Code, appErr.Code)
}

func TestWorkloadServicePrepareWarnsOnOverload(t *testing.T) {
	svc := NewWorkloadService(nil, nil, WorkloadConfig{}, nil)

	report, err := svc.Prepare([]models.TeachingLoad{
		fixtureLoad("l1", "t-busy", "math", "c1", 14),
		fixtureLoad("l2", "t-busy", "physics", "c2", 12),
		fixtureLoad("l3", "t-warm", "history", "c1", 21),
		fixtureLoad("l4", "t-easy", "art", "c2", 6),
	}, fixtureSettings(nil, 0))
	require.NoError(t, err)

	// 26 hours breaches the ceiling, 21 only warns, 6 stays quiet.
	// Overloaded teachers still keep their loads.
	assert.Len(t, report.ValidLoads, 4)
	require.Len(t, report.Warnings, 2)
	codes := map[string]string{}
	for _, w := range report.Warnings {
		codes[w.TeacherID] = w.Code
	}
	assert.Equal(t, "teacher_overloaded", codes["t-busy"])
	assert.Equal(t, "high_load", codes["t-warm"])
}

func TestWorkloadServicePrepareStatistics(t *testing.T) {
	svc := NewWorkloadService(nil, nil, WorkloadConfig{}, nil)

	report, err := svc.Prepare([]models.TeachingLoad{
		fixtureLoad("l1", "t1", "math", "c1", 10),
		fixtureLoad("l2", "t1", "physics", "c2", 5),
		fixtureLoad("l3", "t2", "math", "c1", 5),
	}, fixtureSettings(nil, 0))
	require.NoError(t, err)

	stats := report.Statistics
	assert.Equal(t, 3, stats.TotalLoads)
	assert.Equal(t, 20, stats.TotalWeeklyHours)
	assert.Equal(t, 2, stats.UniqueTeachers)
	assert.Equal(t, 2, stats.UniqueSubjects)
	assert.Equal(t, 2, stats.UniqueClasses)
	assert.Equal(t, 15, stats.MaxHoursPerTeacher)
	assert.Equal(t, 5, stats.MinHoursPerTeacher)
	assert.InDelta(t, 10.0, stats.AvgHoursPerTeacher, 1e-9)
}

func TestWorkloadServiceFetchEmptyYear(t *testing.T) {
	fetcher := &stubWorkloadFetcher{}
	svc := NewWorkloadService(fetcher, nil, WorkloadConfig{}, nil)

	_, err := svc.Fetch(context.Background(), "inst-1", "year-1")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNoActiveLoads.Code, appErr.Code)
	assert.Equal(t, 1, fetcher.calls)
}

func TestWorkloadServiceFetchPassesThrough(t *testing.T) {
	fetcher := &stubWorkloadFetcher{loads: []models.TeachingLoad{
		fixtureLoad("l1", "t1", "math", "c1", 4),
	}}
	svc := NewWorkloadService(fetcher, nil, WorkloadConfig{}, nil)

	loads, err := svc.Fetch(context.Background(), "inst-1", "year-1")
	require.NoError(t, err)
	assert.Len(t, loads, 1)
}
