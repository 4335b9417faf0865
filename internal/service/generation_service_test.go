package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
)

type stubPersister struct {
	schedule *models.Schedule
	sessions []models.ScheduleSession
	err      error
}

func (s *stubPersister) SaveDraft(ctx context.Context, schedule *models.Schedule, sessions []models.ScheduleSession) error {
	s.schedule = schedule
	s.sessions = sessions
	return s.err
}

func newTestGenerationService(persister schedulePersister) *GenerationService {
	detector := NewConflictDetector(0, nil)
	resolver := NewConflictResolver(nil)
	search := NewSearchOptimizer(DefaultSearchConfig(), nil)
	return NewGenerationService(
		NewWorkloadService(nil, nil, WorkloadConfig{}, nil),
		nil,
		NewGenerationEngine(nil),
		detector,
		resolver,
		NewOptimizerService(detector, resolver, search, OptimizerOptions{}, nil),
		nil,
		NewPerformanceService(PerformanceConfig{}, nil),
		NewMetricsService(),
		persister,
		nil,
		nil,
	)
}

func loadRequest(id, teacher, subject, class string, hours int) dto.TeachingLoadRequest {
	return dto.TeachingLoadRequest{
		ID:          id,
		TeacherID:   teacher,
		SubjectID:   subject,
		SubjectName: subject,
		ClassID:     class,
		WeeklyHours: hours,
	}
}

func generationRequest() dto.GenerateTimetableRequest {
	return dto.GenerateTimetableRequest{
		InstitutionID:  "inst-1",
		AcademicYearID: "year-1",
		Name:           "Semester 1",
		Loads: []dto.TeachingLoadRequest{
			loadRequest("l1", "t1", "mathematics", "c1", 4),
			loadRequest("l2", "t2", "art", "c2", 4),
		},
		Rooms: []dto.RoomRequest{
			{ID: "room-a", Name: "Room A", Capacity: 30},
			{ID: "room-b", Name: "Room B", Capacity: 30},
		},
	}
}

func TestGenerateProducesDraftSchedule(t *testing.T) {
	persister := &stubPersister{}
	svc := newTestGenerationService(persister)

	result, err := svc.Generate(context.Background(), generationRequest())
	require.NoError(t, err)

	require.NotNil(t, result.Schedule)
	assert.Equal(t, models.ScheduleStatusDraft, result.Schedule.Status)
	assert.Equal(t, "Semester 1", result.Schedule.Name)
	assert.Equal(t, "greedy", result.Schedule.GenerationMethod)
	assert.Len(t, result.Sessions, 8)
	for _, session := range result.Sessions {
		assert.Equal(t, result.Schedule.ID, session.ScheduleID)
	}
	assert.Empty(t, result.UnresolvedConflicts)
	assert.InDelta(t, 100.0, result.Statistics.SuccessRate, 1e-9)
	assert.False(t, result.Statistics.DegradedMode)

	require.NotNil(t, persister.schedule, "draft must be persisted")
	assert.Len(t, persister.sessions, 8)
}

func TestGenerateRejectsInvalidPayload(t *testing.T) {
	svc := newTestGenerationService(nil)

	req := generationRequest()
	req.InstitutionID = ""
	_, err := svc.Generate(context.Background(), req)
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestGenerateAppliesTemplateOverlay(t *testing.T) {
	svc := newTestGenerationService(nil)

	req := generationRequest()
	req.Template = map[string]any{
		"generation_settings":      map[string]any{"DailyPeriods": 4},
		"optimization_preferences": map[string]any{"Enabled": false},
	}

	result, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Schedule.PeriodsPerDay)
}

func TestGenerateRejectsBadTemplate(t *testing.T) {
	svc := newTestGenerationService(nil)

	req := generationRequest()
	req.Template = map[string]any{
		"generation_settings": map[string]any{"DailyPeriods": "not-a-number"},
	}

	_, err := svc.Generate(context.Background(), req)
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestGenerateSurvivesPersistenceFailure(t *testing.T) {
	persister := &stubPersister{err: errors.New("database down")}
	svc := newTestGenerationService(persister)

	result, err := svc.Generate(context.Background(), generationRequest())
	require.NoError(t, err, "persistence is best-effort for a generated result")

	found := false
	for _, entry := range result.Log {
		if entry.Stage == "persist" {
			found = true
		}
	}
	assert.True(t, found, "persistence failure must be logged on the run")
}

func TestGenerationMethodNaming(t *testing.T) {
	assert.Equal(t, "greedy", generationMethod(false, nil))
	assert.Equal(t, "greedy_parallel", generationMethod(true, nil))
	assert.Equal(t, "genetic", generationMethod(false, &dto.OptimizationPreferencesRequest{UseGenetic: true}))
	assert.Equal(t, "annealing", generationMethod(false, &dto.OptimizationPreferencesRequest{UseAnnealing: true}))
	assert.Equal(t, "hybrid_parallel", generationMethod(true, &dto.OptimizationPreferencesRequest{UseGenetic: true, UseAnnealing: true}))
}

func TestValidateWorkloadReportsIssues(t *testing.T) {
	svc := newTestGenerationService(nil)

	req := dto.ValidateWorkloadRequest{
		InstitutionID:  "inst-1",
		AcademicYearID: "year-1",
		Loads: []dto.TeachingLoadRequest{
			loadRequest("l1", "t1", "mathematics", "c1", 26),
		},
	}

	report, err := svc.ValidateWorkload(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, report.ValidLoads, 1)
	require.NotEmpty(t, report.Warnings)
	assert.Equal(t, "teacher_overloaded", report.Warnings[0].Code)
}

func TestEnqueueWithoutQueue(t *testing.T) {
	svc := newTestGenerationService(nil)

	_, err := svc.Enqueue(generationRequest())
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestRunStateByIDUnknown(t *testing.T) {
	svc := newTestGenerationService(nil)

	_, err := svc.RunStateByID("missing")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrRunNotFound.Code, appErr.Code)
}

func TestHandleJobRejectsForeignPayload(t *testing.T) {
	svc := newTestGenerationService(nil)

	err := svc.HandleJob(context.Background(), jobs.Job{ID: "job-1", Payload: 42})
	require.Error(t, err)
}

func TestHandleJobCompletesRun(t *testing.T) {
	svc := newTestGenerationService(&stubPersister{})

	err := svc.HandleJob(context.Background(), jobs.Job{ID: "run-1", Payload: generationRequest()})
	require.NoError(t, err)

	state, err := svc.RunStateByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, state.Status)
	require.NotNil(t, state.Result)
	assert.Len(t, state.Result.Sessions, 8)
	require.NotNil(t, state.Finished)
}

func TestHandleJobMarksFailure(t *testing.T) {
	svc := newTestGenerationService(nil)

	bad := generationRequest()
	bad.Loads = nil
	err := svc.HandleJob(context.Background(), jobs.Job{ID: "run-2", Payload: bad})
	require.Error(t, err)

	state, stateErr := svc.RunStateByID("run-2")
	require.NoError(t, stateErr)
	assert.Equal(t, RunStatusFailed, state.Status)
	assert.NotEmpty(t, state.Error)
}

func TestExportCSVDataset(t *testing.T) {
	svc := newTestGenerationService(nil)

	result, err := svc.Generate(context.Background(), generationRequest())
	require.NoError(t, err)

	raw, err := svc.ExportCSV(result)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "Day,Period,Start,End,Class,Subject,Teacher,Room", strings.TrimSpace(lines[0]))
	assert.Len(t, lines, 1+len(result.Sessions))
}

func TestExportPDFRenders(t *testing.T) {
	svc := newTestGenerationService(nil)

	result, err := svc.Generate(context.Background(), generationRequest())
	require.NoError(t, err)

	raw, err := svc.ExportPDF(result)
	require.NoError(t, err)
	assert.True(t, len(raw) > 4 && string(raw[:4]) == "%PDF")
}
