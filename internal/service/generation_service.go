package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/export"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
)

type schedulePersister interface {
	SaveDraft(ctx context.Context, schedule *models.Schedule, sessions []models.ScheduleSession) error
}

// RunStatus is the lifecycle of an async generation run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunState is the tracked state of an async run.
type RunState struct {
	ID       string                   `json:"id"`
	Status   RunStatus                `json:"status"`
	Result   *models.GenerationResult `json:"result,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Queued   time.Time                `json:"queued"`
	Finished *time.Time               `json:"finished,omitempty"`
}

// GenerationService orchestrates a full timetable generation run:
// validate, build, place, detect, resolve, optimize, report.
type GenerationService struct {
	workload  *WorkloadService
	rooms     *RoomService
	engine    *GenerationEngine
	detector  *ConflictDetector
	resolver  *ConflictResolver
	optimizer *OptimizerService
	analyzer  *AnalyzerService
	perf      *PerformanceService
	metrics   *MetricsService
	schedules schedulePersister

	validator *validator.Validate
	logger    *zap.Logger

	queue *jobs.Queue
	mu    sync.RWMutex
	runs  map[string]*RunState
}

// NewGenerationService wires the orchestrator.
func NewGenerationService(
	workload *WorkloadService,
	rooms *RoomService,
	engine *GenerationEngine,
	detector *ConflictDetector,
	resolver *ConflictResolver,
	optimizer *OptimizerService,
	analyzer *AnalyzerService,
	perf *PerformanceService,
	metrics *MetricsService,
	schedules schedulePersister,
	validate *validator.Validate,
	logger *zap.Logger,
) *GenerationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{
		workload:  workload,
		rooms:     rooms,
		engine:    engine,
		detector:  detector,
		resolver:  resolver,
		optimizer: optimizer,
		analyzer:  analyzer,
		perf:      perf,
		metrics:   metrics,
		schedules: schedules,
		validator: validate,
		logger:    logger,
		runs:      make(map[string]*RunState),
	}
}

// Generate runs the full pipeline synchronously.
func (s *GenerationService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*models.GenerationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}

	settings, optimization, err := s.applyTemplate(req)
	if err != nil {
		return nil, err
	}

	loads := make([]models.TeachingLoad, 0, len(req.Loads))
	for _, load := range req.Loads {
		loads = append(loads, load.ToModel())
	}

	rooms := make([]models.Room, 0, len(req.Rooms))
	for _, room := range req.Rooms {
		rooms = append(rooms, room.ToModel(req.InstitutionID))
	}
	if len(rooms) == 0 && s.rooms != nil {
		catalog, err := s.rooms.Catalog(ctx, req.InstitutionID)
		if err != nil {
			s.logger.Warn("room catalog unavailable", zap.Error(err))
		} else {
			rooms = catalog
		}
	}

	return s.run(ctx, req, loads, rooms, settings, optimization)
}

// GenerateFromYear reads the loads and rooms out of storage instead of
// the request payload.
func (s *GenerationService) GenerateFromYear(ctx context.Context, req dto.GenerateTimetableRequest) (*models.GenerationResult, error) {
	if req.InstitutionID == "" || req.AcademicYearID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "institutionId and academicYearId are required")
	}

	loads, err := s.workload.Fetch(ctx, req.InstitutionID, req.AcademicYearID)
	if err != nil {
		return nil, err
	}

	var rooms []models.Room
	if s.rooms != nil {
		rooms, err = s.rooms.Catalog(ctx, req.InstitutionID)
		if err != nil {
			return nil, err
		}
	}

	settings, optimization, err := s.applyTemplate(req)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, req, loads, rooms, settings, optimization)
}

// ValidateWorkload runs only the preparation stage.
func (s *GenerationService) ValidateWorkload(ctx context.Context, req dto.ValidateWorkloadRequest) (*models.WorkloadReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid workload payload")
	}

	loads := make([]models.TeachingLoad, 0, len(req.Loads))
	for _, load := range req.Loads {
		loads = append(loads, load.ToModel())
	}

	return s.workload.Prepare(loads, req.Settings.ToModel())
}

// Analyze produces the advisory outcome prediction for a session set.
func (s *GenerationService) Analyze(ctx context.Context, req dto.AnalyzeScheduleRequest) (*models.OutcomePrediction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid analysis payload")
	}
	if s.analyzer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "analyzer is not configured")
	}
	return s.analyzer.Analyze(ctx, req.InstitutionID, req.Sessions, nil, req.Settings.ToModel())
}

// run executes the pipeline over prepared inputs.
func (s *GenerationService) run(ctx context.Context, req dto.GenerateTimetableRequest, loads []models.TeachingLoad, rooms []models.Room, settings models.GenerationSettings, optimization *dto.OptimizationPreferencesRequest) (*models.GenerationResult, error) {
	budget := s.perf.StartBudget()

	report, err := s.workload.Prepare(loads, settings)
	if err != nil {
		return nil, err
	}

	complexity := s.perf.Complexity(report.ValidLoads, settings)
	parallel := s.perf.ShouldParallelize(complexity)

	var run *engineRun
	chunks := 0
	if parallel {
		parts := s.perf.ChunkByTeacher(report.ValidLoads)
		chunks = len(parts)
		run, err = s.perf.RunChunks(ctx, s.engine, parts, rooms, settings)
	} else {
		run, err = s.engine.Build(ctx, report.ValidLoads, rooms, settings)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "generation failed")
	}

	detected := s.detector.Detect(run.matrix)
	run.conflicts = append(run.conflicts, detected...)
	run.state = stateConflictsDetected

	resolved, unresolved := s.resolver.Resolve(run, run.conflicts)

	degraded := false
	if exceeded, reason := budget.Exceeded(); exceeded {
		degraded = true
		run.logf("budget", "degrading run: %s", reason)
		s.logger.Warn("generation budget exceeded", zap.String("reason", reason))
	}

	optimizer := s.optimizer
	if optimization != nil {
		optimizer = s.optimizer.WithOptions(OptimizerOptions{
			UseGenetic:         optimization.UseGenetic,
			UseAnnealing:       optimization.UseAnnealing,
			Seed:               optimization.Seed,
			MaxConsecutiveSame: optimization.MaxConsecutiveSame,
			MinBreakBetween:    optimization.MinBreakBetween,
			TargetScore:        optimization.TargetScore,
		})
	}

	score := models.OptimizationScore{}
	if optimization == nil || optimization.Enabled {
		score = optimizer.Optimize(ctx, run, degraded)
		// Conflicts the hard-conflict pass cleared inside the optimizer
		// count as resolved like any other.
		resolved = append(resolved, run.resolutions...)
	} else {
		score = optimizer.Score(run)
	}

	// Re-detect after optimization: resolved conflicts must stay
	// resolved, anything reintroduced surfaces here.
	finalConflicts := s.detector.Detect(run.matrix)
	for _, c := range run.conflicts {
		if c.Type == models.ConflictUnscheduledHours || c.Type == models.ConflictInsufficientSlots {
			if !containsResolution(resolved, c.ID) {
				finalConflicts = append(finalConflicts, c)
			}
		}
	}
	SortConflicts(finalConflicts)
	unresolved = finalConflicts

	schedule := &models.Schedule{
		ID:               uuid.NewString(),
		InstitutionID:    req.InstitutionID,
		AcademicYearID:   req.AcademicYearID,
		Name:             req.Name,
		GenerationMethod: generationMethod(parallel, optimization),
		Status:           models.ScheduleStatusDraft,
		WorkingDays:      len(settings.WorkingDays),
		PeriodsPerDay:    settings.DailyPeriods,
		CreatedAt:        time.Now().UTC(),
	}
	if schedule.Name == "" {
		schedule.Name = fmt.Sprintf("Generated timetable %s", schedule.CreatedAt.Format("2006-01-02"))
	}

	sessions := append([]models.ScheduleSession(nil), run.matrix.sessions...)
	for i := range sessions {
		sessions[i].ScheduleID = schedule.ID
	}

	stats := buildStatistics(sessions, unresolved, resolved, score, budget, chunks, degraded, run)
	result := &models.GenerationResult{
		Schedule:            schedule,
		Sessions:            sessions,
		Conflicts:           run.conflicts,
		ResolvedConflicts:   resolved,
		UnresolvedConflicts: unresolved,
		Workload:            *report,
		Score:               score,
		Statistics:          stats,
		Log:                 run.log,
	}

	if s.schedules != nil {
		if err := s.schedules.SaveDraft(ctx, schedule, sessions); err != nil {
			s.logger.Error("schedule persistence failed", zap.Error(err))
			result.Log = append(result.Log, models.LogEntry{
				At:      time.Now().UTC(),
				Stage:   "persist",
				Message: "draft persistence failed, result returned in-memory only",
			})
		} else {
			run.state = statePersisted
		}
	}

	if s.analyzer != nil && optimization != nil && optimization.UseAnalyzer {
		features := ExtractFeatures(sessions, report.ValidLoads, settings)
		if err := s.analyzer.RecordOutcome(ctx, req.InstitutionID, schedule.ID, features, stats.SuccessRate); err != nil {
			s.logger.Warn("outcome recording failed", zap.Error(err))
		}
	}

	s.metrics.ObserveRun(runOutcome(unresolved), budget.Elapsed(), stats)
	s.logger.Info("generation run finished",
		zap.String("schedule_id", schedule.ID),
		zap.Int("sessions", len(sessions)),
		zap.Int("unresolved", len(unresolved)),
		zap.Float64("score", score.Total),
	)

	return result, nil
}

func containsResolution(resolved []models.Resolution, conflictID string) bool {
	for _, r := range resolved {
		if r.ConflictID == conflictID {
			return true
		}
	}
	return false
}

func generationMethod(parallel bool, optimization *dto.OptimizationPreferencesRequest) string {
	method := "greedy"
	if optimization != nil {
		switch {
		case optimization.UseGenetic && optimization.UseAnnealing:
			method = "hybrid"
		case optimization.UseGenetic:
			method = "genetic"
		case optimization.UseAnnealing:
			method = "annealing"
		}
	}
	if parallel {
		method += "_parallel"
	}
	return method
}

func runOutcome(unresolved []models.Conflict) string {
	for _, c := range unresolved {
		if c.Severity == models.SeverityCritical {
			return "partial"
		}
	}
	return "success"
}

func buildStatistics(sessions []models.ScheduleSession, unresolved []models.Conflict, resolved []models.Resolution, score models.OptimizationScore, budget *Budget, chunks int, degraded bool, run *engineRun) models.GenerationStatistics {
	total := len(sessions)
	conflictCount := len(unresolved)

	successRate := 0.0
	efficiency := 0.0
	if total > 0 {
		successRate = float64(total-conflictCount) / float64(total) * 100
		if successRate < 0 {
			successRate = 0
		}
		ratio := float64(conflictCount) / float64(total)
		if ratio > 1 {
			ratio = 1
		}
		efficiency = (1 - ratio) * 100
	}

	return models.GenerationStatistics{
		TotalSessions:     total,
		UnscheduledHours:  run.unscheduledHours(),
		ConflictsDetected: len(run.conflicts),
		ConflictsResolved: len(resolved),
		SuccessRate:       successRate,
		EfficiencyScore:   efficiency,
		OptimizationScore: score.Total,
		DurationMS:        budget.Elapsed().Milliseconds(),
		MemoryBytes:       budget.MemoryInUse(),
		ParallelChunks:    chunks,
		DegradedMode:      degraded,
	}
}

// applyTemplate merges the raw template overlay over the request's
// settings and optimization preferences.
func (s *GenerationService) applyTemplate(req dto.GenerateTimetableRequest) (models.GenerationSettings, *dto.OptimizationPreferencesRequest, error) {
	settingsReq := req.Settings
	optimization := req.Optimization

	if len(req.Template) > 0 {
		if raw, ok := req.Template["generation_settings"]; ok {
			if err := mapstructure.Decode(raw, &settingsReq); err != nil {
				return models.GenerationSettings{}, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation_settings template")
			}
		}
		if raw, ok := req.Template["optimization_preferences"]; ok {
			if optimization == nil {
				optimization = &dto.OptimizationPreferencesRequest{}
			}
			if err := mapstructure.Decode(raw, optimization); err != nil {
				return models.GenerationSettings{}, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid optimization_preferences template")
			}
		}
	}

	return settingsReq.ToModel(), optimization, nil
}

// AttachQueue wires the async run queue. Call before Start.
func (s *GenerationService) AttachQueue(queue *jobs.Queue) {
	s.queue = queue
}

// HandleJob is the jobs.Handler executing queued runs.
func (s *GenerationService) HandleJob(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.GenerateTimetableRequest)
	if !ok {
		return fmt.Errorf("unexpected payload type for job %s", job.ID)
	}

	s.setRunStatus(job.ID, RunStatusRunning, nil, "")
	result, err := s.Generate(ctx, req)
	if err != nil {
		s.setRunStatus(job.ID, RunStatusFailed, nil, err.Error())
		return err
	}
	s.setRunStatus(job.ID, RunStatusCompleted, result, "")
	return nil
}

// Enqueue schedules an async generation run and returns its ID.
func (s *GenerationService) Enqueue(req dto.GenerateTimetableRequest) (string, error) {
	if s.queue == nil {
		return "", appErrors.Clone(appErrors.ErrPreconditionFailed, "async runs are not configured")
	}
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}

	runID := uuid.NewString()
	s.mu.Lock()
	s.runs[runID] = &RunState{ID: runID, Status: RunStatusQueued, Queued: time.Now().UTC()}
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: runID, Type: "generation_run", Payload: req}); err != nil {
		s.setRunStatus(runID, RunStatusFailed, nil, err.Error())
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue generation run")
	}
	return runID, nil
}

// RunStateByID returns the tracked state of an async run.
func (s *GenerationService) RunStateByID(runID string) (*RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.runs[runID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrRunNotFound, "")
	}
	copied := *state
	return &copied, nil
}

func (s *GenerationService) setRunStatus(runID string, status RunStatus, result *models.GenerationResult, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[runID]
	if !ok {
		state = &RunState{ID: runID, Queued: time.Now().UTC()}
		s.runs[runID] = state
	}
	state.Status = status
	state.Result = result
	state.Error = errMsg
	if status == RunStatusCompleted || status == RunStatusFailed {
		now := time.Now().UTC()
		state.Finished = &now
	}
}

// ExportCSV renders the sessions of a result as CSV.
func (s *GenerationService) ExportCSV(result *models.GenerationResult) ([]byte, error) {
	exporter := export.NewCSVExporter()
	return exporter.Render(timetableDataset(result))
}

// ExportPDF renders the sessions of a result as a PDF document.
func (s *GenerationService) ExportPDF(result *models.GenerationResult) ([]byte, error) {
	exporter := export.NewPDFExporter()
	title := "Generated timetable"
	if result.Schedule != nil {
		title = result.Schedule.Name
	}
	return exporter.Render(timetableDataset(result), title)
}

func timetableDataset(result *models.GenerationResult) export.Dataset {
	dataset := export.Dataset{
		Headers:    []string{"Day", "Period", "Start", "End", "Class", "Subject", "Teacher", "Room"},
		SectionKey: "Day",
	}
	for _, session := range result.Sessions {
		room := ""
		if session.RoomID != nil {
			room = *session.RoomID
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Day":     session.Day,
			"Period":  fmt.Sprintf("%d", session.Period),
			"Start":   session.StartTime,
			"End":     session.EndTime,
			"Class":   session.ClassID,
			"Subject": session.SubjectID,
			"Teacher": session.TeacherID,
			"Room":    room,
		})
	}
	return dataset
}
