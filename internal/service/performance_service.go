package service

import (
	"context"
	"math"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// PerformanceConfig bounds a generation run.
type PerformanceConfig struct {
	ParallelThreshold float64
	MaxChunks         int
	MemoryBudgetBytes int64
	RunSoftTimeout    time.Duration
}

// PerformanceService decides the execution strategy for a run and
// enforces its resource budgets. A breached budget degrades the run,
// it never fails it.
type PerformanceService struct {
	cfg    PerformanceConfig
	logger *zap.Logger
}

// NewPerformanceService wires the controller.
func NewPerformanceService(cfg PerformanceConfig, logger *zap.Logger) *PerformanceService {
	if cfg.ParallelThreshold <= 0 {
		cfg.ParallelThreshold = 0.7
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = 4
	}
	if cfg.MemoryBudgetBytes <= 0 {
		cfg.MemoryBudgetBytes = 256 * 1024 * 1024
	}
	if cfg.RunSoftTimeout <= 0 {
		cfg.RunSoftTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PerformanceService{cfg: cfg, logger: logger}
}

// Complexity estimates how hard the run is on a 0..1 scale from the
// problem dimensions.
func (s *PerformanceService) Complexity(loads []models.TeachingLoad, settings models.GenerationSettings) float64 {
	if len(loads) == 0 {
		return 0
	}

	teachers := make(map[string]bool)
	classes := make(map[string]bool)
	subjects := make(map[string]bool)
	totalHours := 0
	constraints := 0
	for _, load := range loads {
		teachers[load.TeacherID] = true
		classes[load.ClassID] = true
		subjects[load.SubjectID] = true
		totalHours += load.WeeklyHours
		constraints += len(load.PreferredSlots) + len(load.UnavailableSlots)
	}

	capacity := settings.TotalLessonSlots() * len(classes)
	fill := 0.0
	if capacity > 0 {
		fill = float64(totalHours) / float64(capacity)
	}

	complexity := 0.25*math.Min(1, float64(len(teachers))/50) +
		0.2*math.Min(1, float64(len(classes))/30) +
		0.15*math.Min(1, float64(len(subjects))/25) +
		0.25*math.Min(1, fill) +
		0.15*math.Min(1, float64(constraints)/100)

	return math.Min(1, complexity)
}

// ShouldParallelize reports whether the run crosses the parallel
// threshold.
func (s *PerformanceService) ShouldParallelize(complexity float64) bool {
	return complexity > s.cfg.ParallelThreshold
}

// ChunkByTeacher splits the loads into at most MaxChunks groups with
// no teacher spanning two groups, so chunk placements cannot collide
// on teacher availability.
func (s *PerformanceService) ChunkByTeacher(loads []models.TeachingLoad) [][]models.TeachingLoad {
	byTeacher := make(map[string][]models.TeachingLoad)
	var order []string
	for _, load := range loads {
		if _, seen := byTeacher[load.TeacherID]; !seen {
			order = append(order, load.TeacherID)
		}
		byTeacher[load.TeacherID] = append(byTeacher[load.TeacherID], load)
	}

	chunkCount := s.cfg.MaxChunks
	if len(order) < chunkCount {
		chunkCount = len(order)
	}
	if chunkCount == 0 {
		return nil
	}

	chunks := make([][]models.TeachingLoad, chunkCount)
	for i, teacherID := range order {
		idx := i % chunkCount
		chunks[idx] = append(chunks[idx], byTeacher[teacherID]...)
	}
	return chunks
}

// chunkResult is one chunk's placement outcome.
type chunkResult struct {
	run *engineRun
	err error
}

// RunChunks executes the engine over each chunk concurrently and
// merges the partial matrices into one run. Cross-chunk collisions are
// left for the detector to find.
func (s *PerformanceService) RunChunks(ctx context.Context, engine *GenerationEngine, chunks [][]models.TeachingLoad, rooms []models.Room, settings models.GenerationSettings) (*engineRun, error) {
	results := make([]chunkResult, len(chunks))
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		wg.Add(1)
		go func(idx int, part []models.TeachingLoad) {
			defer wg.Done()
			run, err := engine.Build(ctx, part, rooms, settings)
			results[idx] = chunkResult{run: run, err: err}
		}(i, chunk)
	}
	wg.Wait()

	merged, err := NewGenerationEngine(s.logger).emptyRun(settings, rooms)
	if err != nil {
		return nil, err
	}
	merged.logf("parallel", "merging %d chunk results", len(chunks))

	for _, result := range results {
		if result.err != nil {
			return merged, result.err
		}
		s.mergeRun(merged, result.run)
	}

	return merged, nil
}

// mergeRun folds a chunk run into the merged arena. Class collisions
// across chunks surface later through detection.
func (s *PerformanceService) mergeRun(merged, part *engineRun) {
	merged.loads = append(merged.loads, part.loads...)
	merged.conflicts = append(merged.conflicts, part.conflicts...)
	merged.log = append(merged.log, part.log...)
	for loadID, placed := range part.placedByLoad {
		merged.placedByLoad[loadID] = placed
	}
	for _, session := range part.matrix.sessions {
		merged.matrix.place(session)
	}
}

// emptyRun builds a run with an arena and no placements.
func (e *GenerationEngine) emptyRun(settings models.GenerationSettings, rooms []models.Room) (*engineRun, error) {
	matrix, err := newTimeMatrix(settings)
	if err != nil {
		return nil, err
	}
	return &engineRun{
		matrix:       matrix,
		resolver:     newRoomResolver(rooms),
		state:        stateMatrixBuilt,
		placedByLoad: make(map[string]int),
	}, nil
}

// Budget tracks elapsed time and memory against the configured limits.
type Budget struct {
	cfg     PerformanceConfig
	started time.Time
}

// StartBudget begins tracking a run.
func (s *PerformanceService) StartBudget() *Budget {
	return &Budget{cfg: s.cfg, started: time.Now()}
}

// Exceeded reports whether the run should degrade, with the reason.
func (b *Budget) Exceeded() (bool, string) {
	if elapsed := time.Since(b.started); elapsed > b.cfg.RunSoftTimeout {
		return true, "time budget exceeded"
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if int64(stats.Alloc) > b.cfg.MemoryBudgetBytes {
		return true, "memory budget exceeded"
	}
	return false, ""
}

// Elapsed returns the wall-clock duration so far.
func (b *Budget) Elapsed() time.Duration {
	return time.Since(b.started)
}

// MemoryInUse reports current heap allocation.
func (b *Budget) MemoryInUse() int64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return int64(stats.Alloc)
}
