package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

// engineState tracks the lifecycle of one generation run.
type engineState string

const (
	stateInitialized       engineState = "initialized"
	stateMatrixBuilt       engineState = "matrix_built"
	statePlacing           engineState = "placing"
	stateConflictsDetected engineState = "conflicts_detected"
	statePersisted         engineState = "persisted"
)

// coreSubjects are the subjects biased towards morning periods.
var coreSubjects = []string{
	"mathematics",
	"math",
	"physics",
	"chemistry",
	"biology",
	"literature",
	"language",
	"history",
	"geography",
}

func isCoreSubject(name string) bool {
	lower := strings.ToLower(name)
	for _, core := range coreSubjects {
		if strings.Contains(lower, core) {
			return true
		}
	}
	return false
}

// engineRun carries the mutable state of a single generation run.
type engineRun struct {
	matrix       *timeMatrix
	loads        []models.TeachingLoad
	resolver     *roomResolver
	conflicts    []models.Conflict
	resolutions  []models.Resolution
	log          []models.LogEntry
	state        engineState
	placedByLoad map[string]int
}

// runSnapshot captures everything a resolution chain mutates: the
// matrix and the room reservations that travel with its sessions.
type runSnapshot struct {
	matrix   *timeMatrix
	occupied map[cellKey]map[string]bool
}

func (r *engineRun) snapshot() runSnapshot {
	return runSnapshot{
		matrix:   r.matrix.snapshot(),
		occupied: r.resolver.snapshotOccupancy(),
	}
}

func (r *engineRun) restore(snap runSnapshot) {
	r.matrix.restore(snap.matrix)
	r.resolver.restoreOccupancy(snap.occupied)
}

func (r *engineRun) logf(stage, format string, args ...any) {
	r.log = append(r.log, models.LogEntry{
		At:      time.Now().UTC(),
		Stage:   stage,
		Message: fmt.Sprintf(format, args...),
	})
}

// unscheduledHours sums the shortfall across all loads.
func (r *engineRun) unscheduledHours() int {
	total := 0
	for _, load := range r.loads {
		if missing := load.WeeklyHours - r.placedByLoad[load.ID]; missing > 0 {
			total += missing
		}
	}
	return total
}

// GenerationEngine builds the time matrix and places teaching loads
// into it. Detection of double bookings is delegated to the conflict
// detector; the engine only raises capacity and shortfall conflicts.
type GenerationEngine struct {
	logger *zap.Logger
}

// NewGenerationEngine constructs the engine.
func NewGenerationEngine(logger *zap.Logger) *GenerationEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationEngine{logger: logger}
}

// Build constructs the arena and runs the placement passes for the
// prepared loads. Placement never fails the run: what cannot be placed
// becomes an unscheduled_hours conflict.
func (e *GenerationEngine) Build(ctx context.Context, loads []models.TeachingLoad, rooms []models.Room, settings models.GenerationSettings) (*engineRun, error) {
	settings.Normalize()

	run := &engineRun{
		state:        stateInitialized,
		placedByLoad: make(map[string]int),
	}
	run.logf("init", "generation run initialised with %d loads", len(loads))

	matrix, err := newTimeMatrix(settings)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNoTimeSlots.Code, appErrors.ErrNoTimeSlots.Status, appErrors.ErrNoTimeSlots.Message)
	}
	run.matrix = matrix
	run.resolver = newRoomResolver(rooms)
	run.state = stateMatrixBuilt
	run.logf("matrix", "time matrix built: %d days x %d periods", len(matrix.days), matrix.periods)

	// Capacity check before any placement.
	totalHours := 0
	for _, load := range loads {
		totalHours += load.WeeklyHours
	}
	if capacity := settings.TotalLessonSlots(); totalHours > capacity*classCount(loads) {
		run.conflicts = append(run.conflicts, models.Conflict{
			ID:           uuid.NewString(),
			Type:         models.ConflictInsufficientSlots,
			Severity:     models.SeverityCritical,
			MissingHours: totalHours - capacity*classCount(loads),
			Message:      fmt.Sprintf("demand of %d hours exceeds grid capacity of %d slots per class", totalHours, capacity),
			DetectedAt:   time.Now().UTC(),
		})
	}

	run.loads = sortLoadsByPriority(loads)
	run.state = statePlacing

	for i := range run.loads {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		e.placeLoad(run, &run.loads[i], settings)
	}

	// Second pass: opportunistic placement of any remainder.
	for i := range run.loads {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		e.placeRemainder(run, &run.loads[i], settings)
	}

	e.raiseShortfalls(run)
	run.logf("placement", "placed %d sessions, %d hours unscheduled", len(run.matrix.sessions), run.unscheduledHours())

	return run, nil
}

func classCount(loads []models.TeachingLoad) int {
	seen := make(map[string]bool)
	for _, load := range loads {
		seen[load.ClassID] = true
	}
	if len(seen) == 0 {
		return 1
	}
	return len(seen)
}

func sortLoadsByPriority(loads []models.TeachingLoad) []models.TeachingLoad {
	sorted := append([]models.TeachingLoad(nil), loads...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PriorityLevel < sorted[j].PriorityLevel
	})
	return sorted
}

// placeLoad follows the load's ideal distribution day by day.
func (e *GenerationEngine) placeLoad(run *engineRun, load *models.TeachingLoad, settings models.GenerationSettings) {
	for _, plan := range load.IdealDistribution {
		if plan.Consecutive && plan.Lessons >= 2 {
			if e.placeConsecutive(run, load, plan.Day, plan.Lessons, settings) {
				continue
			}
		}
		placed := 0
		for _, period := range e.periodOrder(run, *load, plan.Day, settings) {
			if placed >= plan.Lessons {
				break
			}
			if e.tryPlace(run, load, plan.Day, period) {
				placed++
			}
		}
	}
}

// placeConsecutive looks for a free run of n periods on the day.
func (e *GenerationEngine) placeConsecutive(run *engineRun, load *models.TeachingLoad, day string, n int, settings models.GenerationSettings) bool {
	for start := 1; start+n-1 <= run.matrix.periods; start++ {
		fits := true
		for p := start; p < start+n; p++ {
			if load.IsUnavailable(day, p) || !run.matrix.canPlace(load.TeacherID, load.ClassID, day, p) {
				fits = false
				break
			}
		}
		if !fits {
			continue
		}
		for p := start; p < start+n; p++ {
			e.tryPlace(run, load, day, p)
		}
		return true
	}
	return false
}

// placeRemainder scans the whole grid for the hours the ideal pass
// could not fit.
func (e *GenerationEngine) placeRemainder(run *engineRun, load *models.TeachingLoad, settings models.GenerationSettings) {
	for run.placedByLoad[load.ID] < load.WeeklyHours {
		placed := false
		for _, day := range run.matrix.days {
			for _, period := range e.periodOrder(run, *load, day, settings) {
				if e.tryPlace(run, load, day, period) {
					placed = true
					break
				}
			}
			if placed {
				break
			}
		}
		if !placed {
			return
		}
	}
}

func (e *GenerationEngine) tryPlace(run *engineRun, load *models.TeachingLoad, day string, period int) bool {
	if run.placedByLoad[load.ID] >= load.WeeklyHours {
		return false
	}
	if load.IsUnavailable(day, period) {
		return false
	}
	if !run.matrix.canPlace(load.TeacherID, load.ClassID, day, period) {
		return false
	}

	slot, ok := run.matrix.slotAt(day, period)
	if !ok {
		return false
	}

	session := models.ScheduleSession{
		ID:             uuid.NewString(),
		TeachingLoadID: load.ID,
		SubjectID:      load.SubjectID,
		TeacherID:      load.TeacherID,
		ClassID:        load.ClassID,
		RoomID:         run.resolver.Resolve(*load, day, period),
		Day:            day,
		Period:         period,
		StartTime:      slot.StartTime,
		EndTime:        slot.EndTime,
		Status:         "scheduled",
	}
	run.matrix.place(session)
	run.placedByLoad[load.ID]++
	return true
}

// periodOrder ranks the day's periods for a load: preferred slots
// first, then by the morning bias when it applies to core subjects,
// then natural order.
func (e *GenerationEngine) periodOrder(run *engineRun, load models.TeachingLoad, day string, settings models.GenerationSettings) []int {
	type ranked struct {
		period int
		weight int
	}

	core := settings.MorningCoreBias && isCoreSubject(load.SubjectName)
	rankedPeriods := make([]ranked, 0, run.matrix.periods)
	for period := 1; period <= run.matrix.periods; period++ {
		weight := period
		if core && period > 4 {
			weight = period + 10
		}
		if load.PrefersSlot(day, period) {
			weight -= 50
		}
		rankedPeriods = append(rankedPeriods, ranked{period: period, weight: weight})
	}

	sort.SliceStable(rankedPeriods, func(i, j int) bool {
		return rankedPeriods[i].weight < rankedPeriods[j].weight
	})

	order := make([]int, len(rankedPeriods))
	for i, r := range rankedPeriods {
		order[i] = r.period
	}
	return order
}

// raiseShortfalls converts any remaining unplaced hours into
// unscheduled_hours conflicts, one per load.
func (e *GenerationEngine) raiseShortfalls(run *engineRun) {
	for _, load := range run.loads {
		missing := load.WeeklyHours - run.placedByLoad[load.ID]
		if missing <= 0 {
			continue
		}
		run.conflicts = append(run.conflicts, models.Conflict{
			ID:           uuid.NewString(),
			Type:         models.ConflictUnscheduledHours,
			Severity:     models.SeverityCritical,
			TeacherID:    load.TeacherID,
			ClassID:      load.ClassID,
			LoadID:       load.ID,
			MissingHours: missing,
			Message:      fmt.Sprintf("%d of %d weekly hours could not be placed for %s / %s", missing, load.WeeklyHours, load.SubjectName, load.ClassName),
			DetectedAt:   time.Now().UTC(),
		})
		e.logger.Warn("unscheduled hours",
			zap.String("load_id", load.ID),
			zap.Int("missing", missing),
		)
	}
}
