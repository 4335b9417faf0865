package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// ConflictResolver applies resolution strategies to detected
// conflicts. Strategies are ranked per conflict and tried in order;
// the first success wins. Nothing is ever silently dropped: every
// conflict either produces a Resolution or stays in the unresolved
// list.
type ConflictResolver struct {
	logger *zap.Logger
}

// NewConflictResolver constructs the resolver.
func NewConflictResolver(logger *zap.Logger) *ConflictResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictResolver{logger: logger}
}

// Resolve processes the conflicts in priority order against the run's
// matrix. Returns the resolutions and the conflicts left unresolved.
func (r *ConflictResolver) Resolve(run *engineRun, conflicts []models.Conflict) ([]models.Resolution, []models.Conflict) {
	SortConflicts(conflicts)

	var (
		resolved   []models.Resolution
		unresolved []models.Conflict
	)

	for _, conflict := range conflicts {
		resolution := r.resolveOne(run, conflict)
		if resolution == nil {
			unresolved = append(unresolved, conflict)
			continue
		}
		resolved = append(resolved, *resolution)
		run.logf("resolution", "conflict %s resolved via %s", conflict.Type, resolution.Strategy)
	}

	return resolved, unresolved
}

func (r *ConflictResolver) resolveOne(run *engineRun, conflict models.Conflict) *models.Resolution {
	for _, strategy := range rankStrategies(conflict, r.loadFor(run, conflict)) {
		resolution, ok := r.apply(run, conflict, strategy)
		if !ok {
			continue
		}
		resolution.ConflictID = conflict.ID
		resolution.ConflictType = conflict.Type
		resolution.Strategy = strategy
		resolution.QualityScore = strategy.Effectiveness()*100 - strategy.Complexity()*10
		resolution.ResolvedAt = time.Now().UTC()
		r.logger.Info("conflict resolved",
			zap.String("type", string(conflict.Type)),
			zap.String("strategy", string(strategy)),
		)
		return resolution
	}
	return nil
}

func (r *ConflictResolver) loadFor(run *engineRun, conflict models.Conflict) *models.TeachingLoad {
	for i := range run.loads {
		if run.loads[i].ID == conflict.LoadID {
			return &run.loads[i]
		}
	}
	return nil
}

// rankStrategies orders the candidate strategies by effectiveness
// scaled by how well they align with the load's preferences.
func rankStrategies(conflict models.Conflict, load *models.TeachingLoad) []models.StrategyType {
	candidates := models.StrategiesFor(conflict.Type)

	scored := make([]struct {
		strategy models.StrategyType
		score    float64
	}, len(candidates))
	for i, strategy := range candidates {
		alignment := 1.0
		if strategy == models.StrategyConstraintRelaxation && load != nil && len(load.UnavailableSlots)+len(load.PreferredSlots) > 0 {
			alignment = 0.8
		}
		scored[i].strategy = strategy
		scored[i].score = strategy.Effectiveness() * alignment
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	ordered := make([]models.StrategyType, len(scored))
	for i, s := range scored {
		ordered[i] = s.strategy
	}
	return ordered
}

func (r *ConflictResolver) apply(run *engineRun, conflict models.Conflict, strategy models.StrategyType) (*models.Resolution, bool) {
	switch strategy {
	case models.StrategySwap:
		return r.applySwap(run, conflict)
	case models.StrategyTeacherReassignment:
		return r.applyTeacherReassignment(run, conflict)
	case models.StrategyRoomReassignment:
		return r.applyRoomReassignment(run, conflict)
	case models.StrategySessionSplit:
		return r.applySessionSplit(run, conflict)
	case models.StrategyLoadRedistribution:
		return r.applyLoadRedistribution(run, conflict)
	case models.StrategyConstraintRelaxation:
		return r.applyConstraintRelaxation(run, conflict)
	case models.StrategyMultiStage:
		return r.applyMultiStage(run, conflict)
	default:
		return nil, false
	}
}

// applySwap relocates all but one of the colliding sessions to other
// free cells.
func (r *ConflictResolver) applySwap(run *engineRun, conflict models.Conflict) (*models.Resolution, bool) {
	if len(conflict.SessionIDs) < 2 {
		// Shortfall conflicts reach swap via unscheduled_hours: a swap
		// cannot conjure hours, so defer to other strategies.
		return nil, false
	}

	resolution := &models.Resolution{}
	snap := run.snapshot()

	for _, sessionID := range conflict.SessionIDs[1:] {
		idx := run.matrix.sessionIndex(sessionID)
		if idx < 0 {
			continue
		}
		day, period, ok := r.findFreeCell(run, run.matrix.sessions[idx])
		if !ok {
			run.restore(snap)
			return nil, false
		}
		session := run.matrix.sessions[idx]
		run.matrix.move(idx, day, period)

		// The room travels with the session: free it at the old cell and
		// resolve again for the new one.
		moved := &run.matrix.sessions[idx]
		run.resolver.Release(moved.RoomID, session.Day, session.Period)
		if load := r.loadByID(run, moved.TeachingLoadID); load != nil {
			moved.RoomID = run.resolver.Resolve(*load, day, period)
			run.matrix.retagAssignment(*moved)
		}

		resolution.Steps = append(resolution.Steps,
			fmt.Sprintf("moved session %s from %s/%d to %s/%d", session.ID, session.Day, session.Period, day, period))
	}

	if len(resolution.Steps) == 0 {
		return nil, false
	}
	return resolution, true
}

// findFreeCell scans the grid for a cell where the session's teacher
// and class are both free and the load does not exclude it.
func (r *ConflictResolver) findFreeCell(run *engineRun, session models.ScheduleSession) (string, int, bool) {
	load := r.loadByID(run, session.TeachingLoadID)
	for _, day := range run.matrix.days {
		for period := 1; period <= run.matrix.periods; period++ {
			if day == session.Day && period == session.Period {
				continue
			}
			if load != nil && load.IsUnavailable(day, period) {
				continue
			}
			if run.matrix.canPlace(session.TeacherID, session.ClassID, day, period) {
				return day, period, true
			}
		}
	}
	return "", 0, false
}

func (r *ConflictResolver) loadByID(run *engineRun, loadID string) *models.TeachingLoad {
	for i := range run.loads {
		if run.loads[i].ID == loadID {
			return &run.loads[i]
		}
	}
	return nil
}

// applyTeacherReassignment hands a colliding session to another
// teacher who already teaches the same subject and is free at the
// cell.
func (r *ConflictResolver) applyTeacherReassignment(run *engineRun, conflict models.Conflict) (*models.Resolution, bool) {
	if len(conflict.SessionIDs) < 2 {
		return nil, false
	}

	for _, sessionID := range conflict.SessionIDs[1:] {
		idx := run.matrix.sessionIndex(sessionID)
		if idx < 0 {
			continue
		}
		session := run.matrix.sessions[idx]

		for i := range run.loads {
			candidate := &run.loads[i]
			if candidate.SubjectID != session.SubjectID || candidate.TeacherID == session.TeacherID {
				continue
			}
			key := cellKey{Day: session.Day, Period: session.Period}
			if run.matrix.teacherBusy[key][candidate.TeacherID] > 0 {
				continue
			}

			run.matrix.mark(session, false)
			session.TeacherID = candidate.TeacherID
			run.matrix.sessions[idx] = session
			run.matrix.mark(session, true)
			run.matrix.retagAssignment(session)

			return &models.Resolution{
				Steps: []string{fmt.Sprintf("session %s reassigned to teacher %s", session.ID, candidate.TeacherID)},
				SideEffects: []string{
					fmt.Sprintf("teacher %s takes over %s at %s period %d", candidate.TeacherID, session.SubjectID, session.Day, session.Period),
				},
			}, true
		}
	}
	return nil, false
}

// applyRoomReassignment gives surplus sessions a different room, or
// none.
func (r *ConflictResolver) applyRoomReassignment(run *engineRun, conflict models.Conflict) (*models.Resolution, bool) {
	if conflict.Type != models.ConflictRoomDoubleBooking || len(conflict.SessionIDs) < 2 {
		return nil, false
	}

	resolution := &models.Resolution{}
	for _, sessionID := range conflict.SessionIDs[1:] {
		idx := run.matrix.sessionIndex(sessionID)
		if idx < 0 {
			continue
		}
		session := &run.matrix.sessions[idx]
		load := r.loadByID(run, session.TeachingLoadID)
		if load == nil {
			continue
		}

		// The first session keeps the room, so it stays occupied and the
		// resolver is forced onto an alternative.
		previous := session.RoomID
		session.RoomID = run.resolver.Resolve(*load, session.Day, session.Period)
		if session.RoomID != nil && previous != nil && *session.RoomID == *previous {
			session.RoomID = nil
		}

		run.matrix.retagAssignment(*session)
		if session.RoomID == nil {
			resolution.SideEffects = append(resolution.SideEffects,
				fmt.Sprintf("session %s left without a room", session.ID))
		}
		resolution.Steps = append(resolution.Steps,
			fmt.Sprintf("session %s moved out of room %s", session.ID, conflict.RoomID))
	}

	if len(resolution.Steps) == 0 {
		return nil, false
	}
	return resolution, true
}

// applySessionSplit places missing hours one at a time anywhere the
// teacher and class are free, giving up the consecutive preference.
func (r *ConflictResolver) applySessionSplit(run *engineRun, conflict models.Conflict) (*models.Resolution, bool) {
	load := r.loadByID(run, conflict.LoadID)
	if load == nil || conflict.MissingHours <= 0 {
		return nil, false
	}

	resolution := &models.Resolution{
		SideEffects: []string{"consecutive lesson preference relaxed"},
	}
	snap := run.snapshot()
	placedBefore := run.placedByLoad[load.ID]

	placed := 0
	for placed < conflict.MissingHours {
		day, period, ok := r.findPlacementCell(run, *load, false)
		if !ok {
			break
		}
		r.placeMissingHour(run, load, day, period)
		resolution.Steps = append(resolution.Steps,
			fmt.Sprintf("placed split hour at %s period %d", day, period))
		placed++
	}

	if placed < conflict.MissingHours {
		run.restore(snap)
		run.placedByLoad[load.ID] = placedBefore
		return nil, false
	}
	return resolution, true
}

// applyLoadRedistribution moves sessions away from an overloaded
// teacher to a colleague teaching the same subject.
func (r *ConflictResolver) applyLoadRedistribution(run *engineRun, conflict models.Conflict) (*models.Resolution, bool) {
	if conflict.Type != models.ConflictWorkloadViolation || conflict.ExcessHours <= 0 {
		return nil, false
	}

	resolution := &models.Resolution{}
	snap := run.snapshot()
	moved := 0

	for i := range run.matrix.sessions {
		if moved >= conflict.ExcessHours {
			break
		}
		session := run.matrix.sessions[i]
		if session.TeacherID != conflict.TeacherID {
			continue
		}

		for j := range run.loads {
			candidate := &run.loads[j]
			if candidate.SubjectID != session.SubjectID || candidate.TeacherID == session.TeacherID {
				continue
			}
			key := cellKey{Day: session.Day, Period: session.Period}
			if run.matrix.teacherBusy[key][candidate.TeacherID] > 0 {
				continue
			}

			run.matrix.mark(session, false)
			session.TeacherID = candidate.TeacherID
			run.matrix.sessions[i] = session
			run.matrix.mark(session, true)
			run.matrix.retagAssignment(session)

			resolution.Steps = append(resolution.Steps,
				fmt.Sprintf("session %s handed to teacher %s", session.ID, candidate.TeacherID))
			resolution.SideEffects = append(resolution.SideEffects,
				fmt.Sprintf("teacher %s weekly hours increased", candidate.TeacherID))
			moved++
			break
		}
	}

	if moved < conflict.ExcessHours {
		run.restore(snap)
		return nil, false
	}
	return resolution, true
}

// applyConstraintRelaxation ignores the load's unavailable slots as a
// last resort to place missing hours.
func (r *ConflictResolver) applyConstraintRelaxation(run *engineRun, conflict models.Conflict) (*models.Resolution, bool) {
	load := r.loadByID(run, conflict.LoadID)
	if load == nil || conflict.MissingHours <= 0 {
		return nil, false
	}

	resolution := &models.Resolution{
		SideEffects: []string{"unavailable slot constraints relaxed"},
	}
	snap := run.snapshot()
	placedBefore := run.placedByLoad[load.ID]

	placed := 0
	for placed < conflict.MissingHours {
		day, period, ok := r.findPlacementCell(run, *load, true)
		if !ok {
			break
		}
		r.placeMissingHour(run, load, day, period)
		resolution.Steps = append(resolution.Steps,
			fmt.Sprintf("placed hour at %s period %d despite constraints", day, period))
		placed++
	}

	if placed < conflict.MissingHours {
		run.restore(snap)
		run.placedByLoad[load.ID] = placedBefore
		return nil, false
	}
	return resolution, true
}

// applyMultiStage frees a cell by relocating a blocking session, then
// places the missing hour into it. The whole chain rolls back when any
// stage fails.
func (r *ConflictResolver) applyMultiStage(run *engineRun, conflict models.Conflict) (*models.Resolution, bool) {
	load := r.loadByID(run, conflict.LoadID)
	if load == nil || conflict.MissingHours <= 0 {
		return nil, false
	}

	snap := run.snapshot()
	placedBefore := run.placedByLoad[load.ID]
	resolution := &models.Resolution{}

	placed := 0
	for placed < conflict.MissingHours {
		if !r.freeAndPlace(run, load, resolution) {
			run.restore(snap)
			run.placedByLoad[load.ID] = placedBefore
			return nil, false
		}
		placed++
	}

	return resolution, true
}

// freeAndPlace finds a cell blocked only by one movable session,
// relocates it, and places the missing hour there.
func (r *ConflictResolver) freeAndPlace(run *engineRun, load *models.TeachingLoad, resolution *models.Resolution) bool {
	for _, day := range run.matrix.days {
		for period := 1; period <= run.matrix.periods; period++ {
			if load.IsUnavailable(day, period) {
				continue
			}
			key := cellKey{Day: day, Period: period}
			if run.matrix.teacherBusy[key][load.TeacherID] > 0 {
				continue
			}
			if run.matrix.classBusy[key][load.ClassID] == 0 {
				// cell already free, no multi-stage needed
				continue
			}

			blockerIdx := r.findBlocker(run, load.ClassID, day, period)
			if blockerIdx < 0 {
				continue
			}
			blocker := run.matrix.sessions[blockerIdx]
			newDay, newPeriod, ok := r.findFreeCell(run, blocker)
			if !ok {
				continue
			}

			run.matrix.move(blockerIdx, newDay, newPeriod)
			resolution.Steps = append(resolution.Steps,
				fmt.Sprintf("stage 1: relocated session %s to %s period %d", blocker.ID, newDay, newPeriod))

			r.placeMissingHour(run, load, day, period)
			resolution.Steps = append(resolution.Steps,
				fmt.Sprintf("stage 2: placed hour at %s period %d", day, period))
			return true
		}
	}
	return false
}

func (r *ConflictResolver) findBlocker(run *engineRun, classID, day string, period int) int {
	for i, session := range run.matrix.sessions {
		if session.ClassID == classID && session.Day == day && session.Period == period {
			return i
		}
	}
	return -1
}

// findPlacementCell returns a cell where both parties are free.
// relaxed additionally ignores the load's unavailable slots.
func (r *ConflictResolver) findPlacementCell(run *engineRun, load models.TeachingLoad, relaxed bool) (string, int, bool) {
	for _, day := range run.matrix.days {
		for period := 1; period <= run.matrix.periods; period++ {
			if !relaxed && load.IsUnavailable(day, period) {
				continue
			}
			if run.matrix.canPlace(load.TeacherID, load.ClassID, day, period) {
				return day, period, true
			}
		}
	}
	return "", 0, false
}

func (r *ConflictResolver) placeMissingHour(run *engineRun, load *models.TeachingLoad, day string, period int) {
	slot, _ := run.matrix.slotAt(day, period)
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
}
