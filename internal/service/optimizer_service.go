package service

import (
	"context"
	"math"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// Penalty weights applied while scoring a candidate timetable.
const (
	penaltyTeacherClash    = 100.0
	penaltyClassClash      = 90.0
	penaltyRoomClash       = 80.0
	penaltyGap             = 20.0
	penaltyLateCore        = 15.0
	penaltyOverload        = 50.0
	penaltyBadDistribution = 30.0
	penaltyRoomChange      = 10.0
)

// OptimizerOptions toggles and seeds one optimization run.
type OptimizerOptions struct {
	UseGenetic         bool
	UseAnnealing       bool
	Seed               int64
	MaxConsecutiveSame int
	MinBreakBetween    int
	TargetScore        float64
}

// OptimizerService improves a placed timetable through a fixed pass
// pipeline and optional global search. The pipeline is monotonic: a
// pass that worsens the score is rolled back.
type OptimizerService struct {
	resolver *ConflictResolver
	detector *ConflictDetector
	search   *SearchOptimizer
	cfg      OptimizerOptions
	logger   *zap.Logger
}

// NewOptimizerService wires the optimizer.
func NewOptimizerService(detector *ConflictDetector, resolver *ConflictResolver, search *SearchOptimizer, cfg OptimizerOptions, logger *zap.Logger) *OptimizerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConsecutiveSame <= 0 {
		cfg.MaxConsecutiveSame = 2
	}
	if cfg.MinBreakBetween < 0 {
		cfg.MinBreakBetween = 1
	}
	return &OptimizerService{
		detector: detector,
		resolver: resolver,
		search:   search,
		cfg:      cfg,
		logger:   logger,
	}
}

// WithOptions returns a copy of the service carrying per-run
// preferences. Zero fields fall back to the configured defaults.
func (s *OptimizerService) WithOptions(opts OptimizerOptions) *OptimizerService {
	copied := *s
	if opts.Seed == 0 {
		opts.Seed = s.cfg.Seed
	}
	if opts.MaxConsecutiveSame <= 0 {
		opts.MaxConsecutiveSame = s.cfg.MaxConsecutiveSame
	}
	if opts.MinBreakBetween <= 0 {
		opts.MinBreakBetween = s.cfg.MinBreakBetween
	}
	if opts.TargetScore <= 0 {
		opts.TargetScore = s.cfg.TargetScore
	}
	copied.cfg = opts
	return &copied
}

type optimizerPass struct {
	name string
	run  func(*engineRun)
}

// Optimize runs the pass pipeline over the run's matrix and returns
// the final score. Cancellation is checked between passes; partial
// improvements are kept.
func (s *OptimizerService) Optimize(ctx context.Context, run *engineRun, degraded bool) models.OptimizationScore {
	passes := []optimizerPass{
		{name: "hard_conflicts", run: s.passHardConflicts},
		{name: "preference_alignment", run: s.passPreferenceAlignment},
		{name: "gap_minimization", run: s.passGapMinimization},
		{name: "daily_load_balancing", run: s.passDailyLoadBalancing},
		{name: "subject_distribution", run: s.passSubjectDistribution},
		{name: "room_optimization", run: s.passRoomOptimization},
	}

	best := s.Score(run)
	for _, pass := range passes {
		if ctx.Err() != nil {
			run.logf("optimizer", "optimization cancelled before %s pass", pass.name)
			return best
		}

		snap := run.snapshot()
		logMark := len(run.log)
		resolutionMark := len(run.resolutions)
		pass.run(run)
		score := s.Score(run)
		if score.Total < best.Total {
			// Roll back the mutations together with the log and
			// resolution entries describing them.
			run.restore(snap)
			run.log = run.log[:logMark]
			run.resolutions = run.resolutions[:resolutionMark]
			continue
		}
		best = score
		run.logf("optimizer", "%s pass kept, score %.2f", pass.name, best.Total)
	}

	if degraded {
		run.logf("optimizer", "global search skipped in degraded mode")
		return best
	}

	if s.search != nil && (s.cfg.UseGenetic || s.cfg.UseAnnealing) {
		if ctx.Err() != nil {
			return best
		}
		best = s.search.Improve(ctx, run, s, best)
	}

	return best
}

// Score computes the weighted component score of the current state.
func (s *OptimizerService) Score(run *engineRun) models.OptimizationScore {
	score := models.OptimizationScore{
		Conflict:            s.conflictScore(run),
		TeacherSatisfaction: s.satisfactionScore(run),
		Efficiency:          s.efficiencyScore(run),
		Distribution:        s.distributionScore(run),
		Utilization:         s.utilizationScore(run),
	}
	score.Weighted()
	return score
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func (s *OptimizerService) conflictScore(run *engineRun) float64 {
	penalty := 0.0
	for _, conflict := range s.detector.Detect(run.matrix) {
		switch conflict.Type {
		case models.ConflictTeacherDoubleBooking:
			penalty += penaltyTeacherClash
		case models.ConflictClassDoubleBooking:
			penalty += penaltyClassClash
		case models.ConflictRoomDoubleBooking:
			penalty += penaltyRoomClash
		case models.ConflictWorkloadViolation:
			penalty += penaltyOverload
		default:
			penalty += penaltyGap
		}
	}
	return clampScore(100 - penalty)
}

func (s *OptimizerService) satisfactionScore(run *engineRun) float64 {
	if len(run.matrix.sessions) == 0 {
		return 0
	}

	aligned := 0
	violated := 0
	for _, session := range run.matrix.sessions {
		load := findLoad(run.loads, session.TeachingLoadID)
		if load == nil {
			continue
		}
		if load.PrefersSlot(session.Day, session.Period) || len(load.PreferredSlots) == 0 {
			aligned++
		}
		if load.IsUnavailable(session.Day, session.Period) {
			violated++
		}
	}

	base := float64(aligned) / float64(len(run.matrix.sessions)) * 100
	return clampScore(base - float64(violated)*penaltyLateCore)
}

func (s *OptimizerService) efficiencyScore(run *engineRun) float64 {
	gaps := countClassGaps(run.matrix)
	return clampScore(100 - float64(gaps)*penaltyGap)
}

func (s *OptimizerService) distributionScore(run *engineRun) float64 {
	penalty := 0.0

	// Uneven daily load per class.
	perClassDay := make(map[string]map[string]int)
	for _, session := range run.matrix.sessions {
		if perClassDay[session.ClassID] == nil {
			perClassDay[session.ClassID] = make(map[string]int)
		}
		perClassDay[session.ClassID][session.Day]++
	}
	for _, days := range perClassDay {
		counts := lo.Values(days)
		if len(counts) == 0 {
			continue
		}
		min := lo.Min(counts)
		max := lo.Max(counts)
		if max-min > 2 {
			penalty += penaltyBadDistribution
		}
	}

	// Core subjects pushed into the afternoon.
	for _, session := range run.matrix.sessions {
		load := findLoad(run.loads, session.TeachingLoadID)
		if load != nil && isCoreSubject(load.SubjectName) && session.Period > 4 {
			penalty += penaltyLateCore
		}
	}

	return clampScore(100 - penalty)
}

func (s *OptimizerService) utilizationScore(run *engineRun) float64 {
	if len(run.matrix.sessions) == 0 {
		return 0
	}

	roomed := 0
	roomChanges := 0
	lastRoom := make(map[string]string)

	for _, session := range sessionsInOrder(run.matrix) {
		if session.RoomID != nil {
			roomed++
			key := session.TeacherID + "/" + session.Day
			if prev, ok := lastRoom[key]; ok && prev != *session.RoomID {
				roomChanges++
			}
			lastRoom[key] = *session.RoomID
		}
	}

	base := float64(roomed) / float64(len(run.matrix.sessions)) * 100
	return clampScore(base - float64(roomChanges)*penaltyRoomChange)
}

// passHardConflicts re-detects and resolves critical conflicts. The
// resolutions land on run.resolutions so the orchestrator can merge
// them into the run's resolved list.
func (s *OptimizerService) passHardConflicts(run *engineRun) {
	conflicts := s.detector.Detect(run.matrix)
	critical := lo.Filter(conflicts, func(c models.Conflict, _ int) bool {
		return c.Severity == models.SeverityCritical
	})
	if len(critical) == 0 {
		return
	}
	resolved, _ := s.resolver.Resolve(run, critical)
	run.resolutions = append(run.resolutions, resolved...)
}

// passPreferenceAlignment moves sessions off their load's unavailable
// or non-preferred slots when a preferred cell is free.
func (s *OptimizerService) passPreferenceAlignment(run *engineRun) {
	for i := range run.matrix.sessions {
		session := run.matrix.sessions[i]
		load := findLoad(run.loads, session.TeachingLoadID)
		if load == nil || len(load.PreferredSlots) == 0 {
			continue
		}
		if load.PrefersSlot(session.Day, session.Period) {
			continue
		}
		for _, pref := range load.PreferredSlots {
			if run.matrix.canPlace(session.TeacherID, session.ClassID, pref.Day, pref.Period) {
				run.matrix.move(i, pref.Day, pref.Period)
				break
			}
		}
	}
}

// passGapMinimization compacts each class day by pulling sessions into
// holes.
func (s *OptimizerService) passGapMinimization(run *engineRun) {
	for _, day := range run.matrix.days {
		byClass := make(map[string][]int)
		for i, session := range run.matrix.sessions {
			if session.Day == day {
				byClass[session.ClassID] = append(byClass[session.ClassID], i)
			}
		}

		for classID, indexes := range byClass {
			periods := lo.Map(indexes, func(i int, _ int) int { return run.matrix.sessions[i].Period })
			target := 1
			for _, period := range sortedInts(periods) {
				if period == target {
					target++
					continue
				}
				// find the session sitting at this period and pull it down
				for _, i := range indexes {
					session := run.matrix.sessions[i]
					if session.Period != period || session.ClassID != classID {
						continue
					}
					load := findLoad(run.loads, session.TeachingLoadID)
					if load != nil && load.IsUnavailable(day, target) {
						break
					}
					if run.matrix.canPlace(session.TeacherID, session.ClassID, day, target) {
						run.matrix.move(i, day, target)
						target++
					}
					break
				}
			}
		}
	}
}

// passDailyLoadBalancing shifts lessons from the heaviest class day to
// the lightest.
func (s *OptimizerService) passDailyLoadBalancing(run *engineRun) {
	perClassDay := make(map[string]map[string][]int)
	for i, session := range run.matrix.sessions {
		if perClassDay[session.ClassID] == nil {
			perClassDay[session.ClassID] = make(map[string][]int)
		}
		perClassDay[session.ClassID][session.Day] = append(perClassDay[session.ClassID][session.Day], i)
	}

	for _, days := range perClassDay {
		heavyDay, lightDay := "", ""
		heavy, light := -1, math.MaxInt32
		for _, day := range run.matrix.days {
			count := len(days[day])
			if count > heavy {
				heavy, heavyDay = count, day
			}
			if count < light {
				light, lightDay = count, day
			}
		}
		if heavy-light <= 2 || heavyDay == lightDay {
			continue
		}

		for _, i := range days[heavyDay] {
			session := run.matrix.sessions[i]
			load := findLoad(run.loads, session.TeachingLoadID)
			for period := 1; period <= run.matrix.periods; period++ {
				if load != nil && load.IsUnavailable(lightDay, period) {
					continue
				}
				if run.matrix.canPlace(session.TeacherID, session.ClassID, lightDay, period) {
					run.matrix.move(i, lightDay, period)
					break
				}
			}
			break
		}
	}
}

// passSubjectDistribution breaks up overlong same-subject runs and
// pulls core subjects towards the morning.
func (s *OptimizerService) passSubjectDistribution(run *engineRun) {
	// Core subjects first.
	for i := range run.matrix.sessions {
		session := run.matrix.sessions[i]
		load := findLoad(run.loads, session.TeachingLoadID)
		if load == nil || !isCoreSubject(load.SubjectName) || session.Period <= 4 {
			continue
		}
		for period := 1; period <= 4; period++ {
			if load.IsUnavailable(session.Day, period) {
				continue
			}
			if run.matrix.canPlace(session.TeacherID, session.ClassID, session.Day, period) {
				run.matrix.move(i, session.Day, period)
				break
			}
		}
	}

	// Then cap consecutive same-subject repeats.
	for _, day := range run.matrix.days {
		bySubjectClass := make(map[string][]int)
		for i, session := range run.matrix.sessions {
			if session.Day != day {
				continue
			}
			key := session.ClassID + "/" + session.SubjectID
			bySubjectClass[key] = append(bySubjectClass[key], i)
		}

		for _, indexes := range bySubjectClass {
			if len(indexes) <= s.cfg.MaxConsecutiveSame {
				continue
			}
			// relocate the surplus to other days
			for _, i := range indexes[s.cfg.MaxConsecutiveSame:] {
				session := run.matrix.sessions[i]
				load := findLoad(run.loads, session.TeachingLoadID)
				for _, otherDay := range run.matrix.days {
					if otherDay == day {
						continue
					}
					moved := false
					for period := 1; period <= run.matrix.periods; period++ {
						if load != nil && load.IsUnavailable(otherDay, period) {
							continue
						}
						if run.matrix.canPlace(session.TeacherID, session.ClassID, otherDay, period) {
							run.matrix.move(i, otherDay, period)
							moved = true
							break
						}
					}
					if moved {
						break
					}
				}
			}
		}
	}
}

// passRoomOptimization keeps teachers in the same room across a day
// where capacity allows.
func (s *OptimizerService) passRoomOptimization(run *engineRun) {
	byTeacherDay := make(map[string][]int)
	for i, session := range run.matrix.sessions {
		key := session.TeacherID + "/" + session.Day
		byTeacherDay[key] = append(byTeacherDay[key], i)
	}

	for _, indexes := range byTeacherDay {
		if len(indexes) < 2 {
			continue
		}
		// adopt the most common room of the day
		counts := make(map[string]int)
		for _, i := range indexes {
			if room := run.matrix.sessions[i].RoomID; room != nil {
				counts[*room]++
			}
		}
		var anchor string
		best := 0
		for room, count := range counts {
			if count > best {
				best, anchor = count, room
			}
		}
		if anchor == "" {
			continue
		}
		for _, i := range indexes {
			session := &run.matrix.sessions[i]
			if session.RoomID == nil || *session.RoomID == anchor {
				continue
			}
			load := findLoad(run.loads, session.TeachingLoadID)
			if load == nil {
				continue
			}
			for _, room := range run.resolver.rooms {
				if room.ID == anchor && room.Fits(*load) {
					id := anchor
					session.RoomID = &id
					run.matrix.retagAssignment(*session)
					break
				}
			}
		}
	}
}

func findLoad(loads []models.TeachingLoad, loadID string) *models.TeachingLoad {
	for i := range loads {
		if loads[i].ID == loadID {
			return &loads[i]
		}
	}
	return nil
}

// countClassGaps counts idle periods between a class's first and last
// lesson of each day.
func countClassGaps(matrix *timeMatrix) int {
	type classDay struct {
		class string
		day   string
	}
	periods := make(map[classDay][]int)
	for _, session := range matrix.sessions {
		key := classDay{class: session.ClassID, day: session.Day}
		periods[key] = append(periods[key], session.Period)
	}

	gaps := 0
	for _, list := range periods {
		sorted := sortedInts(list)
		for i := 1; i < len(sorted); i++ {
			if delta := sorted[i] - sorted[i-1]; delta > 1 {
				gaps += delta - 1
			}
		}
	}
	return gaps
}

func sortedInts(values []int) []int {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	return sorted
}

// sessionsInOrder returns sessions sorted by day then period for
// order-sensitive metrics.
func sessionsInOrder(matrix *timeMatrix) []models.ScheduleSession {
	ordered := append([]models.ScheduleSession(nil), matrix.sessions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ai, bi := models.DayIndex(ordered[i].Day), models.DayIndex(ordered[j].Day)
		if ai != bi {
			return ai < bi
		}
		return ordered[i].Period < ordered[j].Period
	})
	return ordered
}
