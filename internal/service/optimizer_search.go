package service

import (
	"context"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// SearchConfig bounds the genetic and annealing phases.
type SearchConfig struct {
	PopulationSize int
	Generations    int
	CrossoverRate  float64
	MutationRate   float64

	InitialTemp float64
	CoolingRate float64
	MinTemp     float64
}

// DefaultSearchConfig mirrors the engine's tuned parameters.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		PopulationSize: 20,
		Generations:    50,
		CrossoverRate:  0.8,
		MutationRate:   0.1,
		InitialTemp:    1000,
		CoolingRate:    0.95,
		MinTemp:        0.1,
	}
}

// SearchOptimizer runs seeded global search over the placement state.
// Both phases are strict improvements: the caller's state is replaced
// only when the search finds something better.
type SearchOptimizer struct {
	cfg    SearchConfig
	logger *zap.Logger
}

func NewSearchOptimizer(cfg SearchConfig, logger *zap.Logger) *SearchOptimizer {
	if cfg.PopulationSize <= 0 {
		cfg.PopulationSize = 20
	}
	if cfg.Generations <= 0 {
		cfg.Generations = 50
	}
	if cfg.CrossoverRate <= 0 {
		cfg.CrossoverRate = 0.8
	}
	if cfg.MutationRate <= 0 {
		cfg.MutationRate = 0.1
	}
	if cfg.InitialTemp <= 0 {
		cfg.InitialTemp = 1000
	}
	if cfg.CoolingRate <= 0 || cfg.CoolingRate >= 1 {
		cfg.CoolingRate = 0.95
	}
	if cfg.MinTemp <= 0 {
		cfg.MinTemp = 0.1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchOptimizer{cfg: cfg, logger: logger}
}

// Improve runs the enabled search phases and installs the best found
// state into the run. Never returns a score below the input.
func (o *SearchOptimizer) Improve(ctx context.Context, run *engineRun, scorer *OptimizerService, current models.OptimizationScore) models.OptimizationScore {
	rng := rand.New(rand.NewSource(scorer.cfg.Seed))

	best := current
	if scorer.cfg.UseGenetic {
		best = o.genetic(ctx, run, scorer, rng, best)
	}
	if ctx.Err() != nil {
		return best
	}
	if scorer.cfg.UseAnnealing {
		best = o.anneal(ctx, run, scorer, rng, best)
	}
	return best
}

// placement is one gene: where a session sits.
type placement struct {
	Day    string
	Period int
}

type individual struct {
	genes   []placement
	fitness float64
}

// genetic evolves a population of full placements with tournament
// selection, uniform crossover and repair.
func (o *SearchOptimizer) genetic(ctx context.Context, run *engineRun, scorer *OptimizerService, rng *rand.Rand, current models.OptimizationScore) models.OptimizationScore {
	base := extractGenes(run.matrix)
	if len(base) == 0 {
		return current
	}

	population := make([]individual, o.cfg.PopulationSize)
	population[0] = individual{genes: append([]placement(nil), base...)}
	for i := 1; i < o.cfg.PopulationSize; i++ {
		population[i] = individual{genes: o.mutateGenes(run, rng, base, 0.3)}
	}
	for i := range population {
		population[i].fitness = o.evaluate(run, scorer, population[i].genes)
	}

	for gen := 0; gen < o.cfg.Generations; gen++ {
		if ctx.Err() != nil {
			break
		}

		next := make([]individual, 0, o.cfg.PopulationSize)
		next = append(next, fittest(population)) // elitism

		for len(next) < o.cfg.PopulationSize {
			parentA := o.tournament(population, rng)
			parentB := o.tournament(population, rng)

			child := append([]placement(nil), parentA.genes...)
			if rng.Float64() < o.cfg.CrossoverRate {
				for i := range child {
					if rng.Float64() < 0.5 {
						child[i] = parentB.genes[i]
					}
				}
			}
			child = o.mutateGenes(run, rng, child, o.cfg.MutationRate)
			o.repair(run, rng, child)

			next = append(next, individual{genes: child, fitness: o.evaluate(run, scorer, child)})
		}
		population = next
	}

	winner := fittest(population)
	if winner.fitness <= current.Total {
		return current
	}

	applyGenes(run.matrix, winner.genes)
	o.logger.Info("genetic search improved score",
		zap.Float64("from", current.Total),
		zap.Float64("to", winner.fitness),
	)
	return scorer.Score(run)
}

func (o *SearchOptimizer) tournament(population []individual, rng *rand.Rand) individual {
	const size = 3
	best := population[rng.Intn(len(population))]
	for i := 1; i < size; i++ {
		candidate := population[rng.Intn(len(population))]
		if candidate.fitness > best.fitness {
			best = candidate
		}
	}
	return best
}

func fittest(population []individual) individual {
	best := population[0]
	for _, candidate := range population[1:] {
		if candidate.fitness > best.fitness {
			best = candidate
		}
	}
	return best
}

// mutateGenes moves random sessions to random cells at the given rate.
func (o *SearchOptimizer) mutateGenes(run *engineRun, rng *rand.Rand, genes []placement, rate float64) []placement {
	mutated := append([]placement(nil), genes...)
	for i := range mutated {
		if rng.Float64() >= rate {
			continue
		}
		mutated[i] = placement{
			Day:    run.matrix.days[rng.Intn(len(run.matrix.days))],
			Period: 1 + rng.Intn(run.matrix.periods),
		}
	}
	return mutated
}

// repair resolves intra-chromosome double bookings by nudging genes to
// free cells.
func (o *SearchOptimizer) repair(run *engineRun, rng *rand.Rand, genes []placement) {
	type key struct {
		id   string
		cell placement
	}
	teacherTaken := make(map[key]bool, len(genes))
	classTaken := make(map[key]bool, len(genes))

	free := func(session models.ScheduleSession, cell placement) bool {
		return !teacherTaken[key{id: session.TeacherID, cell: cell}] &&
			!classTaken[key{id: session.ClassID, cell: cell}]
	}
	take := func(session models.ScheduleSession, cell placement) {
		teacherTaken[key{id: session.TeacherID, cell: cell}] = true
		classTaken[key{id: session.ClassID, cell: cell}] = true
	}

	for i, gene := range genes {
		session := run.matrix.sessions[i]
		if free(session, gene) {
			take(session, gene)
			continue
		}
		repaired := false
		for attempt := 0; attempt < len(run.matrix.days)*run.matrix.periods; attempt++ {
			candidate := placement{
				Day:    run.matrix.days[rng.Intn(len(run.matrix.days))],
				Period: 1 + rng.Intn(run.matrix.periods),
			}
			if free(session, candidate) {
				genes[i] = candidate
				take(session, candidate)
				repaired = true
				break
			}
		}
		if !repaired {
			take(session, gene)
		}
	}
}

func (o *SearchOptimizer) evaluate(run *engineRun, scorer *OptimizerService, genes []placement) float64 {
	snap := run.matrix.snapshot()
	applyGenes(run.matrix, genes)
	total := scorer.Score(run).Total
	run.matrix.restore(snap)
	return total
}

// anneal walks single-session moves with temperature-scaled acceptance
// of regressions.
func (o *SearchOptimizer) anneal(ctx context.Context, run *engineRun, scorer *OptimizerService, rng *rand.Rand, current models.OptimizationScore) models.OptimizationScore {
	if len(run.matrix.sessions) == 0 {
		return current
	}

	bestSnap := run.matrix.snapshot()
	best := current
	currentScore := current

	for temp := o.cfg.InitialTemp; temp > o.cfg.MinTemp; temp *= o.cfg.CoolingRate {
		if ctx.Err() != nil {
			break
		}

		idx := rng.Intn(len(run.matrix.sessions))
		session := run.matrix.sessions[idx]
		day := run.matrix.days[rng.Intn(len(run.matrix.days))]
		period := 1 + rng.Intn(run.matrix.periods)
		if day == session.Day && period == session.Period {
			continue
		}
		if !run.matrix.canPlace(session.TeacherID, session.ClassID, day, period) {
			continue
		}

		undo := placement{Day: session.Day, Period: session.Period}
		run.matrix.move(idx, day, period)
		candidate := scorer.Score(run)

		delta := candidate.Total - currentScore.Total
		if delta >= 0 || rng.Float64() < math.Exp(delta/temp) {
			currentScore = candidate
			if candidate.Total > best.Total {
				best = candidate
				bestSnap = run.matrix.snapshot()
			}
			continue
		}
		run.matrix.move(idx, undo.Day, undo.Period)
	}

	run.matrix.restore(bestSnap)
	if best.Total > current.Total {
		o.logger.Info("annealing improved score",
			zap.Float64("from", current.Total),
			zap.Float64("to", best.Total),
		)
	}
	return best
}

func extractGenes(matrix *timeMatrix) []placement {
	genes := make([]placement, len(matrix.sessions))
	for i, session := range matrix.sessions {
		genes[i] = placement{Day: session.Day, Period: session.Period}
	}
	return genes
}

// applyGenes rebuilds the matrix state from a chromosome.
func applyGenes(matrix *timeMatrix, genes []placement) {
	for i, gene := range genes {
		session := matrix.sessions[i]
		if session.Day == gene.Day && session.Period == gene.Period {
			continue
		}
		matrix.move(i, gene.Day, gene.Period)
	}
}
