package service

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func searchFixtureRun(t *testing.T) *engineRun {
	t.Helper()
	settings := fixtureSettings([]string{"monday", "tuesday", "wednesday"}, 5)
	loads := []models.TeachingLoad{
		fixtureLoad("l1", "t1", "mathematics", "c1", 5),
		fixtureLoad("l2", "t2", "art", "c1", 4),
		fixtureLoad("l3", "t1", "physics", "c2", 5),
	}
	return buildRun(t, loads, nil, settings)
}

func TestSearchOptimizerNeverWorsens(t *testing.T) {
	run := searchFixtureRun(t)

	scorer := newOptimizer(nil, OptimizerOptions{UseGenetic: true, UseAnnealing: true, Seed: 42})
	search := NewSearchOptimizer(SearchConfig{PopulationSize: 8, Generations: 5}, nil)

	before := scorer.Score(run)
	after := search.Improve(context.Background(), run, scorer, before)

	assert.GreaterOrEqual(t, after.Total, before.Total)
	// Search cannot create or destroy lessons.
	assert.Len(t, run.matrix.sessions, 14)
}

func TestSearchOptimizerDeterministicWithSeed(t *testing.T) {
	runA := searchFixtureRun(t)
	runB := searchFixtureRun(t)

	search := NewSearchOptimizer(SearchConfig{PopulationSize: 8, Generations: 5}, nil)
	scorerA := newOptimizer(nil, OptimizerOptions{UseGenetic: true, Seed: 7})
	scorerB := newOptimizer(nil, OptimizerOptions{UseGenetic: true, Seed: 7})

	scoreA := search.Improve(context.Background(), runA, scorerA, scorerA.Score(runA))
	scoreB := search.Improve(context.Background(), runB, scorerB, scorerB.Score(runB))

	assert.InDelta(t, scoreA.Total, scoreB.Total, 1e-9)
	// Identical seeds must produce identical placements, not just
	// identical scores.
	require.Equal(t, len(runA.matrix.sessions), len(runB.matrix.sessions))
	for i := range runA.matrix.sessions {
		a, b := runA.matrix.sessions[i], runB.matrix.sessions[i]
		assert.Equal(t, a.Day, b.Day)
		assert.Equal(t, a.Period, b.Period)
	}
}

func TestSearchOptimizerAnnealKeepsValidity(t *testing.T) {
	run := searchFixtureRun(t)
	scorer := newOptimizer(nil, OptimizerOptions{UseAnnealing: true, Seed: 99})
	search := NewSearchOptimizer(SearchConfig{InitialTemp: 10, CoolingRate: 0.8, MinTemp: 1}, nil)

	search.Improve(context.Background(), run, scorer, scorer.Score(run))

	assert.Empty(t, NewConflictDetector(0, nil).Detect(run.matrix))
}

func TestSearchOptimizerRepairRemovesIntraChromosomeClashes(t *testing.T) {
	run := searchFixtureRun(t)
	search := NewSearchOptimizer(SearchConfig{}, nil)
	rng := rand.New(rand.NewSource(1))

	// Collapse every gene onto a single cell, then repair.
	genes := make([]placement, len(run.matrix.sessions))
	for i := range genes {
		genes[i] = placement{Day: "monday", Period: 1}
	}
	search.repair(run, rng, genes)

	type cell struct {
		day    string
		period int
	}
	seenTeacher := map[string]map[cell]bool{}
	for i, gene := range genes {
		session := run.matrix.sessions[i]
		c := cell{gene.Day, gene.Period}
		if seenTeacher[session.TeacherID] == nil {
			seenTeacher[session.TeacherID] = map[cell]bool{}
		}
		assert.False(t, seenTeacher[session.TeacherID][c], "teacher %s repaired onto an occupied cell", session.TeacherID)
		seenTeacher[session.TeacherID][c] = true
	}
}

func TestExtractAndApplyGenesRoundTrip(t *testing.T) {
	run := searchFixtureRun(t)

	genes := extractGenes(run.matrix)
	require.Len(t, genes, len(run.matrix.sessions))

	snap := run.matrix.snapshot()
	applyGenes(run.matrix, genes)

	for i := range run.matrix.sessions {
		assert.Equal(t, snap.sessions[i].Day, run.matrix.sessions[i].Day)
		assert.Equal(t, snap.sessions[i].Period, run.matrix.sessions[i].Period)
	}
}

func TestDefaultSearchConfig(t *testing.T) {
	cfg := DefaultSearchConfig()
	assert.Equal(t, 20, cfg.PopulationSize)
	assert.Equal(t, 50, cfg.Generations)
	assert.InDelta(t, 0.8, cfg.CrossoverRate, 1e-9)
	assert.InDelta(t, 0.1, cfg.MutationRate, 1e-9)
	assert.InDelta(t, 1000.0, cfg.InitialTemp, 1e-9)
	assert.InDelta(t, 0.95, cfg.CoolingRate, 1e-9)
	assert.InDelta(t, 0.1, cfg.MinTemp, 1e-9)
}
