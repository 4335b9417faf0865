package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

type stubHistoryFetcher struct {
	entries  []models.HistoricalSchedule
	listErr  error
	recorded []models.HistoricalSchedule
}

func (s *stubHistoryFetcher) ListByInstitution(ctx context.Context, institutionID string, limit int) ([]models.HistoricalSchedule, error) {
	return s.entries, s.listErr
}

func (s *stubHistoryFetcher) Record(ctx context.Context, institutionID string, entry models.HistoricalSchedule) error {
	s.recorded = append(s.recorded, entry)
	return nil
}

func analyzerSessions(t *testing.T) ([]models.ScheduleSession, []models.TeachingLoad, models.GenerationSettings) {
	t.Helper()
	settings := fixtureSettings(nil, 0)
	loads := []models.TeachingLoad{
		fixtureLoad("l1", "t1", "mathematics", "c1", 5),
		fixtureLoad("l2", "t2", "art", "c1", 5),
	}
	run := buildRun(t, loads, nil, settings)
	return run.matrix.sessions, loads, settings
}

func TestExtractFeaturesRanges(t *testing.T) {
	sessions, loads, settings := analyzerSessions(t)

	features := ExtractFeatures(sessions, loads, settings)

	assert.Greater(t, features.SessionDensity, 0.0)
	assert.LessOrEqual(t, features.SessionDensity, 1.0)
	assert.InDelta(t, 1.0, features.MorningRatio+features.AfternoonRatio, 1e-9)
	assert.GreaterOrEqual(t, features.GapDensity, 0.0)
	assert.Greater(t, features.TeacherUtilization, 0.0)
	assert.Greater(t, features.SubjectDiversity, 0.0)
	assert.InDelta(t, 0.5, features.CoreSubjectRatio, 1e-9, "half the sessions are mathematics")
	assert.GreaterOrEqual(t, features.MaxDailyLoad, 1.0)
}

func TestExtractFeaturesEmptySessions(t *testing.T) {
	features := ExtractFeatures(nil, nil, fixtureSettings(nil, 0))
	assert.Equal(t, models.FeatureVector{}, features)
}

func TestAnalyzerPredictsWithoutHistory(t *testing.T) {
	sessions, loads, settings := analyzerSessions(t)
	svc := NewAnalyzerService(nil, nil, AnalyzerConfig{}, nil)

	prediction, err := svc.Analyze(context.Background(), "inst-1", sessions, loads, settings)
	require.NoError(t, err)

	assert.Greater(t, prediction.SuccessProbability, 0.0)
	assert.Less(t, prediction.SuccessProbability, 1.0)
	assert.GreaterOrEqual(t, prediction.ConflictLikelihood, 0.0)
	assert.LessOrEqual(t, prediction.ConflictLikelihood, 1.0)
	assert.Empty(t, prediction.SimilarSchedules)
}

func TestAnalyzerFindsSimilarSchedules(t *testing.T) {
	sessions, loads, settings := analyzerSessions(t)
	features := ExtractFeatures(sessions, loads, settings)

	history := &stubHistoryFetcher{entries: []models.HistoricalSchedule{
		{ScheduleID: "past-same", Features: features, SuccessRating: 90, CreatedAt: time.Now()},
		{ScheduleID: "past-other", Features: models.FeatureVector{GapDensity: 1, WorkloadVariance: 50}, SuccessRating: 30},
	}}
	svc := NewAnalyzerService(history, nil, AnalyzerConfig{}, nil)

	prediction, err := svc.Analyze(context.Background(), "inst-1", sessions, loads, settings)
	require.NoError(t, err)

	require.NotEmpty(t, prediction.SimilarSchedules)
	assert.Equal(t, "past-same", prediction.SimilarSchedules[0].ScheduleID)
	assert.InDelta(t, 1.0, prediction.SimilarSchedules[0].Similarity, 1e-9)
	for _, s := range prediction.SimilarSchedules {
		assert.NotEqual(t, "past-other", s.ScheduleID, "dissimilar schedule must stay below the threshold")
	}
}

func TestAnalyzerDegradesOnHistoryError(t *testing.T) {
	sessions, loads, settings := analyzerSessions(t)
	history := &stubHistoryFetcher{listErr: errors.New("connection refused")}
	svc := NewAnalyzerService(history, nil, AnalyzerConfig{}, nil)

	prediction, err := svc.Analyze(context.Background(), "inst-1", sessions, loads, settings)
	require.NoError(t, err, "history failures must not fail the analysis")
	assert.Empty(t, prediction.SimilarSchedules)
	assert.Greater(t, prediction.SuccessProbability, 0.0)
}

func TestAnalyzerRecordOutcome(t *testing.T) {
	history := &stubHistoryFetcher{}
	svc := NewAnalyzerService(history, nil, AnalyzerConfig{}, nil)

	err := svc.RecordOutcome(context.Background(), "inst-1", "sched-1", models.FeatureVector{SessionDensity: 0.5}, 87.5)
	require.NoError(t, err)
	require.Len(t, history.recorded, 1)
	assert.Equal(t, "sched-1", history.recorded[0].ScheduleID)
	assert.InDelta(t, 87.5, history.recorded[0].SuccessRating, 1e-9)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{0, 0}, []float64{1, 1}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1}, []float64{1, 2}), 1e-9)
}

func TestRecommendationsTriggerOnWeakFeatures(t *testing.T) {
	recs := recommendations(models.FeatureVector{
		GapDensity:       0.5,
		WorkloadVariance: 12,
		MorningRatio:     0.2,
		MaxDailyLoad:     9,
	})
	assert.Len(t, recs, 4)

	assert.Empty(t, recommendations(models.FeatureVector{MorningRatio: 0.8}))
}
