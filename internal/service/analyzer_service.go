package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/pkg/cache"
)

type historyFetcher interface {
	ListByInstitution(ctx context.Context, institutionID string, limit int) ([]models.HistoricalSchedule, error)
	Record(ctx context.Context, institutionID string, entry models.HistoricalSchedule) error
}

// Feature weights for the success probability model.
const (
	weightSessionDensity     = 0.15
	weightMorningRatio       = 0.12
	weightAfternoonRatio     = 0.07
	weightGapDensity         = -0.20
	weightWorkloadVariance   = -0.18
	weightTeacherUtilization = 0.25
	weightSubjectDiversity   = 0.08
	weightCoreSubjectRatio   = 0.10
	weightMaxDailyLoad       = -0.15
)

// AnalyzerConfig tunes similarity lookups.
type AnalyzerConfig struct {
	SimilarityThreshold float64
	MaxSimilarResults   int
	HistoryCacheTTL     time.Duration
	HistoryFetchLimit   int
}

// AnalyzerService predicts the outcome of a candidate timetable from
// its feature fingerprint and the historical corpus. Advisory only:
// nothing here mutates a schedule.
type AnalyzerService struct {
	history historyFetcher
	store   *cache.Store
	metrics *MetricsService
	cfg     AnalyzerConfig
	logger  *zap.Logger
}

// NewAnalyzerService wires the analyzer.
func NewAnalyzerService(history historyFetcher, store *cache.Store, cfg AnalyzerConfig, logger *zap.Logger) *AnalyzerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.7
	}
	if cfg.MaxSimilarResults <= 0 {
		cfg.MaxSimilarResults = 5
	}
	if cfg.HistoryCacheTTL <= 0 {
		cfg.HistoryCacheTTL = 30 * time.Minute
	}
	if cfg.HistoryFetchLimit <= 0 {
		cfg.HistoryFetchLimit = 200
	}
	return &AnalyzerService{history: history, store: store, cfg: cfg, logger: logger}
}

// AttachMetrics wires cache hit/miss instrumentation. Optional.
func (s *AnalyzerService) AttachMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// Analyze extracts the candidate's features and produces the advisory
// prediction.
func (s *AnalyzerService) Analyze(ctx context.Context, institutionID string, sessions []models.ScheduleSession, loads []models.TeachingLoad, settings models.GenerationSettings) (*models.OutcomePrediction, error) {
	settings.Normalize()
	features := ExtractFeatures(sessions, loads, settings)

	prediction := &models.OutcomePrediction{
		Features:           features,
		SuccessProbability: successProbability(features),
		ConflictLikelihood: conflictLikelihood(features),
		SatisfactionScore:  satisfactionEstimate(features),
	}
	prediction.Recommendations = recommendations(features)

	similar, err := s.similarSchedules(ctx, institutionID, features)
	if err != nil {
		// advisory path: degrade to a history-free prediction
		s.logger.Warn("historical lookup failed", zap.Error(err))
	} else {
		prediction.SimilarSchedules = similar
	}

	return prediction, nil
}

// RecordOutcome stores a finished run's fingerprint for future
// lookups.
func (s *AnalyzerService) RecordOutcome(ctx context.Context, institutionID, scheduleID string, features models.FeatureVector, successRating float64) error {
	if s.history == nil {
		return nil
	}
	entry := models.HistoricalSchedule{
		ScheduleID:    scheduleID,
		Features:      features,
		SuccessRating: successRating,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.history.Record(ctx, institutionID, entry); err != nil {
		return err
	}
	return s.store.Invalidate(ctx, historyCacheKey(institutionID))
}

func historyCacheKey(institutionID string) string {
	return fmt.Sprintf("history:%s", institutionID)
}

func (s *AnalyzerService) similarSchedules(ctx context.Context, institutionID string, features models.FeatureVector) ([]models.SimilarSchedule, error) {
	if s.history == nil {
		return nil, nil
	}

	var corpus []models.HistoricalSchedule
	key := historyCacheKey(institutionID)
	if err := s.store.Get(ctx, key, &corpus); err != nil {
		if errors.Is(err, cache.ErrMiss) && s.store != nil {
			s.metrics.RecordCacheOperation(false)
		}
		fetched, err := s.history.ListByInstitution(ctx, institutionID, s.cfg.HistoryFetchLimit)
		if err != nil {
			return nil, err
		}
		corpus = fetched
		if err := s.store.Set(ctx, key, corpus, s.cfg.HistoryCacheTTL); err != nil {
			s.logger.Warn("history cache write failed", zap.Error(err))
		}
	} else {
		s.metrics.RecordCacheOperation(true)
	}

	similar := make([]models.SimilarSchedule, 0, len(corpus))
	for _, past := range corpus {
		similarity := cosineSimilarity(features.AsSlice(), past.Features.AsSlice())
		if similarity < s.cfg.SimilarityThreshold {
			continue
		}
		similar = append(similar, models.SimilarSchedule{HistoricalSchedule: past, Similarity: similarity})
	}

	sort.SliceStable(similar, func(i, j int) bool { return similar[i].Similarity > similar[j].Similarity })
	if len(similar) > s.cfg.MaxSimilarResults {
		similar = similar[:s.cfg.MaxSimilarResults]
	}
	return similar, nil
}

// ExtractFeatures computes the heuristic fingerprint of a session set.
func ExtractFeatures(sessions []models.ScheduleSession, loads []models.TeachingLoad, settings models.GenerationSettings) models.FeatureVector {
	if len(sessions) == 0 {
		return models.FeatureVector{}
	}

	classes := lo.Uniq(lo.Map(sessions, func(s models.ScheduleSession, _ int) string { return s.ClassID }))
	subjects := lo.Uniq(lo.Map(sessions, func(s models.ScheduleSession, _ int) string { return s.SubjectID }))

	totalSlots := settings.TotalLessonSlots() * len(classes)
	if totalSlots == 0 {
		totalSlots = 1
	}

	morning := 0
	core := 0
	loadIndex := make(map[string]*models.TeachingLoad, len(loads))
	for i := range loads {
		loadIndex[loads[i].ID] = &loads[i]
	}
	for _, session := range sessions {
		if session.Period <= 4 {
			morning++
		}
		if load, ok := loadIndex[session.TeachingLoadID]; ok && isCoreSubject(load.SubjectName) {
			core++
		}
	}

	// gaps and daily load per class
	type classDay struct {
		class string
		day   string
	}
	periods := make(map[classDay][]int)
	for _, session := range sessions {
		key := classDay{class: session.ClassID, day: session.Day}
		periods[key] = append(periods[key], session.Period)
	}
	gaps := 0
	maxDaily := 0
	for _, list := range periods {
		sorted := sortedInts(list)
		for i := 1; i < len(sorted); i++ {
			if delta := sorted[i] - sorted[i-1]; delta > 1 {
				gaps += delta - 1
			}
		}
		if len(sorted) > maxDaily {
			maxDaily = len(sorted)
		}
	}

	// per-teacher hour variance
	hours := make(map[string]int)
	for _, session := range sessions {
		hours[session.TeacherID]++
	}
	mean := float64(len(sessions)) / float64(len(hours))
	variance := 0.0
	for _, h := range hours {
		variance += (float64(h) - mean) * (float64(h) - mean)
	}
	variance /= float64(len(hours))

	utilization := mean / float64(models.MaxTeacherWeeklyHours)

	return models.FeatureVector{
		SessionDensity:     float64(len(sessions)) / float64(totalSlots),
		MorningRatio:       float64(morning) / float64(len(sessions)),
		AfternoonRatio:     float64(len(sessions)-morning) / float64(len(sessions)),
		GapDensity:         float64(gaps) / float64(len(sessions)),
		WorkloadVariance:   variance,
		TeacherUtilization: utilization,
		SubjectDiversity:   float64(len(subjects)) / float64(len(sessions)),
		CoreSubjectRatio:   float64(core) / float64(len(sessions)),
		MaxDailyLoad:       float64(maxDaily),
	}
}

// successProbability folds the normalized features through the weight
// table and a sigmoid.
func successProbability(f models.FeatureVector) float64 {
	raw := weightSessionDensity*math.Min(1, f.SessionDensity/0.8) +
		weightMorningRatio*f.MorningRatio +
		weightAfternoonRatio*f.AfternoonRatio +
		weightGapDensity*math.Min(1, f.GapDensity*3) +
		weightWorkloadVariance*math.Min(1, f.WorkloadVariance/10) +
		weightTeacherUtilization*math.Min(1, f.TeacherUtilization/0.9) +
		weightSubjectDiversity*f.SubjectDiversity +
		weightCoreSubjectRatio*f.CoreSubjectRatio +
		weightMaxDailyLoad*math.Min(1, math.Max(0, f.MaxDailyLoad-6)/6)

	return sigmoid(raw * 4)
}

func conflictLikelihood(f models.FeatureVector) float64 {
	raw := 0.3*math.Min(1, f.GapDensity*3) +
		0.25*math.Min(1, f.WorkloadVariance/10) +
		0.25*math.Min(1, f.SessionDensity/0.8) +
		0.2*math.Min(1, math.Max(0, f.MaxDailyLoad-6)/6)
	return math.Min(1, raw)
}

func satisfactionEstimate(f models.FeatureVector) float64 {
	raw := 0.3*f.MorningRatio +
		0.3*(1-math.Min(1, f.GapDensity*3)) +
		0.2*math.Min(1, f.TeacherUtilization/0.9) +
		0.2*math.Min(1, f.SubjectDiversity*2)
	return clampScore(raw * 100)
}

func recommendations(f models.FeatureVector) []string {
	var recs []string
	if f.GapDensity > 0.2 {
		recs = append(recs, "reduce idle periods between lessons")
	}
	if f.WorkloadVariance > 8 {
		recs = append(recs, "balance weekly hours across teachers")
	}
	if f.MorningRatio < 0.5 {
		recs = append(recs, "move more core lessons into morning periods")
	}
	if f.MaxDailyLoad > 7 {
		recs = append(recs, "cap daily lessons per class")
	}
	return recs
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// cosineSimilarity over two equal-length vectors, 0 when either is a
// zero vector.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
