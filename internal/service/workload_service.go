package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/pkg/cache"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

type workloadFetcher interface {
	ListActive(ctx context.Context, institutionID, academicYearID string) ([]models.TeachingLoad, error)
}

// WorkloadConfig bounds workload validation.
type WorkloadConfig struct {
	MaxTeacherWeeklyHours int
	HighLoadWarningHours  int
	MaxLoadWeeklyHours    int
	CacheTTL              time.Duration
}

// WorkloadService prepares and validates the teaching loads feeding a
// generation run.
type WorkloadService struct {
	loads   workloadFetcher
	store   *cache.Store
	metrics *MetricsService
	cfg     WorkloadConfig
	logger  *zap.Logger
}

// NewWorkloadService wires workload dependencies.
func NewWorkloadService(loads workloadFetcher, store *cache.Store, cfg WorkloadConfig, logger *zap.Logger) *WorkloadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTeacherWeeklyHours <= 0 {
		cfg.MaxTeacherWeeklyHours = models.MaxTeacherWeeklyHours
	}
	if cfg.HighLoadWarningHours <= 0 {
		cfg.HighLoadWarningHours = models.HighLoadWarningThreshold
	}
	if cfg.MaxLoadWeeklyHours <= 0 {
		cfg.MaxLoadWeeklyHours = models.MaxLoadWeeklyHours
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &WorkloadService{loads: loads, store: store, cfg: cfg, logger: logger}
}

// AttachMetrics wires cache hit/miss instrumentation. Optional.
func (s *WorkloadService) AttachMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// Fetch loads the active teaching loads for an academic year, through
// the cache when one is wired.
func (s *WorkloadService) Fetch(ctx context.Context, institutionID, academicYearID string) ([]models.TeachingLoad, error) {
	key := fmt.Sprintf("workload:%s:%s", institutionID, academicYearID)

	var cached []models.TeachingLoad
	if err := s.store.Get(ctx, key, &cached); err == nil {
		s.metrics.RecordCacheOperation(true)
		return cached, nil
	} else if errors.Is(err, cache.ErrMiss) && s.store != nil {
		s.metrics.RecordCacheOperation(false)
	}

	loads, err := s.loads.ListActive(ctx, institutionID, academicYearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching loads")
	}
	if len(loads) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoActiveLoads, "")
	}

	if err := s.store.Set(ctx, key, loads, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("workload cache write failed", zap.Error(err))
	}

	return loads, nil
}

// Prepare validates the loads, computes ideal distributions and the
// workload statistics. Only structurally broken loads are dropped; an
// overloaded teacher is a warning, not a rejection.
func (s *WorkloadService) Prepare(loads []models.TeachingLoad, settings models.GenerationSettings) (*models.WorkloadReport, error) {
	settings.Normalize()

	report := &models.WorkloadReport{}
	hoursByTeacher := map[string]int{}

	for _, load := range loads {
		if issue := s.validateLoad(load); issue != nil {
			report.Errors = append(report.Errors, *issue)
			continue
		}

		load.IdealDistribution = idealDistribution(load, settings.WorkingDays)
		report.ValidLoads = append(report.ValidLoads, load)
		hoursByTeacher[load.TeacherID] += load.WeeklyHours
	}

	for teacherID, hours := range hoursByTeacher {
		switch {
		case hours > s.cfg.MaxTeacherWeeklyHours:
			report.Warnings = append(report.Warnings, models.WorkloadIssue{
				TeacherID: teacherID,
				Code:      "teacher_overloaded",
				Message:   fmt.Sprintf("teacher %s carries %d weekly hours, ceiling is %d", teacherID, hours, s.cfg.MaxTeacherWeeklyHours),
			})
		case hours > s.cfg.HighLoadWarningHours:
			report.Warnings = append(report.Warnings, models.WorkloadIssue{
				TeacherID: teacherID,
				Code:      "high_load",
				Message:   fmt.Sprintf("teacher %s carries %d weekly hours, above the comfort threshold of %d", teacherID, hours, s.cfg.HighLoadWarningHours),
			})
		}
	}

	if len(report.ValidLoads) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoActiveLoads, "no valid teaching loads after validation")
	}

	report.Statistics = computeWorkloadStatistics(report.ValidLoads, hoursByTeacher)

	s.logger.Info("workload prepared",
		zap.Int("valid_loads", len(report.ValidLoads)),
		zap.Int("errors", len(report.Errors)),
		zap.Int("warnings", len(report.Warnings)),
	)

	return report, nil
}

func (s *WorkloadService) validateLoad(load models.TeachingLoad) *models.WorkloadIssue {
	switch {
	case load.TeacherID == "":
		return &models.WorkloadIssue{LoadID: load.ID, Code: "missing_teacher", Message: "teaching load has no teacher reference"}
	case load.SubjectID == "":
		return &models.WorkloadIssue{LoadID: load.ID, Code: "missing_subject", Message: "teaching load has no subject reference"}
	case load.ClassID == "":
		return &models.WorkloadIssue{LoadID: load.ID, Code: "missing_class", Message: "teaching load has no class reference"}
	case load.WeeklyHours < models.MinLoadWeeklyHours || load.WeeklyHours > s.cfg.MaxLoadWeeklyHours:
		return &models.WorkloadIssue{
			LoadID:    load.ID,
			TeacherID: load.TeacherID,
			Code:      "invalid_hours",
			Message:   fmt.Sprintf("weekly hours %d outside [%d,%d]", load.WeeklyHours, models.MinLoadWeeklyHours, s.cfg.MaxLoadWeeklyHours),
		}
	}
	return nil
}

// idealDistribution spreads the weekly hours evenly across the working
// days, heavier days first.
func idealDistribution(load models.TeachingLoad, workingDays []string) []models.DayPlan {
	days := len(workingDays)
	if days == 0 {
		return nil
	}

	base := load.WeeklyHours / days
	remainder := load.WeeklyHours % days

	plans := make([]models.DayPlan, 0, days)
	for i, day := range workingDays {
		lessons := base
		if i < remainder {
			lessons++
		}
		if lessons == 0 {
			continue
		}
		plans = append(plans, models.DayPlan{
			Day:         day,
			Lessons:     lessons,
			Consecutive: lessons >= 2 && load.PreferredConsecutive >= models.DefaultPreferredConsecutive,
		})
	}

	return plans
}

func computeWorkloadStatistics(loads []models.TeachingLoad, hoursByTeacher map[string]int) models.WorkloadStatistics {
	stats := models.WorkloadStatistics{
		TotalLoads:     len(loads),
		HoursByTeacher: hoursByTeacher,
	}

	stats.TotalWeeklyHours = lo.SumBy(loads, func(l models.TeachingLoad) int { return l.WeeklyHours })
	stats.UniqueTeachers = len(lo.UniqBy(loads, func(l models.TeachingLoad) string { return l.TeacherID }))
	stats.UniqueSubjects = len(lo.UniqBy(loads, func(l models.TeachingLoad) string { return l.SubjectID }))
	stats.UniqueClasses = len(lo.UniqBy(loads, func(l models.TeachingLoad) string { return l.ClassID }))

	if len(hoursByTeacher) == 0 {
		return stats
	}

	hours := lo.Values(hoursByTeacher)
	sort.Ints(hours)
	stats.MinHoursPerTeacher = hours[0]
	stats.MaxHoursPerTeacher = hours[len(hours)-1]
	stats.AvgHoursPerTeacher = float64(lo.Sum(hours)) / float64(len(hours))

	return stats
}
