package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// HistoryRepository stores the feature fingerprints of past runs.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

type historyRow struct {
	ScheduleID         string    `db:"schedule_id"`
	SuccessRating      float64   `db:"success_rating"`
	CreatedAt          time.Time `db:"created_at"`
	SessionDensity     float64   `db:"session_density"`
	MorningRatio       float64   `db:"morning_ratio"`
	AfternoonRatio     float64   `db:"afternoon_ratio"`
	GapDensity         float64   `db:"gap_density"`
	WorkloadVariance   float64   `db:"workload_variance"`
	TeacherUtilization float64   `db:"teacher_utilization"`
	SubjectDiversity   float64   `db:"subject_diversity"`
	CoreSubjectRatio   float64   `db:"core_subject_ratio"`
	MaxDailyLoad       float64   `db:"max_daily_load"`
}

// ListByInstitution returns the stored fingerprints, newest first.
func (r *HistoryRepository) ListByInstitution(ctx context.Context, institutionID string, limit int) ([]models.HistoricalSchedule, error) {
	const query = `SELECT schedule_id, success_rating, created_at,
			session_density, morning_ratio, afternoon_ratio, gap_density,
			workload_variance, teacher_utilization, subject_diversity,
			core_subject_ratio, max_daily_load
		FROM schedule_history
		WHERE institution_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	var rows []historyRow
	if err := r.db.SelectContext(ctx, &rows, query, institutionID, limit); err != nil {
		return nil, fmt.Errorf("list schedule history: %w", err)
	}

	history := make([]models.HistoricalSchedule, 0, len(rows))
	for _, row := range rows {
		history = append(history, models.HistoricalSchedule{
			ScheduleID:    row.ScheduleID,
			SuccessRating: row.SuccessRating,
			CreatedAt:     row.CreatedAt,
			Features: models.FeatureVector{
				SessionDensity:     row.SessionDensity,
				MorningRatio:       row.MorningRatio,
				AfternoonRatio:     row.AfternoonRatio,
				GapDensity:         row.GapDensity,
				WorkloadVariance:   row.WorkloadVariance,
				TeacherUtilization: row.TeacherUtilization,
				SubjectDiversity:   row.SubjectDiversity,
				CoreSubjectRatio:   row.CoreSubjectRatio,
				MaxDailyLoad:       row.MaxDailyLoad,
			},
		})
	}

	return history, nil
}

// Record stores a finished run's fingerprint.
func (r *HistoryRepository) Record(ctx context.Context, institutionID string, entry models.HistoricalSchedule) error {
	const query = `INSERT INTO schedule_history (institution_id, schedule_id, success_rating, created_at,
			session_density, morning_ratio, afternoon_ratio, gap_density,
			workload_variance, teacher_utilization, subject_diversity,
			core_subject_ratio, max_daily_load)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	f := entry.Features
	if _, err := r.db.ExecContext(ctx, query,
		institutionID, entry.ScheduleID, entry.SuccessRating, entry.CreatedAt,
		f.SessionDensity, f.MorningRatio, f.AfternoonRatio, f.GapDensity,
		f.WorkloadVariance, f.TeacherUtilization, f.SubjectDiversity,
		f.CoreSubjectRatio, f.MaxDailyLoad,
	); err != nil {
		return fmt.Errorf("record schedule history: %w", err)
	}
	return nil
}
