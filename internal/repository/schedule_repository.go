package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// ScheduleRepository persists generated schedules and their sessions.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// SaveDraft stores the schedule and all sessions in a single
// transaction. The schedule always lands as a draft.
func (r *ScheduleRepository) SaveDraft(ctx context.Context, schedule *models.Schedule, sessions []models.ScheduleSession) error {
	if schedule == nil {
		return fmt.Errorf("schedule payload is nil")
	}
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	schedule.Status = models.ScheduleStatusDraft
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schedule transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const insertSchedule = `
INSERT INTO schedules (id, institution_id, academic_year_id, name, generation_method, status, working_days, periods_per_day, created_at)
VALUES (:id, :institution_id, :academic_year_id, :name, :generation_method, :status, :working_days, :periods_per_day, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertSchedule, schedule); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}

	const insertSession = `
INSERT INTO schedule_sessions (id, schedule_id, teaching_load_id, subject_id, teacher_id, class_id, room_id, day, period, start_time, end_time, status)
VALUES (:id, :schedule_id, :teaching_load_id, :subject_id, :teacher_id, :class_id, :room_id, :day, :period, :start_time, :end_time, :status)`
	for i := range sessions {
		if sessions[i].ID == "" {
			sessions[i].ID = uuid.NewString()
		}
		sessions[i].ScheduleID = schedule.ID
		if sessions[i].Status == "" {
			sessions[i].Status = "scheduled"
		}
		if _, err := tx.NamedExecContext(ctx, insertSession, sessions[i]); err != nil {
			return fmt.Errorf("insert schedule session: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule transaction: %w", err)
	}
	return nil
}

// FindByID loads a schedule header by its identifier.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	const query = `SELECT id, institution_id, academic_year_id, name, generation_method, status, working_days, periods_per_day, created_at
FROM schedules WHERE id = $1`
	var schedule models.Schedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// ListSessions returns the placed sessions of a schedule ordered for
// rendering.
func (r *ScheduleRepository) ListSessions(ctx context.Context, scheduleID string) ([]models.ScheduleSession, error) {
	const query = `SELECT id, schedule_id, teaching_load_id, subject_id, teacher_id, class_id, room_id, day, period, start_time, end_time, status
FROM schedule_sessions WHERE schedule_id = $1 ORDER BY day ASC, period ASC`
	var sessions []models.ScheduleSession
	if err := r.db.SelectContext(ctx, &sessions, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list schedule sessions: %w", err)
	}
	return sessions, nil
}
