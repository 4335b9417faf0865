package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func newScheduleRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func draftFixture() (*models.Schedule, []models.ScheduleSession) {
	schedule := &models.Schedule{
		InstitutionID:    "inst-1",
		AcademicYearID:   "year-1",
		Name:             "Semester 1",
		GenerationMethod: "greedy",
		WorkingDays:      5,
		PeriodsPerDay:    7,
	}
	sessions := []models.ScheduleSession{
		{
			TeachingLoadID: "load-1",
			SubjectID:      "sub-1",
			TeacherID:      "t-1",
			ClassID:        "c-1",
			Day:            "monday",
			Period:         1,
			StartTime:      "08:00",
			EndTime:        "08:45",
		},
		{
			TeachingLoadID: "load-1",
			SubjectID:      "sub-1",
			TeacherID:      "t-1",
			ClassID:        "c-1",
			Day:            "tuesday",
			Period:         2,
			StartTime:      "08:45",
			EndTime:        "09:30",
		},
	}
	return schedule, sessions
}

func TestScheduleRepositorySaveDraft(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()

	repo := NewScheduleRepository(db)
	schedule, sessions := draftFixture()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedules")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveDraft(context.Background(), schedule, sessions))

	require.NotEmpty(t, schedule.ID, "missing identifiers are filled in")
	require.Equal(t, models.ScheduleStatusDraft, schedule.Status)
	require.False(t, schedule.CreatedAt.IsZero())
	for _, session := range sessions {
		require.Equal(t, schedule.ID, session.ScheduleID)
		require.NotEmpty(t, session.ID)
		require.Equal(t, "scheduled", session.Status)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositorySaveDraftRollsBack(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()

	repo := NewScheduleRepository(db)
	schedule, sessions := draftFixture()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedules")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_sessions")).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := repo.SaveDraft(context.Background(), schedule, sessions)
	require.Error(t, err)
	require.Contains(t, err.Error(), "insert schedule session")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositorySaveDraftNilSchedule(t *testing.T) {
	db, _, cleanup := newScheduleRepoMock(t)
	defer cleanup()

	repo := NewScheduleRepository(db)
	require.Error(t, repo.SaveDraft(context.Background(), nil, nil))
}

func TestScheduleRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()

	repo := NewScheduleRepository(db)
	rows := sqlmock.NewRows([]string{"id", "institution_id", "academic_year_id", "name", "generation_method", "status", "working_days", "periods_per_day", "created_at"}).
		AddRow("sched-1", "inst-1", "year-1", "Semester 1", "greedy", "draft", 5, 7, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, institution_id, academic_year_id")).
		WithArgs("sched-1").
		WillReturnRows(rows)

	schedule, err := repo.FindByID(context.Background(), "sched-1")
	require.NoError(t, err)
	require.Equal(t, "sched-1", schedule.ID)
	require.Equal(t, models.ScheduleStatusDraft, schedule.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryListSessions(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()

	repo := NewScheduleRepository(db)
	rows := sqlmock.NewRows([]string{"id", "schedule_id", "teaching_load_id", "subject_id", "teacher_id", "class_id", "room_id", "day", "period", "start_time", "end_time", "status"}).
		AddRow("sess-1", "sched-1", "load-1", "sub-1", "t-1", "c-1", "room-1", "monday", 1, "08:00", "08:45", "scheduled").
		AddRow("sess-2", "sched-1", "load-1", "sub-1", "t-1", "c-1", nil, "monday", 2, "08:45", "09:30", "scheduled")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, schedule_id, teaching_load_id")).
		WithArgs("sched-1").
		WillReturnRows(rows)

	sessions, err := repo.ListSessions(context.Background(), "sched-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.NotNil(t, sessions[0].RoomID)
	require.Equal(t, "room-1", *sessions[0].RoomID)
	require.Nil(t, sessions[1].RoomID)
	require.NoError(t, mock.ExpectationsWereMet())
}
