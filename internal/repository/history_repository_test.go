package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func newHistoryRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestHistoryRepositoryListByInstitution(t *testing.T) {
	db, mock, cleanup := newHistoryRepoMock(t)
	defer cleanup()

	repo := NewHistoryRepository(db)
	rows := sqlmock.NewRows([]string{
		"schedule_id", "success_rating", "created_at",
		"session_density", "morning_ratio", "afternoon_ratio", "gap_density",
		"workload_variance", "teacher_utilization", "subject_diversity",
		"core_subject_ratio", "max_daily_load",
	}).AddRow("sched-1", 87.5, time.Now(), 0.6, 0.7, 0.3, 0.1, 2.5, 0.8, 0.4, 0.5, 6.0)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT schedule_id, success_rating, created_at")).
		WithArgs("inst-1", 100).
		WillReturnRows(rows)

	history, err := repo.ListByInstitution(context.Background(), "inst-1", 100)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "sched-1", history[0].ScheduleID)
	require.InDelta(t, 87.5, history[0].SuccessRating, 1e-9)
	require.InDelta(t, 0.6, history[0].Features.SessionDensity, 1e-9)
	require.InDelta(t, 6.0, history[0].Features.MaxDailyLoad, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepositoryRecord(t *testing.T) {
	db, mock, cleanup := newHistoryRepoMock(t)
	defer cleanup()

	repo := NewHistoryRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_history")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := models.HistoricalSchedule{
		ScheduleID:    "sched-9",
		SuccessRating: 92,
		Features:      models.FeatureVector{SessionDensity: 0.55, MorningRatio: 0.6},
	}
	require.NoError(t, repo.Record(context.Background(), "inst-1", entry))
	require.NoError(t, mock.ExpectationsWereMet())
}
