package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRoomRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRoomRepositoryListActive(t *testing.T) {
	db, mock, cleanup := newRoomRepoMock(t)
	defer cleanup()

	repo := NewRoomRepository(db)
	rows := sqlmock.NewRows([]string{"id", "institution_id", "name", "capacity", "is_lab", "active"}).
		AddRow("room-1", "inst-1", "Main Hall", 40, false, true).
		AddRow("room-2", "inst-1", "Chemistry Lab", 24, true, true)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, institution_id, name, capacity, is_lab, active")).
		WithArgs("inst-1").
		WillReturnRows(rows)

	rooms, err := repo.ListActive(context.Background(), "inst-1")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	require.Equal(t, "Main Hall", rooms[0].Name)
	require.True(t, rooms[1].IsLab)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomRepositoryQueryError(t *testing.T) {
	db, mock, cleanup := newRoomRepoMock(t)
	defer cleanup()

	repo := NewRoomRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, institution_id, name, capacity, is_lab, active")).
		WithArgs("inst-1").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.ListActive(context.Background(), "inst-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "list rooms")
}
