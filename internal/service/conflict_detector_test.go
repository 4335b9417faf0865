package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func TestConflictDetectorFindsTeacherDoubleBooking(t *testing.T) {
	m, err := newTimeMatrix(fixtureSettings([]string{"monday"}, 4))
	require.NoError(t, err)

	m.place(testSession("s1", "l1", "t1", "c1", "monday", 1))
	// Forced collision: same teacher, different class, same cell.
	m.sessions = append(m.sessions, testSession("s2", "l2", "t1", "c2", "monday", 1))

	conflicts := NewConflictDetector(0, nil).Detect(m)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTeacherDoubleBooking, conflicts[0].Type)
	assert.Equal(t, models.SeverityCritical, conflicts[0].Severity)
	assert.Equal(t, "t1", conflicts[0].TeacherID)
	assert.ElementsMatch(t, []string{"s1", "s2"}, conflicts[0].SessionIDs)
}

func TestConflictDetectorFindsClassDoubleBooking(t *testing.T) {
	m, err := newTimeMatrix(fixtureSettings([]string{"monday"}, 4))
	require.NoError(t, err)

	m.place(testSession("s1", "l1", "t1", "c1", "monday", 2))
	m.sessions = append(m.sessions, testSession("s2", "l2", "t2", "c1", "monday", 2))

	conflicts := NewConflictDetector(0, nil).Detect(m)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictClassDoubleBooking, conflicts[0].Type)
	assert.Equal(t, "c1", conflicts[0].ClassID)
}

func TestConflictDetectorRoomClashIsWarning(t *testing.T) {
	m, err := newTimeMatrix(fixtureSettings([]string{"monday"}, 4))
	require.NoError(t, err)

	room := "room-1"
	s1 := testSession("s1", "l1", "t1", "c1", "monday", 1)
	s1.RoomID = &room
	s2 := testSession("s2", "l2", "t2", "c2", "monday", 1)
	s2.RoomID = &room
	m.place(s1)
	m.place(s2)

	conflicts := NewConflictDetector(0, nil).Detect(m)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictRoomDoubleBooking, conflicts[0].Type)
	assert.Equal(t, models.SeverityWarning, conflicts[0].Severity)
	assert.Equal(t, "room-1", conflicts[0].RoomID)
}

func TestConflictDetectorWorkloadViolation(t *testing.T) {
	m, err := newTimeMatrix(fixtureSettings([]string{"monday"}, 4))
	require.NoError(t, err)

	m.place(testSession("s1", "l1", "t1", "c1", "monday", 1))
	m.place(testSession("s2", "l1", "t1", "c1", "monday", 2))
	m.place(testSession("s3", "l1", "t1", "c1", "monday", 3))

	conflicts := NewConflictDetector(2, nil).Detect(m)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictWorkloadViolation, conflicts[0].Type)
	assert.Equal(t, 1, conflicts[0].ExcessHours)
}

func TestConflictDetectorCleanMatrix(t *testing.T) {
	m, err := newTimeMatrix(fixtureSettings([]string{"monday"}, 4))
	require.NoError(t, err)

	m.place(testSession("s1", "l1", "t1", "c1", "monday", 1))
	m.place(testSession("s2", "l2", "t2", "c2", "monday", 1))

	assert.Empty(t, NewConflictDetector(0, nil).Detect(m))
}

func TestSortConflictsOrdering(t *testing.T) {
	conflicts := []models.Conflict{
		{ID: "room", Type: models.ConflictRoomDoubleBooking, Severity: models.SeverityWarning},
		{ID: "class", Type: models.ConflictClassDoubleBooking, Severity: models.SeverityCritical},
		{ID: "teacher", Type: models.ConflictTeacherDoubleBooking, Severity: models.SeverityCritical},
		{ID: "workload", Type: models.ConflictWorkloadViolation, Severity: models.SeverityCritical},
	}

	SortConflicts(conflicts)

	assert.Equal(t, "teacher", conflicts[0].ID)
	assert.Equal(t, "class", conflicts[1].ID)
	assert.Equal(t, "workload", conflicts[2].ID)
	assert.Equal(t, "room", conflicts[3].ID)
}
