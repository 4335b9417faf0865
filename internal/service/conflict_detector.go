package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// ConflictDetector scans a placed matrix for violations. Detection is
// read-only and decoupled from placement.
type ConflictDetector struct {
	maxTeacherWeeklyHours int
	logger                *zap.Logger
}

// NewConflictDetector constructs the detector.
func NewConflictDetector(maxTeacherWeeklyHours int, logger *zap.Logger) *ConflictDetector {
	if maxTeacherWeeklyHours <= 0 {
		maxTeacherWeeklyHours = models.MaxTeacherWeeklyHours
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictDetector{maxTeacherWeeklyHours: maxTeacherWeeklyHours, logger: logger}
}

// Detect returns all conflicts in the matrix, ordered for resolution.
func (d *ConflictDetector) Detect(matrix *timeMatrix) []models.Conflict {
	var conflicts []models.Conflict
	conflicts = append(conflicts, d.detectDoubleBookings(matrix)...)
	conflicts = append(conflicts, d.detectWorkloadViolations(matrix)...)

	SortConflicts(conflicts)

	if len(conflicts) > 0 {
		d.logger.Info("conflicts detected", zap.Int("count", len(conflicts)))
	}
	return conflicts
}

// detectDoubleBookings finds cells where a teacher, class or room is
// booked more than once.
func (d *ConflictDetector) detectDoubleBookings(matrix *timeMatrix) []models.Conflict {
	type occupancy struct {
		sessions []string
	}

	byTeacher := make(map[cellKey]map[string]*occupancy)
	byClass := make(map[cellKey]map[string]*occupancy)
	byRoom := make(map[cellKey]map[string]*occupancy)

	record := func(index map[cellKey]map[string]*occupancy, key cellKey, id, sessionID string) {
		if index[key] == nil {
			index[key] = make(map[string]*occupancy)
		}
		if index[key][id] == nil {
			index[key][id] = &occupancy{}
		}
		index[key][id].sessions = append(index[key][id].sessions, sessionID)
	}

	for _, session := range matrix.sessions {
		key := cellKey{Day: session.Day, Period: session.Period}
		record(byTeacher, key, session.TeacherID, session.ID)
		record(byClass, key, session.ClassID, session.ID)
		if session.RoomID != nil {
			record(byRoom, key, *session.RoomID, session.ID)
		}
	}

	var conflicts []models.Conflict

	for key, teachers := range byTeacher {
		for teacherID, occ := range teachers {
			if len(occ.sessions) < 2 {
				continue
			}
			conflicts = append(conflicts, models.Conflict{
				ID:         uuid.NewString(),
				Type:       models.ConflictTeacherDoubleBooking,
				Severity:   models.SeverityCritical,
				Day:        key.Day,
				Period:     key.Period,
				TeacherID:  teacherID,
				SessionIDs: occ.sessions,
				Message:    fmt.Sprintf("teacher %s is booked %d times at %s period %d", teacherID, len(occ.sessions), key.Day, key.Period),
				DetectedAt: time.Now().UTC(),
			})
		}
	}

	for key, classes := range byClass {
		for classID, occ := range classes {
			if len(occ.sessions) < 2 {
				continue
			}
			conflicts = append(conflicts, models.Conflict{
				ID:         uuid.NewString(),
				Type:       models.ConflictClassDoubleBooking,
				Severity:   models.SeverityCritical,
				Day:        key.Day,
				Period:     key.Period,
				ClassID:    classID,
				SessionIDs: occ.sessions,
				Message:    fmt.Sprintf("class %s has %d overlapping lessons at %s period %d", classID, len(occ.sessions), key.Day, key.Period),
				DetectedAt: time.Now().UTC(),
			})
		}
	}

	for key, rooms := range byRoom {
		for roomID, occ := range rooms {
			if len(occ.sessions) < 2 {
				continue
			}
			conflicts = append(conflicts, models.Conflict{
				ID:         uuid.NewString(),
				Type:       models.ConflictRoomDoubleBooking,
				Severity:   models.SeverityWarning,
				Day:        key.Day,
				Period:     key.Period,
				RoomID:     roomID,
				SessionIDs: occ.sessions,
				Message:    fmt.Sprintf("room %s hosts %d lessons at %s period %d", roomID, len(occ.sessions), key.Day, key.Period),
				DetectedAt: time.Now().UTC(),
			})
		}
	}

	return conflicts
}

// detectWorkloadViolations flags teachers placed above the weekly
// ceiling.
func (d *ConflictDetector) detectWorkloadViolations(matrix *timeMatrix) []models.Conflict {
	hours := make(map[string]int)
	for _, session := range matrix.sessions {
		hours[session.TeacherID]++
	}

	var conflicts []models.Conflict
	for teacherID, total := range hours {
		if total <= d.maxTeacherWeeklyHours {
			continue
		}
		conflicts = append(conflicts, models.Conflict{
			ID:          uuid.NewString(),
			Type:        models.ConflictWorkloadViolation,
			Severity:    models.SeverityCritical,
			TeacherID:   teacherID,
			ExcessHours: total - d.maxTeacherWeeklyHours,
			Message:     fmt.Sprintf("teacher %s is scheduled %d hours, ceiling is %d", teacherID, total, d.maxTeacherWeeklyHours),
			DetectedAt:  time.Now().UTC(),
		})
	}
	return conflicts
}

// SortConflicts orders conflicts for resolution: severity first, then
// type priority, then the number of affected sessions descending.
func SortConflicts(conflicts []models.Conflict) {
	sort.SliceStable(conflicts, func(i, j int) bool {
		a, b := conflicts[i], conflicts[j]
		if a.Severity != b.Severity {
			return a.Severity == models.SeverityCritical
		}
		if a.Type.Priority() != b.Type.Priority() {
			return a.Type.Priority() > b.Type.Priority()
		}
		return len(a.SessionIDs) > len(b.SessionIDs)
	})
}
