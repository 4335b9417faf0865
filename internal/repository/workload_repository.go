package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// WorkloadRepository reads curriculum teaching loads.
type WorkloadRepository struct {
	db *sqlx.DB
}

// NewWorkloadRepository constructs the repository.
func NewWorkloadRepository(db *sqlx.DB) *WorkloadRepository {
	return &WorkloadRepository{db: db}
}

type teachingLoadRow struct {
	ID                   string `db:"id"`
	TeacherID            string `db:"teacher_id"`
	TeacherName          string `db:"teacher_name"`
	SubjectID            string `db:"subject_id"`
	SubjectName          string `db:"subject_name"`
	RequiresLab          bool   `db:"requires_lab"`
	ClassID              string `db:"class_id"`
	ClassName            string `db:"class_name"`
	ExpectedStudents     int    `db:"expected_students"`
	WeeklyHours          int    `db:"weekly_hours"`
	PriorityLevel        int    `db:"priority_level"`
	PreferredConsecutive int    `db:"preferred_consecutive"`
	PreferredSlots       []byte `db:"preferred_slots"`
	UnavailableSlots     []byte `db:"unavailable_slots"`
}

// ListActive returns the active teaching loads for an academic year,
// ordered by priority level ascending.
func (r *WorkloadRepository) ListActive(ctx context.Context, institutionID, academicYearID string) ([]models.TeachingLoad, error) {
	const query = `SELECT tl.id, tl.teacher_id, t.full_name AS teacher_name,
			tl.subject_id, s.name AS subject_name, s.requires_lab,
			tl.class_id, c.name AS class_name, c.student_count AS expected_students,
			tl.weekly_hours, tl.priority_level, tl.preferred_consecutive,
			tl.preferred_slots, tl.unavailable_slots
		FROM teaching_loads tl
		JOIN teachers t ON t.id = tl.teacher_id
		JOIN subjects s ON s.id = tl.subject_id
		JOIN classes c ON c.id = tl.class_id
		WHERE tl.institution_id = $1 AND tl.academic_year_id = $2 AND tl.active = TRUE
		ORDER BY tl.priority_level ASC, tl.id ASC`

	var rows []teachingLoadRow
	if err := r.db.SelectContext(ctx, &rows, query, institutionID, academicYearID); err != nil {
		return nil, fmt.Errorf("list teaching loads: %w", err)
	}

	loads := make([]models.TeachingLoad, 0, len(rows))
	for _, row := range rows {
		load := models.TeachingLoad{
			ID:                   row.ID,
			TeacherID:            row.TeacherID,
			TeacherName:          row.TeacherName,
			SubjectID:            row.SubjectID,
			SubjectName:          row.SubjectName,
			RequiresLab:          row.RequiresLab,
			ClassID:              row.ClassID,
			ClassName:            row.ClassName,
			ExpectedStudents:     row.ExpectedStudents,
			WeeklyHours:          row.WeeklyHours,
			PriorityLevel:        row.PriorityLevel,
			PreferredConsecutive: row.PreferredConsecutive,
		}
		if err := decodeSlots(row.PreferredSlots, &load.PreferredSlots); err != nil {
			return nil, fmt.Errorf("decode preferred slots for load %s: %w", row.ID, err)
		}
		if err := decodeSlots(row.UnavailableSlots, &load.UnavailableSlots); err != nil {
			return nil, fmt.Errorf("decode unavailable slots for load %s: %w", row.ID, err)
		}
		loads = append(loads, load)
	}

	return loads, nil
}

func decodeSlots(raw []byte, dest *[]models.SlotRef) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
