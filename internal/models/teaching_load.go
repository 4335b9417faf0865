package models

// Weekly hour bounds for a single teaching load.
const (
	MinLoadWeeklyHours = 1
	MaxLoadWeeklyHours = 40
)

// Per-teacher aggregate ceilings across all loads.
const (
	MaxTeacherWeeklyHours       = 25
	HighLoadWarningThreshold    = 20
	DefaultPreferredConsecutive = 2
)

// SlotRef points at a day/period cell without carrying clock times.
type SlotRef struct {
	Day    string `db:"day" json:"day"`
	Period int    `db:"period" json:"period"`
}

// TeachingLoad is a curriculum demand: one teacher teaching one subject
// to one class for a number of weekly hours.
type TeachingLoad struct {
	ID                   string    `db:"id" json:"id"`
	TeacherID            string    `db:"teacher_id" json:"teacher_id"`
	TeacherName          string    `db:"teacher_name" json:"teacher_name"`
	SubjectID            string    `db:"subject_id" json:"subject_id"`
	SubjectName          string    `db:"subject_name" json:"subject_name"`
	RequiresLab          bool      `db:"requires_lab" json:"requires_lab"`
	ClassID              string    `db:"class_id" json:"class_id"`
	ClassName            string    `db:"class_name" json:"class_name"`
	ExpectedStudents     int       `db:"expected_students" json:"expected_students"`
	WeeklyHours          int       `db:"weekly_hours" json:"weekly_hours"`
	PriorityLevel        int       `db:"priority_level" json:"priority_level"`
	PreferredConsecutive int       `db:"preferred_consecutive" json:"preferred_consecutive"`
	PreferredSlots       []SlotRef `json:"preferred_slots,omitempty"`
	UnavailableSlots     []SlotRef `json:"unavailable_slots,omitempty"`

	// IdealDistribution is computed during workload preparation.
	IdealDistribution []DayPlan `json:"ideal_distribution,omitempty"`
}

// DayPlan is the planned number of lessons for one working day.
type DayPlan struct {
	Day         string `json:"day"`
	Lessons     int    `json:"lessons"`
	Consecutive bool   `json:"consecutive"`
}

// PlannedHours sums the lessons across the ideal distribution.
func (l TeachingLoad) PlannedHours() int {
	total := 0
	for _, d := range l.IdealDistribution {
		total += d.Lessons
	}
	return total
}

// IsUnavailable reports whether the load excludes the given cell.
func (l TeachingLoad) IsUnavailable(day string, period int) bool {
	for _, s := range l.UnavailableSlots {
		if s.Day == day && s.Period == period {
			return true
		}
	}
	return false
}

// PrefersSlot reports whether the load lists the given cell as preferred.
func (l TeachingLoad) PrefersSlot(day string, period int) bool {
	for _, s := range l.PreferredSlots {
		if s.Day == day && s.Period == period {
			return true
		}
	}
	return false
}

// WorkloadIssue describes a single validation finding.
type WorkloadIssue struct {
	LoadID    string `json:"load_id,omitempty"`
	TeacherID string `json:"teacher_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// WorkloadStatistics summarises the prepared workload.
type WorkloadStatistics struct {
	TotalLoads          int            `json:"total_loads"`
	TotalWeeklyHours    int            `json:"total_weekly_hours"`
	UniqueTeachers      int            `json:"unique_teachers"`
	UniqueSubjects      int            `json:"unique_subjects"`
	UniqueClasses       int            `json:"unique_classes"`
	AvgHoursPerTeacher  float64        `json:"avg_hours_per_teacher"`
	MaxHoursPerTeacher  int            `json:"max_hours_per_teacher"`
	MinHoursPerTeacher  int            `json:"min_hours_per_teacher"`
	HoursByTeacher      map[string]int `json:"hours_by_teacher"`
}

// WorkloadReport is the outcome of workload preparation and validation.
type WorkloadReport struct {
	ValidLoads []TeachingLoad     `json:"valid_loads"`
	Errors     []WorkloadIssue    `json:"errors,omitempty"`
	Warnings   []WorkloadIssue    `json:"warnings,omitempty"`
	Statistics WorkloadStatistics `json:"statistics"`
}
