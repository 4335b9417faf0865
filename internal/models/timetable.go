package models

import "time"

// ScheduleStatus tracks the lifecycle of a generated schedule.
type ScheduleStatus string

const (
	ScheduleStatusDraft     ScheduleStatus = "draft"
	ScheduleStatusPublished ScheduleStatus = "published"
	ScheduleStatusArchived  ScheduleStatus = "archived"
)

// Schedule is the container of a generated weekly timetable.
type Schedule struct {
	ID               string         `db:"id" json:"id"`
	InstitutionID    string         `db:"institution_id" json:"institution_id"`
	AcademicYearID   string         `db:"academic_year_id" json:"academic_year_id"`
	Name             string         `db:"name" json:"name"`
	GenerationMethod string         `db:"generation_method" json:"generation_method"`
	Status           ScheduleStatus `db:"status" json:"status"`
	WorkingDays      int            `db:"working_days" json:"working_days"`
	PeriodsPerDay    int            `db:"periods_per_day" json:"periods_per_day"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// ScheduleSession is one placed lesson.
type ScheduleSession struct {
	ID             string  `db:"id" json:"id"`
	ScheduleID     string  `db:"schedule_id" json:"schedule_id"`
	TeachingLoadID string  `db:"teaching_load_id" json:"teaching_load_id"`
	SubjectID      string  `db:"subject_id" json:"subject_id"`
	TeacherID      string  `db:"teacher_id" json:"teacher_id"`
	ClassID        string  `db:"class_id" json:"class_id"`
	RoomID         *string `db:"room_id" json:"room_id,omitempty"`
	Day            string  `db:"day" json:"day"`
	Period         int     `db:"period" json:"period"`
	StartTime      string  `db:"start_time" json:"start_time"`
	EndTime        string  `db:"end_time" json:"end_time"`
	Status         string  `db:"status" json:"status"`
}

// Assignment is the placement payload written into a matrix cell.
type Assignment struct {
	TeachingLoadID string  `json:"teaching_load_id"`
	TeacherID      string  `json:"teacher_id"`
	ClassID        string  `json:"class_id"`
	SubjectID      string  `json:"subject_id"`
	RoomID         *string `json:"room_id,omitempty"`
}

// LogEntry is one timestamped line of the per-run generation log.
type LogEntry struct {
	At      time.Time `json:"at"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

// GenerationStatistics summarise a finished run.
type GenerationStatistics struct {
	TotalSessions       int     `json:"total_sessions"`
	UnscheduledHours    int     `json:"unscheduled_hours"`
	ConflictsDetected   int     `json:"conflicts_detected"`
	ConflictsResolved   int     `json:"conflicts_resolved"`
	SuccessRate         float64 `json:"success_rate"`
	EfficiencyScore     float64 `json:"efficiency_score"`
	OptimizationScore   float64 `json:"optimization_score"`
	DurationMS          int64   `json:"duration_ms"`
	MemoryBytes         int64   `json:"memory_bytes"`
	ParallelChunks      int     `json:"parallel_chunks,omitempty"`
	DegradedMode        bool    `json:"degraded_mode,omitempty"`
}

// GenerationResult is the full outcome of a generation run.
type GenerationResult struct {
	Schedule            *Schedule            `json:"schedule,omitempty"`
	Sessions            []ScheduleSession    `json:"sessions"`
	Conflicts           []Conflict           `json:"conflicts,omitempty"`
	ResolvedConflicts   []Resolution         `json:"resolved_conflicts,omitempty"`
	UnresolvedConflicts []Conflict           `json:"unresolved_conflicts,omitempty"`
	Workload            WorkloadReport       `json:"workload"`
	Score               OptimizationScore    `json:"score"`
	Statistics          GenerationStatistics `json:"statistics"`
	Log                 []LogEntry           `json:"log,omitempty"`
}
