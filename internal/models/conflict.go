package models

import "time"

// ConflictType enumerates the kinds of scheduling conflicts the engine
// detects. The set is closed; detection and resolution switch over it
// exhaustively.
type ConflictType string

const (
	ConflictTeacherDoubleBooking ConflictType = "teacher_double_booking"
	ConflictClassDoubleBooking   ConflictType = "class_double_booking"
	ConflictRoomDoubleBooking    ConflictType = "room_double_booking"
	ConflictInsufficientSlots    ConflictType = "insufficient_slots"
	ConflictUnscheduledHours     ConflictType = "unscheduled_hours"
	ConflictWorkloadViolation    ConflictType = "workload_violation"
)

// Priority orders conflicts of equal severity for resolution.
func (t ConflictType) Priority() int {
	switch t {
	case ConflictTeacherDoubleBooking:
		return 90
	case ConflictClassDoubleBooking:
		return 85
	case ConflictInsufficientSlots, ConflictUnscheduledHours:
		return 70
	case ConflictRoomDoubleBooking:
		return 60
	case ConflictWorkloadViolation:
		return 40
	default:
		return 0
	}
}

// Severity classifies how blocking a conflict is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Conflict is a detected violation in a candidate timetable.
type Conflict struct {
	ID         string       `json:"id"`
	Type       ConflictType `json:"type"`
	Severity   Severity     `json:"severity"`
	Day        string       `json:"day,omitempty"`
	Period     int          `json:"period,omitempty"`
	TeacherID  string       `json:"teacher_id,omitempty"`
	ClassID    string       `json:"class_id,omitempty"`
	RoomID     string       `json:"room_id,omitempty"`
	LoadID     string       `json:"load_id,omitempty"`
	SessionIDs []string     `json:"session_ids,omitempty"`

	// MissingHours is set for unscheduled_hours and insufficient_slots.
	MissingHours int `json:"missing_hours,omitempty"`
	// ExcessHours is set for workload_violation.
	ExcessHours int `json:"excess_hours,omitempty"`

	Message    string    `json:"message"`
	DetectedAt time.Time `json:"detected_at"`
}

// StrategyType enumerates the resolution strategies.
type StrategyType string

const (
	StrategySwap                 StrategyType = "swap"
	StrategyTeacherReassignment  StrategyType = "teacher_reassignment"
	StrategyRoomReassignment     StrategyType = "room_reassignment"
	StrategySessionSplit         StrategyType = "session_split"
	StrategyLoadRedistribution   StrategyType = "load_redistribution"
	StrategyConstraintRelaxation StrategyType = "constraint_relaxation"
	StrategyMultiStage           StrategyType = "multi_stage"
)

// Effectiveness is the historical success weight of a strategy.
func (s StrategyType) Effectiveness() float64 {
	switch s {
	case StrategySwap:
		return 0.8
	case StrategyTeacherReassignment:
		return 0.9
	case StrategyRoomReassignment:
		return 0.9
	case StrategySessionSplit:
		return 0.8
	case StrategyLoadRedistribution:
		return 0.7
	case StrategyConstraintRelaxation:
		return 0.5
	case StrategyMultiStage:
		return 0.85
	default:
		return 0
	}
}

// Complexity is the relative cost of attempting a strategy.
func (s StrategyType) Complexity() float64 {
	switch s {
	case StrategySwap:
		return 0.3
	case StrategyTeacherReassignment:
		return 0.6
	case StrategyRoomReassignment:
		return 0.2
	case StrategySessionSplit:
		return 0.7
	case StrategyLoadRedistribution:
		return 0.8
	case StrategyConstraintRelaxation:
		return 0.3
	case StrategyMultiStage:
		return 0.9
	default:
		return 1
	}
}

// StrategiesFor returns the candidate strategies for a conflict type,
// unranked.
func StrategiesFor(t ConflictType) []StrategyType {
	switch t {
	case ConflictTeacherDoubleBooking:
		return []StrategyType{StrategySwap, StrategyTeacherReassignment, StrategyLoadRedistribution}
	case ConflictClassDoubleBooking:
		return []StrategyType{StrategySwap, StrategyLoadRedistribution}
	case ConflictRoomDoubleBooking:
		return []StrategyType{StrategyRoomReassignment, StrategySwap}
	case ConflictInsufficientSlots:
		return []StrategyType{StrategySessionSplit, StrategyConstraintRelaxation, StrategyMultiStage}
	case ConflictUnscheduledHours:
		return []StrategyType{StrategySwap, StrategySessionSplit, StrategyConstraintRelaxation, StrategyMultiStage}
	case ConflictWorkloadViolation:
		return []StrategyType{StrategyLoadRedistribution, StrategyConstraintRelaxation}
	default:
		return nil
	}
}

// Resolution records a successfully applied strategy.
type Resolution struct {
	ConflictID   string       `json:"conflict_id"`
	ConflictType ConflictType `json:"conflict_type"`
	Strategy     StrategyType `json:"strategy"`
	Steps        []string     `json:"steps,omitempty"`
	QualityScore float64      `json:"quality_score"`
	SideEffects  []string     `json:"side_effects,omitempty"`
	ResolvedAt   time.Time    `json:"resolved_at"`
}
