package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	ErrNoActiveLoads     = New("NO_ACTIVE_LOADS", http.StatusUnprocessableEntity, "no active teaching loads for academic year")
	ErrInvalidLoadHours  = New("INVALID_LOAD_HOURS", http.StatusUnprocessableEntity, "weekly hours outside the allowed range")
	ErrTeacherOverloaded = New("TEACHER_OVERLOADED", http.StatusUnprocessableEntity, "teacher exceeds the weekly hour ceiling")
	ErrNoTimeSlots       = New("NO_TIME_SLOTS", http.StatusUnprocessableEntity, "generation settings produced no time slots")
	ErrRunNotFound       = New("RUN_NOT_FOUND", http.StatusNotFound, "generation run not found")
	ErrRunInProgress     = New("RUN_IN_PROGRESS", http.StatusConflict, "a generation run is already in progress")
	ErrBudgetExceeded    = New("BUDGET_EXCEEDED", http.StatusServiceUnavailable, "generation run exceeded its resource budget")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
