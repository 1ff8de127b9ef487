package appointments

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("appointments: validation failed")
	ErrCapacityExceeded  = errors.New("appointments: slot full")
	ErrNotFound          = errors.New("appointments: not found")
	ErrInvalidTransition = errors.New("appointments: invalid transition")
	ErrPermission        = errors.New("appointments: permission denied")

	// ErrUnchanged is returned by a MutateFunc to abort without writing.
	ErrUnchanged = errors.New("appointments: unchanged")
)

// ValidationError names the offending input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("appointments: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// CapacityExceededError reports the slot that was full at write time.
type CapacityExceededError struct {
	Date    string
	Time    string
	Max     int
	Current int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("appointments: slot %s %s full (%d/%d)", e.Date, e.Time, e.Current, e.Max)
}

func (e *CapacityExceededError) Unwrap() error { return ErrCapacityExceeded }

// InvalidTransitionError reports a status change outside the legal graph.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("appointments: cannot move from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "required"}
}
