package appointments

import (
	"encoding/json"
	"strings"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusConfirmed            Status = "confirmed"
	StatusInProgress           Status = "in_progress"
	StatusCompleted            Status = "completed"
	StatusCancelled            Status = "cancelled"

	legacyStatusPending = "pending"
)

// transitions lists the legal targets for every non-terminal state.
var transitions = map[Status][]Status{
	StatusAwaitingConfirmation: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:            {StatusInProgress, StatusCancelled, StatusCompleted},
	StatusInProgress:           {StatusCompleted, StatusCancelled},
}

// ActiveStatuses hold a slot against capacity.
var ActiveStatuses = []Status{StatusAwaitingConfirmation, StatusConfirmed, StatusInProgress}

// ParseStatus maps stored or user supplied text onto a Status. The legacy
// "pending" label becomes awaiting_confirmation here and nowhere else.
func ParseStatus(raw string) (Status, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == legacyStatusPending {
		return StatusAwaitingConfirmation, true
	}
	switch Status(s) {
	case StatusAwaitingConfirmation, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return Status(s), true
	}
	return "", false
}

// UnmarshalJSON normalizes legacy values when documents are decoded. An
// empty string or null decodes to the zero Status.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		*s = ""
		return nil
	}
	parsed, ok := ParseStatus(raw)
	if !ok {
		return &ValidationError{Field: "status", Reason: "unknown status " + raw}
	}
	*s = parsed
	return nil
}

// CanTransition reports whether from -> to is in the legal graph.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether the status counts against slot capacity.
func (s Status) IsActive() bool {
	for _, a := range ActiveStatuses {
		if a == s {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }
