// Package audit keeps an append-only trail of appointment changes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/internal/events"
)

// Event is one immutable audit record.
type Event struct {
	ID            string          `json:"id"`
	EventType     string          `json:"event_type"`
	AppointmentID string          `json:"appointment_id"`
	ActorID       string          `json:"actor_id"`
	ActorRole     string          `json:"actor_role"`
	FromStatus    string          `json:"from_status,omitempty"`
	ToStatus      string          `json:"to_status"`
	Reason        string          `json:"reason,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Details holds event-specific fields.
type Details struct {
	// payment
	Amount            int64  `json:"amount,omitempty"`
	Method            string `json:"method,omitempty"`
	FirstConfirmation bool   `json:"first_confirmation,omitempty"`

	// reschedule
	PreviousDate    string `json:"previous_date,omitempty"`
	PreviousTime    string `json:"previous_time,omitempty"`
	PreviousStaffID string `json:"previous_staff_id,omitempty"`

	// review
	Rating int `json:"rating,omitempty"`
}

// Service writes and queries the audit trail.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// LogEvent records an event. Re-logging the same id is a no-op.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO appointment_audit_events (
			id, event_type, appointment_id, actor_id, actor_role,
			from_status, to_status, reason, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	var details any
	if len(event.Details) > 0 {
		details = []byte(event.Details)
	}
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.AppointmentID,
		event.ActorID,
		event.ActorRole,
		nullString(event.FromStatus),
		event.ToStatus,
		nullString(event.Reason),
		details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// EventTypes are recorded in the trail.
var EventTypes = []string{
	appointments.EventTypeCreated,
	appointments.EventTypeConfirmed,
	appointments.EventTypeCheckedIn,
	appointments.EventTypeCompleted,
	appointments.EventTypeCancelled,
	appointments.EventTypePaymentConfirmed,
	appointments.EventTypeRescheduled,
	appointments.EventTypeReviewSubmitted,
}

// appointmentEvent is the union of the appointment event payloads.
type appointmentEvent struct {
	Appointment appointments.Appointment `json:"appointment"`
	Actor       appointments.Actor       `json:"actor"`
	From        appointments.Status      `json:"from"`
	Reason      string                   `json:"reason"`
	Details
}

// Handle is a bus handler. The envelope id becomes the audit id so bus
// redelivery cannot duplicate rows.
func (s *Service) Handle(ctx context.Context, env events.Envelope) error {
	var evt appointmentEvent
	if err := env.Decode(&evt); err != nil {
		return err
	}
	details, err := json.Marshal(evt.Details)
	if err != nil {
		return err
	}
	if string(details) == "{}" {
		details = nil
	}
	return s.LogEvent(ctx, Event{
		ID:            env.EventID.String(),
		EventType:     env.EventType,
		AppointmentID: evt.Appointment.ID,
		ActorID:       evt.Actor.ID,
		ActorRole:     string(evt.Actor.Role),
		FromStatus:    string(evt.From),
		ToStatus:      string(evt.Appointment.Status),
		Reason:        evt.Reason,
		Details:       details,
		CreatedAt:     env.OccurredAt(),
	})
}

// Filter narrows QueryEvents.
type Filter struct {
	AppointmentID string
	EventTypes    []string
	ActorID       string
	StartTime     time.Time
	EndTime       time.Time
	Limit         int
	Offset        int
}

// QueryEvents returns matching events, newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, appointment_id, actor_id, actor_role,
			   from_status, to_status, reason, details, created_at
		FROM appointment_audit_events
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.AppointmentID != "" {
		query += fmt.Sprintf(" AND appointment_id = $%d", argIdx)
		args = append(args, filter.AppointmentID)
		argIdx++
	}
	if len(filter.EventTypes) > 0 {
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argIdx)
		args = append(args, pq.Array(filter.EventTypes))
		argIdx++
	}
	if filter.ActorID != "" {
		query += fmt.Sprintf(" AND actor_id = $%d", argIdx)
		args = append(args, filter.ActorID)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var from, reason sql.NullString
		var details []byte
		if err := rows.Scan(
			&e.ID, &e.EventType, &e.AppointmentID, &e.ActorID, &e.ActorRole,
			&from, &e.ToStatus, &reason, &details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.FromStatus = from.String
		e.Reason = reason.String
		if len(details) > 0 {
			e.Details = details
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read events: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
