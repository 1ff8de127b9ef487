package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// CanonicalEvent is a versioned booking event such as
// "appointment.confirmed.v1". The type string names the outbox row and picks
// the subscribers that receive it.
type CanonicalEvent interface {
	EventType() string
}

// Envelope is the outbox record for one booking event. Aggregate is the
// appointment key ("appointment:<id>") so every event for a booking can be
// replayed in order. EventID doubles as the dedupe key for subscriber claims.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	Aggregate       string          `json:"aggregate"`
	TimestampMicros int64           `json:"timestamp"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

// ErrInvalidEnvelope wraps every rejection from NewEnvelope.
var ErrInvalidEnvelope = errors.New("events: invalid envelope")

// clock stamps new envelopes. Tests pin it.
var clock = time.Now

// OccurredAt is when the booking change was recorded, in UTC.
func (e Envelope) OccurredAt() time.Time {
	return time.UnixMicro(e.TimestampMicros).UTC()
}

// Decode unmarshals the event body into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("events: %s has empty payload", e.EventType)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("events: decode %s: %w", e.EventType, err)
	}
	return nil
}

// EnvelopeOption adjusts an envelope after it is built.
type EnvelopeOption func(*Envelope)

// WithEventID pins the event id. A nil id is ignored.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

// WithTimestamp pins the recorded time. A zero time is ignored.
func WithTimestamp(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if !ts.IsZero() {
			e.TimestampMicros = ts.UTC().UnixMicro()
		}
	}
}

func eventTypeOf(evt CanonicalEvent) (string, error) {
	if evt == nil {
		return "", fmt.Errorf("%w: no event", ErrInvalidEnvelope)
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return "", fmt.Errorf("%w: %T has no event type", ErrInvalidEnvelope, evt)
	}
	return eventType, nil
}

// NewEnvelope builds the envelope for evt without writing it anywhere. The
// bus uses it for in-process delivery when no outbox is configured.
func NewEnvelope(aggregate, correlationID string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	aggregate = strings.TrimSpace(aggregate)
	if aggregate == "" {
		return Envelope{}, fmt.Errorf("%w: aggregate is required", ErrInvalidEnvelope)
	}
	eventType, err := eventTypeOf(evt)
	if err != nil {
		return Envelope{}, err
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s: %w", eventType, err)
	}

	env := Envelope{
		EventID:         uuid.New(),
		EventType:       eventType,
		Aggregate:       aggregate,
		TimestampMicros: clock().UTC().UnixMicro(),
		CorrelationID:   strings.TrimSpace(correlationID),
		Payload:         body,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AppendCanonicalEvent queues evt in the outbox. Callers pass the
// transaction that writes the appointment row, so the booking change and its
// event commit together or not at all.
func AppendCanonicalEvent(ctx context.Context, exec execer, aggregate, correlationID string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	if exec == nil {
		return Envelope{}, errors.New("events: outbox append needs a transaction")
	}
	env, err := NewEnvelope(aggregate, correlationID, evt, opts...)
	if err != nil {
		return Envelope{}, err
	}
	row, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	const insertOutbox = `INSERT INTO outbox (id, aggregate, event_type, payload) VALUES ($1, $2, $3, $4)`
	if _, err := exec.Exec(ctx, insertOutbox, env.EventID, env.Aggregate, env.EventType, row); err != nil {
		return Envelope{}, fmt.Errorf("events: queue %s for %s: %w", env.EventType, env.Aggregate, err)
	}
	return env, nil
}
