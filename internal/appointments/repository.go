package appointments

import (
	"context"

	"github.com/wolfman30/salon-booking-platform/internal/events"
)

// MutateFunc edits an appointment in place and returns the events to commit
// with it. Returning ErrUnchanged skips the write.
type MutateFunc func(a *Appointment) ([]events.CanonicalEvent, error)

// EventsFunc builds the events for a freshly inserted appointment.
type EventsFunc func(a *Appointment) []events.CanonicalEvent

// ListFilter narrows admin listings. Empty fields match everything.
type ListFilter struct {
	DateFrom   string
	DateTo     string
	Statuses   []Status
	CustomerID string
	Limit      int
}

// Repository persists appointments. Every write commits its events together
// with the state change.
type Repository interface {
	// CreateIfAvailable inserts a when fewer than max active appointments
	// hold its slot. Counting and inserting happen under one slot lock.
	CreateIfAvailable(ctx context.Context, a *Appointment, max int, evts EventsFunc) error
	Get(ctx context.Context, id string) (*Appointment, error)
	// Update locks the appointment, applies fn and stores the result.
	Update(ctx context.Context, id string, fn MutateFunc) (*Appointment, error)
	// Reschedule is Update under the lock of the target slot; after fn runs
	// the target slot must hold fewer than max other active appointments.
	Reschedule(ctx context.Context, id, date, timeLabel string, max int, fn MutateFunc) (*Appointment, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]Appointment, error)
	CountActive(ctx context.Context, date, timeLabel, excludeID string) (int, error)
	CountActiveByDate(ctx context.Context, date string) (map[string]int, error)
}

// Publisher delivers events when there is no outbox to append to.
type Publisher interface {
	Publish(ctx context.Context, aggregate string, evts ...events.CanonicalEvent) error
}
