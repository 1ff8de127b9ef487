package calendar

import (
	"context"
	"errors"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/internal/events"
	"github.com/wolfman30/salon-booking-platform/internal/settings"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

// Syncer is the calendar side. *Client satisfies it.
type Syncer interface {
	UpsertEvent(ctx context.Context, a appointments.Appointment) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// AppointmentStore reads the current event id and records new ones.
// *appointments.Service satisfies it.
type AppointmentStore interface {
	Get(ctx context.Context, id string) (*appointments.Appointment, error)
	SetCalendarEventID(ctx context.Context, id, eventID string) error
}

type bookingSettings interface {
	BookingSettings(ctx context.Context) (*settings.BookingSettings, error)
}

// EventTypes are the appointment events that touch the calendar.
var EventTypes = []string{
	appointments.EventTypeCreated,
	appointments.EventTypeConfirmed,
	appointments.EventTypeRescheduled,
	appointments.EventTypeCancelled,
	appointments.EventTypeCompleted,
}

// Subscriber keeps the calendar in step with appointment events.
type Subscriber struct {
	syncer   Syncer
	store    AppointmentStore
	settings bookingSettings
	logger   *logging.Logger
}

// NewSubscriber wires the calendar sync. provider may be nil, in which case
// sync is always on.
func NewSubscriber(syncer Syncer, store AppointmentStore, provider bookingSettings, logger *logging.Logger) *Subscriber {
	if logger == nil {
		logger = logging.Default()
	}
	return &Subscriber{syncer: syncer, store: store, settings: provider, logger: logger}
}

func (s *Subscriber) enabled(ctx context.Context) (bool, error) {
	if s.settings == nil {
		return true, nil
	}
	bs, err := s.settings.BookingSettings(ctx)
	if err != nil {
		return false, err
	}
	return bs != nil && bs.CalendarSyncEnabled, nil
}

func (s *Subscriber) Handle(ctx context.Context, env events.Envelope) error {
	on, err := s.enabled(ctx)
	if err != nil {
		return err
	}
	if !on {
		return nil
	}

	switch env.EventType {
	case appointments.EventTypeCreated:
		var evt appointments.AppointmentCreatedV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		if evt.Appointment.Status != appointments.StatusConfirmed {
			return nil
		}
		return s.upsert(ctx, evt.Appointment)
	case appointments.EventTypeConfirmed:
		var evt appointments.AppointmentConfirmedV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		return s.upsert(ctx, evt.Appointment)
	case appointments.EventTypeRescheduled:
		var evt appointments.AppointmentRescheduledV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		return s.upsert(ctx, evt.Appointment)
	case appointments.EventTypeCancelled:
		var evt appointments.AppointmentCancelledV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		return s.remove(ctx, evt.Appointment)
	case appointments.EventTypeCompleted:
		var evt appointments.AppointmentCompletedV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		return s.remove(ctx, evt.Appointment)
	}
	return nil
}

// current prefers the stored appointment so a later event sees an event id
// written after its snapshot was taken.
func (s *Subscriber) current(ctx context.Context, snapshot appointments.Appointment) appointments.Appointment {
	stored, err := s.store.Get(ctx, snapshot.ID)
	if err != nil {
		if !errors.Is(err, appointments.ErrNotFound) {
			s.logger.Warn("calendar: reload appointment failed", "appointment_id", snapshot.ID, "error", err)
		}
		return snapshot
	}
	if stored.GoogleCalendarEventID != "" {
		snapshot.GoogleCalendarEventID = stored.GoogleCalendarEventID
	}
	return snapshot
}

func (s *Subscriber) upsert(ctx context.Context, snapshot appointments.Appointment) error {
	a := s.current(ctx, snapshot)
	eventID, err := s.syncer.UpsertEvent(ctx, a)
	if err != nil {
		return err
	}
	if eventID == "" || eventID == a.GoogleCalendarEventID {
		return nil
	}
	if err := s.store.SetCalendarEventID(ctx, a.ID, eventID); err != nil {
		return err
	}
	s.logger.Info("calendar: event synced", "appointment_id", a.ID, "event_id", eventID)
	return nil
}

func (s *Subscriber) remove(ctx context.Context, snapshot appointments.Appointment) error {
	a := s.current(ctx, snapshot)
	if a.GoogleCalendarEventID == "" {
		return nil
	}
	if err := s.syncer.DeleteEvent(ctx, a.GoogleCalendarEventID); err != nil {
		return err
	}
	if err := s.store.SetCalendarEventID(ctx, a.ID, ""); err != nil && !errors.Is(err, appointments.ErrNotFound) {
		return err
	}
	s.logger.Info("calendar: event removed", "appointment_id", a.ID, "event_id", a.GoogleCalendarEventID)
	return nil
}
