package livefeed

import (
	"context"
	"time"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/internal/events"
)

// EventTypes are forwarded to admin screens.
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

// Every appointment event carries the committed appointment under this key.
type appointmentEvent struct {
	Appointment appointments.Appointment `json:"appointment"`
}

// Handle is a bus handler that broadcasts the committed appointment.
func (h *Hub) Handle(_ context.Context, env events.Envelope) error {
	if h.Connections() == 0 {
		return nil
	}
	var evt appointmentEvent
	if err := env.Decode(&evt); err != nil {
		return err
	}
	h.Broadcast(OutboundMessage{
		Type:        "appointment",
		Event:       env.EventType,
		Appointment: &evt.Appointment,
		Timestamp:   env.OccurredAt().Format(time.RFC3339),
	})
	return nil
}
