package notify

import (
	"context"
	"errors"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/internal/events"
	"github.com/wolfman30/salon-booking-platform/internal/settings"
)

// EventTypes are the appointment events the subscriber reacts to. Completion
// is announced by the points ledger once points are known.
var EventTypes = []string{
	appointments.EventTypeCreated,
	appointments.EventTypeConfirmed,
	appointments.EventTypeCancelled,
	appointments.EventTypeRescheduled,
	appointments.EventTypePaymentConfirmed,
}

// Subscriber turns appointment events into notifications. A subscriber bound
// to one channel only sends there, so each channel can be registered on the
// bus under its own name and retried on its own.
type Subscriber struct {
	dispatcher *Dispatcher
	baseURL    string
	channel    string
}

// NewSubscriber creates a subscriber for every channel. baseURL is used for
// review links.
func NewSubscriber(dispatcher *Dispatcher, baseURL string) *Subscriber {
	return &Subscriber{dispatcher: dispatcher, baseURL: baseURL}
}

// ForChannel returns a copy that only sends on channel.
func (s *Subscriber) ForChannel(channel string) *Subscriber {
	cp := *s
	cp.channel = channel
	return &cp
}

type notification struct {
	channel   string
	eventType string
	msg       Message
}

func (s *Subscriber) Handle(ctx context.Context, env events.Envelope) error {
	planned, err := s.plan(env)
	if err != nil {
		return err
	}
	var errs []error
	for _, n := range planned {
		if s.channel != "" && n.channel != s.channel {
			continue
		}
		errs = append(errs, s.dispatcher.Notify(ctx, n.channel, n.eventType, n.msg))
	}
	return errors.Join(errs...)
}

// plan lists the notifications an event produces on every channel.
func (s *Subscriber) plan(env events.Envelope) ([]notification, error) {
	switch env.EventType {
	case appointments.EventTypeCreated:
		var evt appointments.AppointmentCreatedV1
		if err := env.Decode(&evt); err != nil {
			return nil, err
		}
		return []notification{{settings.ChannelAdmin, settings.EventNewBooking, Message{
			Subject:       "New booking: " + customerName(evt.Appointment),
			AppointmentID: evt.Appointment.ID,
			Text:          newBookingAdminText(evt.Appointment),
		}}}, nil

	case appointments.EventTypeConfirmed:
		var evt appointments.AppointmentConfirmedV1
		if err := env.Decode(&evt); err != nil {
			return nil, err
		}
		// The payment notification already tells the customer.
		if evt.ViaPayment {
			return nil, nil
		}
		return []notification{{settings.ChannelCustomer, settings.EventAppointmentConfirmed, Message{
			LineTo: evt.Appointment.CustomerInfo.LineUserID,
			Text:   confirmedText(evt.Appointment),
		}}}, nil

	case appointments.EventTypeCancelled:
		var evt appointments.AppointmentCancelledV1
		if err := env.Decode(&evt); err != nil {
			return nil, err
		}
		var out []notification
		if !evt.SuppressNotification {
			out = append(out, notification{settings.ChannelCustomer, settings.EventAppointmentCancelled, Message{
				LineTo: evt.Appointment.CustomerInfo.LineUserID,
				Text:   cancelledText(evt.Appointment, evt.Reason),
			}})
		}
		if evt.CancelledBy == appointments.RoleCustomer {
			out = append(out, notification{settings.ChannelAdmin, settings.EventBookingCancelled, Message{
				Subject:       "Booking cancelled: " + customerName(evt.Appointment),
				AppointmentID: evt.Appointment.ID,
				Text:          cancelledAdminText(evt.Appointment, evt.CancelledBy, evt.Reason),
			}})
		}
		return out, nil

	case appointments.EventTypeRescheduled:
		var evt appointments.AppointmentRescheduledV1
		if err := env.Decode(&evt); err != nil {
			return nil, err
		}
		return []notification{{settings.ChannelCustomer, settings.EventAppointmentRescheduled, Message{
			LineTo: evt.Appointment.CustomerInfo.LineUserID,
			Text:   rescheduledText(evt.Appointment, evt.PreviousDate, evt.PreviousTime),
		}}}, nil

	case appointments.EventTypePaymentConfirmed:
		var evt appointments.PaymentConfirmedV1
		if err := env.Decode(&evt); err != nil {
			return nil, err
		}
		return []notification{
			{settings.ChannelCustomer, settings.EventPaymentConfirmed, Message{
				LineTo: evt.Appointment.CustomerInfo.LineUserID,
				Text:   paymentText(evt.Appointment, evt.Amount, evt.Method, evt.FirstConfirmation),
			}},
			{settings.ChannelAdmin, settings.EventPaymentReceived, Message{
				Subject:       "Payment received: " + customerName(evt.Appointment),
				AppointmentID: evt.Appointment.ID,
				Text:          paymentAdminText(evt.Appointment, evt.Amount, evt.Method),
			}},
		}, nil
	}
	return nil, nil
}

// ServiceCompleted sends the thank-you message with any points earned and,
// separately, the review request. Each is gated on its own.
func (s *Subscriber) ServiceCompleted(ctx context.Context, a appointments.Appointment, earned, balance int64) error {
	thanks := s.dispatcher.Notify(ctx, settings.ChannelCustomer, settings.EventServiceCompleted, Message{
		LineTo: a.CustomerInfo.LineUserID,
		Text:   completedText(a, earned, balance),
	})
	review := s.dispatcher.Notify(ctx, settings.ChannelCustomer, settings.EventReviewRequest, Message{
		LineTo: a.CustomerInfo.LineUserID,
		Text:   reviewRequestText(a, s.baseURL),
	})
	return errors.Join(thanks, review)
}
