package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/salon-booking-platform/internal/events"
)

// TransitionMeta carries the inputs some transitions require.
type TransitionMeta struct {
	Reason      string `json:"reason,omitempty"`
	CancelledBy Role   `json:"cancelled_by,omitempty"`
	// SuppressNotification is set by bulk or system cancellations.
	SuppressNotification bool `json:"suppress_notification,omitempty"`
}

// authorize enforces who may drive which transition.
func authorize(actor Actor, a *Appointment, target Status) error {
	switch actor.Role {
	case RoleAdmin, RoleSystem:
		return nil
	case RoleEmployee:
		if target == StatusInProgress || target == StatusCompleted {
			return nil
		}
		return fmt.Errorf("%w: employees may only check in or complete", ErrPermission)
	case RoleCustomer:
		if !a.OwnedBy(actor.ID) {
			return fmt.Errorf("%w: appointment belongs to another customer", ErrPermission)
		}
		if target == StatusConfirmed || target == StatusCancelled {
			return nil
		}
		return fmt.Errorf("%w: customers may only confirm or cancel", ErrPermission)
	default:
		return fmt.Errorf("%w: unknown role %q", ErrPermission, actor.Role)
	}
}

func validateMeta(target Status, meta *TransitionMeta) error {
	if target != StatusCancelled {
		return nil
	}
	meta.Reason = strings.TrimSpace(meta.Reason)
	if meta.Reason == "" {
		return missing("reason")
	}
	if meta.CancelledBy != RoleAdmin && meta.CancelledBy != RoleCustomer {
		return &ValidationError{Field: "cancelled_by", Reason: "must be admin or customer"}
	}
	return nil
}

// Transition moves an appointment to target. Same-state requests succeed
// without writing or emitting events.
func (s *Service) Transition(ctx context.Context, id string, target Status, actor Actor, meta TransitionMeta) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.appointment_id", id),
		attribute.String("salon.status.target", string(target)),
		attribute.String("salon.actor.role", string(actor.Role)),
	)

	if strings.TrimSpace(id) == "" {
		return nil, missing("id")
	}
	parsed, ok := ParseStatus(string(target))
	if !ok {
		return nil, &ValidationError{Field: "status", Reason: "unknown status " + string(target)}
	}
	target = parsed
	if err := validateMeta(target, &meta); err != nil {
		return nil, err
	}

	var from Status
	appt, err := s.repo.Update(ctx, id, func(a *Appointment) ([]events.CanonicalEvent, error) {
		from = a.Status
		if err := authorize(actor, a, target); err != nil {
			return nil, err
		}
		if a.Status == target {
			return nil, ErrUnchanged
		}
		if !CanTransition(a.Status, target) {
			return nil, &InvalidTransitionError{From: a.Status, To: target}
		}
		return s.applyTransition(a, target, actor, meta), nil
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveTransition(string(from), string(target), transitionOutcome(err))
		return nil, err
	}
	if from != target {
		s.metrics.ObserveTransition(string(from), string(target), "ok")
		s.logger.Info("appointment status changed", "appointment_id", id, "from", from, "to", target, "actor", actor.ID, "role", actor.Role)
	}
	return appt, nil
}

// applyTransition mutates a and returns the event describing the change.
func (s *Service) applyTransition(a *Appointment, target Status, actor Actor, meta TransitionMeta) []events.CanonicalEvent {
	now := s.now()
	from := a.Status
	a.Status = target
	a.UpdatedAt = now

	switch target {
	case StatusConfirmed:
		return []events.CanonicalEvent{AppointmentConfirmedV1{Appointment: *a.Clone(), Actor: actor, From: from, OccurredAt: now}}
	case StatusInProgress:
		a.CheckIn = &CheckIn{StartedAt: now, StartedBy: actor.ID}
		return []events.CanonicalEvent{AppointmentCheckedInV1{Appointment: *a.Clone(), Actor: actor, OccurredAt: now}}
	case StatusCompleted:
		completedAt := now
		a.CompletedAt = &completedAt
		award := !a.VisitPointsAwarded
		a.VisitPointsAwarded = true
		return []events.CanonicalEvent{AppointmentCompletedV1{Appointment: *a.Clone(), Actor: actor, From: from, AwardVisitPoints: award, OccurredAt: now}}
	case StatusCancelled:
		a.CancellationInfo = &CancellationInfo{CancelledBy: meta.CancelledBy, Reason: meta.Reason, Timestamp: now}
		return []events.CanonicalEvent{AppointmentCancelledV1{
			Appointment:          *a.Clone(),
			Actor:                actor,
			From:                 from,
			Reason:               meta.Reason,
			CancelledBy:          meta.CancelledBy,
			SuppressNotification: meta.SuppressNotification,
			OccurredAt:           now,
		}}
	}
	return nil
}

func transitionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return "invalid"
	case errors.Is(err, ErrPermission):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// PaymentInput is a payment taken at the counter.
type PaymentInput struct {
	Amount int64  `json:"amount"`
	Method string `json:"method"`
}

// ConfirmWithPayment records payment. An awaiting appointment is confirmed in
// the same write; a confirmed one only has its payment fields updated.
func (s *Service) ConfirmWithPayment(ctx context.Context, id string, actor Actor, in PaymentInput) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.confirm_with_payment")
	defer span.End()
	span.SetAttributes(attribute.String("salon.appointment_id", id))

	if strings.TrimSpace(id) == "" {
		return nil, missing("id")
	}
	in.Method = strings.TrimSpace(in.Method)
	if in.Method == "" {
		return nil, missing("method")
	}
	if in.Amount < 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if actor.Role != RoleAdmin && actor.Role != RoleEmployee && actor.Role != RoleSystem {
		return nil, fmt.Errorf("%w: payment must be recorded by staff", ErrPermission)
	}

	first := false
	appt, err := s.repo.Update(ctx, id, func(a *Appointment) ([]events.CanonicalEvent, error) {
		switch a.Status {
		case StatusAwaitingConfirmation:
			first = true
		case StatusConfirmed:
		default:
			return nil, &InvalidTransitionError{From: a.Status, To: StatusConfirmed}
		}
		now := s.now()
		from := a.Status
		a.Status = StatusConfirmed
		a.PaymentInfo.PaymentStatus = PaymentPaid
		a.PaymentInfo.AmountPaid = in.Amount
		a.PaymentInfo.PaymentMethod = in.Method
		paidAt := now
		a.PaymentInfo.PaidAt = &paidAt
		a.UpdatedAt = now

		var out []events.CanonicalEvent
		if first {
			out = append(out, AppointmentConfirmedV1{Appointment: *a.Clone(), Actor: actor, From: from, ViaPayment: true, OccurredAt: now})
		}
		out = append(out, PaymentConfirmedV1{
			Appointment:       *a.Clone(),
			Actor:             actor,
			Amount:            in.Amount,
			Method:            in.Method,
			FirstConfirmation: first,
			OccurredAt:        now,
		})
		return out, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("appointment payment recorded", "appointment_id", id, "amount", in.Amount, "method", in.Method, "first_confirmation", first)
	return appt, nil
}
