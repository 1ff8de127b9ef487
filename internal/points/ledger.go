// Package points awards loyalty points when appointments complete and when
// customers review a visit.
package points

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/internal/customers"
	"github.com/wolfman30/salon-booking-platform/internal/events"
	"github.com/wolfman30/salon-booking-platform/internal/settings"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

var pointsTracer = otel.Tracer("salon.internal.points")

// Balances mutates customer point balances transactionally. AddPointsOnce
// applies a keyed award at most once. *customers.Directory satisfies it.
type Balances interface {
	AddPoints(ctx context.Context, customerID string, delta int64, reason string) (int64, error)
	AddPointsOnce(ctx context.Context, customerID, awardKey string, delta int64, reason string) (int64, bool, error)
}

// awardKey identifies one award per appointment and kind.
func awardKey(appointmentID, kind string) string {
	return "appointment:" + appointmentID + ":" + kind
}

type pointSettings interface {
	PointSettings(ctx context.Context) (*settings.PointSettings, error)
}

// CompletionNotifier tells the customer about a finished visit.
type CompletionNotifier interface {
	ServiceCompleted(ctx context.Context, a appointments.Appointment, earned, balance int64) error
}

// EventTypes are the appointment events the ledger consumes.
var EventTypes = []string{
	appointments.EventTypeCompleted,
	appointments.EventTypeReviewSubmitted,
}

// Award is the breakdown of one balance change.
type Award struct {
	Purchase int64 `json:"purchase"`
	Visit    int64 `json:"visit"`
	Review   int64 `json:"review"`
	Balance  int64 `json:"balance"`
}

// Total is the number of points added.
func (a Award) Total() int64 {
	return a.Purchase + a.Visit + a.Review
}

// Ledger applies point rates from settings to customer balances.
type Ledger struct {
	balances Balances
	settings pointSettings
	notifier CompletionNotifier
	logger   *logging.Logger
}

type Option func(*Ledger)

func WithCompletionNotifier(n CompletionNotifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func NewLedger(balances Balances, provider pointSettings, logger *logging.Logger, opts ...Option) *Ledger {
	if balances == nil {
		panic("points: balances required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	l := &Ledger{balances: balances, settings: provider, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) rates(ctx context.Context) (*settings.PointSettings, error) {
	if l.settings == nil {
		return settings.DefaultPointSettings(), nil
	}
	ps, err := l.settings.PointSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("points: load settings: %w", err)
	}
	return ps, nil
}

// apply adds the award in a single balance write. Nothing is written when the
// award is zero.
func (l *Ledger) apply(ctx context.Context, customerID string, a Award, reason string) (Award, error) {
	if a.Total() == 0 {
		return a, nil
	}
	balance, err := l.balances.AddPoints(ctx, customerID, a.Total(), reason)
	if err != nil {
		return Award{}, err
	}
	a.Balance = balance
	l.logger.Info("points awarded", "customer_id", customerID, "points", a.Total(), "balance", balance, "reason", reason)
	return a, nil
}

// applyOnce is apply guarded by key. A repeated key reports applied false and
// leaves the balance untouched.
func (l *Ledger) applyOnce(ctx context.Context, customerID, key string, a Award, reason string) (Award, bool, error) {
	if a.Total() == 0 {
		return a, true, nil
	}
	balance, applied, err := l.balances.AddPointsOnce(ctx, customerID, key, a.Total(), reason)
	if err != nil {
		return Award{}, false, err
	}
	if !applied {
		l.logger.Info("points: award already applied", "customer_id", customerID, "award_key", key)
		return Award{Balance: balance}, false, nil
	}
	a.Balance = balance
	l.logger.Info("points awarded", "customer_id", customerID, "points", a.Total(), "balance", balance, "reason", reason)
	return a, true, nil
}

// AwardPurchasePoints converts a paid amount to points.
func (l *Ledger) AwardPurchasePoints(ctx context.Context, customerID string, amount int64) (Award, error) {
	ps, err := l.rates(ctx)
	if err != nil {
		return Award{}, err
	}
	return l.apply(ctx, customerID, Award{Purchase: ps.PurchasePoints(amount)}, "purchase")
}

// AwardVisitPoints adds the per-visit award.
func (l *Ledger) AwardVisitPoints(ctx context.Context, customerID string) (Award, error) {
	ps, err := l.rates(ctx)
	if err != nil {
		return Award{}, err
	}
	return l.apply(ctx, customerID, Award{Visit: ps.VisitPoints()}, "visit")
}

// AwardReviewPoints adds the per-review award.
func (l *Ledger) AwardReviewPoints(ctx context.Context, customerID string) (Award, error) {
	ps, err := l.rates(ctx)
	if err != nil {
		return Award{}, err
	}
	return l.apply(ctx, customerID, Award{Review: ps.ReviewPoints()}, "review")
}

func customerIdentity(a appointments.Appointment) string {
	if a.CustomerInfo.CustomerID != "" {
		return a.CustomerInfo.CustomerID
	}
	return a.CustomerInfo.LineUserID
}

// Handle consumes completed and review events.
func (l *Ledger) Handle(ctx context.Context, env events.Envelope) error {
	switch env.EventType {
	case appointments.EventTypeCompleted:
		var evt appointments.AppointmentCompletedV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		return l.onCompleted(ctx, evt)
	case appointments.EventTypeReviewSubmitted:
		var evt appointments.ReviewSubmittedV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		id := customerIdentity(evt.Appointment)
		if id == "" {
			return nil
		}
		ps, err := l.rates(ctx)
		if err != nil {
			return err
		}
		_, _, err = l.applyOnce(ctx, id, awardKey(evt.Appointment.ID, "review"), Award{Review: ps.ReviewPoints()}, "review "+evt.Appointment.ID)
		if errors.Is(err, customers.ErrNotFound) {
			l.logger.Warn("points: review by unknown customer", "appointment_id", evt.Appointment.ID, "customer_id", id)
			return nil
		}
		return err
	}
	return nil
}

// onCompleted awards purchase and visit points in one write keyed by the
// appointment, then notifies. A repeated completion awards nothing and sends
// nothing. Notification failures are logged so a retry never awards twice.
func (l *Ledger) onCompleted(ctx context.Context, evt appointments.AppointmentCompletedV1) error {
	ctx, span := pointsTracer.Start(ctx, "points.completed")
	defer span.End()
	appt := evt.Appointment
	span.SetAttributes(attribute.String("salon.appointment_id", appt.ID))

	var award Award
	if id := customerIdentity(appt); id != "" {
		ps, err := l.rates(ctx)
		if err != nil {
			span.RecordError(err)
			return err
		}
		award.Purchase = ps.PurchasePoints(appt.PaymentInfo.TotalPrice)
		if evt.AwardVisitPoints {
			award.Visit = ps.VisitPoints()
		}
		var applied bool
		award, applied, err = l.applyOnce(ctx, id, awardKey(appt.ID, "completed"), award, "appointment "+appt.ID)
		switch {
		case errors.Is(err, customers.ErrNotFound):
			l.logger.Warn("points: customer not found, skipping award", "appointment_id", appt.ID, "customer_id", id)
			award = Award{}
		case err != nil:
			span.RecordError(err)
			return err
		case !applied:
			return nil
		}
	}

	if l.notifier != nil {
		if err := l.notifier.ServiceCompleted(ctx, appt, award.Total(), award.Balance); err != nil {
			l.logger.Warn("points: completion notification failed", "appointment_id", appt.ID, "error", err)
		}
	}
	return nil
}
