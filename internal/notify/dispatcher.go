// Package notify delivers customer and admin notifications over LINE and
// email, gated per event class by the notification settings.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/salon-booking-platform/internal/notify/lineclient"
	"github.com/wolfman30/salon-booking-platform/internal/observability/metrics"
	"github.com/wolfman30/salon-booking-platform/internal/settings"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

// LinePusher sends LINE messages. *lineclient.Client satisfies it.
type LinePusher interface {
	Push(ctx context.Context, to string, messages ...lineclient.Message) error
}

type notificationSettings interface {
	NotificationSettings(ctx context.Context) (*settings.NotificationSettings, error)
}

// Message is one notification. LineTo is only read for the customer
// channel; admin messages go to the configured admin targets.
type Message struct {
	LineTo        string
	Subject       string
	Text          string
	AppointmentID string
}

// Notification outcomes recorded in metrics.
const (
	statusSent     = "sent"
	statusDisabled = "disabled"
	statusSkipped  = "skipped"
	statusFailed   = "failed"
)

// Dispatcher routes notifications to channels.
type Dispatcher struct {
	settings   notificationSettings
	line       LinePusher
	email      EmailSender
	adminLine  []string
	adminEmail string
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLine enables LINE delivery. adminTargets are user or group ids that
// receive admin notifications.
func WithLine(p LinePusher, adminTargets []string) DispatcherOption {
	return func(d *Dispatcher) {
		d.line = p
		d.adminLine = adminTargets
	}
}

// WithAdminEmail mirrors admin notifications to an inbox.
func WithAdminEmail(sender EmailSender, to string) DispatcherOption {
	return func(d *Dispatcher) {
		d.email = sender
		d.adminEmail = to
	}
}

func WithDispatcherMetrics(m *metrics.BookingMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(provider notificationSettings, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{settings: provider, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) enabled(ctx context.Context, channel, eventType string) bool {
	if d.settings == nil {
		return true
	}
	ns, err := d.settings.NotificationSettings(ctx)
	if err != nil {
		d.logger.Warn("notify: load notification settings failed, using defaults", "error", err)
		return settings.DefaultNotificationSettings().Enabled(channel, eventType)
	}
	return ns.Enabled(channel, eventType)
}

// Notify sends msg on channel if eventType is enabled there. Disabled events
// and customers without a LINE identity are skipped without error.
func (d *Dispatcher) Notify(ctx context.Context, channel, eventType string, msg Message) error {
	if !d.enabled(ctx, channel, eventType) {
		d.metrics.ObserveNotification(channel, eventType, statusDisabled)
		d.logger.Debug("notify: event disabled", "channel", channel, "event", eventType)
		return nil
	}

	var err error
	switch channel {
	case settings.ChannelCustomer:
		err = d.toCustomer(ctx, eventType, msg)
	case settings.ChannelAdmin:
		err = d.toAdmin(ctx, eventType, msg)
	default:
		err = fmt.Errorf("notify: unknown channel %q", channel)
	}
	if errors.Is(err, errNoRecipient) {
		d.metrics.ObserveNotification(channel, eventType, statusSkipped)
		return nil
	}
	if err != nil {
		d.metrics.ObserveNotification(channel, eventType, statusFailed)
		d.logger.Error("notify: delivery failed", "channel", channel, "event", eventType, "error", err)
		return err
	}
	d.metrics.ObserveNotification(channel, eventType, statusSent)
	return nil
}

var errNoRecipient = errors.New("notify: no recipient")

func (d *Dispatcher) toCustomer(ctx context.Context, eventType string, msg Message) error {
	if d.line == nil || msg.LineTo == "" {
		d.logger.Debug("notify: customer has no LINE identity", "event", eventType)
		return errNoRecipient
	}
	return d.line.Push(ctx, msg.LineTo, lineclient.Text(msg.Text))
}

func (d *Dispatcher) toAdmin(ctx context.Context, eventType string, msg Message) error {
	var (
		errs []error
		sent bool
	)
	if d.line != nil {
		for _, target := range d.adminLine {
			if err := d.line.Push(ctx, target, lineclient.Text(msg.Text)); err != nil {
				errs = append(errs, fmt.Errorf("line %s: %w", target, err))
				continue
			}
			sent = true
		}
	}
	if d.email != nil && d.adminEmail != "" {
		subject := msg.Subject
		if subject == "" {
			subject = "Salon notification"
		}
		if err := d.email.Send(ctx, EmailMessage{
			To:            d.adminEmail,
			Subject:       subject,
			Body:          msg.Text,
			Category:      eventType,
			AppointmentID: msg.AppointmentID,
		}); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		} else {
			sent = true
		}
	}
	switch {
	case len(errs) > 0 && sent:
		// A retry would re-send to the routes that already succeeded.
		d.logger.Warn("notify: admin partially delivered", "event", eventType, "error", errors.Join(errs...))
		return nil
	case len(errs) > 0:
		return errors.Join(errs...)
	case !sent:
		return errNoRecipient
	}
	return nil
}
