package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wolfman30/salon-booking-platform/internal/observability/metrics"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

// Handler consumes a single envelope.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env Envelope) error { return f(ctx, env) }

type subscription struct {
	name    string
	types   map[string]struct{}
	handler Handler
}

func (s subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Bus fans an envelope out to named subscribers. A failing or panicking
// subscriber never prevents the others from running.
type Bus struct {
	mu        sync.RWMutex
	subs      []subscription
	processed ProcessedTracker
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
}

func NewBus(processed ProcessedTracker, logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.Default()
	}
	return &Bus{processed: processed, logger: logger}
}

// WithMetrics counts subscriber outcomes.
func (b *Bus) WithMetrics(m *metrics.BookingMetrics) *Bus {
	b.metrics = m
	return b
}

// Subscribe registers handler under name. With no eventTypes the handler
// receives every event.
func (b *Bus) Subscribe(name string, handler Handler, eventTypes ...string) {
	if handler == nil {
		return
	}
	sub := subscription{name: name, handler: handler}
	if len(eventTypes) > 0 {
		sub.types = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.types[t] = struct{}{}
		}
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
}

// Handle dispatches env to every interested subscriber. Each subscriber runs
// only after it claims env.EventID, so overlapping deliveries of one event
// never run the same subscriber twice and redelivery only retries the ones
// that failed. The joined error of all failures is returned.
func (b *Bus) Handle(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	eventID := env.EventID.String()
	var errs []error
	for _, sub := range subs {
		if !sub.wants(env.EventType) {
			continue
		}
		if b.processed != nil {
			state, err := b.processed.Claim(ctx, sub.name, eventID)
			if err != nil {
				b.logger.Warn("events: claim failed", "subscriber", sub.name, "event_id", eventID, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", sub.name, err))
				continue
			}
			switch state {
			case ClaimDone:
				continue
			case ClaimBusy:
				b.logger.Debug("events: subscriber busy elsewhere", "subscriber", sub.name, "event_id", eventID)
				errs = append(errs, fmt.Errorf("%s: %w", sub.name, ErrClaimBusy))
				continue
			}
		}
		err := b.invoke(ctx, sub, env)
		b.metrics.ObserveSideEffect(sub.name, err == nil)
		if err != nil {
			b.logger.Error("events: subscriber failed", "subscriber", sub.name, "event_id", eventID, "type", env.EventType, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sub.name, err))
			if b.processed != nil {
				if relErr := b.processed.Release(context.WithoutCancel(ctx), sub.name, eventID); relErr != nil {
					b.logger.Warn("events: release claim failed", "subscriber", sub.name, "event_id", eventID, "error", relErr)
				}
			}
			continue
		}
		if b.processed != nil {
			if err := b.processed.Complete(context.WithoutCancel(ctx), sub.name, eventID); err != nil {
				b.logger.Warn("events: complete claim failed", "subscriber", sub.name, "event_id", eventID, "error", err)
			}
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) invoke(ctx context.Context, sub subscription, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.handler.Handle(ctx, env)
}

// SyncPublisher delivers events straight to a handler without an outbox.
// It backs the in-memory store where there is no transaction to join.
type SyncPublisher struct {
	handler DeliveryHandler
	logger  *logging.Logger
}

func NewSyncPublisher(handler DeliveryHandler, logger *logging.Logger) *SyncPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &SyncPublisher{handler: handler, logger: logger}
}

// Publish wraps and delivers each event in order. Delivery errors are logged,
// only envelope construction errors are returned.
func (p *SyncPublisher) Publish(ctx context.Context, aggregate string, evts ...CanonicalEvent) error {
	for _, evt := range evts {
		env, err := NewEnvelope(aggregate, "", evt)
		if err != nil {
			return err
		}
		if p.handler == nil {
			continue
		}
		if err := p.handler.Handle(ctx, env); err != nil {
			p.logger.Warn("events: synchronous delivery failed", "event_id", env.EventID, "type", env.EventType, "error", err)
		}
	}
	return nil
}
