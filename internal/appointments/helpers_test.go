package appointments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-booking-platform/internal/catalog"
	"github.com/wolfman30/salon-booking-platform/internal/events"
	"github.com/wolfman30/salon-booking-platform/internal/settings"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

var fixedNow = time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)

// recordingPublisher captures committed events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.CanonicalEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, evts ...events.CanonicalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type fixture struct {
	svc      *Service
	repo     *InMemoryRepository
	pub      *recordingPublisher
	settings *settings.MemoryStore
}

func newFixture(t *testing.T, booking *settings.BookingSettings) *fixture {
	t.Helper()
	pub := &recordingPublisher{}
	repo := NewInMemoryRepository(pub, logging.Discard())
	store := settings.NewMemoryStore()
	if booking != nil {
		require.NoError(t, store.SaveBookingSettings(context.Background(), booking))
	}
	cat := catalog.NewMemoryCatalog(catalog.Service{
		ID:       "svc-cut",
		Name:     "Haircut",
		Price:    400,
		Duration: 60,
		Active:   true,
		AddOns: []catalog.AddOn{
			{Name: "Treatment", Price: 100, Duration: 30},
		},
	})
	svc := NewService(repo, NewChecker(repo, store), cat, logging.Discard(),
		WithClock(func() time.Time { return fixedNow }))
	return &fixture{svc: svc, repo: repo, pub: pub, settings: store}
}

func bookingRequest(date, timeLabel string) CreateRequest {
	return CreateRequest{
		Date:      date,
		Time:      timeLabel,
		ServiceID: "svc-cut",
		Customer:  CustomerInfo{Name: "Suda", Phone: "081-234-5678"},
	}
}

var adminActor = Actor{ID: "admin-1", Role: RoleAdmin}

// seed inserts an appointment directly in the given status.
func (f *fixture) seed(t *testing.T, status Status, mutate ...func(*Appointment)) *Appointment {
	t.Helper()
	appt, err := f.svc.Create(context.Background(), bookingRequest("2025-06-01", "14:00"), adminActor)
	require.NoError(t, err)
	if status != StatusAwaitingConfirmation || len(mutate) > 0 {
		updated, err := f.repo.Update(context.Background(), appt.ID, func(a *Appointment) ([]events.CanonicalEvent, error) {
			a.Status = status
			for _, m := range mutate {
				m(a)
			}
			return nil, nil
		})
		require.NoError(t, err)
		appt = updated
	}
	f.pub.reset()
	return appt
}
