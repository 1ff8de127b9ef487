package appointments

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/wolfman30/salon-booking-platform/internal/events"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

// InMemoryRepository keeps appointments in process. One mutex spans every
// count and write, which makes capacity enforcement exact.
type InMemoryRepository struct {
	mu        sync.Mutex
	items     map[string]*Appointment
	publisher Publisher
	logger    *logging.Logger
}

// NewInMemoryRepository creates a repository that hands committed events to
// publisher. publisher may be nil.
func NewInMemoryRepository(publisher Publisher, logger *logging.Logger) *InMemoryRepository {
	if logger == nil {
		logger = logging.Default()
	}
	return &InMemoryRepository{
		items:     make(map[string]*Appointment),
		publisher: publisher,
		logger:    logger,
	}
}

func (r *InMemoryRepository) publish(ctx context.Context, id string, evts []events.CanonicalEvent) {
	if r.publisher == nil || len(evts) == 0 {
		return
	}
	if err := r.publisher.Publish(ctx, AggregateID(id), evts...); err != nil {
		r.logger.Error("appointments: publish failed", "appointment_id", id, "error", err)
	}
}

func (r *InMemoryRepository) countLocked(date, timeLabel, excludeID string) int {
	n := 0
	for id, a := range r.items {
		if id == excludeID {
			continue
		}
		if a.Date == date && a.Time == timeLabel && a.Status.IsActive() {
			n++
		}
	}
	return n
}

func (r *InMemoryRepository) CreateIfAvailable(ctx context.Context, a *Appointment, max int, evts EventsFunc) error {
	r.mu.Lock()
	if _, exists := r.items[a.ID]; exists {
		r.mu.Unlock()
		return &ValidationError{Field: "id", Reason: "already exists"}
	}
	current := r.countLocked(a.Date, a.Time, "")
	if current >= max {
		r.mu.Unlock()
		return &CapacityExceededError{Date: a.Date, Time: a.Time, Max: max, Current: current}
	}
	r.items[a.ID] = a.Clone()
	var pending []events.CanonicalEvent
	if evts != nil {
		pending = evts(a.Clone())
	}
	r.mu.Unlock()

	r.publish(ctx, a.ID, pending)
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (r *InMemoryRepository) Update(ctx context.Context, id string, fn MutateFunc) (*Appointment, error) {
	r.mu.Lock()
	stored, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	working := stored.Clone()
	pending, err := fn(working)
	if err != nil {
		r.mu.Unlock()
		if errors.Is(err, ErrUnchanged) {
			return stored.Clone(), nil
		}
		return nil, err
	}
	r.items[id] = working.Clone()
	r.mu.Unlock()

	r.publish(ctx, id, pending)
	return working, nil
}

func (r *InMemoryRepository) Reschedule(ctx context.Context, id, date, timeLabel string, max int, fn MutateFunc) (*Appointment, error) {
	r.mu.Lock()
	stored, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	working := stored.Clone()
	pending, err := fn(working)
	if err != nil {
		r.mu.Unlock()
		if errors.Is(err, ErrUnchanged) {
			return stored.Clone(), nil
		}
		return nil, err
	}
	current := r.countLocked(date, timeLabel, id)
	if current >= max {
		r.mu.Unlock()
		return nil, &CapacityExceededError{Date: date, Time: timeLabel, Max: max, Current: current}
	}
	r.items[id] = working.Clone()
	r.mu.Unlock()

	r.publish(ctx, id, pending)
	return working, nil
}

func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *InMemoryRepository) List(_ context.Context, filter ListFilter) ([]Appointment, error) {
	r.mu.Lock()
	out := make([]Appointment, 0, len(r.items))
	for _, a := range r.items {
		if matchesFilter(a, filter) {
			out = append(out, *a.Clone())
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesFilter(a *Appointment, f ListFilter) bool {
	if f.DateFrom != "" && a.Date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && a.Date > f.DateTo {
		return false
	}
	if f.CustomerID != "" && !a.OwnedBy(f.CustomerID) {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if a.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

func (r *InMemoryRepository) CountActive(_ context.Context, date, timeLabel, excludeID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked(date, timeLabel, excludeID), nil
}

func (r *InMemoryRepository) CountActiveByDate(_ context.Context, date string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, a := range r.items {
		if a.Date == date && a.Status.IsActive() {
			out[a.Time]++
		}
	}
	return out, nil
}
