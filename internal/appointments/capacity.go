package appointments

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/salon-booking-platform/internal/settings"
)

// DefaultSlotCapacity applies when no booking settings exist at all.
const DefaultSlotCapacity = 50

// CapacityResult is the outcome of a slot check.
type CapacityResult struct {
	OK      bool `json:"ok"`
	Max     int  `json:"max"`
	Current int  `json:"current"`
}

// SlotAvailability describes one bookable time on a date.
type SlotAvailability struct {
	Time      string `json:"time"`
	Max       int    `json:"max"`
	Current   int    `json:"current"`
	Available bool   `json:"available"`
}

type bookingSettingsProvider interface {
	BookingSettings(ctx context.Context) (*settings.BookingSettings, error)
}

type slotCounter interface {
	CountActive(ctx context.Context, date, timeLabel, excludeID string) (int, error)
	CountActiveByDate(ctx context.Context, date string) (map[string]int, error)
}

// Checker answers capacity questions without writing anything.
type Checker struct {
	counter  slotCounter
	settings bookingSettingsProvider
}

func NewChecker(counter slotCounter, provider bookingSettingsProvider) *Checker {
	if counter == nil {
		panic("appointments: slot counter required")
	}
	return &Checker{counter: counter, settings: provider}
}

func (c *Checker) bookingSettings(ctx context.Context) (*settings.BookingSettings, error) {
	if c.settings == nil {
		return nil, nil
	}
	bs, err := c.settings.BookingSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: load booking settings: %w", err)
	}
	return bs, nil
}

// maxFor resolves capacity: per-time override, then the global default, then
// DefaultSlotCapacity.
func maxFor(bs *settings.BookingSettings, timeLabel string) int {
	if bs == nil {
		return DefaultSlotCapacity
	}
	if n, ok := bs.CapacityOverride(timeLabel); ok {
		if n < 0 {
			return 0
		}
		return n
	}
	if bs.TotalCapacityDefault > 0 {
		return bs.TotalCapacityDefault
	}
	return DefaultSlotCapacity
}

// MaxCapacity returns the configured capacity of a slot.
func (c *Checker) MaxCapacity(ctx context.Context, timeLabel string) (int, error) {
	bs, err := c.bookingSettings(ctx)
	if err != nil {
		return 0, err
	}
	return maxFor(bs, timeLabel), nil
}

// CheckCapacity counts active appointments in the slot, ignoring excludeID.
func (c *Checker) CheckCapacity(ctx context.Context, date, timeLabel, excludeID string) (CapacityResult, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.check_capacity")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.slot.date", date),
		attribute.String("salon.slot.time", timeLabel),
	)

	if date == "" {
		return CapacityResult{}, missing("date")
	}
	if timeLabel == "" {
		return CapacityResult{}, missing("time")
	}
	max, err := c.MaxCapacity(ctx, timeLabel)
	if err != nil {
		span.RecordError(err)
		return CapacityResult{}, err
	}
	current, err := c.counter.CountActive(ctx, date, timeLabel, excludeID)
	if err != nil {
		span.RecordError(err)
		return CapacityResult{}, err
	}
	return CapacityResult{OK: current < max, Max: max, Current: current}, nil
}

// ValidateSlot checks format, holidays and opening hours.
func (c *Checker) ValidateSlot(ctx context.Context, date, timeLabel string) error {
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return &ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}
	clock, err := time.Parse(TimeLayout, timeLabel)
	if err != nil {
		return &ValidationError{Field: "time", Reason: "expected HH:MM"}
	}
	bs, err := c.bookingSettings(ctx)
	if err != nil {
		return err
	}
	if bs.IsHoliday(date) {
		return &ValidationError{Field: "date", Reason: "salon is closed on this holiday"}
	}
	sched, ok := bs.ScheduleFor(day.Weekday())
	if !ok {
		return nil
	}
	if sched.Closed {
		return &ValidationError{Field: "date", Reason: "salon is closed on " + day.Weekday().String()}
	}
	if open, err := time.Parse(TimeLayout, sched.Open); err == nil && clock.Before(open) {
		return &ValidationError{Field: "time", Reason: "before opening time"}
	}
	if closeAt, err := time.Parse(TimeLayout, sched.Close); err == nil && !clock.Before(closeAt) {
		return &ValidationError{Field: "time", Reason: "after closing time"}
	}
	return nil
}

// ListSlots returns availability for every configured time on date. Times
// come from the per-slot queues, or hourly across opening hours when none are
// configured.
func (c *Checker) ListSlots(ctx context.Context, date string) ([]SlotAvailability, error) {
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return nil, &ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}
	bs, err := c.bookingSettings(ctx)
	if err != nil {
		return nil, err
	}
	if bs == nil || bs.IsHoliday(date) {
		return []SlotAvailability{}, nil
	}
	sched, hasSched := bs.ScheduleFor(day.Weekday())
	if hasSched && sched.Closed {
		return []SlotAvailability{}, nil
	}

	times := slotTimes(bs, sched, hasSched)
	counts, err := c.counter.CountActiveByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	out := make([]SlotAvailability, 0, len(times))
	for _, t := range times {
		if c.ValidateSlot(ctx, date, t) != nil {
			continue
		}
		max := maxFor(bs, t)
		cur := counts[t]
		out = append(out, SlotAvailability{Time: t, Max: max, Current: cur, Available: cur < max})
	}
	return out, nil
}

func slotTimes(bs *settings.BookingSettings, sched settings.DaySchedule, hasSched bool) []string {
	seen := make(map[string]struct{})
	var times []string
	for _, q := range bs.TimeQueues {
		if _, err := time.Parse(TimeLayout, q.Time); err != nil {
			continue
		}
		if _, dup := seen[q.Time]; dup {
			continue
		}
		seen[q.Time] = struct{}{}
		times = append(times, q.Time)
	}
	if len(times) == 0 && hasSched {
		open, errOpen := time.Parse(TimeLayout, sched.Open)
		closeAt, errClose := time.Parse(TimeLayout, sched.Close)
		if errOpen == nil && errClose == nil {
			for t := open; t.Before(closeAt); t = t.Add(time.Hour) {
				times = append(times, t.Format(TimeLayout))
			}
		}
	}
	sort.Strings(times)
	return times
}
