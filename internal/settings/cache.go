package settings

import (
	"context"
	"sync"
	"time"
)

type cachedEntry[T any] struct {
	mu      sync.Mutex
	value   *T
	fetched time.Time
	valid   bool
}

func (c *cachedEntry[T]) get(ctx context.Context, ttl time.Duration, now func() time.Time, load func(context.Context) (*T, error)) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid && now().Sub(c.fetched) < ttl {
		return c.value, nil
	}
	v, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.value = v
	c.fetched = now()
	c.valid = true
	return v, nil
}

func (c *cachedEntry[T]) reset() {
	c.mu.Lock()
	c.valid = false
	c.value = nil
	c.mu.Unlock()
}

// CachedProvider memoizes another Provider for a fixed TTL. Writers call
// Invalidate after saving so admins see their change immediately.
type CachedProvider struct {
	next Provider
	ttl  time.Duration
	now  func() time.Time

	booking       cachedEntry[BookingSettings]
	notifications cachedEntry[NotificationSettings]
	points        cachedEntry[PointSettings]
	payment       cachedEntry[PaymentSettings]
}

func NewCachedProvider(next Provider, ttl time.Duration) *CachedProvider {
	if next == nil {
		panic("settings: provider required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedProvider{next: next, ttl: ttl, now: time.Now}
}

func (c *CachedProvider) BookingSettings(ctx context.Context) (*BookingSettings, error) {
	return c.booking.get(ctx, c.ttl, c.now, c.next.BookingSettings)
}

func (c *CachedProvider) NotificationSettings(ctx context.Context) (*NotificationSettings, error) {
	return c.notifications.get(ctx, c.ttl, c.now, c.next.NotificationSettings)
}

func (c *CachedProvider) PointSettings(ctx context.Context) (*PointSettings, error) {
	return c.points.get(ctx, c.ttl, c.now, c.next.PointSettings)
}

func (c *CachedProvider) PaymentSettings(ctx context.Context) (*PaymentSettings, error) {
	return c.payment.get(ctx, c.ttl, c.now, c.next.PaymentSettings)
}

// Invalidate drops every cached document.
func (c *CachedProvider) Invalidate() {
	c.booking.reset()
	c.notifications.reset()
	c.points.reset()
	c.payment.reset()
}
