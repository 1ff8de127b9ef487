package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis keys, one JSON document each.
const (
	KeyBooking       = "settings:booking"
	KeyNotifications = "settings:notifications"
	KeyPoints        = "settings:points"
	KeyPayment       = "settings:payment"
)

// Provider supplies the current configuration. BookingSettings returns nil
// with no error when nothing has been configured.
type Provider interface {
	BookingSettings(ctx context.Context) (*BookingSettings, error)
	NotificationSettings(ctx context.Context) (*NotificationSettings, error)
	PointSettings(ctx context.Context) (*PointSettings, error)
	PaymentSettings(ctx context.Context) (*PaymentSettings, error)
}

// Writer persists configuration changes.
type Writer interface {
	SaveBookingSettings(ctx context.Context, s *BookingSettings) error
	SaveNotificationSettings(ctx context.Context, s *NotificationSettings) error
	SavePointSettings(ctx context.Context, s *PointSettings) error
	SavePaymentSettings(ctx context.Context, s *PaymentSettings) error
}

var (
	errNotConfigured = errors.New("settings: not configured")
	errBadBody       = errors.New("settings: invalid body")
)

// RedisStore keeps each settings document under its own key.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("settings: redis client required")
	}
	return &RedisStore{redis: client}
}

func (s *RedisStore) load(ctx context.Context, key string, dst any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return errNotConfigured
	}
	if err != nil {
		return fmt.Errorf("settings: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("settings: unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("settings: marshal %s: %w", key, err)
	}
	if err := s.redis.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) BookingSettings(ctx context.Context) (*BookingSettings, error) {
	var out BookingSettings
	if err := s.load(ctx, KeyBooking, &out); err != nil {
		if errors.Is(err, errNotConfigured) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *RedisStore) NotificationSettings(ctx context.Context) (*NotificationSettings, error) {
	var out NotificationSettings
	if err := s.load(ctx, KeyNotifications, &out); err != nil {
		if errors.Is(err, errNotConfigured) {
			return DefaultNotificationSettings(), nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *RedisStore) PointSettings(ctx context.Context) (*PointSettings, error) {
	var out PointSettings
	if err := s.load(ctx, KeyPoints, &out); err != nil {
		if errors.Is(err, errNotConfigured) {
			return DefaultPointSettings(), nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *RedisStore) PaymentSettings(ctx context.Context) (*PaymentSettings, error) {
	var out PaymentSettings
	if err := s.load(ctx, KeyPayment, &out); err != nil {
		if errors.Is(err, errNotConfigured) {
			return DefaultPaymentSettings(), nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *RedisStore) SaveBookingSettings(ctx context.Context, v *BookingSettings) error {
	return s.save(ctx, KeyBooking, v)
}

func (s *RedisStore) SaveNotificationSettings(ctx context.Context, v *NotificationSettings) error {
	return s.save(ctx, KeyNotifications, v)
}

func (s *RedisStore) SavePointSettings(ctx context.Context, v *PointSettings) error {
	return s.save(ctx, KeyPoints, v)
}

func (s *RedisStore) SavePaymentSettings(ctx context.Context, v *PaymentSettings) error {
	return s.save(ctx, KeyPayment, v)
}

// MemoryStore is a process-local Provider and Writer.
type MemoryStore struct {
	mu            sync.RWMutex
	booking       *BookingSettings
	notifications *NotificationSettings
	points        *PointSettings
	payment       *PaymentSettings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifications: DefaultNotificationSettings(),
		points:        DefaultPointSettings(),
		payment:       DefaultPaymentSettings(),
	}
}

func (m *MemoryStore) BookingSettings(context.Context) (*BookingSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.booking == nil {
		return nil, nil
	}
	cp := *m.booking
	return &cp, nil
}

func (m *MemoryStore) NotificationSettings(context.Context) (*NotificationSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.notifications
	return &cp, nil
}

func (m *MemoryStore) PointSettings(context.Context) (*PointSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.points
	return &cp, nil
}

func (m *MemoryStore) PaymentSettings(context.Context) (*PaymentSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.payment
	return &cp, nil
}

func (m *MemoryStore) SaveBookingSettings(_ context.Context, v *BookingSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.booking = v
	return nil
}

func (m *MemoryStore) SaveNotificationSettings(_ context.Context, v *NotificationSettings) error {
	if v == nil {
		return errors.New("settings: notification settings required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = v
	return nil
}

func (m *MemoryStore) SavePointSettings(_ context.Context, v *PointSettings) error {
	if v == nil {
		return errors.New("settings: point settings required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = v
	return nil
}

func (m *MemoryStore) SavePaymentSettings(_ context.Context, v *PaymentSettings) error {
	if v == nil {
		return errors.New("settings: payment settings required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payment = v
	return nil
}
