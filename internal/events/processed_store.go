package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ClaimState is the outcome of claiming a consumer/event pair.
type ClaimState int

const (
	// ClaimAcquired means the caller owns the pair and must Complete or Release it.
	ClaimAcquired ClaimState = iota
	// ClaimDone means the consumer already handled the event.
	ClaimDone
	// ClaimBusy means another delivery holds an unexpired claim.
	ClaimBusy
)

// ErrClaimBusy is returned for a subscriber whose event is being handled by
// another delivery. The outbox retries it later.
var ErrClaimBusy = errors.New("events: delivery in progress elsewhere")

const defaultClaimLease = 5 * time.Minute

// ProcessedTracker hands out exclusive claims on consumer/event pairs. A claim
// that is neither completed nor released expires after its lease.
type ProcessedTracker interface {
	Claim(ctx context.Context, consumer, eventID string) (ClaimState, error)
	Complete(ctx context.Context, consumer, eventID string) error
	Release(ctx context.Context, consumer, eventID string) error
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore records consumer/event pairs in postgres.
type ProcessedStore struct {
	pool  rowQuerier
	lease time.Duration
}

func NewProcessedStore(pool rowQuerier) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{pool: pool, lease: defaultClaimLease}
}

// WithClaimLease sets how long an unfinished claim blocks other deliveries.
func (s *ProcessedStore) WithClaimLease(d time.Duration) *ProcessedStore {
	if d > 0 {
		s.lease = d
	}
	return s
}

// Claim inserts the pair, or takes over a claim whose lease ran out. The
// primary key serializes concurrent claimers.
func (s *ProcessedStore) Claim(ctx context.Context, consumer, eventID string) (ClaimState, error) {
	query := `
		INSERT INTO processed_events (consumer, event_id, processed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (consumer, event_id) DO UPDATE SET processed_at = now()
		WHERE processed_events.completed_at IS NULL
			AND processed_events.processed_at < now() - make_interval(secs => $3)
	`
	ct, err := s.pool.Exec(ctx, query, consumer, eventID, s.lease.Seconds())
	if err != nil {
		return ClaimBusy, fmt.Errorf("events: claim: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return ClaimAcquired, nil
	}

	var done bool
	err = s.pool.QueryRow(ctx,
		`SELECT completed_at IS NOT NULL FROM processed_events WHERE consumer = $1 AND event_id = $2`,
		consumer, eventID).Scan(&done)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ClaimBusy, nil
	case err != nil:
		return ClaimBusy, fmt.Errorf("events: read claim: %w", err)
	case done:
		return ClaimDone, nil
	}
	return ClaimBusy, nil
}

// Complete marks the claimed pair as handled for good.
func (s *ProcessedStore) Complete(ctx context.Context, consumer, eventID string) error {
	query := `UPDATE processed_events SET completed_at = now() WHERE consumer = $1 AND event_id = $2`
	if _, err := s.pool.Exec(ctx, query, consumer, eventID); err != nil {
		return fmt.Errorf("events: complete claim: %w", err)
	}
	return nil
}

// Release drops an unfinished claim so the next delivery can retry.
func (s *ProcessedStore) Release(ctx context.Context, consumer, eventID string) error {
	query := `DELETE FROM processed_events WHERE consumer = $1 AND event_id = $2 AND completed_at IS NULL`
	if _, err := s.pool.Exec(ctx, query, consumer, eventID); err != nil {
		return fmt.Errorf("events: release claim: %w", err)
	}
	return nil
}

type memoryClaim struct {
	claimedAt time.Time
	done      bool
}

// MemoryProcessedStore is the in-process tracker used with the memory store.
type MemoryProcessedStore struct {
	mu     sync.Mutex
	claims map[string]memoryClaim
	lease  time.Duration
	now    func() time.Time
}

func NewMemoryProcessedStore() *MemoryProcessedStore {
	return &MemoryProcessedStore{
		claims: make(map[string]memoryClaim),
		lease:  defaultClaimLease,
		now:    time.Now,
	}
}

func (s *MemoryProcessedStore) Claim(_ context.Context, consumer, eventID string) (ClaimState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := consumer + "|" + eventID
	now := s.now()
	if c, ok := s.claims[key]; ok {
		if c.done {
			return ClaimDone, nil
		}
		if now.Sub(c.claimedAt) < s.lease {
			return ClaimBusy, nil
		}
	}
	s.claims[key] = memoryClaim{claimedAt: now}
	return ClaimAcquired, nil
}

func (s *MemoryProcessedStore) Complete(_ context.Context, consumer, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := consumer + "|" + eventID
	c := s.claims[key]
	c.done = true
	s.claims[key] = c
	return nil
}

func (s *MemoryProcessedStore) Release(_ context.Context, consumer, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := consumer + "|" + eventID
	if c, ok := s.claims[key]; ok && !c.done {
		delete(s.claims, key)
	}
	return nil
}
