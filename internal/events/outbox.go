package events

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, env Envelope) error
}

type outboxExec interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore reads and acknowledges events written by AppendCanonicalEvent.
type OutboxStore struct {
	pool        outboxExec
	maxAttempts int
	lease       time.Duration
}

func NewOutboxStore(pool outboxExec) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{pool: pool, maxAttempts: 10, lease: 2 * time.Minute}
}

// WithLease sets how long a fetched row stays hidden from other deliverers.
func (s *OutboxStore) WithLease(d time.Duration) *OutboxStore {
	if d > 0 {
		s.lease = d
	}
	return s
}

// WithMaxAttempts bounds redelivery of a failing event.
func (s *OutboxStore) WithMaxAttempts(n int) *OutboxStore {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

// FetchPending leases up to limit undelivered rows. Rows locked by a
// concurrent fetch are skipped and a leased row is not handed out again until
// its lease runs out, so the API and the worker never deliver the same row
// at once.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]Envelope, error) {
	query := `
		WITH due AS (
			SELECT id
			FROM outbox
			WHERE delivered_at IS NULL AND attempts < $2
				AND (locked_until IS NULL OR locked_until < now())
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox o
		SET locked_until = now() + make_interval(secs => $3)
		FROM due
		WHERE o.id = due.id
		RETURNING o.id, o.payload, o.created_at
	`
	rows, err := s.pool.Query(ctx, query, limit, s.maxAttempts, s.lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	type leased struct {
		env       Envelope
		createdAt time.Time
	}
	var batch []leased
	for rows.Next() {
		var (
			id        uuid.UUID
			payload   []byte
			createdAt time.Time
		)
		if err := rows.Scan(&id, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("events: decode outbox %s: %w", id, err)
		}
		env.EventID = id
		batch = append(batch, leased{env: env, createdAt: createdAt})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(batch, func(a, b leased) int { return a.createdAt.Compare(b.createdAt) })
	entries := make([]Envelope, 0, len(batch))
	for _, l := range batch {
		entries = append(entries, l.env)
	}
	return entries, nil
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now(), locked_until = NULL
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkFailed bumps the attempt counter, records the last error and drops the
// lease so the next poll retries the row.
func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	query := `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $2, locked_until = NULL
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, id, msg); err != nil {
		return fmt.Errorf("events: mark failed: %w", err)
	}
	return nil
}

type pendingStore interface {
	FetchPending(ctx context.Context, limit int32) ([]Envelope, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
}

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	store     pendingStore
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(store pendingStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch and returns how many events were acknowledged.
func (d *Deliverer) Drain(ctx context.Context) int {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}
	delivered := 0
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Error("outbox delivery failed", "error", err, "event_id", entry.EventID, "type", entry.EventType)
			if markErr := d.store.MarkFailed(ctx, entry.EventID, err); markErr != nil {
				d.logger.Error("failed to record outbox failure", "error", markErr, "event_id", entry.EventID)
			}
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, entry.EventID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.EventID)
		} else if ok {
			delivered++
			d.logger.Debug("outbox delivered", "event_id", entry.EventID, "type", entry.EventType)
		}
	}
	return delivered
}
