package customers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps customers and legacy phone balances in postgres.
type PostgresStore struct {
	pool pgxPool
}

func NewPostgresStore(pool pgxPool) *PostgresStore {
	if pool == nil {
		panic("customers: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("customers: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("customers: commit: %w", err)
	}
	return nil
}

const customerColumns = `id, full_name, phone, email, address, line_user_id, points, status, merged_into, merged_from, created_at, updated_at`

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]Customer, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + customerColumns + `
		FROM customers
		ORDER BY created_at
		LIMIT $1 OFFSET $2`
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("customers: list: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("customers: scan: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx interface {
		Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
		QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	}
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	var (
		c          Customer
		status     string
		mergedFrom []byte
	)
	if err := row.Scan(&c.ID, &c.FullName, &c.Phone, &c.Email, &c.Address, &c.LineUserID,
		&c.Points, &status, &c.MergedInto, &mergedFrom, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = Status(status)
	if len(mergedFrom) > 0 {
		if err := json.Unmarshal(mergedFrom, &c.MergedFrom); err != nil {
			return nil, fmt.Errorf("decode merged_from: %w", err)
		}
	}
	return &c, nil
}

func (t *pgTx) GetByID(ctx context.Context, id string) (*Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1 FOR UPDATE`
	c, err := scanCustomer(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("customers: get by id: %w", err)
	}
	return c, nil
}

func (t *pgTx) GetByPhone(ctx context.Context, phone string) (*Customer, error) {
	query := `SELECT ` + customerColumns + `
		FROM customers
		WHERE phone = $1 AND status = 'active'
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE`
	c, err := scanCustomer(t.tx.QueryRow(ctx, query, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("customers: get by phone: %w", err)
	}
	return c, nil
}

func (t *pgTx) GetPhonePoints(ctx context.Context, phone string) (*PhonePoints, error) {
	query := `
		SELECT phone, points, status, merged_into, merged_at
		FROM phone_points
		WHERE phone = $1
		FOR UPDATE
	`
	var (
		p      PhonePoints
		status string
	)
	if err := t.tx.QueryRow(ctx, query, phone).Scan(&p.Phone, &p.Points, &status, &p.MergedInto, &p.MergedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("customers: get phone points: %w", err)
	}
	p.Status = Status(status)
	return &p, nil
}

func (t *pgTx) Insert(ctx context.Context, c *Customer) error {
	mergedFrom, err := json.Marshal(c.MergedFrom)
	if err != nil {
		return fmt.Errorf("customers: marshal merged_from: %w", err)
	}
	query := `
		INSERT INTO customers (` + customerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := t.tx.Exec(ctx, query, c.ID, c.FullName, c.Phone, c.Email, c.Address, c.LineUserID,
		c.Points, string(c.Status), c.MergedInto, mergedFrom, c.CreatedAt, c.UpdatedAt); err != nil {
		return fmt.Errorf("customers: insert: %w", err)
	}
	return nil
}

func (t *pgTx) Update(ctx context.Context, c *Customer) error {
	mergedFrom, err := json.Marshal(c.MergedFrom)
	if err != nil {
		return fmt.Errorf("customers: marshal merged_from: %w", err)
	}
	query := `
		UPDATE customers
		SET full_name = $2, phone = $3, email = $4, address = $5, line_user_id = $6,
			points = $7, status = $8, merged_into = $9, merged_from = $10, updated_at = $11
		WHERE id = $1
	`
	ct, err := t.tx.Exec(ctx, query, c.ID, c.FullName, c.Phone, c.Email, c.Address, c.LineUserID,
		c.Points, string(c.Status), c.MergedInto, mergedFrom, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("customers: update: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) UpdatePhonePoints(ctx context.Context, p *PhonePoints) error {
	var mergedAt *time.Time
	if p.MergedAt != nil {
		ts := p.MergedAt.UTC()
		mergedAt = &ts
	}
	query := `
		UPDATE phone_points
		SET points = $2, status = $3, merged_into = $4, merged_at = $5
		WHERE phone = $1
	`
	ct, err := t.tx.Exec(ctx, query, p.Phone, p.Points, string(p.Status), p.MergedInto, mergedAt)
	if err != nil {
		return fmt.Errorf("customers: update phone points: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) RecordAward(ctx context.Context, key, customerID string, points int64) (bool, error) {
	query := `
		INSERT INTO point_awards (award_key, customer_id, points)
		VALUES ($1, $2, $3)
		ON CONFLICT (award_key) DO NOTHING
	`
	ct, err := t.tx.Exec(ctx, query, key, customerID, points)
	if err != nil {
		return false, fmt.Errorf("customers: record award: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
