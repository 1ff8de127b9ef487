package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/salon-booking-platform/internal/events"
)

type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores each appointment as a JSON document plus the
// columns needed for slot counting and listing.
type PostgresRepository struct {
	pool pgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool pgxPool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func activeStatusStrings() []string {
	out := make([]string, len(ActiveStatuses))
	for i, s := range ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

// lockSlot serializes writers of one (date, time) bucket until the
// transaction ends.
func lockSlot(ctx context.Context, tx pgx.Tx, date, timeLabel string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, SlotKey(date, timeLabel)); err != nil {
		return fmt.Errorf("appointments: lock slot: %w", err)
	}
	return nil
}

func countActive(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, date, timeLabel, excludeID string) (int, error) {
	query := `
		SELECT count(*)
		FROM appointments
		WHERE slot_date = $1 AND slot_time = $2 AND status = ANY($3) AND id <> $4
	`
	var n int
	if err := q.QueryRow(ctx, query, date, timeLabel, activeStatusStrings(), excludeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("appointments: count slot: %w", err)
	}
	return n, nil
}

func appendEvents(ctx context.Context, tx pgx.Tx, id string, evts []events.CanonicalEvent) error {
	for _, evt := range evts {
		if _, err := events.AppendCanonicalEvent(ctx, tx, AggregateID(id), "", evt); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) CreateIfAvailable(ctx context.Context, a *Appointment, max int, evts EventsFunc) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockSlot(ctx, tx, a.Date, a.Time); err != nil {
		return err
	}
	current, err := countActive(ctx, tx, a.Date, a.Time, a.ID)
	if err != nil {
		return err
	}
	if current >= max {
		return &CapacityExceededError{Date: a.Date, Time: a.Time, Max: max, Current: current}
	}

	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("appointments: marshal: %w", err)
	}
	query := `
		INSERT INTO appointments (id, slot_date, slot_time, status, staff_id, customer_id, line_user_id, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := tx.Exec(ctx, query,
		a.ID,
		a.Date,
		a.Time,
		string(a.Status),
		a.AppointmentInfo.StaffID,
		a.CustomerInfo.CustomerID,
		a.CustomerInfo.LineUserID,
		doc,
		a.CreatedAt,
		a.UpdatedAt,
	); err != nil {
		return fmt.Errorf("appointments: insert failed: %w", err)
	}
	if evts != nil {
		if err := appendEvents(ctx, tx, a.ID, evts(a.Clone())); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit: %w", err)
	}
	return nil
}

func decodeDocument(raw []byte) (*Appointment, error) {
	var a Appointment
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("appointments: decode document: %w", err)
	}
	return &a, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	var raw []byte
	if err := r.pool.QueryRow(ctx, `SELECT document FROM appointments WHERE id = $1`, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return decodeDocument(raw)
}

func (r *PostgresRepository) lockAppointment(ctx context.Context, tx pgx.Tx, id string) (*Appointment, error) {
	var raw []byte
	if err := tx.QueryRow(ctx, `SELECT document FROM appointments WHERE id = $1 FOR UPDATE`, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select for update: %w", err)
	}
	return decodeDocument(raw)
}

func (r *PostgresRepository) save(ctx context.Context, tx pgx.Tx, a *Appointment) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("appointments: marshal: %w", err)
	}
	query := `
		UPDATE appointments
		SET slot_date = $2, slot_time = $3, status = $4, staff_id = $5, customer_id = $6,
			line_user_id = $7, document = $8, updated_at = $9
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query,
		a.ID,
		a.Date,
		a.Time,
		string(a.Status),
		a.AppointmentInfo.StaffID,
		a.CustomerInfo.CustomerID,
		a.CustomerInfo.LineUserID,
		doc,
		a.UpdatedAt,
	); err != nil {
		return fmt.Errorf("appointments: update failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, fn MutateFunc) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := r.lockAppointment(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	original := a.Clone()
	pending, err := fn(a)
	if err != nil {
		if errors.Is(err, ErrUnchanged) {
			return original, nil
		}
		return nil, err
	}
	if err := r.save(ctx, tx, a); err != nil {
		return nil, err
	}
	if err := appendEvents(ctx, tx, id, pending); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appointments: commit: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Reschedule(ctx context.Context, id, date, timeLabel string, max int, fn MutateFunc) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockSlot(ctx, tx, date, timeLabel); err != nil {
		return nil, err
	}
	a, err := r.lockAppointment(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	original := a.Clone()
	pending, err := fn(a)
	if err != nil {
		if errors.Is(err, ErrUnchanged) {
			return original, nil
		}
		return nil, err
	}
	current, err := countActive(ctx, tx, date, timeLabel, id)
	if err != nil {
		return nil, err
	}
	if current >= max {
		return nil, &CapacityExceededError{Date: date, Time: timeLabel, Max: max, Current: current}
	}
	if err := r.save(ctx, tx, a); err != nil {
		return nil, err
	}
	if err := appendEvents(ctx, tx, id, pending); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appointments: commit: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("appointments: delete failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.DateFrom != "" {
		add("slot_date >= $%d", filter.DateFrom)
	}
	if filter.DateTo != "" {
		add("slot_date <= $%d", filter.DateTo)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("(customer_id = $%d OR line_user_id = $%d)", len(args), len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	query := `SELECT document FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY slot_date, slot_time, created_at LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		a, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountActive(ctx context.Context, date, timeLabel, excludeID string) (int, error) {
	return countActive(ctx, r.pool, date, timeLabel, excludeID)
}

func (r *PostgresRepository) CountActiveByDate(ctx context.Context, date string) (map[string]int, error) {
	query := `
		SELECT slot_time, count(*)
		FROM appointments
		WHERE slot_date = $1 AND status = ANY($2)
		GROUP BY slot_time
	`
	rows, err := r.pool.Query(ctx, query, date, activeStatusStrings())
	if err != nil {
		return nil, fmt.Errorf("appointments: count by date: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			slot string
			n    int
		)
		if err := rows.Scan(&slot, &n); err != nil {
			return nil, fmt.Errorf("appointments: scan count: %w", err)
		}
		out[slot] = n
	}
	return out, rows.Err()
}
