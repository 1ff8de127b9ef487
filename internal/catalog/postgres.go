package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCatalog reads services from the services table.
type PostgresCatalog struct {
	pool querier
}

func NewPostgresCatalog(pool querier) *PostgresCatalog {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresCatalog{pool: pool}
}

func (c *PostgresCatalog) GetService(ctx context.Context, id string) (*Service, error) {
	query := `
		SELECT id, name, price, duration_minutes, image_url, add_ons, active
		FROM services
		WHERE id = $1 AND active
	`
	svc, err := scanService(c.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("catalog: get service: %w", err)
	}
	return svc, nil
}

func (c *PostgresCatalog) ListServices(ctx context.Context) ([]Service, error) {
	query := `
		SELECT id, name, price, duration_minutes, image_url, add_ons, active
		FROM services
		WHERE active
		ORDER BY name
	`
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		out = append(out, *svc)
	}
	return out, rows.Err()
}

func scanService(row pgx.Row) (*Service, error) {
	var (
		svc    Service
		addOns []byte
	)
	if err := row.Scan(&svc.ID, &svc.Name, &svc.Price, &svc.Duration, &svc.ImageURL, &addOns, &svc.Active); err != nil {
		return nil, err
	}
	if len(addOns) > 0 {
		if err := json.Unmarshal(addOns, &svc.AddOns); err != nil {
			return nil, fmt.Errorf("decode add-ons: %w", err)
		}
	}
	return &svc, nil
}
