package catalog

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCatalog(t *testing.T) {
	c := NewMemoryCatalog(
		Service{ID: "cut", Name: "Haircut", Price: 300, Duration: 45, Active: true,
			AddOns: []AddOn{{Name: "Wash", Price: 100, Duration: 15}}},
		Service{ID: "old", Name: "Retired", Active: false},
	)
	ctx := context.Background()

	svc, err := c.GetService(ctx, "cut")
	require.NoError(t, err)
	assert.Equal(t, int64(300), svc.Price)
	addOn, ok := svc.FindAddOn(" wash ")
	assert.True(t, ok)
	assert.Equal(t, 15, addOn.Duration)

	_, err = c.GetService(ctx, "old")
	assert.ErrorIs(t, err, ErrServiceNotFound)

	list, err := c.ListServices(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPostgresCatalogGetService(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewPostgresCatalog(mock)
	rows := pgxmock.NewRows([]string{"id", "name", "price", "duration_minutes", "image_url", "add_ons", "active"}).
		AddRow("color", "Hair color", int64(1200), 90, "", []byte(`[{"name":"Treatment","price":300,"duration":20}]`), true)
	mock.ExpectQuery("SELECT id, name, price").WithArgs("color").WillReturnRows(rows)

	svc, err := c.GetService(context.Background(), "color")
	require.NoError(t, err)
	assert.Equal(t, "Hair color", svc.Name)
	require.Len(t, svc.AddOns, 1)
	assert.Equal(t, int64(300), svc.AddOns[0].Price)

	mock.ExpectQuery("SELECT id, name, price").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	_, err = c.GetService(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrServiceNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
