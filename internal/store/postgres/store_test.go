package postgres

import (
	"context"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/codewandler/shopassist-go/shop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemUpdate(t *testing.T) {
	name := "Oat Milk"
	qty := 3

	_, _, ok := itemUpdate(1, 2, 3, nil, nil)
	require.False(t, ok)

	q, args, ok := itemUpdate(1, 2, 3, &name, nil)
	require.True(t, ok)
	assert.Contains(t, q, "SET product_name = $1 WHERE order_id = $2 AND item_id = $3")
	assert.Contains(t, q, "orders.customer_id = $4")
	assert.Equal(t, []any{"Oat Milk", int64(2), int64(3), int64(1)}, args)

	q, args, ok = itemUpdate(1, 2, 3, &name, &qty)
	require.True(t, ok)
	assert.Contains(t, q, "SET product_name = $1, quantity = $2 WHERE order_id = $3 AND item_id = $4")
	assert.Contains(t, q, "orders.customer_id = $5")
	assert.Equal(t, []any{"Oat Milk", 3, int64(2), int64(3), int64(1)}, args)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	data, err := fs.ReadFile(migrations, "migrations/"+entries[0].Name())
	require.NoError(t, err)
	require.Contains(t, string(data), "-- +goose Up")
}

// TestStore_Postgres runs against a scratch database named by
// SHOPASSIST_TEST_DATABASE_URL.
func TestStore_Postgres(t *testing.T) {
	url := os.Getenv("SHOPASSIST_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SHOPASSIST_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := Open(ctx, url, nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))

	var customerID, orderID int64
	require.NoError(t, s.pool.QueryRow(ctx,
		`INSERT INTO customers (name, email) VALUES ('Test', 't@example.com') RETURNING customer_id`,
	).Scan(&customerID))
	require.NoError(t, s.pool.QueryRow(ctx,
		`INSERT INTO orders (customer_id) VALUES ($1) RETURNING order_id`, customerID,
	).Scan(&orderID))

	c, err := s.Customer(ctx, customerID)
	require.NoError(t, err)
	require.Equal(t, "Test", c.Name)

	require.NoError(t, s.AddItem(ctx, orderID, "Milk", 2, 1.25))
	items, err := s.OrderItems(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.InDelta(t, 1.25, items[0].Price, 0.001)

	qty := 5
	require.ErrorIs(t, s.UpdateItem(ctx, customerID+1000, orderID, items[0].ID, nil, &qty), shop.ErrNotFound)
	require.NoError(t, s.UpdateItem(ctx, customerID, orderID, items[0].ID, nil, &qty))

	require.ErrorIs(t, s.UpdateCustomerField(ctx, customerID, "address", "x"), shop.ErrInvalidField)
	require.NoError(t, s.UpdateCustomerField(ctx, customerID, "phone", "555"))

	require.ErrorIs(t, s.CancelOrder(ctx, customerID+1000, orderID), shop.ErrNotFound)
	require.NoError(t, s.CancelOrder(ctx, customerID, orderID))
	d, err := s.OrderDetails(ctx, orderID, customerID)
	require.NoError(t, err)
	require.Equal(t, shop.StatusCancelled, d.Status)
}
