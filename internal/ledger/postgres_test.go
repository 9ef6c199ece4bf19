package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgres(t *testing.T) *PostgresSource {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping postgres integration test")
	}

	ctx := context.Background()
	src, err := NewPostgresSource(ctx, dbURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	require.NoError(t, src.EnsureSchema(ctx))
	_, err = src.pool.Exec(ctx, `
		TRUNCATE TABLE sale_items, sales, products, categories CASCADE;

		INSERT INTO categories (id, name) VALUES ('c1', 'Drinks');

		INSERT INTO products (id, name, sku, category_id, price, cost, quantity) VALUES
		('p1', 'Espresso', 'ESP-1', 'c1', 2.50, 0.80, 40),
		('p2', 'Muffin',   NULL,    NULL, 3.00, NULL, 0);

		INSERT INTO sales (id, created_at, payment_method, total) VALUES
		('s1', '2024-03-10 09:15:00+00', 'Card', 8.00),
		('s2', NULL, NULL, NULL),
		('s3', '2024-03-11 10:00:00+00', 'Cash', 0);

		INSERT INTO sale_items (sale_id, product_id, product_name, quantity, price, subtotal) VALUES
		('s1', 'p1', 'Espresso', 2, 2.50, 5.00),
		('s1', 'p2', 'Muffin',   1, 3.00, 3.00),
		('s2', 'p1', 'Espresso', 1, 2.50, NULL);
	`)
	require.NoError(t, err)
	return src
}

func TestPostgresSourceProducts(t *testing.T) {
	src := setupPostgres(t)

	products, err := src.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "Drinks", products[0].Category)
	assert.Equal(t, "2.5", products[0].Price.String())
	assert.Equal(t, "", products[1].CategoryID)
	assert.True(t, products[1].Cost.IsZero())
}

func TestPostgresSourceSales(t *testing.T) {
	src := setupPostgres(t)

	snap, err := Load(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, snap.Sales, 3)

	undated := snap.Sales[0]
	assert.Equal(t, "s2", undated.ID)
	assert.False(t, undated.HasTimestamp())

	s1 := snap.Sales[1]
	assert.Equal(t, time.Date(2024, 3, 10, 9, 15, 0, 0, time.UTC), s1.CreatedAt.UTC())
	assert.Len(t, s1.Items, 2)

	assert.Empty(t, snap.Sales[2].Items, "a sale without items is still returned")
}
