package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"sales-insights/internal/models"
)

// Schema creates the tables PostgresSource reads. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS categories (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	sku         TEXT,
	category_id TEXT REFERENCES categories(id),
	price       NUMERIC(14,2) NOT NULL DEFAULT 0,
	cost        NUMERIC(14,2),
	quantity    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sales (
	id             TEXT PRIMARY KEY,
	created_at     TIMESTAMPTZ,
	payment_method TEXT,
	total          NUMERIC(14,2)
);

CREATE TABLE IF NOT EXISTS sale_items (
	id           BIGSERIAL PRIMARY KEY,
	sale_id      TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
	product_id   TEXT,
	product_name TEXT,
	quantity     INTEGER NOT NULL,
	price        NUMERIC(14,2) NOT NULL,
	subtotal     NUMERIC(14,2)
);
`

const productsQuery = `
SELECT p.id, p.name, COALESCE(p.sku, ''), COALESCE(p.category_id, ''), COALESCE(c.name, ''),
       p.price, COALESCE(p.cost, 0), p.quantity
FROM products p
LEFT JOIN categories c ON c.id = p.category_id
ORDER BY p.id`

const salesQuery = `
SELECT s.id, s.created_at, COALESCE(s.payment_method, ''), COALESCE(s.total, 0),
       i.id IS NOT NULL,
       COALESCE(i.product_id, ''), COALESCE(i.product_name, ''), COALESCE(i.quantity, 0),
       COALESCE(i.price, 0), COALESCE(i.subtotal, 0)
FROM sales s
LEFT JOIN sale_items i ON i.sale_id = s.id
ORDER BY s.created_at NULLS FIRST, s.id, i.id`

type PostgresSource struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresSource(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSource{pool: pool, logger: logger}, nil
}

func (s *PostgresSource) Name() string {
	return "postgres"
}

func (s *PostgresSource) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresSource) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresSource) Products(ctx context.Context) ([]models.Product, error) {
	rows, err := s.pool.Query(ctx, productsQuery)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.CategoryID, &p.Category, &p.Price, &p.Cost, &p.Quantity); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (s *PostgresSource) Sales(ctx context.Context) ([]models.Sale, error) {
	rows, err := s.pool.Query(ctx, salesQuery)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	var sales []models.Sale
	index := make(map[string]int)
	for rows.Next() {
		var (
			saleID    string
			createdAt *time.Time
			method    string
			total     decimal.Decimal
			hasItem   bool
			item      models.SaleItem
		)
		if err := rows.Scan(&saleID, &createdAt, &method, &total, &hasItem,
			&item.ProductID, &item.ProductName, &item.Quantity, &item.Price, &item.Subtotal); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}

		i, ok := index[saleID]
		if !ok {
			sale := models.Sale{ID: saleID, PaymentMethod: method, Total: total}
			if createdAt != nil {
				sale.CreatedAt = *createdAt
			}
			i = len(sales)
			index[saleID] = i
			sales = append(sales, sale)
		}
		if hasItem {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales: %w", err)
	}

	s.logger.Debug("loaded sales from postgres", "sales", len(sales))
	return sales, nil
}
