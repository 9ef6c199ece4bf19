// Package ledger reads the product catalog and sales history from the
// configured backing store.
package ledger

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"sales-insights/internal/models"
)

type Source interface {
	Name() string
	Products(ctx context.Context) ([]models.Product, error)
	Sales(ctx context.Context) ([]models.Sale, error)
	Close() error
}

// Versioned is implemented by sources that can report when their data last
// changed, which lets callers reuse a cached snapshot. CacheKey identifies
// the exact data read, so two sources share a key only if they would load
// the same snapshot.
type Versioned interface {
	ModTime() (time.Time, error)
	CacheKey() string
}

type Snapshot struct {
	Source   string
	Key      string
	Products []models.Product
	Sales    []models.Sale
	LoadedAt time.Time
}

// Load reads the catalog and the sales history concurrently.
func Load(ctx context.Context, src Source) (*Snapshot, error) {
	snap := &Snapshot{Source: src.Name()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		products, err := src.Products(gctx)
		if err != nil {
			return fmt.Errorf("load products from %s: %w", src.Name(), err)
		}
		snap.Products = products
		return nil
	})
	g.Go(func() error {
		sales, err := src.Sales(gctx)
		if err != nil {
			return fmt.Errorf("load sales from %s: %w", src.Name(), err)
		}
		snap.Sales = sales
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.LoadedAt = time.Now()
	return snap, nil
}

func (s *Snapshot) ItemCount() int {
	n := 0
	for _, sale := range s.Sales {
		n += len(sale.Items)
	}
	return n
}
