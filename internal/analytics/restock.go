package analytics

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sales-insights/internal/models"
)

type RestockOptions struct {
	// ThresholdDays is the stock-out horizon that triggers a recommendation.
	ThresholdDays int
	// WindowDays is the trailing sales window the daily rate is measured over.
	WindowDays int
}

type restockCandidate struct {
	item  models.RestockItem
	stock int64
	sold  int64
}

// Recommend lists products expected to run out within ThresholdDays at
// their recent sales rate, most urgent first.
func (e *Engine) Recommend(products []models.Product, sales []models.Sale, opts RestockOptions, now time.Time) ([]models.RestockItem, error) {
	if opts.ThresholdDays <= 0 {
		return nil, invalidArgument("restock threshold must be positive, got %d", opts.ThresholdDays)
	}
	if opts.WindowDays <= 0 {
		return nil, invalidArgument("restock window must be positive, got %d", opts.WindowDays)
	}

	catalog := indexProducts(products)
	sold := make(map[string]int64)
	var gaps referentialGaps
	for _, sale := range windowSales(sales, opts.WindowDays, now) {
		for _, item := range sale.Items {
			if !item.Valid() {
				continue
			}
			if _, ok := catalog[item.ProductID]; !ok {
				gaps.add(item.ProductID)
				continue
			}
			sold[item.ProductID] += int64(item.Quantity)
		}
	}
	e.logGaps("restock", gaps)

	window := int64(opts.WindowDays)
	threshold := int64(opts.ThresholdDays)
	seen := make(map[string]struct{}, len(products))
	candidates := make([]restockCandidate, 0)

	for _, p := range products {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}

		units := sold[p.ID]
		if units == 0 {
			continue
		}
		stock := max(int64(p.Quantity), 0)
		// days = stock*window/units, compared without division.
		if stock*window > threshold*units {
			continue
		}

		days := decimal.Zero
		if stock > 0 {
			days = decimal.NewFromInt(stock * window).Div(decimal.NewFromInt(units))
		}
		demand := ceilDiv(units*2*threshold, window)
		recommended := max(demand-int64(p.Quantity), 1)

		candidates = append(candidates, restockCandidate{
			stock: stock,
			sold:  units,
			item: models.RestockItem{
				ProductID:           p.ID,
				Name:                p.Name,
				SKU:                 p.SKU,
				Category:            p.CategoryName(),
				Quantity:            p.Quantity,
				DailySalesRate:      decimal.NewFromInt(units).DivRound(decimal.NewFromInt(window), 2),
				DaysUntilOutOfStock: days.Round(2),
				RecommendedQuantity: int(recommended),
				ReorderCost:         p.Cost.Mul(decimal.NewFromInt(recommended)),
				Urgency:             classifyUrgency(stock, units, window, threshold),
			},
		})
	}

	slices.SortFunc(candidates, func(a, b restockCandidate) int {
		if c := cmp.Compare(a.item.Urgency.Rank(), b.item.Urgency.Rank()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.stock*b.sold, b.stock*a.sold); c != 0 {
			return c
		}
		return strings.Compare(a.item.ProductID, b.item.ProductID)
	})

	out := make([]models.RestockItem, len(candidates))
	for i, c := range candidates {
		out[i] = c.item
	}
	return out, nil
}

// classifyUrgency buckets days-until-out-of-stock into thirds of the
// threshold. Boundaries are inclusive toward the more urgent class.
func classifyUrgency(stock, units, window, threshold int64) models.Urgency {
	scaled := 3 * stock * window
	switch {
	case scaled <= threshold*units:
		return models.UrgencyHigh
	case scaled <= 2*threshold*units:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
