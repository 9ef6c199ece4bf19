package analytics

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sales-insights/internal/models"
)

type PerformanceOptions struct {
	PeriodDays int
	// CategoryID restricts the analysis to one category. Empty means all.
	CategoryID string
	// Limit caps every ranking. Zero uses Settings.TopN.
	Limit int
}

type productTally struct {
	product models.Product
	units   int
	revenue decimal.Decimal
}

func (e *Engine) AnalyzePerformance(products []models.Product, sales []models.Sale, opts PerformanceOptions, now time.Time) (*models.PerformanceReport, error) {
	if opts.PeriodDays <= 0 {
		return nil, invalidArgument("performance period must be positive, got %d", opts.PeriodDays)
	}
	if opts.Limit < 0 {
		return nil, invalidArgument("ranking limit cannot be negative, got %d", opts.Limit)
	}
	category := opts.CategoryID
	if category != "" && strings.TrimSpace(category) == "" {
		return nil, invalidArgument("category id is blank")
	}
	category = strings.TrimSpace(category)
	limit := opts.Limit
	if limit == 0 {
		limit = e.settings.TopN
	}

	catalog := indexProducts(products)
	tallies := make(map[string]*productTally)
	var order []string
	var gaps referentialGaps
	transactions := 0

	for _, sale := range windowSales(sales, opts.PeriodDays, now) {
		counted := false
		for _, item := range sale.Items {
			if !item.Valid() {
				continue
			}
			p, ok := catalog[item.ProductID]
			if !ok {
				gaps.add(item.ProductID)
				continue
			}
			if category != "" && p.CategoryID != category {
				continue
			}
			t, ok := tallies[p.ID]
			if !ok {
				t = &productTally{product: p}
				tallies[p.ID] = t
				order = append(order, p.ID)
			}
			t.units += item.Quantity
			t.revenue = t.revenue.Add(item.LineTotal())
			counted = true
		}
		if counted {
			transactions++
		}
	}
	e.logGaps("performance", gaps)

	summary := models.PerformanceSummary{
		TotalRevenue:     decimal.Zero,
		TotalProfit:      decimal.Zero,
		ProductCount:     len(order),
		TransactionCount: transactions,
	}
	for _, id := range order {
		summary.TotalRevenue = summary.TotalRevenue.Add(tallies[id].revenue)
	}

	rows := make([]models.ProductPerformance, 0, len(order))
	for _, id := range order {
		t := tallies[id]
		costOfGoods := t.product.Cost.Mul(decimal.NewFromInt(int64(t.units)))
		profit := t.revenue.Sub(costOfGoods)
		rows = append(rows, models.ProductPerformance{
			ProductID:           t.product.ID,
			Name:                t.product.Name,
			SKU:                 t.product.SKU,
			Category:            t.product.CategoryName(),
			QuantitySold:        t.units,
			Revenue:             t.revenue,
			CostOfGoods:         costOfGoods,
			Profit:              profit,
			ProfitMargin:        percent(profit, t.revenue),
			ContributionToSales: percent(t.revenue, summary.TotalRevenue),
			CurrentStock:        t.product.Quantity,
		})
		summary.TotalQuantitySold += t.units
		summary.TotalProfit = summary.TotalProfit.Add(profit)
	}

	sold := slices.DeleteFunc(slices.Clone(rows), func(r models.ProductPerformance) bool {
		return r.QuantitySold <= 0
	})

	return &models.PerformanceReport{
		PeriodDays: opts.PeriodDays,
		CategoryID: category,
		TopSelling: rank(rows, limit, func(a, b models.ProductPerformance) int {
			return cmp.Compare(b.QuantitySold, a.QuantitySold)
		}),
		WorstSelling: rank(sold, limit, func(a, b models.ProductPerformance) int {
			return cmp.Compare(a.QuantitySold, b.QuantitySold)
		}),
		Profitable: rank(rows, limit, func(a, b models.ProductPerformance) int {
			return b.Profit.Cmp(a.Profit)
		}),
		Unprofitable: rank(rows, limit, func(a, b models.ProductPerformance) int {
			return a.Profit.Cmp(b.Profit)
		}),
		Summary: summary,
	}, nil
}

// rank sorts a copy of rows by order, breaking ties by product ID, and keeps
// the first limit entries.
func rank(rows []models.ProductPerformance, limit int, order func(a, b models.ProductPerformance) int) []models.ProductPerformance {
	out := slices.Clone(rows)
	if out == nil {
		out = []models.ProductPerformance{}
	}
	slices.SortFunc(out, func(a, b models.ProductPerformance) int {
		if c := order(a, b); c != 0 {
			return c
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
