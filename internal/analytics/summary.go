package analytics

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sales-insights/internal/models"
)

// SummarizeSales reports headline totals for the trailing periodDays.
func (e *Engine) SummarizeSales(sales []models.Sale, periodDays int, now time.Time) (*models.SalesSummary, error) {
	if periodDays <= 0 {
		return nil, invalidArgument("summary period must be positive, got %d", periodDays)
	}

	window := windowSales(sales, periodDays, now)
	summary := &models.SalesSummary{
		PeriodDays:       periodDays,
		TransactionCount: len(window),
		TotalRevenue:     decimal.Zero,
		AverageTicket:    decimal.Zero,
		ByPaymentMethod:  []models.PaymentMethodTotal{},
	}

	methods := make(map[string]*models.PaymentMethodTotal)
	for _, s := range window {
		total := s.ComputedTotal()
		summary.TotalRevenue = summary.TotalRevenue.Add(total)
		summary.ItemsSold += s.UnitsSold()

		m, ok := methods[s.Method()]
		if !ok {
			m = &models.PaymentMethodTotal{Method: s.Method(), Total: decimal.Zero}
			methods[s.Method()] = m
		}
		m.Count++
		m.Total = m.Total.Add(total)
	}

	if summary.TransactionCount > 0 {
		summary.AverageTicket = summary.TotalRevenue.DivRound(decimal.NewFromInt(int64(summary.TransactionCount)), 2)
	}
	for _, m := range methods {
		summary.ByPaymentMethod = append(summary.ByPaymentMethod, *m)
	}
	slices.SortFunc(summary.ByPaymentMethod, func(a, b models.PaymentMethodTotal) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return strings.Compare(a.Method, b.Method)
	})
	summary.ByMonth = BucketSales(window, ByYearMonth, e.settings.Location).Sorted()

	return summary, nil
}

// SummarizeInventory values the stock on hand. Negative quantities count as
// out of stock and contribute nothing to units or value.
func (e *Engine) SummarizeInventory(products []models.Product) models.InventorySummary {
	inv := models.InventorySummary{
		TotalProducts:  len(products),
		InventoryValue: decimal.Zero,
		InventoryCost:  decimal.Zero,
	}
	for _, p := range products {
		if p.Quantity <= 0 {
			inv.OutOfStock++
			continue
		}
		if p.Quantity <= e.settings.LowStockThreshold {
			inv.LowStock++
		}
		qty := decimal.NewFromInt(int64(p.Quantity))
		inv.TotalUnits += p.Quantity
		inv.InventoryValue = inv.InventoryValue.Add(p.Price.Mul(qty))
		inv.InventoryCost = inv.InventoryCost.Add(p.Cost.Mul(qty))
	}
	return inv
}
