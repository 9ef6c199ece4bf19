package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultCategory      = "Uncategorized"
	DefaultPaymentMethod = "Cash"
)

type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku,omitempty"`
	CategoryID string          `json:"category_id,omitempty"`
	Category   string          `json:"category,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Cost       decimal.Decimal `json:"cost"`
	Quantity   int             `json:"quantity"`
}

func (p Product) CategoryName() string {
	if strings.TrimSpace(p.Category) == "" {
		return DefaultCategory
	}
	return p.Category
}

// SaleItem is one line of a sale. Price is the unit price recorded at sale
// time, which may differ from the product's current price.
type SaleItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// LineTotal recomputes price * quantity. The stored Subtotal is never trusted.
func (i SaleItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Valid reports whether the line can take part in aggregation.
func (i SaleItem) Valid() bool {
	return i.Quantity > 0 && !i.Price.IsNegative()
}

type Sale struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []SaleItem      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method,omitempty"`
}

func (s Sale) HasTimestamp() bool {
	return !s.CreatedAt.IsZero()
}

// ComputedTotal sums the recomputed line totals of every valid item.
func (s Sale) ComputedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		if !item.Valid() {
			continue
		}
		total = total.Add(item.LineTotal())
	}
	return total
}

func (s Sale) Method() string {
	if strings.TrimSpace(s.PaymentMethod) == "" {
		return DefaultPaymentMethod
	}
	return s.PaymentMethod
}

func (s Sale) UnitsSold() int {
	units := 0
	for _, item := range s.Items {
		if item.Valid() {
			units += item.Quantity
		}
	}
	return units
}
