package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Bucket struct {
	Key          string          `json:"key"`
	Label        string          `json:"label"`
	Revenue      decimal.Decimal `json:"revenue"`
	Transactions int             `json:"transactions"`
}

type ForecastPoint struct {
	Date      time.Time       `json:"date"`
	Total     decimal.Decimal `json:"total"`
	Predicted bool            `json:"predicted"`
}

type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// Rank orders urgencies from most (0) to least urgent.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyHigh:
		return 0
	case UrgencyMedium:
		return 1
	default:
		return 2
	}
}

type RestockItem struct {
	ProductID           string          `json:"product_id"`
	Name                string          `json:"name"`
	SKU                 string          `json:"sku,omitempty"`
	Category            string          `json:"category"`
	Quantity            int             `json:"quantity"`
	DailySalesRate      decimal.Decimal `json:"daily_sales_rate"`
	DaysUntilOutOfStock decimal.Decimal `json:"days_until_out_of_stock"`
	RecommendedQuantity int             `json:"recommended_quantity"`
	ReorderCost         decimal.Decimal `json:"reorder_cost"`
	Urgency             Urgency         `json:"urgency"`
}

type ProductPerformance struct {
	ProductID           string          `json:"product_id"`
	Name                string          `json:"name"`
	SKU                 string          `json:"sku,omitempty"`
	Category            string          `json:"category"`
	QuantitySold        int             `json:"quantity_sold"`
	Revenue             decimal.Decimal `json:"revenue"`
	CostOfGoods         decimal.Decimal `json:"cost_of_goods"`
	Profit              decimal.Decimal `json:"profit"`
	ProfitMargin        decimal.Decimal `json:"profit_margin"`
	ContributionToSales decimal.Decimal `json:"contribution_to_sales"`
	CurrentStock        int             `json:"current_stock"`
}

type PerformanceSummary struct {
	TotalQuantitySold int             `json:"total_quantity_sold"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalProfit       decimal.Decimal `json:"total_profit"`
	ProductCount      int             `json:"product_count"`
	TransactionCount  int             `json:"transaction_count"`
}

type PerformanceReport struct {
	PeriodDays   int                  `json:"period_days"`
	CategoryID   string               `json:"category_id,omitempty"`
	TopSelling   []ProductPerformance `json:"top_selling"`
	WorstSelling []ProductPerformance `json:"worst_selling"`
	Profitable   []ProductPerformance `json:"profitable"`
	Unprofitable []ProductPerformance `json:"unprofitable"`
	Summary      PerformanceSummary   `json:"summary"`
}

type SeasonalBucket struct {
	Index        int             `json:"index"`
	Label        string          `json:"label"`
	Total        decimal.Decimal `json:"total"`
	Transactions int             `json:"transactions"`
}

type SeasonalRecommendations struct {
	PeakDays               []string `json:"peak_days"`
	PeakHours              []string `json:"peak_hours"`
	HighSeasonMonths       []string `json:"high_season_months"`
	StaffingRecommendation string   `json:"staffing_recommendation"`
}

type SeasonalPatterns struct {
	ByDayOfWeek     []SeasonalBucket        `json:"by_day_of_week"`
	ByHour          []SeasonalBucket        `json:"by_hour"`
	ByMonth         []SeasonalBucket        `json:"by_month"`
	Recommendations SeasonalRecommendations `json:"recommendations"`
}

type PaymentMethodTotal struct {
	Method string          `json:"method"`
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

type SalesSummary struct {
	PeriodDays       int                  `json:"period_days"`
	TransactionCount int                  `json:"transaction_count"`
	TotalRevenue     decimal.Decimal      `json:"total_revenue"`
	ItemsSold        int                  `json:"items_sold"`
	AverageTicket    decimal.Decimal      `json:"average_ticket"`
	ByPaymentMethod  []PaymentMethodTotal `json:"by_payment_method"`
	ByMonth          []Bucket             `json:"by_month"`
}

type InventorySummary struct {
	TotalProducts  int             `json:"total_products"`
	TotalUnits     int             `json:"total_units"`
	LowStock       int             `json:"low_stock"`
	OutOfStock     int             `json:"out_of_stock"`
	InventoryValue decimal.Decimal `json:"inventory_value"`
	InventoryCost  decimal.Decimal `json:"inventory_cost"`
}

// Dashboard bundles every analyzer result computed from one snapshot.
type Dashboard struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Forecast    []ForecastPoint    `json:"forecast"`
	Restock     []RestockItem      `json:"restock"`
	Performance *PerformanceReport `json:"performance"`
	Seasonality *SeasonalPatterns  `json:"seasonality"`
	Sales       *SalesSummary      `json:"sales"`
	Inventory   InventorySummary   `json:"inventory"`
}
