// Package analytics turns a product catalog and a sales ledger into
// forecasts, restock recommendations, product rankings and seasonal
// demand patterns. Every analysis is a pure function of its inputs and the
// reference time passed by the caller; nothing here performs I/O or keeps
// state between calls.
package analytics

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"sales-insights/internal/models"
)

// ErrInvalidArgument marks caller contract violations such as a
// non-positive horizon, threshold or period.
var ErrInvalidArgument = errors.New("invalid argument")

// InsufficientData is reported in-band when there is not enough history to
// derive a recommendation.
const InsufficientData = "insufficient data"

var hundred = decimal.NewFromInt(100)

type Settings struct {
	// SmoothingWindow is the trailing moving-average length in days, also
	// used as the lookback for the trend fit.
	SmoothingWindow int
	// PeakQuartile is the share of buckets reported as peaks once at least
	// PeakMinBuckets buckets are present.
	PeakQuartile      float64
	PeakMinBuckets    int
	PeakFallbackCount int
	// HighSeasonFactor multiplies the mean monthly revenue; months above it
	// are high season.
	HighSeasonFactor  decimal.Decimal
	TopN              int
	LowStockThreshold int
	Location          *time.Location
}

func DefaultSettings() Settings {
	return Settings{
		SmoothingWindow:   7,
		PeakQuartile:      0.25,
		PeakMinBuckets:    8,
		PeakFallbackCount: 2,
		HighSeasonFactor:  decimal.RequireFromString("1.2"),
		TopN:              5,
		LowStockThreshold: 5,
		Location:          time.Local,
	}
}

func (s Settings) Validate() error {
	if s.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing window must be at least 1, got %d", s.SmoothingWindow)
	}
	if s.PeakQuartile <= 0 || s.PeakQuartile > 1 {
		return fmt.Errorf("peak quartile must be in (0, 1], got %v", s.PeakQuartile)
	}
	if s.PeakMinBuckets < 1 {
		return fmt.Errorf("peak minimum buckets must be positive, got %d", s.PeakMinBuckets)
	}
	if s.PeakFallbackCount < 1 {
		return fmt.Errorf("peak fallback count must be positive, got %d", s.PeakFallbackCount)
	}
	if !s.HighSeasonFactor.IsPositive() {
		return fmt.Errorf("high season factor must be positive, got %s", s.HighSeasonFactor)
	}
	if s.TopN < 1 {
		return fmt.Errorf("top N must be positive, got %d", s.TopN)
	}
	if s.LowStockThreshold < 0 {
		return fmt.Errorf("low stock threshold cannot be negative, got %d", s.LowStockThreshold)
	}
	return nil
}

// Engine runs the analyzers with a fixed set of Settings. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	settings Settings
	logger   *slog.Logger
}

func New(settings Settings, logger *slog.Logger) (*Engine, error) {
	if settings.Location == nil {
		settings.Location = time.Local
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("analytics settings: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{settings: settings, logger: logger}, nil
}

// MustNew is New for settings known to be valid, such as DefaultSettings.
func MustNew(settings Settings, logger *slog.Logger) *Engine {
	e, err := New(settings, logger)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) Settings() Settings {
	return e.settings
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// windowSales returns the dated sales that fall within the trailing days
// before now, inclusive on both ends.
func windowSales(sales []models.Sale, days int, now time.Time) []models.Sale {
	cutoff := now.AddDate(0, 0, -days)
	out := make([]models.Sale, 0, len(sales))
	for _, s := range sales {
		if !s.HasTimestamp() {
			continue
		}
		if s.CreatedAt.Before(cutoff) || s.CreatedAt.After(now) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// indexProducts keys the catalog by ID. The first product wins on duplicates.
func indexProducts(products []models.Product) map[string]models.Product {
	catalog := make(map[string]models.Product, len(products))
	for _, p := range products {
		if _, ok := catalog[p.ID]; ok {
			continue
		}
		catalog[p.ID] = p
	}
	return catalog
}

type referentialGaps struct {
	seen  map[string]struct{}
	ids   []string
	items int
}

func (g *referentialGaps) add(productID string) {
	g.items++
	if g.seen == nil {
		g.seen = make(map[string]struct{})
	}
	if _, ok := g.seen[productID]; ok {
		return
	}
	g.seen[productID] = struct{}{}
	g.ids = append(g.ids, productID)
}

func (e *Engine) logGaps(analysis string, g referentialGaps) {
	if g.items == 0 {
		return
	}
	e.logger.Warn("skipping sale items for products missing from catalog",
		"analysis", analysis,
		"items", g.items,
		"product_ids", g.ids,
	)
}

func percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).DivRound(whole, 2)
}
