package services

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sales-insights/internal/analytics"
	"sales-insights/internal/ledger"
	"sales-insights/internal/models"
	"sales-insights/internal/observability"
)

const (
	cacheVersion    = "v3"
	defaultCacheDir = ".cache"
)

// Defaults are the analysis parameters used when a caller leaves one unset.
type Defaults struct {
	ForecastHorizon  int
	RestockThreshold int
	RestockWindow    int
	Period           int
}

func DefaultParameters() Defaults {
	return Defaults{
		ForecastHorizon:  30,
		RestockThreshold: 14,
		RestockWindow:    30,
		Period:           30,
	}
}

type Option func(*Analytics)

func WithEngine(engine *analytics.Engine) Option {
	return func(a *Analytics) { a.engine = engine }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Analytics) { a.logger = logger }
}

// WithClock replaces time.Now as the reference time for every analysis.
func WithClock(now func() time.Time) Option {
	return func(a *Analytics) { a.now = now }
}

// WithCacheDir sets where loaded snapshots are cached. Empty disables caching.
func WithCacheDir(dir string) Option {
	return func(a *Analytics) { a.cacheDir = dir }
}

func WithDefaults(d Defaults) Option {
	return func(a *Analytics) { a.defaults = d }
}

// Analytics serves analyses over the most recently loaded ledger snapshot.
// A snapshot is replaced wholesale on load and never mutated, so readers
// only hold the lock long enough to grab the pointer.
type Analytics struct {
	mu       sync.RWMutex
	snapshot *ledger.Snapshot

	engine   *analytics.Engine
	logger   *slog.Logger
	now      func() time.Time
	cacheDir string
	defaults Defaults

	queries   atomic.Int64
	fromCache atomic.Bool
}

func NewAnalytics(opts ...Option) *Analytics {
	a := &Analytics{
		snapshot: &ledger.Snapshot{LoadedAt: time.Now()},
		logger:   slog.Default(),
		now:      time.Now,
		cacheDir: defaultCacheDir,
		defaults: DefaultParameters(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.engine == nil {
		a.engine = analytics.MustNew(analytics.DefaultSettings(), a.logger)
	}
	return a
}

func (a *Analytics) SetData(products []models.Product, sales []models.Sale) {
	a.swap(&ledger.Snapshot{
		Source:   "memory",
		Products: products,
		Sales:    sales,
		LoadedAt: time.Now(),
	})
}

func (a *Analytics) swap(snap *ledger.Snapshot) {
	a.mu.Lock()
	a.snapshot = snap
	a.mu.Unlock()
}

func (a *Analytics) current() *ledger.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

func (a *Analytics) Defaults() Defaults {
	return a.defaults
}

// Load replaces the snapshot with the contents of src. Sources that report
// a modification time are served from the on-disk cache while unchanged.
func (a *Analytics) Load(ctx context.Context, src ledger.Source) error {
	versioned, canCache := src.(ledger.Versioned)
	canCache = canCache && a.cacheDir != ""

	var key string
	if canCache {
		key = versioned.CacheKey()
		if cached, err := a.loadFromCache(key); err == nil && cached.Key == key {
			modTime, err := versioned.ModTime()
			if err == nil && modTime.Before(cached.LoadedAt) {
				a.swap(cached)
				a.fromCache.Store(true)
				a.logger.Info("loaded ledger from cache",
					"source", src.Name(),
					"products", len(cached.Products),
					"sales", len(cached.Sales),
				)
				return nil
			}
		}
	}

	start := time.Now()
	a.logger.Info("loading ledger", "source", src.Name())

	snap, err := ledger.Load(ctx, src)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	a.swap(snap)
	a.fromCache.Store(false)

	if canCache {
		if err := a.saveToCache(key, snap); err != nil {
			a.logger.Warn("failed to save cache", "error", err)
		}
	}

	duration := time.Since(start)
	a.logger.Info("ledger loaded",
		"source", src.Name(),
		"products", len(snap.Products),
		"sales", len(snap.Sales),
		"items", snap.ItemCount(),
		"duration", duration,
	)
	return nil
}

// Reload refreshes the snapshot from src every interval until ctx is done.
// A failed refresh is logged and the previous snapshot keeps serving.
func (a *Analytics) Reload(ctx context.Context, src ledger.Source, interval, timeout time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			loadCtx, cancel := context.WithTimeout(ctx, timeout)
			if err := a.Load(loadCtx, src); err != nil {
				a.logger.Error("ledger reload failed", "source", src.Name(), "error", err)
			}
			cancel()
		}
	}
}

// cacheFilename derives a stable name from the source's cache key.
func (a *Analytics) cacheFilename(key string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(key))
	return filepath.Join(a.cacheDir, fmt.Sprintf("ledger_%s_%s.gob", id, cacheVersion))
}

func (a *Analytics) saveToCache(key string, snap *ledger.Snapshot) error {
	if err := os.MkdirAll(a.cacheDir, 0o755); err != nil {
		return err
	}

	file, err := os.Create(a.cacheFilename(key))
	if err != nil {
		return err
	}
	defer file.Close()

	cached := *snap
	cached.Key = key
	return gob.NewEncoder(file).Encode(&cached)
}

func (a *Analytics) loadFromCache(key string) (*ledger.Snapshot, error) {
	file, err := os.Open(a.cacheFilename(key))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var snap ledger.Snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// observe runs fn against the current snapshot inside a span.
func observe[T any](ctx context.Context, a *Analytics, op string, fn func(snap *ledger.Snapshot, now time.Time) (T, error)) (T, error) {
	_, span := observability.StartSpan(ctx, op)
	defer span.End(a.logger)
	a.queries.Add(1)

	if err := ctx.Err(); err != nil {
		span.SetError(err)
		var zero T
		return zero, err
	}

	v, err := fn(a.current(), a.now())
	if err != nil {
		span.SetError(err)
	}
	return v, err
}

func (a *Analytics) Forecast(ctx context.Context, horizonDays int) ([]models.ForecastPoint, error) {
	return observe(ctx, a, "analytics.forecast", func(snap *ledger.Snapshot, now time.Time) ([]models.ForecastPoint, error) {
		return a.engine.Forecast(snap.Sales, horizonDays, now)
	})
}

func (a *Analytics) Restock(ctx context.Context, opts analytics.RestockOptions) ([]models.RestockItem, error) {
	return observe(ctx, a, "analytics.restock", func(snap *ledger.Snapshot, now time.Time) ([]models.RestockItem, error) {
		return a.engine.Recommend(snap.Products, snap.Sales, opts, now)
	})
}

func (a *Analytics) Performance(ctx context.Context, opts analytics.PerformanceOptions) (*models.PerformanceReport, error) {
	return observe(ctx, a, "analytics.performance", func(snap *ledger.Snapshot, now time.Time) (*models.PerformanceReport, error) {
		return a.engine.AnalyzePerformance(snap.Products, snap.Sales, opts, now)
	})
}

func (a *Analytics) Seasonality(ctx context.Context) (*models.SeasonalPatterns, error) {
	return observe(ctx, a, "analytics.seasonality", func(snap *ledger.Snapshot, _ time.Time) (*models.SeasonalPatterns, error) {
		return a.engine.AnalyzeSeasonality(snap.Sales), nil
	})
}

func (a *Analytics) SalesSummary(ctx context.Context, periodDays int) (*models.SalesSummary, error) {
	return observe(ctx, a, "analytics.sales_summary", func(snap *ledger.Snapshot, now time.Time) (*models.SalesSummary, error) {
		return a.engine.SummarizeSales(snap.Sales, periodDays, now)
	})
}

func (a *Analytics) Inventory(ctx context.Context) (models.InventorySummary, error) {
	return observe(ctx, a, "analytics.inventory", func(snap *ledger.Snapshot, _ time.Time) (models.InventorySummary, error) {
		return a.engine.SummarizeInventory(snap.Products), nil
	})
}

// DashboardParams selects the parameters of every panel. Zero fields take
// the service defaults.
type DashboardParams struct {
	Horizon          int
	RestockThreshold int
	RestockWindow    int
	Period           int
	CategoryID       string
	Limit            int
}

func (a *Analytics) withDefaults(p DashboardParams) DashboardParams {
	if p.Horizon == 0 {
		p.Horizon = a.defaults.ForecastHorizon
	}
	if p.RestockThreshold == 0 {
		p.RestockThreshold = a.defaults.RestockThreshold
	}
	if p.RestockWindow == 0 {
		p.RestockWindow = a.defaults.RestockWindow
	}
	if p.Period == 0 {
		p.Period = a.defaults.Period
	}
	return p
}

// Dashboard runs every analyzer concurrently against one snapshot and one
// reference time. The first failure cancels the rest.
func (a *Analytics) Dashboard(ctx context.Context, params DashboardParams) (*models.Dashboard, error) {
	params = a.withDefaults(params)

	ctx, span := observability.StartSpan(ctx, "analytics.dashboard")
	defer span.End(a.logger)
	a.queries.Add(1)

	snap := a.current()
	now := a.now()
	out := &models.Dashboard{GeneratedAt: now}

	g, gctx := errgroup.WithContext(ctx)
	run := func(op string, fn func() error) {
		g.Go(func() error {
			_, child := observability.StartSpan(gctx, op)
			defer child.End(a.logger)
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fn(); err != nil {
				child.SetError(err)
				return fmt.Errorf("%s: %w", op, err)
			}
			return nil
		})
	}

	run("dashboard.forecast", func() (err error) {
		out.Forecast, err = a.engine.Forecast(snap.Sales, params.Horizon, now)
		return err
	})
	run("dashboard.restock", func() (err error) {
		out.Restock, err = a.engine.Recommend(snap.Products, snap.Sales, analytics.RestockOptions{
			ThresholdDays: params.RestockThreshold,
			WindowDays:    params.RestockWindow,
		}, now)
		return err
	})
	run("dashboard.performance", func() (err error) {
		out.Performance, err = a.engine.AnalyzePerformance(snap.Products, snap.Sales, analytics.PerformanceOptions{
			PeriodDays: params.Period,
			CategoryID: params.CategoryID,
			Limit:      params.Limit,
		}, now)
		return err
	})
	run("dashboard.seasonality", func() error {
		out.Seasonality = a.engine.AnalyzeSeasonality(snap.Sales)
		return nil
	})
	run("dashboard.sales_summary", func() (err error) {
		out.Sales, err = a.engine.SummarizeSales(snap.Sales, params.Period, now)
		return err
	})
	run("dashboard.inventory", func() error {
		out.Inventory = a.engine.SummarizeInventory(snap.Products)
		return nil
	})

	if err := g.Wait(); err != nil {
		span.SetError(err)
		return nil, err
	}
	return out, nil
}

// Stats reports what is loaded, for the admin endpoint.
func (a *Analytics) Stats() map[string]any {
	snap := a.current()

	undated := 0
	for _, s := range snap.Sales {
		if !s.HasTimestamp() {
			undated++
		}
	}

	return map[string]any{
		"source":        snap.Source,
		"loaded_at":     snap.LoadedAt,
		"from_cache":    a.fromCache.Load(),
		"products":      len(snap.Products),
		"sales":         len(snap.Sales),
		"sale_items":    snap.ItemCount(),
		"undated_sales": undated,
		"queries":       a.queries.Load(),
	}
}

