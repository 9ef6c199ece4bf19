package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"sales-insights/internal/analytics"
	"sales-insights/internal/config"
	"sales-insights/internal/ledger"
	"sales-insights/internal/middleware"
	"sales-insights/internal/observability"
	"sales-insights/internal/server"
	"sales-insights/internal/services"
	"sales-insights/internal/ui/templates"
)

const (
	renderTimeout  = 10 * time.Second
	cacheMaxAge    = "public, max-age=300"
	sweepInterval  = time.Minute
	dashboardTitle = "Sales Insights"
)

func dashboardHandler(page templates.Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", cacheMaxAge)
		if err := templates.Dashboard(page).Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

// openSource builds the ledger source selected by configuration.
func openSource(ctx context.Context, cfg config.LedgerConfig, loc *time.Location, logger *slog.Logger) (ledger.Source, error) {
	switch cfg.Source {
	case config.SourceCSV:
		return ledger.NewCSVSource(cfg.ProductsCSV, cfg.SalesCSV, ledger.CSVOptions{
			BatchSize: cfg.BatchSize,
			Workers:   cfg.Workers,
			Location:  loc,
		}, logger), nil
	case config.SourcePostgres:
		return ledger.NewPostgresSource(ctx, cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown ledger source %q", cfg.Source)
	}
}

func newAnalytics(cfg *config.Config, engine *analytics.Engine, logger *slog.Logger) *services.Analytics {
	return services.NewAnalytics(
		services.WithEngine(engine),
		services.WithLogger(logger),
		services.WithCacheDir(cfg.Ledger.CacheDir),
		services.WithDefaults(services.Defaults{
			ForecastHorizon:  cfg.Analytics.ForecastHorizon,
			RestockThreshold: cfg.Analytics.RestockThreshold,
			RestockWindow:    cfg.Analytics.RestockWindow,
			Period:           cfg.Analytics.Period,
		}),
	)
}

func newHandler(cfg *config.Config, svc *services.Analytics, limiter *middleware.RateLimiter, logger *slog.Logger) http.Handler {
	defaults := svc.Defaults()
	srv := server.NewServer(svc, logger, &server.TemplateHandlers{
		Dashboard: dashboardHandler(templates.Page{
			Title:   dashboardTitle,
			Horizon: defaults.ForecastHorizon,
			Period:  defaults.Period,
		}),
	})

	chain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(limiter, logger),
	)
	return chain(srv)
}

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("application failed", "error", err)
		os.Exit(1)
	}
	logger.Info("application stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting application",
		"version", "1.0.0",
		"ledger_source", cfg.Ledger.Source,
		"addr", cfg.Address(),
	)

	settings, err := cfg.Analytics.Settings()
	if err != nil {
		return fmt.Errorf("analytics settings: %w", err)
	}
	engine, err := analytics.New(settings, logger)
	if err != nil {
		return fmt.Errorf("analytics engine: %w", err)
	}

	loadCtx, cancel := context.WithTimeout(ctx, cfg.Ledger.LoadTimeout)
	defer cancel()

	src, err := openSource(loadCtx, cfg.Ledger, settings.Location, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	svc := newAnalytics(cfg, engine, logger)
	start := time.Now()
	if err := svc.Load(loadCtx, src); err != nil {
		_ = src.Close()
		return err
	}
	logger.Info("ledger ready", "duration", time.Since(start))

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	limiter := middleware.NewRateLimiter(cfg.Security)
	go limiter.Run(bgCtx, sweepInterval)

	if cfg.Ledger.ReloadInterval > 0 {
		logger.Info("ledger reload enabled", "interval", cfg.Ledger.ReloadInterval)
		go svc.Reload(bgCtx, src, cfg.Ledger.ReloadInterval, cfg.Ledger.LoadTimeout)
	}

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      newHandler(cfg, svc, limiter, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)
	gracefulServer.RegisterShutdownHook("ledger", func(ctx context.Context) error {
		stopBackground()
		logger.Info("closing ledger source", "source", src.Name())
		return src.Close()
	})

	return gracefulServer.ListenAndServe(ctx)
}
