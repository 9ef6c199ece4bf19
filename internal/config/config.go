package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"sales-insights/internal/analytics"
)

type Config struct {
	Server    ServerConfig
	Ledger    LedgerConfig
	Logger    LoggerConfig
	Security  SecurityConfig
	Analytics AnalyticsConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LedgerConfig selects where the catalog and sales history are read from.
type LedgerConfig struct {
	Source      string
	ProductsCSV string
	SalesCSV    string
	DatabaseURL string
	CacheDir    string
	LoadTimeout time.Duration
	// ReloadInterval re-reads the ledger periodically; zero loads it once.
	ReloadInterval time.Duration
	BatchSize      int
	Workers        int
}

type LoggerConfig struct {
	Level  string
	Format string
}

type SecurityConfig struct {
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
	AllowedOrigins  []string
	TrustedProxies  []string
}

type AnalyticsConfig struct {
	SmoothingWindow   int
	PeakQuartile      float64
	PeakMinBuckets    int
	PeakFallbackCount int
	HighSeasonFactor  string
	TopN              int
	LowStockThreshold int
	Timezone          string

	ForecastHorizon  int
	RestockThreshold int
	RestockWindow    int
	Period           int
}

const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "localhost")
	v.SetDefault("SERVER_PORT", 8084)
	v.SetDefault("SERVER_READ_TIMEOUT", 10*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)

	v.SetDefault("LEDGER_SOURCE", SourceCSV)
	v.SetDefault("LEDGER_PRODUCTS_CSV", "data/products.csv")
	v.SetDefault("LEDGER_SALES_CSV", "data/sales.csv")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("LEDGER_CACHE_DIR", ".cache")
	v.SetDefault("LEDGER_LOAD_TIMEOUT", 30*time.Second)
	v.SetDefault("LEDGER_RELOAD_INTERVAL", 0)
	v.SetDefault("LEDGER_BATCH_SIZE", 1000)
	v.SetDefault("LEDGER_WORKERS", 4)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SECURITY_RATE_LIMIT_ENABLED", true)
	v.SetDefault("SECURITY_RATE_LIMIT_RPS", 100)
	v.SetDefault("SECURITY_RATE_LIMIT_BURST", 10)
	v.SetDefault("SECURITY_ALLOWED_ORIGINS", "http://localhost:8084")
	v.SetDefault("SECURITY_TRUSTED_PROXIES", "127.0.0.1")

	defaults := analytics.DefaultSettings()
	v.SetDefault("ANALYTICS_SMOOTHING_WINDOW", defaults.SmoothingWindow)
	v.SetDefault("ANALYTICS_PEAK_QUARTILE", defaults.PeakQuartile)
	v.SetDefault("ANALYTICS_PEAK_MIN_BUCKETS", defaults.PeakMinBuckets)
	v.SetDefault("ANALYTICS_PEAK_FALLBACK_COUNT", defaults.PeakFallbackCount)
	v.SetDefault("ANALYTICS_HIGH_SEASON_FACTOR", defaults.HighSeasonFactor.String())
	v.SetDefault("ANALYTICS_TOP_N", defaults.TopN)
	v.SetDefault("ANALYTICS_LOW_STOCK_THRESHOLD", defaults.LowStockThreshold)
	v.SetDefault("ANALYTICS_TIMEZONE", "Local")
	v.SetDefault("ANALYTICS_FORECAST_HORIZON", 30)
	v.SetDefault("ANALYTICS_RESTOCK_THRESHOLD", 14)
	v.SetDefault("ANALYTICS_RESTOCK_WINDOW", 30)
	v.SetDefault("ANALYTICS_PERIOD", 30)
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Ledger: LedgerConfig{
			Source:         strings.ToLower(v.GetString("LEDGER_SOURCE")),
			ProductsCSV:    v.GetString("LEDGER_PRODUCTS_CSV"),
			SalesCSV:       v.GetString("LEDGER_SALES_CSV"),
			DatabaseURL:    v.GetString("DATABASE_URL"),
			CacheDir:       v.GetString("LEDGER_CACHE_DIR"),
			LoadTimeout:    v.GetDuration("LEDGER_LOAD_TIMEOUT"),
			ReloadInterval: v.GetDuration("LEDGER_RELOAD_INTERVAL"),
			BatchSize:      v.GetInt("LEDGER_BATCH_SIZE"),
			Workers:        v.GetInt("LEDGER_WORKERS"),
		},
		Logger: LoggerConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		Security: SecurityConfig{
			EnableRateLimit: v.GetBool("SECURITY_RATE_LIMIT_ENABLED"),
			RateLimitRPS:    v.GetInt("SECURITY_RATE_LIMIT_RPS"),
			RateLimitBurst:  v.GetInt("SECURITY_RATE_LIMIT_BURST"),
			AllowedOrigins:  splitList(v.GetString("SECURITY_ALLOWED_ORIGINS")),
			TrustedProxies:  splitList(v.GetString("SECURITY_TRUSTED_PROXIES")),
		},
		Analytics: AnalyticsConfig{
			SmoothingWindow:   v.GetInt("ANALYTICS_SMOOTHING_WINDOW"),
			PeakQuartile:      v.GetFloat64("ANALYTICS_PEAK_QUARTILE"),
			PeakMinBuckets:    v.GetInt("ANALYTICS_PEAK_MIN_BUCKETS"),
			PeakFallbackCount: v.GetInt("ANALYTICS_PEAK_FALLBACK_COUNT"),
			HighSeasonFactor:  v.GetString("ANALYTICS_HIGH_SEASON_FACTOR"),
			TopN:              v.GetInt("ANALYTICS_TOP_N"),
			LowStockThreshold: v.GetInt("ANALYTICS_LOW_STOCK_THRESHOLD"),
			Timezone:          v.GetString("ANALYTICS_TIMEZONE"),
			ForecastHorizon:   v.GetInt("ANALYTICS_FORECAST_HORIZON"),
			RestockThreshold:  v.GetInt("ANALYTICS_RESTOCK_THRESHOLD"),
			RestockWindow:     v.GetInt("ANALYTICS_RESTOCK_WINDOW"),
			Period:            v.GetInt("ANALYTICS_PERIOD"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	switch c.Ledger.Source {
	case SourceCSV:
		if c.Ledger.ProductsCSV == "" || c.Ledger.SalesCSV == "" {
			return fmt.Errorf("csv ledger needs both LEDGER_PRODUCTS_CSV and LEDGER_SALES_CSV")
		}
	case SourcePostgres:
		if c.Ledger.DatabaseURL == "" {
			return fmt.Errorf("postgres ledger needs DATABASE_URL")
		}
	default:
		return fmt.Errorf("invalid ledger source %q, must be one of: %s, %s", c.Ledger.Source, SourceCSV, SourcePostgres)
	}

	if c.Ledger.BatchSize <= 0 || c.Ledger.Workers <= 0 {
		return fmt.Errorf("ledger batch size and workers must be positive")
	}

	if c.Ledger.LoadTimeout <= 0 {
		return fmt.Errorf("ledger load timeout must be positive")
	}

	if c.Ledger.ReloadInterval < 0 {
		return fmt.Errorf("ledger reload interval must not be negative")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	a := c.Analytics
	if a.ForecastHorizon <= 0 || a.RestockThreshold <= 0 || a.RestockWindow <= 0 || a.Period <= 0 {
		return fmt.Errorf("analytics horizon, restock threshold, restock window and period must be positive")
	}

	if _, err := a.Settings(); err != nil {
		return err
	}

	return nil
}

// Settings converts the analytics section into engine settings.
func (a AnalyticsConfig) Settings() (analytics.Settings, error) {
	factor, err := decimal.NewFromString(a.HighSeasonFactor)
	if err != nil {
		return analytics.Settings{}, fmt.Errorf("invalid high season factor %q: %w", a.HighSeasonFactor, err)
	}

	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return analytics.Settings{}, fmt.Errorf("invalid analytics timezone %q: %w", a.Timezone, err)
	}

	s := analytics.Settings{
		SmoothingWindow:   a.SmoothingWindow,
		PeakQuartile:      a.PeakQuartile,
		PeakMinBuckets:    a.PeakMinBuckets,
		PeakFallbackCount: a.PeakFallbackCount,
		HighSeasonFactor:  factor,
		TopN:              a.TopN,
		LowStockThreshold: a.LowStockThreshold,
		Location:          loc,
	}
	if err := s.Validate(); err != nil {
		return analytics.Settings{}, err
	}
	return s, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
