package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sales-insights/internal/analytics"
	"sales-insights/internal/config"
	"sales-insights/internal/middleware"
	"sales-insights/internal/models"
	"sales-insights/internal/services"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Ledger: config.LedgerConfig{Source: config.SourceCSV},
		Security: config.SecurityConfig{
			EnableRateLimit: true,
			RateLimitRPS:    1000,
			RateLimitBurst:  1000,
			AllowedOrigins:  []string{"http://localhost:8084"},
		},
		Analytics: config.AnalyticsConfig{
			ForecastHorizon:  14,
			RestockThreshold: 14,
			RestockWindow:    30,
			Period:           30,
		},
	}
}

func newTestAnalytics() *services.Analytics {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	settings := analytics.DefaultSettings()
	settings.Location = time.UTC
	a := newAnalytics(testConfig(), analytics.MustNew(settings, quietLogger()), quietLogger())
	services.WithClock(func() time.Time { return now })(a)

	products := []models.Product{
		{ID: "P001", Name: "Laptop", Category: "Electronics", Price: decimal.RequireFromString("999.99"), Cost: decimal.RequireFromString("750"), Quantity: 3},
		{ID: "P002", Name: "Mouse", Category: "Electronics", Price: decimal.RequireFromString("29.99"), Cost: decimal.RequireFromString("12"), Quantity: 80},
		{ID: "P003", Name: "Keyboard", Category: "Electronics", Price: decimal.RequireFromString("79.99"), Cost: decimal.RequireFromString("40"), Quantity: 75},
	}
	sales := []models.Sale{
		{ID: "T001", CreatedAt: now.AddDate(0, 0, -3), PaymentMethod: "Card", Items: []models.SaleItem{{ProductID: "P001", Quantity: 1, Price: decimal.RequireFromString("999.99")}}},
		{ID: "T002", CreatedAt: now.AddDate(0, 0, -2), PaymentMethod: "Cash", Items: []models.SaleItem{{ProductID: "P002", Quantity: 2, Price: decimal.RequireFromString("29.99")}}},
		{ID: "T003", CreatedAt: now.AddDate(0, 0, -1), PaymentMethod: "Card", Items: []models.SaleItem{
			{ProductID: "P003", Quantity: 1, Price: decimal.RequireFromString("79.99")},
			{ProductID: "P001", Quantity: 1, Price: decimal.RequireFromString("999.99")},
		}},
	}
	a.SetData(products, sales)
	return a
}

func newTestHandler() http.Handler {
	cfg := testConfig()
	return newHandler(cfg, newTestAnalytics(), middleware.NewRateLimiter(cfg.Security), quietLogger())
}

func TestServer_Routes(t *testing.T) {
	handler := newTestHandler()

	tests := []struct {
		path           string
		expectedStatus int
		contentType    string
	}{
		{"/", http.StatusOK, "text/html"},
		{"/api/forecast", http.StatusOK, "application/json"},
		{"/api/restock", http.StatusOK, "application/json"},
		{"/api/performance", http.StatusOK, "application/json"},
		{"/api/seasonality", http.StatusOK, "application/json"},
		{"/api/sales-summary", http.StatusOK, "application/json"},
		{"/api/inventory", http.StatusOK, "application/json"},
		{"/api/dashboard", http.StatusOK, "application/json"},
		{"/api/export/report.xlsx", http.StatusOK, "spreadsheetml"},
		{"/health", http.StatusOK, "application/json"},
		{"/admin/stats", http.StatusOK, "application/json"},
		{"/api/forecast?horizon=-1", http.StatusBadRequest, "application/json"},
		{"/nope", http.StatusNotFound, "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)

			handler.ServeHTTP(w, r)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatus)
			}

			ct := w.Header().Get("Content-Type")
			if !strings.Contains(ct, tt.contentType) {
				t.Errorf("content-type = %q, want %q", ct, tt.contentType)
			}

			if tt.contentType == "application/json" {
				var result any
				if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
					t.Errorf("invalid json: %v", err)
				}
			}

			if w.Header().Get("X-Request-ID") == "" {
				t.Error("every response should carry a request id")
			}
		})
	}
}

func TestServer_ConfiguredDefaults(t *testing.T) {
	handler := newTestHandler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/forecast", nil))

	var response struct {
		Data []models.ForecastPoint `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}

	predicted := 0
	for _, p := range response.Data {
		if p.Predicted {
			predicted++
		}
	}
	if predicted != 14 {
		t.Errorf("predicted = %d, want the configured horizon of 14", predicted)
	}
}

func TestServer_SSERoutes(t *testing.T) {
	handler := newTestHandler()

	sseRoutes := []string{
		"/sse/forecast",
		"/sse/restock",
		"/sse/performance",
		"/sse/seasonality",
		"/sse/refresh-all",
	}

	for _, route := range sseRoutes {
		t.Run(route, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, route, nil)

			handler.ServeHTTP(w, r)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
				t.Errorf("content-type = %q, should contain 'text/event-stream'", ct)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
				t.Errorf("cache-control = %q, want 'no-cache'", cc)
			}
		})
	}
}

func TestServer_ErrorHandling(t *testing.T) {
	handler := newTestHandler()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodPost, "/api/forecast", http.StatusMethodNotAllowed},
		{http.MethodPut, "/", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/health", http.StatusMethodNotAllowed},
		{http.MethodPatch, "/api/dashboard", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(tt.method, tt.path, nil)

			handler.ServeHTTP(w, r)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestServer_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimitRPS = 1
	cfg.Security.RateLimitBurst = 1
	handler := newHandler(cfg, newTestAnalytics(), middleware.NewRateLimiter(cfg.Security), quietLogger())

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}

func TestDashboardTemplate(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	newTestHandler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if cc := w.Header().Get("Cache-Control"); cc != cacheMaxAge {
		t.Errorf("cache-control = %q, want %q", cc, cacheMaxAge)
	}

	body := w.Body.String()
	expectedComponents := []string{
		dashboardTitle,
		"Sales forecast",
		"Restock recommendations",
		"Product performance",
		"Seasonal patterns",
		"/sse/refresh-all?horizon=14&amp;period=30",
	}
	for _, component := range expectedComponents {
		if !strings.Contains(body, component) {
			t.Errorf("dashboard should contain %q", component)
		}
	}
}

func TestOpenSource(t *testing.T) {
	dir := t.TempDir()
	products := filepath.Join(dir, "products.csv")
	sales := filepath.Join(dir, "sales.csv")
	if err := os.WriteFile(products, []byte("id,name,price,cost,quantity\np1,Tea,2,1,4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sales, []byte("sale_id,created_at,product_id,quantity,price\ns1,2024-03-14 10:00:00,p1,1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := openSource(context.Background(), config.LedgerConfig{
		Source:      config.SourceCSV,
		ProductsCSV: products,
		SalesCSV:    sales,
	}, time.UTC, quietLogger())
	if err != nil {
		t.Fatalf("openSource() failed: %v", err)
	}
	defer src.Close()

	got, err := src.Sales(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "s1" {
		t.Errorf("sales = %+v", got)
	}

	if _, err := openSource(context.Background(), config.LedgerConfig{Source: "mongo"}, time.UTC, quietLogger()); err == nil {
		t.Error("expected error for unknown source")
	}
}
