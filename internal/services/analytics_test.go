package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sales-insights/internal/analytics"
	"sales-insights/internal/ledger"
	"sales-insights/internal/models"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAnalytics(t *testing.T, opts ...Option) *Analytics {
	t.Helper()
	settings := analytics.DefaultSettings()
	settings.Location = time.UTC
	engine, err := analytics.New(settings, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	base := []Option{
		WithEngine(engine),
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return fixedNow }),
		WithCacheDir(t.TempDir()),
	}
	return NewAnalytics(append(base, opts...)...)
}

func testLedger() ([]models.Product, []models.Sale) {
	products := []models.Product{
		{ID: "p1", Name: "Espresso", CategoryID: "c1", Category: "Drinks", Price: decimal.RequireFromString("2.50"), Cost: decimal.RequireFromString("0.80"), Quantity: 3},
		{ID: "p2", Name: "Muffin", CategoryID: "c2", Category: "Bakery", Price: decimal.RequireFromString("3.00"), Cost: decimal.RequireFromString("1.00"), Quantity: 50},
	}
	var sales []models.Sale
	for i := range 10 {
		sales = append(sales, models.Sale{
			ID:            "s" + string(rune('a'+i)),
			CreatedAt:     fixedNow.AddDate(0, 0, -i).Add(-2 * time.Hour),
			PaymentMethod: "Card",
			Items: []models.SaleItem{
				{ProductID: "p1", Quantity: 2, Price: decimal.RequireFromString("2.50")},
				{ProductID: "p2", Quantity: 1, Price: decimal.RequireFromString("3.00")},
			},
		})
	}
	return products, sales
}

func TestNewAnalytics(t *testing.T) {
	a := NewAnalytics()
	if a == nil {
		t.Fatal("NewAnalytics() returned nil")
	}
	if a.current() == nil {
		t.Error("snapshot should be initialized")
	}
	if a.engine == nil {
		t.Error("engine should default to the standard settings")
	}
	if a.Defaults() != DefaultParameters() {
		t.Errorf("Defaults() = %+v", a.Defaults())
	}
}

func TestAnalytics_SetData(t *testing.T) {
	a := newTestAnalytics(t)
	products, sales := testLedger()
	a.SetData(products, sales)

	stats := a.Stats()
	if stats["products"] != 2 {
		t.Errorf("products = %v, want 2", stats["products"])
	}
	if stats["sales"] != 10 {
		t.Errorf("sales = %v, want 10", stats["sales"])
	}
	if stats["sale_items"] != 20 {
		t.Errorf("sale_items = %v, want 20", stats["sale_items"])
	}
	if stats["source"] != "memory" {
		t.Errorf("source = %v", stats["source"])
	}
}

func TestAnalytics_Queries(t *testing.T) {
	a := newTestAnalytics(t)
	products, sales := testLedger()
	a.SetData(products, sales)
	ctx := context.Background()

	forecast, err := a.Forecast(ctx, 7)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if got := forecast[len(forecast)-1]; !got.Predicted {
		t.Error("last forecast point should be a prediction")
	}

	restock, err := a.Restock(ctx, analytics.RestockOptions{ThresholdDays: 14, WindowDays: 30})
	if err != nil {
		t.Fatalf("Restock: %v", err)
	}
	if len(restock) != 1 || restock[0].ProductID != "p1" {
		t.Errorf("Restock = %+v, want only p1", restock)
	}

	perf, err := a.Performance(ctx, analytics.PerformanceOptions{PeriodDays: 30})
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}
	if perf.Summary.TransactionCount != 10 {
		t.Errorf("TransactionCount = %d, want 10", perf.Summary.TransactionCount)
	}

	seasonal, err := a.Seasonality(ctx)
	if err != nil || seasonal == nil {
		t.Fatalf("Seasonality: %v", err)
	}

	summary, err := a.SalesSummary(ctx, 7)
	if err != nil {
		t.Fatalf("SalesSummary: %v", err)
	}
	if summary.TransactionCount != 7 {
		t.Errorf("7 day summary counted %d sales", summary.TransactionCount)
	}

	inv, err := a.Inventory(ctx)
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if inv.LowStock != 1 {
		t.Errorf("LowStock = %d, want 1", inv.LowStock)
	}

	if a.Stats()["queries"] != int64(6) {
		t.Errorf("queries = %v, want 6", a.Stats()["queries"])
	}
}

func TestAnalytics_InvalidArguments(t *testing.T) {
	a := newTestAnalytics(t)

	if _, err := a.Forecast(context.Background(), 0); !errors.Is(err, analytics.ErrInvalidArgument) {
		t.Errorf("Forecast(0) error = %v", err)
	}
	if _, err := a.Restock(context.Background(), analytics.RestockOptions{}); !errors.Is(err, analytics.ErrInvalidArgument) {
		t.Errorf("Restock(zero) error = %v", err)
	}
}

func TestAnalytics_CancelledContext(t *testing.T) {
	a := newTestAnalytics(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Forecast(ctx, 7); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAnalytics_Dashboard(t *testing.T) {
	a := newTestAnalytics(t)
	products, sales := testLedger()
	a.SetData(products, sales)

	dash, err := a.Dashboard(context.Background(), DashboardParams{Horizon: 5})
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if !dash.GeneratedAt.Equal(fixedNow) {
		t.Errorf("GeneratedAt = %s, want injected clock", dash.GeneratedAt)
	}
	predicted := 0
	for _, p := range dash.Forecast {
		if p.Predicted {
			predicted++
		}
	}
	if predicted != 5 {
		t.Errorf("predicted points = %d, want 5", predicted)
	}
	if dash.Performance == nil || dash.Seasonality == nil || dash.Sales == nil {
		t.Fatal("dashboard panels missing")
	}
	if dash.Sales.PeriodDays != DefaultParameters().Period {
		t.Errorf("sales period = %d, want default", dash.Sales.PeriodDays)
	}
	if dash.Inventory.TotalProducts != 2 {
		t.Errorf("inventory products = %d", dash.Inventory.TotalProducts)
	}
}

func TestAnalytics_DashboardRejectsBadParams(t *testing.T) {
	a := newTestAnalytics(t)
	_, err := a.Dashboard(context.Background(), DashboardParams{Horizon: -1})
	if !errors.Is(err, analytics.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestAnalytics_ConcurrentAccess(t *testing.T) {
	a := newTestAnalytics(t)
	products, sales := testLedger()
	a.SetData(products, sales)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%5 == 0 {
				a.SetData(products, sales)
				return
			}
			if _, err := a.Dashboard(context.Background(), DashboardParams{}); err != nil {
				t.Errorf("Dashboard: %v", err)
			}
		}()
	}
	wg.Wait()
}

const productsCSV = `id,name,sku,category_id,category,price,cost,quantity
p1,Espresso,ESP-1,c1,Drinks,2.50,0.80,3
`

const salesCSV = `sale_id,created_at,payment_method,product_id,product_name,quantity,price,subtotal
s1,2024-03-14T09:00:00Z,Card,p1,Espresso,2,2.50,5.00
s2,2024-03-15T09:00:00Z,Cash,p1,Espresso,1,2.50,2.50
`

func writeLedger(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	products := filepath.Join(dir, "products.csv")
	sales := filepath.Join(dir, "sales.csv")
	if err := os.WriteFile(products, []byte(productsCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sales, []byte(salesCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	return products, sales
}

func TestAnalytics_LoadWithCache(t *testing.T) {
	productsPath, salesPath := writeLedger(t)
	cacheDir := t.TempDir()
	src := ledger.NewCSVSource(productsPath, salesPath, ledger.CSVOptions{Location: time.UTC}, quietLogger())

	a := newTestAnalytics(t, WithCacheDir(cacheDir))
	if err := a.Load(context.Background(), src); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.Stats()["from_cache"] != false {
		t.Error("first load should read the files")
	}

	matches, _ := filepath.Glob(filepath.Join(cacheDir, "*.gob"))
	if len(matches) != 1 {
		t.Fatalf("expected one cache file, got %v", matches)
	}

	b := newTestAnalytics(t, WithCacheDir(cacheDir))
	if err := b.Load(context.Background(), src); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if b.Stats()["from_cache"] != true {
		t.Error("second load should come from cache")
	}
	if b.Stats()["sales"] != 2 {
		t.Errorf("cached sales = %v", b.Stats()["sales"])
	}

	summary, err := b.SalesSummary(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if !summary.TotalRevenue.Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("revenue from cached snapshot = %s", summary.TotalRevenue)
	}
}

func TestAnalytics_LoadInvalidatesStaleCache(t *testing.T) {
	productsPath, salesPath := writeLedger(t)
	cacheDir := t.TempDir()
	src := ledger.NewCSVSource(productsPath, salesPath, ledger.CSVOptions{Location: time.UTC}, quietLogger())

	a := newTestAnalytics(t, WithCacheDir(cacheDir))
	if err := a.Load(context.Background(), src); err != nil {
		t.Fatal(err)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(salesPath, future, future); err != nil {
		t.Fatal(err)
	}

	b := newTestAnalytics(t, WithCacheDir(cacheDir))
	if err := b.Load(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	if b.Stats()["from_cache"] != false {
		t.Error("modified files must bypass the cache")
	}
}

func writeStore(t *testing.T, dir, productID string, age time.Duration) *ledger.CSVSource {
	t.Helper()
	products := filepath.Join(dir, "products.csv")
	sales := filepath.Join(dir, "sales.csv")
	files := map[string]string{
		products: "id,name,price,cost,quantity\n" + productID + ",Item,2.50,1.00,5\n",
		sales:    "sale_id,created_at,product_id,quantity,price\ns1,2024-03-14 09:00:00," + productID + ",1,2.50\n",
	}
	stamp := time.Now().Add(-age)
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, stamp, stamp); err != nil {
			t.Fatal(err)
		}
	}
	return ledger.NewCSVSource(products, sales, ledger.CSVOptions{Location: time.UTC}, quietLogger())
}

func TestAnalytics_LoadKeepsLedgersApart(t *testing.T) {
	cacheDir := t.TempDir()
	storeA := writeStore(t, t.TempDir(), "a1", time.Minute)
	storeB := writeStore(t, t.TempDir(), "b1", time.Hour)

	a := newTestAnalytics(t, WithCacheDir(cacheDir))
	if err := a.Load(context.Background(), storeA); err != nil {
		t.Fatal(err)
	}

	b := newTestAnalytics(t, WithCacheDir(cacheDir))
	if err := b.Load(context.Background(), storeB); err != nil {
		t.Fatal(err)
	}
	if b.Stats()["from_cache"] != false {
		t.Error("a ledger in another directory must not be served from the cache")
	}
	if products := b.current().Products; len(products) != 1 || products[0].ID != "b1" {
		t.Errorf("products = %+v, want only b1", products)
	}

	matches, _ := filepath.Glob(filepath.Join(cacheDir, "*.gob"))
	if len(matches) != 2 {
		t.Errorf("expected one cache file per ledger, got %v", matches)
	}
}

func TestAnalytics_LoadCacheTracksTimezone(t *testing.T) {
	cacheDir := t.TempDir()
	dir := t.TempDir()
	utc := writeStore(t, dir, "p1", time.Hour)
	products, sales := utc.Paths()
	tokyo := ledger.NewCSVSource(products, sales, ledger.CSVOptions{Location: time.FixedZone("JST", 9*60*60)}, quietLogger())

	a := newTestAnalytics(t, WithCacheDir(cacheDir))
	if err := a.Load(context.Background(), utc); err != nil {
		t.Fatal(err)
	}

	b := newTestAnalytics(t, WithCacheDir(cacheDir))
	if err := b.Load(context.Background(), tokyo); err != nil {
		t.Fatal(err)
	}
	if b.Stats()["from_cache"] != false {
		t.Error("timestamps parsed in another zone must not be reused")
	}
}

func TestAnalytics_Reload(t *testing.T) {
	dir := t.TempDir()
	src := writeStore(t, dir, "p1", time.Hour)

	a := newTestAnalytics(t)
	if err := a.Load(context.Background(), src); err != nil {
		t.Fatal(err)
	}

	productsPath, _ := src.Paths()
	content := "id,name,price,cost,quantity\np1,Item,2.50,1.00,5\np2,Other,1.00,0.50,9\n"
	if err := os.WriteFile(productsPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(productsPath, future, future); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Reload(ctx, src, 10*time.Millisecond, time.Second)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for len(a.current().Products) != 2 {
		if time.Now().After(deadline) {
			t.Fatal("snapshot was not reloaded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Reload did not stop after cancel")
	}
}

func TestAnalytics_ReloadKeepsSnapshotOnError(t *testing.T) {
	dir := t.TempDir()
	src := writeStore(t, dir, "p1", time.Hour)

	a := newTestAnalytics(t, WithCacheDir(""))
	if err := a.Load(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	productsPath, _ := src.Paths()
	if err := os.Remove(productsPath); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	a.Reload(ctx, src, 10*time.Millisecond, time.Second)

	if products := a.current().Products; len(products) != 1 || products[0].ID != "p1" {
		t.Errorf("products = %+v, want the previous snapshot", products)
	}
}

func TestAnalytics_LoadError(t *testing.T) {
	a := newTestAnalytics(t)
	src := ledger.NewCSVSource("/nonexistent/p.csv", "/nonexistent/s.csv", ledger.CSVOptions{}, quietLogger())
	if err := a.Load(context.Background(), src); err == nil {
		t.Error("expected error for missing files")
	}
}

func BenchmarkDashboard(b *testing.B) {
	a := NewAnalytics(WithLogger(quietLogger()), WithCacheDir(""))
	products, sales := testLedger()
	a.SetData(products, sales)

	for b.Loop() {
		if _, err := a.Dashboard(context.Background(), DashboardParams{}); err != nil {
			b.Fatal(err)
		}
	}
}
