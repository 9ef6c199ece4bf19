package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"sales-insights/internal/models"
)

const (
	defaultBatchSize = 1000
	defaultWorkers   = 4
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
}

type CSVOptions struct {
	BatchSize int
	Workers   int
	// Location is used for timestamps without a zone offset.
	Location *time.Location
}

// CSVSource reads a products file and a sales file with one row per sale
// item. Rows that fail to parse are skipped and counted.
//
// Products: id,name,sku,category_id,category,price,cost,quantity
// Sales:    sale_id,created_at,payment_method,product_id,product_name,quantity,price,subtotal
type CSVSource struct {
	productsPath string
	salesPath    string
	opts         CSVOptions
	logger       *slog.Logger
	skipped      atomic.Int64
}

func NewCSVSource(productsPath, salesPath string, opts CSVOptions, logger *slog.Logger) *CSVSource {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSource{
		productsPath: productsPath,
		salesPath:    salesPath,
		opts:         opts,
		logger:       logger,
	}
}

func (s *CSVSource) Name() string {
	return fmt.Sprintf("csv:%s+%s", filepath.Base(s.productsPath), filepath.Base(s.salesPath))
}

// CacheKey names both files by absolute path together with the zone used
// for timestamps that carry no offset.
func (s *CSVSource) CacheKey() string {
	return fmt.Sprintf("csv:%s+%s@%s", absPath(s.productsPath), absPath(s.salesPath), s.opts.Location)
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Paths returns the products and sales file paths.
func (s *CSVSource) Paths() (string, string) {
	return s.productsPath, s.salesPath
}

func (s *CSVSource) Close() error { return nil }

// Skipped reports how many rows were rejected across all reads.
func (s *CSVSource) Skipped() int64 {
	return s.skipped.Load()
}

// ModTime is the most recent modification time of the two files.
func (s *CSVSource) ModTime() (time.Time, error) {
	var latest time.Time
	for _, path := range []string{s.productsPath, s.salesPath} {
		info, err := os.Stat(path)
		if err != nil {
			return time.Time{}, err
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}

func (s *CSVSource) Products(ctx context.Context) ([]models.Product, error) {
	products, skipped, err := readCSV(ctx, s.productsPath, []string{"id"}, s.opts, parseProduct)
	if err != nil {
		return nil, err
	}
	s.noteSkipped(s.productsPath, skipped)
	return products, nil
}

func (s *CSVSource) Sales(ctx context.Context) ([]models.Sale, error) {
	parse := func(cols columns, rec []string) (saleRow, error) {
		return parseSaleRow(cols, rec, s.opts.Location)
	}
	rows, skipped, err := readCSV(ctx, s.salesPath, []string{"sale_id", "product_id", "quantity", "price"}, s.opts, parse)
	if err != nil {
		return nil, err
	}
	s.noteSkipped(s.salesPath, skipped)
	return groupSales(rows), nil
}

func (s *CSVSource) noteSkipped(path string, skipped int64) {
	if skipped == 0 {
		return
	}
	s.skipped.Add(skipped)
	s.logger.Warn("skipped malformed csv rows", "file", path, "rows", skipped)
}

type columns map[string]int

func (c columns) get(rec []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (c columns) money(rec []string, name string) (decimal.Decimal, error) {
	v := c.get(rec, name)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

func (c columns) integer(rec []string, name string) (int, error) {
	v := c.get(rec, name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// readCSV parses the file in batches, fanning each batch out to a bounded
// set of workers. Output order matches file order.
func readCSV[T any](ctx context.Context, path string, required []string, opts CSVOptions, parse func(columns, []string) (T, error)) ([]T, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("%s: empty file", path)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%s: read header: %w", path, err)
	}

	cols := make(columns, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, 0, fmt.Errorf("%s: missing column %q", path, name)
		}
	}

	var (
		out     []T
		skipped atomic.Int64
		batch   = make([][]string, 0, opts.BatchSize)
	)

	flush := func() error {
		results := make([]T, len(batch))
		ok := make([]bool, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for i, rec := range batch {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				v, err := parse(cols, rec)
				if err != nil {
					skipped.Add(1)
					return nil
				}
				results[i] = v
				ok[i] = true
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i := range results {
			if ok[i] {
				out = append(out, results[i])
			}
		}
		batch = batch[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped.Add(1)
				continue
			}
			return nil, 0, fmt.Errorf("%s: %w", path, err)
		}
		batch = append(batch, rec)
		if len(batch) >= opts.BatchSize {
			if err := flush(); err != nil {
				return nil, 0, err
			}
		}
	}
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return nil, 0, err
		}
	}

	return out, skipped.Load(), nil
}

func parseProduct(cols columns, rec []string) (models.Product, error) {
	id := cols.get(rec, "id")
	if id == "" {
		return models.Product{}, errors.New("missing id")
	}
	price, err := cols.money(rec, "price")
	if err != nil {
		return models.Product{}, err
	}
	cost, err := cols.money(rec, "cost")
	if err != nil {
		return models.Product{}, err
	}
	qty, err := cols.integer(rec, "quantity")
	if err != nil {
		return models.Product{}, err
	}
	return models.Product{
		ID:         id,
		Name:       cols.get(rec, "name"),
		SKU:        cols.get(rec, "sku"),
		CategoryID: cols.get(rec, "category_id"),
		Category:   cols.get(rec, "category"),
		Price:      price,
		Cost:       cost,
		Quantity:   qty,
	}, nil
}

type saleRow struct {
	saleID    string
	createdAt time.Time
	method    string
	item      models.SaleItem
}

func parseSaleRow(cols columns, rec []string, loc *time.Location) (saleRow, error) {
	saleID := cols.get(rec, "sale_id")
	if saleID == "" {
		return saleRow{}, errors.New("missing sale_id")
	}
	// An unreadable timestamp leaves the sale undated, the same as a blank one.
	createdAt, err := parseTimestamp(cols.get(rec, "created_at"), loc)
	if err != nil {
		createdAt = time.Time{}
	}
	qty, err := cols.integer(rec, "quantity")
	if err != nil {
		return saleRow{}, err
	}
	price, err := cols.money(rec, "price")
	if err != nil {
		return saleRow{}, err
	}
	subtotal, err := cols.money(rec, "subtotal")
	if err != nil {
		return saleRow{}, err
	}
	return saleRow{
		saleID:    saleID,
		createdAt: createdAt,
		method:    cols.get(rec, "payment_method"),
		item: models.SaleItem{
			ProductID:   cols.get(rec, "product_id"),
			ProductName: cols.get(rec, "product_name"),
			Quantity:    qty,
			Price:       price,
			Subtotal:    subtotal,
		},
	}, nil
}

// parseTimestamp accepts the layouts the point of sale has exported over
// time. An empty value is an undated sale, not an error.
func parseTimestamp(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("created_at: unrecognised timestamp %q", value)
}

// groupSales folds item rows into sales, keeping first-seen order. The first
// row of a sale supplies its timestamp and payment method.
func groupSales(rows []saleRow) []models.Sale {
	index := make(map[string]int)
	sales := make([]models.Sale, 0)
	for _, row := range rows {
		i, ok := index[row.saleID]
		if !ok {
			i = len(sales)
			index[row.saleID] = i
			sales = append(sales, models.Sale{
				ID:            row.saleID,
				CreatedAt:     row.createdAt,
				PaymentMethod: row.method,
			})
		}
		sales[i].Items = append(sales[i].Items, row.item)
	}
	for i := range sales {
		sales[i].Total = sales[i].ComputedTotal()
	}
	return sales
}
