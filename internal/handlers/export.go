package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"sales-insights/internal/errors"
	"sales-insights/internal/models"
	"sales-insights/internal/observability"
	"sales-insights/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	sheetPerformance = "Performance"
	sheetRestock     = "Restock"
	sheetSales       = "Sales"
)

// ExportHandlers serve the dashboard as a downloadable workbook.
type ExportHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewExportHandlers(analytics *services.Analytics, logger *slog.Logger) *ExportHandlers {
	return &ExportHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

func (h *ExportHandlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	p, err := dashboardParams(r, h.analytics.Defaults())
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	dash, err := h.analytics.Dashboard(r.Context(), p)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	f, err := buildWorkbook(dash)
	if err != nil {
		errors.WriteError(w, h.logger, errors.Wrap(err, errors.CodeInternal, "failed to build report"), requestID)
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("sales-report-%s.xlsx", dash.GeneratedAt.Format("2006-01-02"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	if err := f.Write(w); err != nil {
		h.logger.Error("write workbook", "error", err, "request_id", requestID)
	}
}

func buildWorkbook(dash *models.Dashboard) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetPerformance); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{sheetRestock, sheetSales} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	writers := []func(*excelize.File, *models.Dashboard) error{
		writePerformanceSheet,
		writeRestockSheet,
		writeSalesSheet,
	}
	for _, write := range writers {
		if err := write(f, dash); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func writePerformanceSheet(f *excelize.File, dash *models.Dashboard) error {
	rows := [][]any{{"Product", "SKU", "Category", "Sold", "Revenue", "Cost", "Profit", "Margin %", "Share %", "Stock"}}
	for _, p := range dash.Performance.TopSelling {
		rows = append(rows, []any{
			p.Name, p.SKU, p.Category, p.QuantitySold,
			money(p.Revenue), money(p.CostOfGoods), money(p.Profit),
			money(p.ProfitMargin), money(p.ContributionToSales), p.CurrentStock,
		})
	}
	s := dash.Performance.Summary
	rows = append(rows,
		[]any{},
		[]any{"Period (days)", dash.Performance.PeriodDays},
		[]any{"Transactions", s.TransactionCount},
		[]any{"Units sold", s.TotalQuantitySold},
		[]any{"Revenue", money(s.TotalRevenue)},
		[]any{"Profit", money(s.TotalProfit)},
	)
	return writeRows(f, sheetPerformance, rows)
}

func writeRestockSheet(f *excelize.File, dash *models.Dashboard) error {
	rows := [][]any{{"Product", "SKU", "Category", "Stock", "Per day", "Days left", "Reorder qty", "Reorder cost", "Urgency"}}
	for _, item := range dash.Restock {
		rows = append(rows, []any{
			item.Name, item.SKU, item.Category, item.Quantity,
			money(item.DailySalesRate), money(item.DaysUntilOutOfStock),
			item.RecommendedQuantity, money(item.ReorderCost), string(item.Urgency),
		})
	}
	return writeRows(f, sheetRestock, rows)
}

func writeSalesSheet(f *excelize.File, dash *models.Dashboard) error {
	s := dash.Sales
	rows := [][]any{
		{"Period (days)", s.PeriodDays},
		{"Transactions", s.TransactionCount},
		{"Revenue", money(s.TotalRevenue)},
		{"Items sold", s.ItemsSold},
		{"Average ticket", money(s.AverageTicket)},
		{},
		{"Payment method", "Count", "Total"},
	}
	for _, pm := range s.ByPaymentMethod {
		rows = append(rows, []any{pm.Method, pm.Count, money(pm.Total)})
	}
	rows = append(rows, []any{}, []any{"Month", "Transactions", "Revenue"})
	for _, b := range s.ByMonth {
		rows = append(rows, []any{b.Label, b.Transactions, money(b.Revenue)})
	}
	return writeRows(f, sheetSales, rows)
}
