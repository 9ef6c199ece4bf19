package handlers

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"sales-insights/internal/analytics"
	"sales-insights/internal/errors"
	"sales-insights/internal/models"
	"sales-insights/internal/services"
)

const maxTableRows = 50

var restockTableTemplate = template.Must(template.New("restockTable").Parse(`
<div id="restock-content">
{{if .Rows}}<table class="modern-table">
<thead><tr><th>Product</th><th>Category</th><th>Stock</th><th>Per day</th><th>Days left</th><th>Reorder</th><th>Cost</th><th>Urgency</th></tr></thead>
<tbody>
{{range .Rows}}<tr>
<td>{{.Name}}</td>
<td><span class="category-badge">{{.Category}}</span></td>
<td>{{.Quantity}}</td>
<td>{{.DailySalesRate.StringFixed 2}}</td>
<td>{{.DaysUntilOutOfStock.StringFixed 1}}</td>
<td>{{.RecommendedQuantity}}</td>
<td><strong>${{.ReorderCost.StringFixed 2}}</strong></td>
<td><span class="urgency-{{.Urgency}}">{{.Urgency}}</span></td>
</tr>{{end}}
</tbody>
</table>{{else}}<p class="empty">Nothing needs restocking.</p>{{end}}
</div>`))

var performanceTableTemplate = template.Must(template.New("performanceTable").Parse(`
<div id="performance-content">
<p class="summary">{{.Summary.TransactionCount}} sales, {{.Summary.TotalQuantitySold}} units, ${{.Summary.TotalRevenue.StringFixed 2}} revenue, ${{.Summary.TotalProfit.StringFixed 2}} profit over {{.PeriodDays}} days</p>
<table class="modern-table">
<thead><tr><th>Product</th><th>Category</th><th>Sold</th><th>Revenue</th><th>Profit</th><th>Margin</th><th>Share</th></tr></thead>
<tbody>
{{range .TopSelling}}<tr>
<td>{{.Name}}</td>
<td><span class="category-badge">{{.Category}}</span></td>
<td>{{.QuantitySold}}</td>
<td><strong>${{.Revenue.StringFixed 2}}</strong></td>
<td>${{.Profit.StringFixed 2}}</td>
<td>{{.ProfitMargin.StringFixed 2}}%</td>
<td>{{.ContributionToSales.StringFixed 2}}%</td>
</tr>{{end}}
</tbody>
</table>
</div>`))

var seasonalityTemplate = template.Must(template.New("seasonality").Funcs(template.FuncMap{"join": strings.Join}).Parse(`
<div id="seasonality-content">
<p class="recommendation">{{.StaffingRecommendation}}</p>
{{if .HighSeasonMonths}}<p>High season: {{join .HighSeasonMonths ", "}}</p>{{end}}
</div>`))

var panelErrorTemplate = template.Must(template.New("panelError").Parse(
	`<div id="{{.ID}}" class="panel-error">{{.Message}}</div>`))

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf strings.Builder
	err := tmpl.Execute(&buf, data)
	return buf.String(), err
}

func (h *SSEHandlers) renderRestockTable(items []models.RestockItem) (string, error) {
	if len(items) > maxTableRows {
		items = items[:maxTableRows]
	}
	return render(restockTableTemplate, struct{ Rows []models.RestockItem }{items})
}

func (h *SSEHandlers) renderPerformanceTable(report *models.PerformanceReport) (string, error) {
	return render(performanceTableTemplate, report)
}

func (h *SSEHandlers) renderSeasonality(patterns *models.SeasonalPatterns) (string, error) {
	return render(seasonalityTemplate, patterns.Recommendations)
}

// patchError replaces a panel with an error message so the page does not
// wait on a stream that will never deliver.
func (h *SSEHandlers) patchError(sse *datastar.ServerSentEventGenerator, panelID, op string, err error) {
	h.logger.Error("sse panel failed", "panel", panelID, "op", op, "error", err)
	msg := "Could not load this panel: " + errors.From(err).Message
	html, renderErr := render(panelErrorTemplate, struct{ ID, Message string }{panelID, msg})
	if renderErr != nil {
		return
	}
	_ = sse.PatchElements(html)
}

func (h *SSEHandlers) patchSignals(sse *datastar.ServerSentEventGenerator, signals map[string]any) bool {
	data, err := json.Marshal(signals)
	if err != nil {
		h.logger.Error("marshal signals", "error", err)
		return false
	}
	if err := sse.PatchSignals(data); err != nil {
		h.logger.Warn("patch signals", "error", err)
		return false
	}
	return true
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleForecast(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	defer flush(w)

	horizon, err := queryInt(r, "horizon", h.analytics.Defaults().ForecastHorizon)
	if err != nil {
		h.patchError(sse, "forecast-content", "forecast", err)
		return
	}
	data, err := h.analytics.Forecast(r.Context(), horizon)
	if err != nil {
		h.patchError(sse, "forecast-content", "forecast", err)
		return
	}

	if h.patchSignals(sse, map[string]any{"forecastData": data}) {
		_ = sse.PatchElements(`<div id="forecast-content">Forecast chart data loaded</div>`)
	}
}

func (h *SSEHandlers) HandleRestock(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	defer flush(w)

	p, err := dashboardParams(r, h.analytics.Defaults())
	if err != nil {
		h.patchError(sse, "restock-content", "restock", err)
		return
	}
	items, err := h.analytics.Restock(r.Context(), analytics.RestockOptions{
		ThresholdDays: p.RestockThreshold,
		WindowDays:    p.RestockWindow,
	})
	if err != nil {
		h.patchError(sse, "restock-content", "restock", err)
		return
	}

	html, err := h.renderRestockTable(items)
	if err != nil {
		h.logger.Error("render restock table", "error", err)
		return
	}
	_ = sse.PatchElements(html)
}

func (h *SSEHandlers) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	defer flush(w)

	p, err := dashboardParams(r, h.analytics.Defaults())
	if err != nil {
		h.patchError(sse, "performance-content", "performance", err)
		return
	}
	report, err := h.analytics.Performance(r.Context(), analytics.PerformanceOptions{
		PeriodDays: p.Period,
		CategoryID: p.CategoryID,
		Limit:      p.Limit,
	})
	if err != nil {
		h.patchError(sse, "performance-content", "performance", err)
		return
	}

	h.patchSignals(sse, map[string]any{"performanceData": report})
	html, err := h.renderPerformanceTable(report)
	if err != nil {
		h.logger.Error("render performance table", "error", err)
		return
	}
	_ = sse.PatchElements(html)
}

func (h *SSEHandlers) HandleSeasonality(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	defer flush(w)

	patterns, err := h.analytics.Seasonality(r.Context())
	if err != nil {
		h.patchError(sse, "seasonality-content", "seasonality", err)
		return
	}

	h.patchSignals(sse, map[string]any{"seasonalData": patterns})
	html, err := h.renderSeasonality(patterns)
	if err != nil {
		h.logger.Error("render seasonality", "error", err)
		return
	}
	_ = sse.PatchElements(html)
}

// HandleRefreshAll recomputes every panel from a single dashboard run.
func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	defer flush(w)

	p, err := dashboardParams(r, h.analytics.Defaults())
	if err != nil {
		h.patchError(sse, "dashboard-content", "refresh-all", err)
		return
	}
	dash, err := h.analytics.Dashboard(r.Context(), p)
	if err != nil {
		h.patchError(sse, "dashboard-content", "refresh-all", err)
		return
	}

	for _, panel := range []struct {
		name string
		fn   func() (string, error)
	}{
		{"restock", func() (string, error) { return h.renderRestockTable(dash.Restock) }},
		{"performance", func() (string, error) { return h.renderPerformanceTable(dash.Performance) }},
		{"seasonality", func() (string, error) { return h.renderSeasonality(dash.Seasonality) }},
	} {
		html, err := panel.fn()
		if err != nil {
			h.logger.Error("render panel", "panel", panel.name, "error", err)
			return
		}
		_ = sse.PatchElements(html)
	}

	h.patchSignals(sse, map[string]any{
		"forecastData":    dash.Forecast,
		"performanceData": dash.Performance,
		"seasonalData":    dash.Seasonality,
		"salesData":       dash.Sales,
		"inventoryData":   dash.Inventory,
	})
}
