package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sales-insights/internal/analytics"
	"sales-insights/internal/errors"
	"sales-insights/internal/observability"
	"sales-insights/internal/services"
)

const cacheControl = "public, max-age=300"

var cacheHeaders = map[string]string{"Cache-Control": cacheControl}

type APIHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

// queryInt reads an integer query parameter. A missing value yields
// fallback; range checks belong to the engine.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.BadRequest(fmt.Sprintf("query parameter %q must be an integer", name))
	}
	return n, nil
}

// dashboardParams collects the shared query parameters of the dashboard
// endpoints. Missing values fall back to the service defaults.
func dashboardParams(r *http.Request, d services.Defaults) (services.DashboardParams, error) {
	var (
		p   services.DashboardParams
		err error
	)
	if p.Horizon, err = queryInt(r, "horizon", d.ForecastHorizon); err != nil {
		return p, err
	}
	if p.RestockThreshold, err = queryInt(r, "threshold", d.RestockThreshold); err != nil {
		return p, err
	}
	if p.RestockWindow, err = queryInt(r, "window", d.RestockWindow); err != nil {
		return p, err
	}
	if p.Period, err = queryInt(r, "period", d.Period); err != nil {
		return p, err
	}
	if p.Limit, err = queryInt(r, "limit", 0); err != nil {
		return p, err
	}
	p.CategoryID = r.URL.Query().Get("category")
	return p, nil
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}

func (h *APIHandlers) HandleForecast(w http.ResponseWriter, r *http.Request) {
	horizon, err := queryInt(r, "horizon", h.analytics.Defaults().ForecastHorizon)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data, err := h.analytics.Forecast(r.Context(), horizon)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, data, cacheHeaders)
}

func (h *APIHandlers) HandleRestock(w http.ResponseWriter, r *http.Request) {
	p, err := dashboardParams(r, h.analytics.Defaults())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data, err := h.analytics.Restock(r.Context(), analytics.RestockOptions{
		ThresholdDays: p.RestockThreshold,
		WindowDays:    p.RestockWindow,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, data, cacheHeaders)
}

func (h *APIHandlers) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	p, err := dashboardParams(r, h.analytics.Defaults())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data, err := h.analytics.Performance(r.Context(), analytics.PerformanceOptions{
		PeriodDays: p.Period,
		CategoryID: p.CategoryID,
		Limit:      p.Limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, data, cacheHeaders)
}

func (h *APIHandlers) HandleSeasonality(w http.ResponseWriter, r *http.Request) {
	data, err := h.analytics.Seasonality(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, data, cacheHeaders)
}

func (h *APIHandlers) HandleSalesSummary(w http.ResponseWriter, r *http.Request) {
	period, err := queryInt(r, "period", h.analytics.Defaults().Period)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data, err := h.analytics.SalesSummary(r.Context(), period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, data, cacheHeaders)
}

func (h *APIHandlers) HandleInventory(w http.ResponseWriter, r *http.Request) {
	data, err := h.analytics.Inventory(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, data, cacheHeaders)
}

func (h *APIHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	p, err := dashboardParams(r, h.analytics.Defaults())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data, err := h.analytics.Dashboard(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, data, cacheHeaders)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.analytics.Stats())
}
