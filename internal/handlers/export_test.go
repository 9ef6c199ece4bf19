package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportHandlers_HandleReport(t *testing.T) {
	handlers := NewExportHandlers(createTestAnalytics(), quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/export/report.xlsx?period=7", nil)
	w := httptest.NewRecorder()

	handlers.HandleReport(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=sales-report-2024-03-15.xlsx", w.Header().Get("Content-Disposition"))

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetPerformance, sheetRestock, sheetSales}, f.GetSheetList())

	perf, err := f.GetRows(sheetPerformance)
	require.NoError(t, err)
	require.NotEmpty(t, perf)
	assert.Equal(t, "Product", perf[0][0])
	assert.Equal(t, "Mouse", perf[1][0])
	assert.Equal(t, "14", perf[1][3])
	assert.Equal(t, "Laptop", perf[2][0])

	restock, err := f.GetRows(sheetRestock)
	require.NoError(t, err)
	require.Len(t, restock, 3)
	assert.Equal(t, "Desk <Oak>", restock[1][0])
	assert.Equal(t, "high", restock[1][8])

	sales, err := f.GetRows(sheetSales)
	require.NoError(t, err)
	assert.Equal(t, []string{"Transactions", "7"}, sales[1])
}

func TestExportHandlers_BadParams(t *testing.T) {
	handlers := NewExportHandlers(createTestAnalytics(), quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/export/report.xlsx?horizon=abc", nil)
	w := httptest.NewRecorder()

	handlers.HandleReport(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(w.Body.String(), "BAD_REQUEST"))
}
