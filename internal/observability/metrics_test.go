package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestLedgerMetricsExposedThroughRegistry(t *testing.T) {
	metrics := NewMetrics()
	ledger := NewLedgerMetrics(metrics.Registerer())

	ledger.StockMovement("sale")
	ledger.StockMovement("sale")
	ledger.StockRejected("insufficient_stock")
	ledger.AlertOpened("out_of_stock")
	ledger.AlertResolved(2)
	ledger.AlertResolved(0)
	ledger.NumberingRetry("invoice")
	ledger.NumberingExhausted("quotation")

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_stock_movements_total{type="sale"} 2`)
	require.Contains(t, body, `odyssey_stock_rejections_total{reason="insufficient_stock"} 1`)
	require.Contains(t, body, `odyssey_stock_alerts_opened_total{alert_type="out_of_stock"} 1`)
	require.Contains(t, body, `odyssey_stock_alerts_resolved_total 2`)
	require.Contains(t, body, `odyssey_numbering_retries_total{doc_type="invoice"} 1`)
	require.Contains(t, body, `odyssey_numbering_exhausted_total{doc_type="quotation"} 1`)
}

func TestNilLedgerMetricsIsSafe(t *testing.T) {
	var ledger *LedgerMetrics
	require.NotPanics(t, func() {
		ledger.StockMovement("sale")
		ledger.AlertResolved(1)
		ledger.NumberingRetry("invoice")
	})
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/v1/inventory/items/{itemID}/stock/add")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/items/abc/stock/add", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `http_requests_total{code="418",route="/api/v1/inventory/items/{itemID}/stock/add"} 1`)
	require.Contains(t, body, `http_request_duration_seconds_bucket{route="/api/v1/inventory/items/{itemID}/stock/add"`)
}

func TestNilMetricsHandlerUnavailable(t *testing.T) {
	var metrics *Metrics
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsIncludesRuntimeCollectors(t *testing.T) {
	body := scrape(t, NewMetrics())
	require.Contains(t, body, "go_goroutines")
	require.Contains(t, body, "odyssey_http_requests_in_flight 0")
}
