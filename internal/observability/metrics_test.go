package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/roles")
	req := httptest.NewRequest(http.MethodGet, "/api/roles", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `conformapro_http_requests_total{code="418",route="/api/roles"} 1`)
	assert.Contains(t, body, `conformapro_http_request_duration_seconds_bucket{route="/api/roles"`)
}

func TestObservePermissionCheck(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePermissionCheck("incidents", "view", true)
	metrics.ObservePermissionCheck("incidents", "view", true)
	metrics.ObservePermissionCheck("incidents", "delete", false)

	body := scrape(t, metrics)
	assert.Contains(t, body, `conformapro_permission_checks_total{action="view",module="incidents",outcome="allowed"} 2`)
	assert.Contains(t, body, `conformapro_permission_checks_total{action="delete",module="incidents",outcome="denied"} 1`)
}

func TestObserveAccessResolution(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveAccessResolution("loaded")
	metrics.ObserveAccessResolution("fetch_failed")

	body := scrape(t, metrics)
	assert.Contains(t, body, `conformapro_access_resolution_total{status="loaded"} 1`)
	assert.Contains(t, body, `conformapro_access_resolution_total{status="fetch_failed"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObservePermissionCheck("incidents", "view", true)
	metrics.ObserveAccessResolution("loaded")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
