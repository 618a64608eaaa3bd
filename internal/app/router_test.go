package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-crm/internal/documents"
	"github.com/odyssey-erp/odyssey-crm/internal/observability"
	"github.com/odyssey-erp/odyssey-crm/internal/summary"
	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
	_ "github.com/odyssey-erp/odyssey-crm/testing"
)

type emptyLister struct{}

func (emptyLister) List(context.Context, tenant.Scope, documents.ListFilter) ([]documents.Document, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, cfg *Config) (http.Handler, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics()
	svc := summary.NewService(emptyLister{}, nil, nil, nil, metrics)
	return NewRouter(RouterParams{
		Config:         cfg,
		SummaryHandler: summary.NewHandler(nil, svc),
		Metrics:        metrics,
	}), metrics
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouterRunsInTestMode(t *testing.T) {
	assert.True(t, InTestMode())
}

func TestRouterHealthAndHeaders(t *testing.T) {
	h, _ := newTestRouter(t, &Config{RateLimit: 100})

	rec := get(h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouterTenantRoutes(t *testing.T) {
	h, _ := newTestRouter(t, &Config{RateLimit: 100})

	rec := get(h, "/api/v1/tenants/4/clients/9/summary")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var dash map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dash))
	assert.Equal(t, float64(4), dash["tenant_id"])
	assert.Equal(t, float64(9), dash["client_id"])

	rec = get(h, "/api/v1/tenants/zero/clients/9/summary")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(h, "/api/v1/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestRouterExposesMetrics(t *testing.T) {
	h, _ := newTestRouter(t, &Config{RateLimit: 100})
	get(h, "/api/v1/tenants/1/clients/2/summary")

	rec := get(h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "odyssey_summary_cache_total"))
	assert.True(t, strings.Contains(rec.Body.String(), "odyssey_http_requests_total"))
}

func TestRouterRateLimit(t *testing.T) {
	h, _ := newTestRouter(t, &Config{RateLimit: 2})
	assert.Equal(t, http.StatusOK, get(h, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(h, "/healthz").Code)

	rec := get(h, "/healthz")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
