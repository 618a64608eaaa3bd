package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("summary:warmup").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, "odyssey_jobs_total") {
		t.Fatalf("expected body to contain odyssey_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestDomainCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.DocumentMutation("invoice", "add_item", nil)
	metrics.DocumentMutation("invoice", "add_item", errors.New("stale"))
	metrics.SummaryCache(true)
	metrics.SummaryCache(false)
	metrics.SummaryCache(false)

	body := scrape(t, metrics)
	for _, want := range []string{
		`odyssey_documents_mutations_total{kind="invoice",op="add_item",outcome="ok"} 1`,
		`odyssey_documents_mutations_total{kind="invoice",op="add_item",outcome="error"} 1`,
		`odyssey_summary_cache_total{result="hit"} 1`,
		`odyssey_summary_cache_total{result="miss"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in metrics, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.DocumentMutation("estimate", "create", nil)
	metrics.SummaryCache(true)
	if metrics.Jobs() != nil {
		t.Fatal("expected nil job metrics")
	}
}
