package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

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

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("bill:export").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, "cmbworks_jobs_total") {
		t.Fatalf("expected body to contain cmbworks_jobs_total, got: %s", body)
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

func TestObserveUpdateCountsWarnings(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveUpdate("NORMAL", time.Millisecond, 2)
	metrics.ObserveUpdate("NORMAL", time.Millisecond, 0)

	body := scrape(t, metrics)
	if !strings.Contains(body, `cmbworks_bill_updates_total{bill_type="NORMAL"} 2`) {
		t.Fatalf("expected two updates, got: %s", body)
	}
	if !strings.Contains(body, `cmbworks_bill_warnings_total{bill_type="NORMAL"} 2`) {
		t.Fatalf("expected two warnings, got: %s", body)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveUpdate("NORMAL", 0, 1)
}
