package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

func TestTrackerRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if err := m.Track("bill:export").End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	boom := errors.New("boom")
	if err := m.Track("bill:export").End(boom); err != boom {
		t.Fatalf("expected error to be returned untouched, got %v", err)
	}
	m.AddFiles("written", "csv", 2)
	m.AddFiles("written", "csv", 0)

	body := scrape(t, reg)
	for _, want := range []string{
		`cmbworks_jobs_total{job="bill:export",status="success"} 1`,
		`cmbworks_jobs_failures_total{job="bill:export"} 1`,
		`cmbworks_export_files_total{action="written",format="csv"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	if err := m.Track("x").End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.AddFiles("written", "csv", 1)
}
