package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmbworks/cmbworks/internal/billing"
	"github.com/cmbworks/cmbworks/internal/measurement"
	"github.com/cmbworks/cmbworks/internal/observability"
	"github.com/cmbworks/cmbworks/internal/project"
	projecthttp "github.com/cmbworks/cmbworks/internal/project/http"
	_ "github.com/cmbworks/cmbworks/internal/testing/guard"
	"github.com/cmbworks/cmbworks/jobs"
)

type emptyProjects struct{}

func (emptyProjects) List(context.Context) ([]project.Summary, error) { return []project.Summary{}, nil }
func (emptyProjects) Create(context.Context, project.Document) (project.Summary, error) {
	return project.Summary{}, nil
}
func (emptyProjects) Bills(context.Context, uuid.UUID) ([]billing.Snapshot, error) {
	return nil, project.ErrNotFound
}
func (emptyProjects) Bill(context.Context, uuid.UUID, int) (billing.Snapshot, error) {
	return billing.Snapshot{}, project.ErrNotFound
}
func (emptyProjects) AddBill(context.Context, uuid.UUID, billing.BillData) (int, error) {
	return 0, project.ErrNotFound
}
func (emptyProjects) ClaimForBill(context.Context, uuid.UUID, int, []measurement.Path) error {
	return project.ErrNotFound
}
func (emptyProjects) SetPrevBill(context.Context, uuid.UUID, int, *int) error {
	return project.ErrNotFound
}
func (emptyProjects) LockedPaths(context.Context, uuid.UUID, int) ([]measurement.Path, error) {
	return nil, project.ErrNotFound
}
func (emptyProjects) AddAbstract(context.Context, uuid.UUID, int, int, []measurement.Path, []string, string) (measurement.Path, error) {
	return measurement.Path{}, project.ErrNotFound
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", RateLimitPerMinute: 1000},
		ProjectHandler: projecthttp.NewHandler(logger, emptyProjects{}, nil, 0),
		JobHandler:     jobs.NewHandler(nil, logger),
		Metrics:        observability.NewMetrics(),
	})
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	require.True(t, InTestMode())
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `cmbworks_http_requests_total{code="200",route="/healthz"} 1`))
}

func TestRouterMountsProjects(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/projects/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/projects/"+uuid.NewString()+"/bills", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("EXPORT_DIR", t.TempDir())
	t.Setenv("DEFAULT_PERCENTAGE", "-2.5")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "-2.5", cfg.DefaultPercentage.String())
	assert.False(t, cfg.IsProduction())

	t.Setenv("RATE_LIMIT_PER_MINUTE", "-1")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf strings.Builder
	logger := newLogger(&Config{AppEnv: "test", LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("component", "bill_engine"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"cmbworks"`)
	assert.Contains(t, out, `"env":"test"`)
}
