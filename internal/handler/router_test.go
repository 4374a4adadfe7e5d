package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/care-portal/backend/internal/handler/handlertest"
	"github.com/zhouzirui/care-portal/backend/internal/middleware"
	"github.com/zhouzirui/care-portal/backend/internal/observability/metrics"
	"github.com/zhouzirui/care-portal/backend/pkg/logging"
)

func newTestRouter(t *testing.T) http.Handler {
	env := handlertest.New(t)
	reg := prometheus.NewRegistry()
	metrics.NewPortalMetrics(reg).SetWorkspaces(1)
	return NewRouter(RouterConfig{
		Workspaces:     env.Registry,
		Gatherer:       reg,
		AllowedOrigins: []string{"*"},
		Logger:         logging.Discard(),
	})
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "care_portal_registry_workspaces 1")
}

func TestAPIMintsClientID(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.ClientHeader))
	assert.Contains(t, rec.Body.String(), `"selection"`)
}

func TestAPIDoctors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/doctors?department=pediatrics", nil)
	req.Header.Set(middleware.ClientHeader, "router-test")
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Dr. Emily Davis")
	assert.NotContains(t, rec.Body.String(), "Dr. Sarah Johnson")
}
