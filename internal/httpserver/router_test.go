package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/observability/logging"
)

type stubPinger struct {
	err error
}

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		router := NewRouter(stubPinger{}, prometheus.NewRegistry(), logging.Discard())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	})

	t.Run("DatabaseDown", func(t *testing.T) {
		router := NewRouter(stubPinger{err: errors.New("connection refused")}, prometheus.NewRegistry(), logging.Discard())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_events_total", Help: "Test counter."})
	require.NoError(t, reg.Register(counter))
	counter.Inc()

	router := NewRouter(stubPinger{}, reg, logging.Discard())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_events_total 1")
}

func TestUnknownRoute(t *testing.T) {
	router := NewRouter(stubPinger{}, prometheus.NewRegistry(), logging.Discard())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
