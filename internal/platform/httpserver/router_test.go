package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confreg/pkg/platform/middleware/request"
	"confreg/pkg/requestcontext"
	"confreg/pkg/testutil"
)

type pingRoutes struct{}

func (pingRoutes) Register(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		if requestcontext.Now(r.Context()).IsZero() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
}

func newTestRouter(checks map[string]HealthCheck) chi.Router {
	reg := prometheus.NewRegistry()
	prometheus.WrapRegistererWithPrefix("test_", reg).MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "hits_total", Help: "hits"}))
	return NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), reg, checks, pingRoutes{})
}

func TestRouter_MountsAndMiddleware(t *testing.T) {
	router := newTestRouter(nil)

	rr := testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(request.HeaderRequestID))

	rr = testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRouter_Metrics(t *testing.T) {
	rr := testutil.DoRequest(newTestRouter(nil), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "test_hits_total")
}

func TestRouter_Health(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	rr := testutil.DoRequest(newTestRouter(map[string]HealthCheck{"db": ok}), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = testutil.DoRequest(newTestRouter(map[string]HealthCheck{"db": ok, "redis": down}), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := testutil.DecodeResponse[HealthResponse](t, rr)
	assert.Equal(t, []string{"redis"}, body.Failed)
}
