package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"confreg/pkg/platform/httputil"
	"confreg/pkg/platform/middleware/request"
	"confreg/pkg/platform/middleware/requesttime"
)

// Mounter registers a feature's routes.
type Mounter interface {
	Register(r chi.Router)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status string   `json:"status"`
	Failed []string `json:"failed,omitempty"`
}

// NewRouter applies the shared middleware chain, serves /healthz and
// /metrics, and mounts each feature.
func NewRouter(logger *slog.Logger, gatherer prometheus.Gatherer, checks map[string]HealthCheck, mounts ...Mounter) chi.Router {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(logger))
	r.Use(request.Recovery(logger))

	r.Get("/healthz", healthHandler(checks))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	for _, m := range mounts {
		m.Register(r)
	}
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var failed []string
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				failed = append(failed, name)
			}
		}
		if len(failed) > 0 {
			sort.Strings(failed)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Failed: failed})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	}
}
