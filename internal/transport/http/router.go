// Package httptransport assembles the public router: middleware chain,
// registry routes, admin routes, health, and metrics.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meldid/internal/admin"
	"meldid/internal/platform/metrics"
	"meldid/internal/platform/middleware"
	registryhandler "meldid/internal/registry/handler"
)

// HealthChecker reports backend reachability for the health endpoint.
type HealthChecker func(ctx context.Context) error

// NewRouter wires all endpoints. Handlers mount themselves; this function
// only owns the shared middleware chain and the operational endpoints.
func NewRouter(
	log *slog.Logger,
	m *metrics.Metrics,
	registryHandler *registryhandler.Handler,
	adminHandler *admin.Handler,
	adminValidator middleware.AdminValidator,
	health HealthChecker,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(m))

	registryHandler.Register(r, middleware.RequireAdmin(adminValidator, log))
	adminHandler.Register(r)

	r.Get("/healthz", handleHealth(health))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleHealth(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
