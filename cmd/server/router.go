package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idcapture/internal/identity/handler"
	"idcapture/internal/platform/health"
	"idcapture/internal/platform/metrics"
	"idcapture/internal/platform/middleware"
)

// requestTimeout must outlast a full camera start including every playback
// re-assertion.
const requestTimeout = 30 * time.Second

// newRouter wires all public endpoints with middleware.
func newRouter(
	logger *slog.Logger,
	reg *prometheus.Registry,
	httpMetrics *metrics.Metrics,
	healthHandler *health.Handler,
	identityHandler *handler.Handler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.DeviceProfile)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(httpMetrics))

	healthHandler.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.ContentTypeJSON)
		identityHandler.Register(r)
	})

	return r
}
