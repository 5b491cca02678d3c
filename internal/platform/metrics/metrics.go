// Package metrics holds the HTTP surface collectors shared by all handlers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the HTTP server.
type Metrics struct {
	Requests        *prometheus.CounterVec
	EndpointLatency *prometheus.HistogramVec
	InFlight        prometheus.Gauge
}

// New creates and registers the HTTP metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idcapture_http_requests_total",
			Help: "Total number of HTTP requests, labeled by route, method and status class",
		}, []string{"route", "method", "status"}),
		// camera start blocks until playback is confirmed, so buckets reach past the retry schedule
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idcapture_http_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2, 4, 8},
		}, []string{"route"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "idcapture_http_in_flight_requests",
			Help: "Current number of requests being served",
		}),
	}
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(route, method, status string, durationSeconds float64) {
	m.Requests.WithLabelValues(route, method, status).Inc()
	m.EndpointLatency.WithLabelValues(route).Observe(durationSeconds)
}

func (m *Metrics) IncrementInFlight() {
	m.InFlight.Inc()
}

func (m *Metrics) DecrementInFlight() {
	m.InFlight.Dec()
}
