package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for camera sessions.
type Metrics struct {
	Acquisitions        *prometheus.CounterVec
	AcquisitionFailures *prometheus.CounterVec
	FallbackRetries     *prometheus.CounterVec
	PlaybackReasserts   prometheus.Counter
	ActiveStreams       prometheus.Gauge
	AcquisitionLatency  prometheus.Histogram
	Captures            *prometheus.CounterVec
}

// New registers camera collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Acquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idcapture_camera_acquisitions_total",
			Help: "Successful stream acquisitions, labeled by purpose and constraint profile",
		}, []string{"purpose", "profile"}),
		AcquisitionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idcapture_camera_failures_total",
			Help: "Camera sessions that moved to Failed, labeled by reason",
		}, []string{"reason"}),
		FallbackRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idcapture_camera_fallback_retries_total",
			Help: "Acquisitions retried with the fallback profile, labeled by the preferred failure reason",
		}, []string{"reason"}),
		PlaybackReasserts: factory.NewCounter(prometheus.CounterOpts{
			Name: "idcapture_camera_playback_reasserts_total",
			Help: "Delayed playback re-assertions on a paused sink",
		}),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "idcapture_camera_active_streams",
			Help: "Hardware streams currently held by an active session",
		}),
		AcquisitionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "idcapture_camera_acquisition_latency_seconds",
			Help:    "Time from start request to device stream (including fallback)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		Captures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idcapture_camera_captures_total",
			Help: "Still-frame captures, labeled by purpose and outcome",
		}, []string{"purpose", "outcome"}),
	}
}

func (m *Metrics) IncrementAcquisitions(purpose, profile string) {
	m.Acquisitions.WithLabelValues(purpose, profile).Inc()
}

func (m *Metrics) IncrementFailures(reason string) {
	m.AcquisitionFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementFallbackRetries(reason string) {
	m.FallbackRetries.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementPlaybackReasserts() {
	m.PlaybackReasserts.Inc()
}

func (m *Metrics) IncrementActiveStreams() {
	m.ActiveStreams.Inc()
}

func (m *Metrics) DecrementActiveStreams() {
	m.ActiveStreams.Dec()
}

func (m *Metrics) ObserveAcquisitionLatency(durationSeconds float64) {
	m.AcquisitionLatency.Observe(durationSeconds)
}

// IncrementCaptures records a capture outcome ("accepted" or a rejection reason).
func (m *Metrics) IncrementCaptures(purpose, outcome string) {
	m.Captures.WithLabelValues(purpose, outcome).Inc()
}
