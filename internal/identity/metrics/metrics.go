package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the identity flow.
type Metrics struct {
	StepTransitions  *prometheus.CounterVec
	CapturesAccepted *prometheus.CounterVec
	CapturesFailed   *prometheus.CounterVec
	CameraFailures   *prometheus.CounterVec
	Reacquisitions   *prometheus.CounterVec
	FlowResets       *prometheus.CounterVec
	FlowsCompleted   prometheus.Counter
}

// New registers flow collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StepTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idcapture_flow_step_transitions_total",
			Help: "Step transitions, labeled by source and target step",
		}, []string{"from", "to"}),
		CapturesAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idcapture_flow_captures_accepted_total",
			Help: "Artifacts stored, labeled by purpose",
		}, []string{"purpose"}),
		CapturesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idcapture_flow_captures_failed_total",
			Help: "Capture attempts that did not produce an artifact, labeled by purpose and reason",
		}, []string{"purpose", "reason"}),
		CameraFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idcapture_flow_camera_failures_total",
			Help: "Camera activations that failed on a step, labeled by reason",
		}, []string{"reason"}),
		Reacquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idcapture_flow_forced_reacquisitions_total",
			Help: "Sessions restarted after a run of failed captures, labeled by purpose",
		}, []string{"purpose"}),
		FlowResets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idcapture_flow_resets_total",
			Help: "Flow resets, labeled by reason",
		}, []string{"reason"}),
		FlowsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "idcapture_flow_completed_total",
			Help: "Flows that reached the success step",
		}),
	}
}

func (m *Metrics) IncrementTransition(from, to string) {
	m.StepTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementCaptureAccepted(purpose string) {
	m.CapturesAccepted.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncrementCaptureFailed(purpose, reason string) {
	m.CapturesFailed.WithLabelValues(purpose, reason).Inc()
}

func (m *Metrics) IncrementCameraFailure(reason string) {
	m.CameraFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementReacquisition(purpose string) {
	m.Reacquisitions.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncrementReset(reason string) {
	m.FlowResets.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementCompleted() {
	m.FlowsCompleted.Inc()
}
