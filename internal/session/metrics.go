package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricSamplesAcceptedTotal  = "session_samples_accepted_total"
	MetricSamplesRejectedTotal  = "session_samples_rejected_total"
	MetricSessionsFinishedTotal = "sessions_finished_total"
)

// Rejection reason labels for the sample filter.
const (
	RejectAccuracy = "accuracy"
	RejectInterval = "interval"
	RejectMovement = "movement"
)

// Metrics contains Prometheus metrics for the session recorder.
// All operations are thread-safe.
type Metrics struct {
	samplesAccepted  prometheus.Counter
	samplesRejected  *prometheus.CounterVec
	sessionsFinished *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		samplesAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricSamplesAcceptedTotal,
				Help: "Total number of location samples accepted into a segment",
			},
		),
		samplesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSamplesRejectedTotal,
				Help: "Total number of location samples dropped by the ingestion filter, by reason",
			},
			[]string{"reason"},
		),
		sessionsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSessionsFinishedTotal,
				Help: "Total number of sessions reaching a terminal state, by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.samplesAccepted, m.samplesRejected, m.sessionsFinished} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// sampleAccepted records an accepted sample. Nil-safe.
func (m *Metrics) sampleAccepted() {
	if m == nil {
		return
	}
	m.samplesAccepted.Inc()
}

// sampleRejected records a dropped sample with its filter reason. Nil-safe.
func (m *Metrics) sampleRejected(reason string) {
	if m == nil {
		return
	}
	m.samplesRejected.WithLabelValues(reason).Inc()
}

// sessionFinished records a session reaching a terminal state. Nil-safe.
func (m *Metrics) sessionFinished(outcome string) {
	if m == nil {
		return
	}
	m.sessionsFinished.WithLabelValues(outcome).Inc()
}
