package claim

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricClaimsSubmittedTotal   = "claims_submitted_total"
	MetricClaimsSettledTotal     = "claims_settled_total"
	MetricClaimSettlementSeconds = "claim_settlement_duration_seconds"
)

// Metrics contains Prometheus metrics for claim orchestration.
// All operations are thread-safe.
type Metrics struct {
	claimsSubmitted *prometheus.CounterVec
	claimsSettled   *prometheus.CounterVec
	settlementTime  prometheus.Histogram
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		claimsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricClaimsSubmittedTotal,
				Help: "Total number of claim transactions submitted, by route",
			},
			[]string{"route"},
		),
		claimsSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricClaimsSettledTotal,
				Help: "Total number of claim transactions reaching a terminal state, by status",
			},
			[]string{"status"},
		),
		settlementTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricClaimSettlementSeconds,
				Help:    "Histogram of time from claim submission to terminal settlement event",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.claimsSubmitted, m.claimsSettled, m.settlementTime} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// claimSubmitted records a submitted claim with its route. Nil-safe.
func (m *Metrics) claimSubmitted(route string) {
	if m == nil {
		return
	}
	m.claimsSubmitted.WithLabelValues(route).Inc()
}

// claimSettled records a terminal settlement outcome and its latency.
// Nil-safe.
func (m *Metrics) claimSettled(status string, submittedAtMs, settledAtMs int64) {
	if m == nil {
		return
	}
	m.claimsSettled.WithLabelValues(status).Inc()
	if settledAtMs >= submittedAtMs {
		m.settlementTime.Observe(float64(settledAtMs-submittedAtMs) / 1000)
	}
}
