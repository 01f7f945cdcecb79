package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit recording.
type Metrics struct {
	Recorded        *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	ForwardFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers the audit metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Recorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "amlcore_audit_entries_recorded_total",
			Help: "Total number of audit entries persisted, by action",
		}, []string{"action"}),
		PersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "amlcore_audit_persist_failures_total",
			Help: "Total number of audit entries that could not be persisted, by action",
		}, []string{"action"}),
		ForwardFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "amlcore_audit_forward_failures_total",
			Help: "Total number of persisted audit entries that could not be forwarded",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "amlcore_audit_persist_duration_seconds",
			Help:    "Time spent persisting one audit entry",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) IncRecorded(action Action) {
	m.Recorded.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) IncPersistFailures(action Action) {
	m.PersistFailures.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) IncForwardFailures() {
	m.ForwardFailures.Inc()
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	m.PersistDuration.Observe(seconds)
}
