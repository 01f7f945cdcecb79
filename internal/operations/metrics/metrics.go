package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the operations module.
// All methods are safe on a nil receiver.
type Metrics struct {
	// Mutations by kind ("create", "edit", "delete") and outcome ("ok", "error")
	Mutations *prometheus.CounterVec

	// Classification tier assigned by create and edit
	Classifications *prometheus.CounterVec

	// Rate provenance of every normalization
	RateProvenance *prometheus.CounterVec

	// Folio allocation retries after a unique violation
	FolioRetries prometheus.Counter

	MutationLatency *prometheus.HistogramVec
}

// New registers the operations metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "amlcore_operation_mutations_total",
			Help: "Total operation mutations by kind and outcome",
		}, []string{"kind", "outcome"}),

		Classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "amlcore_operation_classifications_total",
			Help: "Total classifications by tier",
		}, []string{"tier"}),

		RateProvenance: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "amlcore_rate_provenance_total",
			Help: "Total currency normalizations by rate provenance",
		}, []string{"provenance"}),

		FolioRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "amlcore_folio_allocation_retries_total",
			Help: "Total folio allocations retried after a uniqueness conflict",
		}),

		MutationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amlcore_operation_mutation_duration_seconds",
			Help:    "Duration of operation mutations including normalization and classification",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"kind"}),
	}
}

// IncrementMutation records a mutation outcome.
func (m *Metrics) IncrementMutation(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Mutations.WithLabelValues(kind, outcome).Inc()
}

// IncrementClassification records the tier assigned to an operation.
func (m *Metrics) IncrementClassification(tier string) {
	if m != nil {
		m.Classifications.WithLabelValues(tier).Inc()
	}
}

// IncrementRateProvenance records where a normalization rate came from.
func (m *Metrics) IncrementRateProvenance(provenance string) {
	if m != nil {
		m.RateProvenance.WithLabelValues(provenance).Inc()
	}
}

// IncrementFolioRetry records one allocation retry.
func (m *Metrics) IncrementFolioRetry() {
	if m != nil {
		m.FolioRetries.Inc()
	}
}

// ObserveMutationLatency records the duration of one mutation.
func (m *Metrics) ObserveMutationLatency(kind string, d time.Duration) {
	if m != nil {
		m.MutationLatency.WithLabelValues(kind).Observe(d.Seconds())
	}
}
