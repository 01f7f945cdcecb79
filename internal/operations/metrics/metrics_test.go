package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersTrackOutcomes(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementMutation("create", nil)
	m.IncrementMutation("create", nil)
	m.IncrementMutation("delete", errors.New("boom"))
	m.IncrementClassification("relevant")
	m.IncrementRateProvenance("fallback")
	m.IncrementFolioRetry()
	m.ObserveMutationLatency("create", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Mutations.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mutations.WithLabelValues("delete", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Classifications.WithLabelValues("relevant")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateProvenance.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FolioRetries))
	assert.Equal(t, 1, testutil.CollectAndCount(m.MutationLatency))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementMutation("edit", nil)
		m.IncrementClassification("none")
		m.IncrementRateProvenance("cache")
		m.IncrementFolioRetry()
		m.ObserveMutationLatency("edit", time.Millisecond)
	})
}
