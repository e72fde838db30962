package spanz

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"spanz_spans_started_total",
		"spanz_spans_finished_total",
		"spanz_spans_exported_total",
		"spanz_scope_errors_total",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.inc(metricStarted)
	m.inc(metricScopeError)
}

func TestTracerCountsLifecycle(t *testing.T) {
	metrics := NewMetrics(nil)
	tracer, _ := newTestTracer(t, WithMetrics(metrics))

	ctx, outer := tracer.StartSpan(context.Background(), "outer")
	_, inner := tracer.StartSpan(ctx, "inner")
	_ = tracer.FinishSpan(outer) // not on top
	inner.Finish()
	inner.Finish()

	assert.Equal(t, float64(2), counterValue(t, metrics.SpansStarted))
	assert.Equal(t, float64(2), counterValue(t, metrics.SpansFinished))
	assert.Equal(t, float64(2), counterValue(t, metrics.SpansExported))
	assert.Equal(t, float64(1), counterValue(t, metrics.ScopeErrors))
}
