package spanz

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the tracer's Prometheus counters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SpansStarted   prometheus.Counter
	SpansFinished  prometheus.Counter
	SpansExported  prometheus.Counter
	SpansDropped   prometheus.Counter
	TasksDropped   prometheus.Counter
	ScopeErrors    prometheus.Counter
	ResolverErrors prometheus.Counter
	AdjusterErrors prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SpansStarted:   counter("spans_started_total", "Spans started, including continued remote spans."),
		SpansFinished:  counter("spans_finished_total", "Spans transitioned from open to closed."),
		SpansExported:  counter("spans_exported_total", "Adjusted spans handed to sinks."),
		SpansDropped:   counter("spans_dropped_total", "Spans dropped because the async handler queue was full."),
		TasksDropped:   counter("tasks_dropped_total", "Offloaded tasks dropped because the executor queue was full."),
		ScopeErrors:    counter("scope_errors_total", "Current-span stack discipline violations."),
		ResolverErrors: counter("resolver_errors_total", "Tag resolvers that failed."),
		AdjusterErrors: counter("adjuster_errors_total", "Span adjusters that panicked."),
	}
	if reg != nil {
		reg.MustRegister(
			m.SpansStarted, m.SpansFinished, m.SpansExported, m.SpansDropped,
			m.TasksDropped, m.ScopeErrors, m.ResolverErrors, m.AdjusterErrors,
		)
	}
	return m
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "spanz",
		Name:      name,
		Help:      help,
	})
}

type metric int

const (
	metricStarted metric = iota
	metricFinished
	metricExported
	metricSpanDropped
	metricTaskDropped
	metricScopeError
	metricResolverError
	metricAdjusterError
)

func (m *Metrics) inc(k metric) {
	if m == nil {
		return
	}
	switch k {
	case metricStarted:
		m.SpansStarted.Inc()
	case metricFinished:
		m.SpansFinished.Inc()
	case metricExported:
		m.SpansExported.Inc()
	case metricSpanDropped:
		m.SpansDropped.Inc()
	case metricTaskDropped:
		m.TasksDropped.Inc()
	case metricScopeError:
		m.ScopeErrors.Inc()
	case metricResolverError:
		m.ResolverErrors.Inc()
	case metricAdjusterError:
		m.AdjusterErrors.Inc()
	}
}
