// Package metrics exposes the execution graph's process-wide counters and
// histograms: phase transitions, tool retries, context compactions, LLM
// errors, and iteration timing. A nil *Metrics is a valid no-op collector
// so instrumentation call sites never need a nil check of their own.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors behind a private
// registry, so multiple jobs in one process never collide on metric
// registration.
type Metrics struct {
	registry *prometheus.Registry

	phaseTransitions   *prometheus.CounterVec
	toolRetries        *prometheus.CounterVec
	contextCompactions *prometheus.CounterVec
	llmErrors          *prometheus.CounterVec
	iterationDuration  *prometheus.HistogramVec
}

// New builds a Metrics instance with a fresh registry. namespace prefixes
// every metric name (e.g. "agentcore").
func New(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.phaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Total number of strategic/tactical phase transitions.",
		},
		[]string{"from_phase", "to_phase"},
	)

	m.toolRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_retries_total",
			Help:      "Total number of tool call retry attempts.",
		},
		[]string{"tool_name"},
	)

	m.contextCompactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_compactions_total",
			Help:      "Total number of context compaction passes, by kind.",
		},
		[]string{"kind"}, // clear | truncate | trim | summarize
	)

	m.llmErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_errors_total",
			Help:      "Total number of LLM invocation errors, by class.",
		},
		[]string{"class"}, // transient | fatal | overflow
	)

	m.iterationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iteration_duration_seconds",
			Help:      "Wall-clock duration of one execute-tools loop iteration.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~205s
		},
		[]string{"node"},
	)

	m.registry.MustRegister(m.phaseTransitions, m.toolRetries, m.contextCompactions, m.llmErrors, m.iterationDuration)
	return m
}

// RecordPhaseTransition increments phase_transitions_total.
func (m *Metrics) RecordPhaseTransition(from, to string) {
	if m == nil {
		return
	}
	m.phaseTransitions.WithLabelValues(from, to).Inc()
}

// RecordToolRetry increments tool_retries_total for one retry attempt.
func (m *Metrics) RecordToolRetry(toolName string) {
	if m == nil {
		return
	}
	m.toolRetries.WithLabelValues(toolName).Inc()
}

// RecordCompaction increments context_compactions_total for a compaction
// kind ("clear", "truncate", "trim", "summarize").
func (m *Metrics) RecordCompaction(kind string) {
	if m == nil {
		return
	}
	m.contextCompactions.WithLabelValues(kind).Inc()
}

// RecordLLMError increments llm_errors_total for an error class
// ("transient", "fatal", "overflow").
func (m *Metrics) RecordLLMError(class string) {
	if m == nil {
		return
	}
	m.llmErrors.WithLabelValues(class).Inc()
}

// ObserveIterationDuration records one node's iteration wall-clock time in
// seconds.
func (m *Metrics) ObserveIterationDuration(node string, seconds float64) {
	if m == nil {
		return
	}
	m.iterationDuration.WithLabelValues(node).Observe(seconds)
}

// Handler returns the /metrics HTTP handler for the CLI's serve mode.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
