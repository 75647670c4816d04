package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	chainMetricsOnce sync.Once
	chainRegistry    *ChainMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record RPC
// module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "subsync",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "subsync",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total RPC errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "subsync",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "subsync",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of RPC requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// ChainMetrics tracks transactions executed against the primary and
// secondary ledgers.
type ChainMetrics struct {
	transactions *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	events       *prometheus.CounterVec
	commits      *prometheus.CounterVec
}

// Chain returns the lazily-initialised transaction metrics registry.
func Chain() *ChainMetrics {
	chainMetricsOnce.Do(func() {
		chainRegistry = &ChainMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "subsync",
				Subsystem: "chain",
				Name:      "transactions_total",
				Help:      "Transactions executed, segmented by chain, operation and outcome.",
			}, []string{"chain", "op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "subsync",
				Subsystem: "chain",
				Name:      "transaction_duration_seconds",
				Help:      "Latency distribution of transaction execution.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"chain", "op"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "subsync",
				Subsystem: "chain",
				Name:      "events_total",
				Help:      "Events published by committed transactions, segmented by type.",
			}, []string{"chain", "type"}),
			commits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "subsync",
				Subsystem: "chain",
				Name:      "commits_total",
				Help:      "State commits persisted to the backing store.",
			}, []string{"chain"}),
		}
		prometheus.MustRegister(
			chainRegistry.transactions,
			chainRegistry.latency,
			chainRegistry.events,
			chainRegistry.commits,
		)
	})
	return chainRegistry
}

// ObserveTransaction records one executed transaction.
func (m *ChainMetrics) ObserveTransaction(chain, op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "reverted"
	}
	m.transactions.WithLabelValues(chain, op, outcome).Inc()
	m.latency.WithLabelValues(chain, op).Observe(duration.Seconds())
}

// RecordEvent counts a published event.
func (m *ChainMetrics) RecordEvent(chain, eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(chain, eventType).Inc()
}

// RecordCommit counts a persisted state commit.
func (m *ChainMetrics) RecordCommit(chain string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(chain).Inc()
}
