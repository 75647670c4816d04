package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	transfers *prometheus.CounterVec
	purchases *prometheus.CounterVec
	syncs     *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking domain events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "subsync",
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Count of token transfers segmented by asset.",
			}, []string{"asset"}),
			purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "subsync",
				Subsystem: "events",
				Name:      "purchases_total",
				Help:      "Entitlement purchases segmented by payment strategy.",
			}, []string{"strategy"}),
			syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "subsync",
				Subsystem: "events",
				Name:      "sync_messages_total",
				Help:      "Sync roots sent or received, segmented by direction.",
			}, []string{"direction"}),
		}
		prometheus.MustRegister(eventRegistry.transfers, eventRegistry.purchases, eventRegistry.syncs)
	})
	return eventRegistry
}

// RecordTransfer increments the transfer counter for the supplied asset ticker.
func (m *eventMetrics) RecordTransfer(asset string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToUpper(asset))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	m.transfers.WithLabelValues(normalized).Inc()
}

// RecordPurchase counts a purchase settled by strategy ("token", "badge",
// "voucher").
func (m *eventMetrics) RecordPurchase(strategy string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(strategy).Inc()
}

// RecordSync counts a root crossing the relay ("sent" or "received").
func (m *eventMetrics) RecordSync(direction string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(direction).Inc()
}
