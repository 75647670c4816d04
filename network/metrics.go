package network

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type relayMetrics struct {
	enqueued  prometheus.Counter
	delivered prometheus.Counter
	dropped   prometheus.Counter
	failed    prometheus.Counter
	occupancy prometheus.Gauge
}

var (
	relayMetricsOnce sync.Once
	relayRegistry    *relayMetrics
)

func defaultRelayMetrics() *relayMetrics {
	relayMetricsOnce.Do(func() {
		relayRegistry = &relayMetrics{
			enqueued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "subsync",
				Subsystem: "relay",
				Name:      "envelopes_enqueued_total",
				Help:      "Total sync envelopes accepted by the relay.",
			}),
			delivered: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "subsync",
				Subsystem: "relay",
				Name:      "envelopes_delivered_total",
				Help:      "Total sync envelopes accepted by their destination.",
			}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "subsync",
				Subsystem: "relay",
				Name:      "envelopes_dropped_total",
				Help:      "Total sync envelopes discarded without delivery.",
			}),
			failed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "subsync",
				Subsystem: "relay",
				Name:      "envelopes_failed_total",
				Help:      "Total sync envelopes parked after exhausting delivery attempts.",
			}),
			occupancy: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "subsync",
				Subsystem: "relay",
				Name:      "queue_occupancy",
				Help:      "Number of envelopes waiting for delivery.",
			}),
		}
		prometheus.MustRegister(
			relayRegistry.enqueued,
			relayRegistry.delivered,
			relayRegistry.dropped,
			relayRegistry.failed,
			relayRegistry.occupancy,
		)
	})
	return relayRegistry
}
