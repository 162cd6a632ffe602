// Package metrics exposes the engine's Prometheus instrumentation. The
// upstream implementation logged internal state to the console; counters
// and gauges replace that scaffolding without touching the functional
// contract.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banked_refresh_total",
		Help: "Aggregator refresh attempts by event kind.",
	}, []string{"kind"})

	refreshFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banked_refresh_failures_total",
		Help: "Aggregator refreshes that failed by event kind.",
	}, []string{"kind"})

	publishedInstances = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "banked_published_instances",
		Help: "Size of the currently published merged list by event kind.",
	}, []string{"kind"})
)

// ObserveRefresh records one refresh attempt and its outcome.
func ObserveRefresh(kind string, err error) {
	refreshTotal.WithLabelValues(kind).Inc()
	if err != nil {
		refreshFailures.WithLabelValues(kind).Inc()
	}
}

// SetPublished records the size of the published list after a recompute.
func SetPublished(kind string, n int) {
	publishedInstances.WithLabelValues(kind).Set(float64(n))
}
