package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the analytics event store.
type Metrics struct {
	TrackedTotal  *prometheus.CounterVec
	ScrubbedTotal *prometheus.CounterVec
	PrunedTotal   prometheus.Counter
	UnknownEvents prometheus.Counter
}

// New creates and registers all analytics metrics.
func New() *Metrics {
	return &Metrics{
		TrackedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_analytics_tracked_total",
			Help: "Analytics events persisted, by event name",
		}, []string{"event"}),
		ScrubbedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_analytics_scrubbed_total",
			Help: "Events blocked by the PII guard, by detector",
		}, []string{"detector"}),
		PrunedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_analytics_pruned_total",
			Help: "Events removed by retention pruning",
		}),
		UnknownEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_analytics_unknown_events_total",
			Help: "Tracked events with no registered schema",
		}),
	}
}
