package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit trail.
type Metrics struct {
	AppendsTotal  *prometheus.CounterVec
	PurgedTotal   prometheus.Counter
	WorkerDropped prometheus.Counter
}

// New creates and registers all audit metrics.
func New() *Metrics {
	return &Metrics{
		AppendsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_audit_appends_total",
			Help: "Audit entries appended, by action",
		}, []string{"what"}),
		PurgedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_audit_purged_total",
			Help: "Audit entries removed by retention purges",
		}),
		WorkerDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_audit_worker_dropped_total",
			Help: "Entries dropped because the async audit inbox was full",
		}),
	}
}
