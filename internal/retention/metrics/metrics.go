package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the retention scheduler.
type Metrics struct {
	RunsTotal     prometheus.Counter
	DeletedTotal  *prometheus.CounterVec
	SkippedLocked *prometheus.CounterVec
	JobFailures   *prometheus.CounterVec
}

// New creates and registers all retention metrics.
func New() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_retention_runs_total",
			Help: "Completed retention scheduler runs",
		}),
		DeletedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_retention_deleted_total",
			Help: "Rows removed by retention jobs, by store",
		}, []string{"store"}),
		SkippedLocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_retention_skipped_locked_total",
			Help: "Retention jobs skipped because the job lock was held",
		}, []string{"store"}),
		JobFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_retention_job_failures_total",
			Help: "Retention jobs that returned an error, by store",
		}, []string{"store"}),
	}
}
