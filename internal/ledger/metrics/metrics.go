package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the points ledger.
type Metrics struct {
	AwardsTotal    *prometheus.CounterVec
	LevelUpsTotal  prometheus.Counter
	AwardDuration  prometheus.Histogram
	ReconcileDrift prometheus.Gauge
}

// New creates and registers all ledger metrics.
func New() *Metrics {
	return &Metrics{
		AwardsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_ledger_awards_total",
			Help: "Award attempts by terminal status",
		}, []string{"status"}),
		LevelUpsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_ledger_level_ups_total",
			Help: "Level-up events emitted",
		}),
		AwardDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tally_ledger_award_duration_seconds",
			Help:    "Latency of awardPoints including the storage unit of work",
			Buckets: prometheus.DefBuckets,
		}),
		ReconcileDrift: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tally_ledger_reconcile_drift_points",
			Help: "Absolute drift found by the last balance reconciliation",
		}),
	}
}

// ObserveAward records one award attempt outcome.
func (m *Metrics) ObserveAward(status string, seconds float64) {
	m.AwardsTotal.WithLabelValues(status).Inc()
	m.AwardDuration.Observe(seconds)
}
