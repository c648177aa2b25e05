package service

import "github.com/prometheus/client_golang/prometheus"

var (
	accessDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portunus",
			Subsystem: "access",
			Name:      "decisions_total",
			Help:      "Access decisions by entity type and outcome",
		},
		[]string{"entity_type", "status"},
	)

	pruneRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portunus",
			Subsystem: "access_log",
			Name:      "prune_runs_total",
			Help:      "Retention passes over the access log",
		},
		[]string{"outcome"},
	)

	prunedRowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "portunus",
		Subsystem: "access_log",
		Name:      "pruned_rows_total",
		Help:      "Access log rows removed by retention",
	})
)

func init() {
	prometheus.MustRegister(accessDecisionsTotal, pruneRunsTotal, prunedRowsTotal)
}
