package fingerprint

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portunus",
			Subsystem: "fingerprint",
			Name:      "operations_total",
			Help:      "Reader operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portunus",
			Subsystem: "fingerprint",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of reader operations including lock wait",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(operationsTotal, operationDuration)
}

func (d *Driver) observe(op, outcome string, start time.Time) {
	operationsTotal.WithLabelValues(op, outcome).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
