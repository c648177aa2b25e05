package httpapi

import "github.com/prometheus/client_golang/prometheus"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portunus",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portunus",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	streamClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "portunus",
			Subsystem: "http",
			Name:      "stream_clients",
			Help:      "Connected access stream clients",
		},
		[]string{"transport"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, streamClients)
}
