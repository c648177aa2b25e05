package events

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portunus",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events published to the broker",
		},
		[]string{"event"},
	)

	droppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "portunus",
		Subsystem: "events",
		Name:      "dropped_subscribers_total",
		Help:      "Subscribers removed because their queue was full",
	})

	subscribersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "portunus",
		Subsystem: "events",
		Name:      "subscribers",
		Help:      "Currently registered stream subscribers",
	})
)

func init() {
	prometheus.MustRegister(publishedTotal, droppedTotal, subscribersGauge)
}
