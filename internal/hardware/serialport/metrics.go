package serialport

import "github.com/prometheus/client_golang/prometheus"

var (
	serialConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "portunus",
		Subsystem: "serial",
		Name:      "connected",
		Help:      "1 while the fingerprint reader port is open",
	})

	serialLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portunus",
			Subsystem: "serial",
			Name:      "lines_total",
			Help:      "Protocol lines exchanged with the reader",
		},
		[]string{"direction"},
	)
)

func init() {
	prometheus.MustRegister(serialConnected, serialLines)
}
