package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	pushDelivered = "delivered"
	pushFailed    = "failed"
	pushSkipped   = "skipped"
)

type metrics struct {
	connections prometheus.Gauge
	onlineUsers prometheus.Gauge
	pushes      *prometheus.CounterVec
}

// newMetrics builds the hub metrics; a nil reg leaves them unregistered (tests run many hubs).
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "darasa",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Number of open live-push connections.",
		}),
		onlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "darasa",
			Subsystem: "realtime",
			Name:      "online_users",
			Help:      "Number of users holding at least one open connection.",
		}),
		pushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "darasa",
			Subsystem: "realtime",
			Name:      "pushes_total",
			Help:      "Live-push deliveries by result.",
		}, []string{"result"}),
	}
}
