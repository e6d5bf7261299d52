package node

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusPeers            *prometheus.GaugeVec
	prometheusMessagesReceived *prometheus.CounterVec
	prometheusErrorsSent       *prometheus.CounterVec
	prometheusDroppedObjects   prometheus.Counter
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusPeers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "marabu",
			Subsystem: "node",
			Name:      "peers",
			Help:      "Connected peers, by direction",
		},
		[]string{"direction"},
	)

	prometheusMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marabu",
			Subsystem: "node",
			Name:      "messages_received",
			Help:      "Well-formed messages received from peers, by type",
		},
		[]string{"type"},
	)

	prometheusErrorsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marabu",
			Subsystem: "node",
			Name:      "errors_sent",
			Help:      "Protocol errors reported to peers, by name",
		},
		[]string{"name"},
	)

	prometheusDroppedObjects = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marabu",
			Subsystem: "node",
			Name:      "dropped_objects",
			Help:      "Object messages dropped because every worker was busy",
		},
	)
}
