package chain

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusChainTipHeight   prometheus.Gauge
	prometheusChainReorgs      prometheus.Counter
	prometheusMempoolSize      prometheus.Gauge
	prometheusObjectsReceived  *prometheus.CounterVec
	prometheusBlockValidation  prometheus.Histogram
	prometheusDependencyWaits  *prometheus.CounterVec
	prometheusObjectCacheItems prometheus.Gauge
)

var (
	prometheusMetricsInitOnce sync.Once
)

// initPrometheusMetrics registers the chain metrics exactly once per process.
func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusChainTipHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "marabu",
			Subsystem: "chain",
			Name:      "tip_height",
			Help:      "Height of the current chain tip",
		},
	)

	prometheusChainReorgs = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marabu",
			Subsystem: "chain",
			Name:      "reorgs",
			Help:      "Number of tip changes that abandoned at least one block",
		},
	)

	prometheusMempoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "marabu",
			Subsystem: "chain",
			Name:      "mempool_size",
			Help:      "Number of transactions in the mempool",
		},
	)

	prometheusObjectsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marabu",
			Subsystem: "chain",
			Name:      "objects_received",
			Help:      "Objects processed, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	prometheusBlockValidation = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "marabu",
			Subsystem: "chain",
			Name:      "block_validation_seconds",
			Help:      "Time taken to validate a block, including dependency waits",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	prometheusDependencyWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marabu",
			Subsystem: "chain",
			Name:      "dependency_waits",
			Help:      "Waits for missing parents and transactions, by dependency and result",
		},
		[]string{"dependency", "result"},
	)

	prometheusObjectCacheItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "marabu",
			Subsystem: "chain",
			Name:      "object_cache_items",
			Help:      "Number of decoded objects held in the object cache",
		},
	)
}
