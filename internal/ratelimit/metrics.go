// metrics.go: Prometheus instrumentation for the rate limiter
package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	limiterRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resilgate",
			Subsystem: "ratelimit",
			Name:      "requests_total",
			Help:      "Total number of admission decisions",
		},
		[]string{"category", "status"},
	)

	activeBuckets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "resilgate",
			Subsystem: "ratelimit",
			Name:      "active_buckets",
			Help:      "Number of live token buckets",
		},
	)

	storeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "resilgate",
			Subsystem: "ratelimit",
			Name:      "store_errors_total",
			Help:      "Bucket store failures absorbed by failing open",
		},
	)
)
