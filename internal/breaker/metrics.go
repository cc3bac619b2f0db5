// metrics.go: Prometheus export for breaker state and counters
package breaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "resilgate",
		Subsystem: "breaker",
		Name:      "transitions_total",
		Help:      "Circuit breaker state transitions",
	},
	[]string{"dependency", "to"},
)

// RecordTransition increments the transition counter. Wire it as the
// registry's OnStateChange hook.
func RecordTransition(name string, _, to State) {
	transitionsTotal.WithLabelValues(name, to.String()).Inc()
}

// Collector exposes per-breaker state and monotone counters, evaluated from
// registry snapshots at scrape time. The collector pulls; nothing is pushed.
type Collector struct {
	registry *Registry

	stateDesc      *prometheus.Desc
	callsDesc      *prometheus.Desc
	failuresDesc   *prometheus.Desc
	successesDesc  *prometheus.Desc
	rejectionsDesc *prometheus.Desc
}

// NewCollector builds a collector over the registry. Register it with the
// default prometheus registerer at startup.
func NewCollector(registry *Registry) *Collector {
	labels := []string{"dependency"}
	return &Collector{
		registry: registry,
		stateDesc: prometheus.NewDesc(
			"resilgate_breaker_state",
			"Circuit breaker state (0=closed, 1=open, 2=half-open)",
			labels, nil),
		callsDesc: prometheus.NewDesc(
			"resilgate_breaker_calls_total",
			"Total calls attempted through the breaker",
			labels, nil),
		failuresDesc: prometheus.NewDesc(
			"resilgate_breaker_failures_total",
			"Total countable failures",
			labels, nil),
		successesDesc: prometheus.NewDesc(
			"resilgate_breaker_successes_total",
			"Total successful calls",
			labels, nil),
		rejectionsDesc: prometheus.NewDesc(
			"resilgate_breaker_rejections_total",
			"Total fast-fail rejections while open",
			labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stateDesc
	ch <- c.callsDesc
	ch <- c.failuresDesc
	ch <- c.successesDesc
	ch <- c.rejectionsDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, snap := range c.registry.Snapshots() {
		var state float64
		switch snap.State {
		case StateOpen.String():
			state = 1
		case StateHalfOpen.String():
			state = 2
		}
		ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, state, name)
		ch <- prometheus.MustNewConstMetric(c.callsDesc, prometheus.CounterValue, float64(snap.TotalCalls), name)
		ch <- prometheus.MustNewConstMetric(c.failuresDesc, prometheus.CounterValue, float64(snap.TotalFailures), name)
		ch <- prometheus.MustNewConstMetric(c.successesDesc, prometheus.CounterValue, float64(snap.TotalSuccesses), name)
		ch <- prometheus.MustNewConstMetric(c.rejectionsDesc, prometheus.CounterValue, float64(snap.TotalRejections), name)
	}
}
