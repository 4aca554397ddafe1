// Package metrics exposes per-tick scheduler telemetry as Prometheus
// counters/histograms (spec §4.5 step 3: "emit per-tick telemetry to an
// observer interface"). Grounded on infrastructure/metrics/metrics.go's
// Metrics struct and New/NewWithRegistry constructors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fdpkit/fdp/system/scheduler"
)

// Metrics implements scheduler.Observer, recording per-module tick
// duration and counting overruns.
type Metrics struct {
	tickDuration   *prometheus.HistogramVec
	tickCounter    prometheus.Counter
	overrunCounter *prometheus.CounterVec
}

// New registers a fresh set of collectors against the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers against a caller-supplied registry, for
// tests or multi-world processes that need isolated metric namespaces.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fdp",
			Subsystem: "scheduler",
			Name:      "module_tick_seconds",
			Help:      "Per-module Tick() duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"module"}),
		tickCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fdp",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Total scheduler ticks run.",
		}),
		overrunCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fdp",
			Subsystem: "scheduler",
			Name:      "module_overruns_total",
			Help:      "Count of modules that exceeded the tick budget.",
		}, []string{"module"}),
	}
	reg.MustRegister(m.tickDuration, m.tickCounter, m.overrunCounter)
	return m
}

// OnTick implements scheduler.Observer.
func (m *Metrics) OnTick(stats scheduler.TickStats) {
	m.tickCounter.Inc()
	for module, d := range stats.Durations {
		m.tickDuration.WithLabelValues(module).Observe(d.Seconds())
	}
	for _, module := range stats.Overruns {
		m.overrunCounter.WithLabelValues(module).Inc()
	}
}
