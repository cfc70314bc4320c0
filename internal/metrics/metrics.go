package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus collectors for rule evaluation.
type Collector struct {
	passes        *prometheus.CounterVec
	rulesFired    *prometheus.CounterVec
	cycleWarnings *prometheus.CounterVec
	passDuration  *prometheus.HistogramVec
	sessions      prometheus.Gauge
}

// New creates a Collector registered on the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use their own registry
// so parallel tests do not collide on metric names.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		passes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formrules_evaluation_passes_total",
				Help: "Total number of rule evaluation passes run",
			},
			[]string{"form"},
		),

		rulesFired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formrules_rules_fired_total",
				Help: "Total number of rule firings across all passes",
			},
			[]string{"form"},
		),

		cycleWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formrules_cycle_warnings_total",
				Help: "Total number of passes that hit the sweep bound",
			},
			[]string{"form"},
		),

		passDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formrules_evaluation_pass_duration_seconds",
				Help:    "Duration of rule evaluation passes",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
			},
			[]string{"form"},
		),

		sessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "formrules_active_sessions",
				Help: "Number of live form sessions",
			},
		),
	}
}

// ObservePass records one evaluation pass.
func (c *Collector) ObservePass(form string, fired int, cycle bool, elapsed time.Duration) {
	c.passes.WithLabelValues(form).Inc()
	c.rulesFired.WithLabelValues(form).Add(float64(fired))
	if cycle {
		c.cycleWarnings.WithLabelValues(form).Inc()
	}
	c.passDuration.WithLabelValues(form).Observe(elapsed.Seconds())
}

// SessionOpened increments the live session gauge.
func (c *Collector) SessionOpened() { c.sessions.Inc() }

// SessionClosed decrements the live session gauge.
func (c *Collector) SessionClosed() { c.sessions.Dec() }
