// Package metrics exposes valuation and simulation counters through a
// private Prometheus registry. A CLI process is short-lived, so the
// registry is written to a node-exporter textfile instead of being scraped.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "rnpv"

// Collector records engine activity. It implements montecarlo.Recorder.
type Collector struct {
	registry   *prometheus.Registry
	iterations *prometheus.CounterVec
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	valuations *prometheus.CounterVec
}

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "iterations_total",
			Help:      "Monte Carlo iterations completed.",
		}, []string{"mode"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "runs_total",
			Help:      "Monte Carlo runs finished, by mode and whether they were cut short.",
		}, []string{"mode", "partial"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "duration_seconds",
			Help:      "Wall time of Monte Carlo runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"mode"}),
		valuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "runs_total",
			Help:      "Deterministic valuations, by outcome.",
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(c.iterations, c.runs, c.duration, c.valuations)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// IterationCompleted counts one finished iteration.
func (c *Collector) IterationCompleted(mode string) {
	c.iterations.WithLabelValues(mode).Inc()
}

// RunCompleted records the end of a simulation run.
func (c *Collector) RunCompleted(mode string, completed int, elapsed time.Duration, partial bool) {
	c.runs.WithLabelValues(mode, strconv.FormatBool(partial)).Inc()
	c.duration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ValuationCompleted counts one deterministic run; err decides the outcome.
func (c *Collector) ValuationCompleted(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.valuations.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes every metric to path in the Prometheus text format.
// An empty path is a no-op.
func (c *Collector) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return eris.Wrapf(prometheus.WriteToTextfile(path, c.registry), "metrics: write %s", path)
}
