// Package metrics exposes job lifecycle counters in Prometheus format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector tracks submissions, status transitions and adaptive tuning
// outcomes for one supervisor process.
type Collector struct {
	submitted   prometheus.Counter
	transitions *prometheus.CounterVec
	running     prometheus.Gauge

	autotuneRuns     prometheus.Counter
	autotuneFailures prometheus.Counter
}

// NewCollector builds a collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobflow_jobs_submitted_total",
			Help: "Jobs handed to a queue backend.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobflow_status_transitions_total",
			Help: "Job status transitions, labeled by destination status.",
		}, []string{"status"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobflow_jobs_running",
			Help: "Jobs currently assumed to be executing.",
		}),
		autotuneRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobflow_autotune_runs_total",
			Help: "Adaptive tuning probe runs started.",
		}),
		autotuneFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobflow_autotune_failures_total",
			Help: "Adaptive tuning runs that produced no usable hints.",
		}),
	}

	reg.MustRegister(c.submitted, c.transitions, c.running, c.autotuneRuns, c.autotuneFailures)
	return c
}

// JobSubmitted records one submission.
func (c *Collector) JobSubmitted() {
	c.submitted.Inc()
}

// StatusChanged records one transition and maintains the running gauge.
func (c *Collector) StatusChanged(from, to string) {
	c.transitions.WithLabelValues(to).Inc()

	if to == "Running" {
		c.running.Inc()
	}
	if from == "Running" {
		c.running.Dec()
	}
}

// AutotuneRun records one probe run.
func (c *Collector) AutotuneRun() {
	c.autotuneRuns.Inc()
}

// AutotuneFailure records a probe run with no usable hints.
func (c *Collector) AutotuneFailure() {
	c.autotuneFailures.Inc()
}
