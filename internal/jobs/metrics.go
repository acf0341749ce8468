// Package jobmetrics instruments background task execution.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	enqueued *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single task run.
type Tracker struct {
	metrics  *Metrics
	taskType string
	start    time.Time
}

// Track spawns a tracker for the given task type.
func (m *Metrics) Track(taskType string) *Tracker {
	if m == nil {
		return &Tracker{taskType: taskType, start: time.Now()}
	}
	return &Tracker{metrics: m, taskType: taskType, start: time.Now()}
}

// End finalises the tracker, recording duration and outcome, and returns err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.taskType == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	t.metrics.runs.WithLabelValues(t.taskType, status).Inc()
	t.metrics.duration.WithLabelValues(t.taskType).Observe(time.Since(t.start).Seconds())
	return err
}

// Enqueued counts a submission attempt; outcome is "queued", "duplicate" or "error".
func (m *Metrics) Enqueued(taskType, outcome string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(taskType, outcome).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alertas_jobs_total",
		Help: "Total task executions partitioned by task type and status.",
	}, []string{"type", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alertas_job_duration_seconds",
		Help:    "Duration in seconds of task executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alertas_jobs_enqueued_total",
		Help: "Task submissions from the dashboard by outcome.",
	}, []string{"type", "outcome"})
	registerer.MustRegister(runs, duration, enqueued)
	return &Metrics{runs: runs, duration: duration, enqueued: enqueued}
}
