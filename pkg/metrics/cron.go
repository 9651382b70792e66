package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	cronSubsystem = "cron"

	statusSuccess = "success"
	statusFailure = "failure"
)

// jobDurationBuckets spans the maintenance jobs this worker runs, from no-op
// sweeps to multi-minute purges.
var jobDurationBuckets = []float64{0.1, 0.5, 2, 10, 60, 300}

// CronJobMetrics instruments the jobs executed by the cron worker. A nil or
// unregistered value is a no-op, so call sites carry no guards.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewCronJobMetrics registers the job instruments on reg.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: cronSubsystem,
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of cron job runs.",
			Buckets:   jobDurationBuckets,
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: cronSubsystem,
			Name:      "job_runs_total",
			Help:      "Completed cron job runs by outcome.",
		}, []string{"job", "status"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: cronSubsystem,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of each job's most recent successful run.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.duration, m.runs, m.lastSuccess)
	return m
}

// ObserveDuration records how long the named job ran.
func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess counts a successful run and stamps the job's freshness gauge.
// Alerts key off the gauge when a job stops completing.
func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.runs == nil {
		return
	}
	label := normalizeLabel(job)
	c.runs.WithLabelValues(label, statusSuccess).Inc()
	c.lastSuccess.WithLabelValues(label).SetToCurrentTime()
}

// IncFailure counts a failed run.
func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(normalizeLabel(job), statusFailure).Inc()
}
