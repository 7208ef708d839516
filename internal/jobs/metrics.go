// Package jobmetrics holds the Prometheus collectors shared by background jobs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// Metrics counts job runs, their latency and terminal failures.
type Metrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	exhausted *prometheus.CounterVec
	purged    prometheus.Counter
	lastRun   *prometheus.GaugeVec
	now       func() time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers against registerer. A nil registerer shares one
// instance on the default registry so repeated calls do not panic.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	f := promauto.With(registerer)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rfpdesk",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Job executions by task type and outcome.",
		}, []string{"task", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rfpdesk",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Job execution time by task type.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"task"}),
		exhausted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rfpdesk",
			Subsystem: "jobs",
			Name:      "exhausted_total",
			Help:      "Jobs that failed with no retries left.",
		}, []string{"task"}),
		purged: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rfpdesk",
			Subsystem: "auth",
			Name:      "sessions_purged_total",
			Help:      "Ended refresh sessions removed by cleanup.",
		}),
		lastRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rfpdesk",
			Subsystem: "jobs",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per task type.",
		}, []string{"task"}),
		now: time.Now,
	}
}

// Tracker times one job run.
type Tracker struct {
	m     *Metrics
	task  string
	start time.Time
}

// Track starts timing task. It is safe on a nil Metrics.
func (m *Metrics) Track(task string) *Tracker {
	return &Tracker{m: m, task: task, start: time.Now()}
}

// End records the outcome of the run and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil {
		return err
	}
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeFailed
	} else {
		t.m.lastRun.WithLabelValues(t.task).Set(float64(t.m.now().Unix()))
	}
	t.m.runs.WithLabelValues(t.task, outcome).Inc()
	t.m.duration.WithLabelValues(t.task).Observe(time.Since(t.start).Seconds())
	return err
}

// AddExhausted counts a task that will not be retried again.
func (m *Metrics) AddExhausted(task string) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(task).Inc()
}

// AddPurgedSessions counts sessions removed by the cleanup job.
func (m *Metrics) AddPurgedSessions(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}
