package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	reminders *prometheus.CounterVec
	invoices  *prometheus.CounterVec
	overdue   prometheus.Counter
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

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records duration and outcome, returning err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddReminders counts reminders delivered and failed in one dispatch run.
func (m *Metrics) AddReminders(sent, failed int) {
	if m == nil {
		return
	}
	if sent > 0 {
		m.reminders.WithLabelValues("sent").Add(float64(sent))
	}
	if failed > 0 {
		m.reminders.WithLabelValues("failed").Add(float64(failed))
	}
}

// AddInvoices counts the outcome of a monthly invoice batch.
func (m *Metrics) AddInvoices(generated, skipped int) {
	if m == nil {
		return
	}
	if generated > 0 {
		m.invoices.WithLabelValues("generated").Add(float64(generated))
	}
	if skipped > 0 {
		m.invoices.WithLabelValues("skipped").Add(float64(skipped))
	}
}

// AddOverdue counts invoices moved to overdue.
func (m *Metrics) AddOverdue(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.overdue.Add(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rent_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rent_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rent_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	reminders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rent_reminders_total",
		Help: "Reminders dispatched, partitioned by delivery status.",
	}, []string{"status"})
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rent_monthly_invoices_total",
		Help: "Tenants processed by the monthly invoice run, by result.",
	}, []string{"result"})
	overdue := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rent_invoices_marked_overdue_total",
		Help: "Invoices moved to overdue by the sweep.",
	})
	registerer.MustRegister(runs, failures, duration, reminders, invoices, overdue)
	return &Metrics{
		runs:      runs,
		failures:  failures,
		duration:  duration,
		reminders: reminders,
		invoices:  invoices,
		overdue:   overdue,
	}
}
