package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	reminderSweepsTotal    prometheus.Counter
	remindersSentTotal     prometheus.Counter
	reminderFailuresTotal  prometheus.Counter
	reminderSweepSeconds   prometheus.Histogram
	gradingsTotal          prometheus.Counter
	groupAutoAssignedTotal prometheus.Counter
	httpRequestsTotal      *prometheus.CounterVec
	httpErrorsTotal        *prometheus.CounterVec
	httpLatencySeconds     *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors for the homework engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		reminderSweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminder_sweeps_total",
			Help: "Total number of reminder sweep cycles executed.",
		})

		remindersSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Total number of deadline reminders dispatched to students.",
		})

		reminderFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminder_failures_total",
			Help: "Total number of reminder sends that failed.",
		})

		reminderSweepSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminder_sweep_seconds",
			Help:    "Duration distribution of reminder sweep cycles.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		})

		gradingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gradings_total",
			Help: "Total number of score writes committed with an audit entry.",
		})

		groupAutoAssignedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "group_auto_assigned_total",
			Help: "Total number of students placed into groups by auto-assign.",
		})

		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP requests answered with an error status.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency distribution of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		prometheus.MustRegister(
			reminderSweepsTotal,
			remindersSentTotal,
			reminderFailuresTotal,
			reminderSweepSeconds,
			gradingsTotal,
			groupAutoAssignedTotal,
			httpRequestsTotal,
			httpErrorsTotal,
			httpLatencySeconds,
		)
	})
}

// ReminderSweeps exposes the sweep cycle counter.
func ReminderSweeps() prometheus.Counter {
	RegisterMetrics()
	return reminderSweepsTotal
}

// RemindersSent exposes the dispatched reminder counter.
func RemindersSent() prometheus.Counter {
	RegisterMetrics()
	return remindersSentTotal
}

// ReminderFailures exposes the failed reminder counter.
func ReminderFailures() prometheus.Counter {
	RegisterMetrics()
	return reminderFailuresTotal
}

// ReminderSweepDuration exposes the sweep latency histogram.
func ReminderSweepDuration() prometheus.Histogram {
	RegisterMetrics()
	return reminderSweepSeconds
}

// GradingsTotal exposes the committed grading counter.
func GradingsTotal() prometheus.Counter {
	RegisterMetrics()
	return gradingsTotal
}

// GroupAutoAssigned exposes the auto-assign placement counter.
func GroupAutoAssigned() prometheus.Counter {
	RegisterMetrics()
	return groupAutoAssignedTotal
}

// HTTPRequests exposes the per-route request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPErrors exposes the per-route error counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// HTTPLatency exposes the per-route latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}
