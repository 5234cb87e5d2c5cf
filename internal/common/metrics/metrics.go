package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Downstream circuit breaker metrics (identity sync, cloud providers)

	// MediatorCircuitBreakerState tracks circuit breaker state
	// 0 = closed (healthy), 1 = open (tripped), 2 = half-open (testing)
	MediatorCircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rangeops",
			Subsystem: "mediator",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"target"},
	)

	// MediatorCircuitBreakerTrips tracks circuit breaker trip events
	MediatorCircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rangeops",
			Subsystem: "mediator",
			Name:      "circuit_breaker_trips_total",
			Help:      "Total circuit breaker trip events",
		},
		[]string{"target"},
	)

	// Scheduler metrics

	// SchedulerJobRuns tracks completed job firings by outcome (ok, error).
	SchedulerJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rangeops",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Total scheduled job firings by outcome",
		},
		[]string{"job_id", "result"},
	)

	// SchedulerJobDuration tracks how long a job's fn took to return.
	SchedulerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rangeops",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of a single scheduled job execution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job_id"},
	)

	// SchedulerMisfiresDropped tracks firings older than misfire_grace_time
	// that were dropped instead of executed.
	SchedulerMisfiresDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rangeops",
			Subsystem: "scheduler",
			Name:      "misfires_dropped_total",
			Help:      "Total job firings dropped for exceeding misfire_grace_time",
		},
		[]string{"job_id"},
	)

	// Batch worker metrics (email queue drain)

	// BatchWorkerRowsProcessed tracks total email rows processed
	BatchWorkerRowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rangeops",
			Subsystem: "batchworker",
			Name:      "rows_processed_total",
			Help:      "Total email queue rows processed",
		},
		[]string{"result"}, // sent, failed
	)

	// BatchWorkerPollDuration tracks claim_due duration
	BatchWorkerPollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rangeops",
			Subsystem: "batchworker",
			Name:      "poll_duration_seconds",
			Help:      "Time to claim a batch of due rows",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// BatchWorkerSendDuration tracks mailer send duration per row
	BatchWorkerSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rangeops",
			Subsystem: "batchworker",
			Name:      "send_duration_seconds",
			Help:      "Time to send a single queued row via the mailer",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// HTTP API metrics

	// HTTPRequestsTotal tracks HTTP API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rangeops",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP API requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP API request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rangeops",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP API request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPActiveConnections tracks active HTTP connections
	HTTPActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rangeops",
			Subsystem: "http",
			Name:      "active_connections",
			Help:      "Number of active HTTP connections",
		},
	)
)

// CircuitBreakerState constants
const (
	CircuitBreakerClosed   = 0
	CircuitBreakerOpen     = 1
	CircuitBreakerHalfOpen = 2
)
