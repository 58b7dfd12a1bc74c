// Package telemetry provides application-level observability for the service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<MLK_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Credential pool failure / recovery counters
//   - Classifier training outcomes and expiry sweeps
//   - Pending job attempts and queue drain duration
//   - Session user creations and "class full" rejections
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as
// /api/classes/:classid/students/:studentid/projects/:projectid/scratchkeys)
// rather than the raw request URL, so class, student and project ids never
// become label values.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Credential pool metrics, recorded by the pool manager.
//
// PoolCredentialFailuresTotal counts every time a pooled credential had its
// cooldown pushed forward after a failed classifier build. A sustained rate for
// one service type usually means the pool is too small for current demand.
//
// Example PromQL queries:
//   - Failures per hour:  sum by (service_type) (increase(pool_credential_failures_total[1h]))
//
// PoolRecoveryHintsTotal counts cooldown pull-backs after classifier deletion.
var (
	PoolCredentialFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_credential_failures_total",
			Help: "Total number of pooled credential failures recorded, by service type.",
		},
		[]string{"service_type"},
	)

	PoolRecoveryHintsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_recovery_hints_total",
			Help: "Total number of pooled credential cooldown pull-backs, by service type.",
		},
		[]string{"service_type"},
	)
)

// Classifier lifecycle metrics.
//
// ClassifierTrainingTotal has an outcome label: "created", "updated",
// "pool_exhausted", "insufficient_keys", "rate_limited", "bad_credentials",
// "error".
//
// Example PromQL queries:
//   - Pool exhaustion alert:  increase(classifier_training_total{outcome="pool_exhausted"}[15m]) > 0
//
// ClassifiersExpiredTotal counts classifiers removed by the expiry sweep.
var (
	ClassifierTrainingTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_training_total",
			Help: "Total number of text classifier training requests, by outcome.",
		},
		[]string{"outcome"},
	)

	ClassifiersExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classifiers_expired_total",
			Help: "Total number of expired text classifiers deleted by the background sweep.",
		},
	)
)

// Pending job metrics, recorded by the pending job runner.
//
// PendingJobAttemptsTotal has labels {job_type, outcome} where outcome is
// "success" or "failure". Jobs are retried without limit, so a growing failure
// count for one job type points at a stuck cleanup.
//
// Example PromQL queries:
//   - Failure ratio:  sum(rate(pending_job_attempts_total{outcome="failure"}[1h])) / sum(rate(pending_job_attempts_total[1h]))
var (
	PendingJobAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pending_job_attempts_total",
			Help: "Total number of pending job executions, by job type and outcome.",
		},
		[]string{"job_type", "outcome"},
	)

	PendingJobRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pending_job_run_duration_seconds",
			Help:    "Duration of a single drain of the pending jobs queue.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600, 10800},
		},
	)
)

// Session user metrics.
//
// SessionUsersClassFullTotal has labels {origin, source}; source is "cache"
// when the rejection came from the in-process full cache and "store" when the
// live count was checked.
//
// Example PromQL queries:
//   - Rejections by origin:  sum by (origin) (rate(session_users_class_full_total[5m]))
var (
	SessionUsersCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_users_created_total",
			Help: "Total number of session users created.",
		},
	)

	SessionUsersClassFullTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_users_class_full_total",
			Help: "Total number of session user creations rejected because the class was full, by origin and source.",
		},
		[]string{"origin", "source"},
	)

	SessionUsersExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_users_expired_total",
			Help: "Total number of expired session users removed by the cleanup sweep.",
		},
	)
)

// BackgroundPanicsTotal counts panics recovered in background loops, by job name.
var BackgroundPanicsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "background_job_panics_total",
		Help: "Total number of panics recovered in background jobs, by job name.",
	},
	[]string{"job"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when the database becomes unreachable, which happens
// when the application shuts down and closes the pool.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
