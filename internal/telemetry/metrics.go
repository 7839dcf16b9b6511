// Package telemetry provides logging setup and Prometheus metrics for the dandi service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served on
// the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<DANDI_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not part of the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Analysis outcomes by error kind
//   - Upstream call latency for GitHub and the language model
//   - Summarizer fallbacks and usage-recording failures
//   - Exhausted API keys (sampled by the quota monitor job)
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// The path label holds the Gin route template (e.g. /api/keys/:id), not the raw URL,
// to keep label cardinality bounded.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
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

// Analysis pipeline metrics.
//
// AnalysisRequestsTotal counts finished analyses by outcome: "success" or the error kind
// that ended the request (missing_key, invalid_key, quota_exceeded, invalid_repository_url,
// readme_not_found, upstream_configuration, internal).
//
// UpstreamRequestDuration times every outbound call, labelled by service ("github", "llm"),
// operation (e.g. "repo_info", "readme", "generate") and status (HTTP code or "error").
//
// Example PromQL queries:
//   - Quota rejections per hour:  increase(dandi_analysis_requests_total{outcome="quota_exceeded"}[1h])
//   - GitHub error ratio:         sum(rate(dandi_upstream_request_duration_seconds_count{service="github",status!~"2.."}[5m])) / sum(rate(dandi_upstream_request_duration_seconds_count{service="github"}[5m]))
var (
	AnalysisRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dandi_analysis_requests_total",
			Help: "Total number of repository analyses, by outcome.",
		},
		[]string{"outcome"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dandi_upstream_request_duration_seconds",
			Help:    "Latency of outbound calls to GitHub and the language model, by service, operation, and status.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "operation", "status"},
	)

	SummarizerFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dandi_summarizer_fallbacks_total",
			Help: "Total number of summaries replaced by the fixed fallback, by reason.",
		},
		[]string{"reason"},
	)
)

// UsageRecordFailuresTotal counts usage increments that failed after a successful analysis.
// Each one is an analysis the caller was not charged for.
var UsageRecordFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "dandi_usage_record_failures_total",
		Help: "Total number of usage increments that failed after a successful analysis.",
	},
)

// APIKeysQuotaExceeded is the number of keys whose enabled monthly limit has been reached,
// sampled by the quota monitor job. There is no automatic reset, so this only goes down
// when an owner raises or disables a limit.
var APIKeysQuotaExceeded = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "dandi_api_keys_quota_exceeded",
		Help: "Current number of API keys that have reached their enabled monthly limit.",
	},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when the database becomes unreachable, which happens once the
// application shuts down and closes the pool.
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
