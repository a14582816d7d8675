// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	EventsLoaded     *prometheus.CounterVec
	EventsNormalized prometheus.Counter
	InputErrors      *prometheus.CounterVec

	// Scoring metrics
	WalletsScored    prometheus.Counter
	AnomaliesFlagged prometheus.Counter
	UnmatchedBorrows prometheus.Counter
	ModelFitFailures prometheus.Counter
	DegenerateRuns   prometheus.Counter
	LastRunWallets   prometheus.Gauge

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	ReportsGenerated  prometheus.Counter
	ReportFailures    prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec

	// Server metrics
	HTTPRequests  *prometheus.CounterVec
	WSSubscribers prometheus.Gauge

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "wallet_credit"
	}

	return &Metrics{
		// Ingestion metrics
		EventsLoaded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_loaded_total",
			Help:      "Total number of raw events loaded by source",
		}, []string{"source"}),
		EventsNormalized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_normalized_total",
			Help:      "Total number of events normalized",
		}),
		InputErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "input_errors_total",
			Help:      "Total number of fatal input errors by field",
		}, []string{"field"}),

		// Scoring metrics
		WalletsScored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "wallets_scored_total",
			Help:      "Total number of wallet scores produced",
		}),
		AnomaliesFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "anomalies_flagged_total",
			Help:      "Total number of wallets flagged anomalous",
		}),
		UnmatchedBorrows: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "unmatched_borrows_total",
			Help:      "Total number of borrows with no repay of the same asset",
		}),
		ModelFitFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "model_fit_failures_total",
			Help:      "Total number of runs where the anomaly model could not be fitted",
		}),
		DegenerateRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "degenerate_runs_total",
			Help:      "Total number of runs with zero base score variance",
		}),
		LastRunWallets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "last_run_wallets",
			Help:      "Number of wallets scored by the last successful run",
		}),

		// Pipeline metrics
		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"status"}),
		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"status"}),
		ReportsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporting",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),
		ReportFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporting",
			Name:      "report_failures_total",
			Help:      "Total number of report generation failures",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Score cache lookups by operation and result (hit, miss)",
		}, []string{"operation", "result"}),

		// Server metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		WSSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "ws_subscribers",
			Help:      "Current number of websocket subscribers",
		}),

		// Health metrics
		LastSuccessfulPipeline: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventsLoaded adds n loaded events from source.
func RecordEventsLoaded(source string, n int) {
	DefaultMetrics.EventsLoaded.WithLabelValues(source).Add(float64(n))
}

// RecordEventsNormalized adds n normalized events.
func RecordEventsNormalized(n int) {
	DefaultMetrics.EventsNormalized.Add(float64(n))
}

// RecordInputError records a fatal input error on field.
func RecordInputError(field string) {
	if field == "" {
		field = "record"
	}
	DefaultMetrics.InputErrors.WithLabelValues(field).Inc()
}

// RecordScoringRun records the outcome counters of a completed scoring run.
func RecordScoringRun(wallets, anomalies, unmatched int, modelFitFailed, degenerate bool) {
	DefaultMetrics.WalletsScored.Add(float64(wallets))
	DefaultMetrics.AnomaliesFlagged.Add(float64(anomalies))
	DefaultMetrics.UnmatchedBorrows.Add(float64(unmatched))
	if modelFitFailed {
		DefaultMetrics.ModelFitFailures.Inc()
	}
	if degenerate {
		DefaultMetrics.DegenerateRuns.Inc()
	}
	DefaultMetrics.LastRunWallets.Set(float64(wallets))
}

// RecordPipelineRun records a pipeline run.
func RecordPipelineRun(status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordPipelineSuccess sets the last successful pipeline timestamp.
func RecordPipelineSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulPipeline.Set(float64(unixSeconds))
}

// RecordReport records a report generation attempt.
func RecordReport(err error) {
	if err != nil {
		DefaultMetrics.ReportFailures.Inc()
		return
	}
	DefaultMetrics.ReportsGenerated.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordCacheLookup counts a score cache hit or miss.
func RecordCacheLookup(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheLookups.WithLabelValues(operation, result).Inc()
}

// RecordHTTPRequest counts a served request.
func RecordHTTPRequest(route string, code int) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// SetWSSubscribers sets the current websocket subscriber count.
func SetWSSubscribers(n int) {
	DefaultMetrics.WSSubscribers.Set(float64(n))
}
