// Package metrics exposes the Prometheus collectors for pipeline runs and the
// HTTP boundary, plus the server that publishes them.
package metrics

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
const (
	// Extraction failure reasons (bounded set)
	FailurePasswordRequired = "password_required"
	FailureParse            = "parse_error"
	FailureCanceled         = "canceled"
	FailureOther            = "other"

	// Cache lookup results
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// ErrorClassifier maps an error to a bounded failure label
type ErrorClassifier func(err error) (string, bool)

// NormalizeFailure maps an extraction failure to the bounded reason set. The
// classifiers are consulted in order before falling back to message matching.
func NormalizeFailure(err error, classifiers ...ErrorClassifier) string {
	if err == nil {
		return ""
	}
	for _, classify := range classifiers {
		if reason, ok := classify(err); ok {
			return reason
		}
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "password"):
		return FailurePasswordRequired
	case strings.Contains(lower, "parse") || strings.Contains(lower, "empty"):
		return FailureParse
	case strings.Contains(lower, "cancel") || strings.Contains(lower, "deadline"):
		return FailureCanceled
	default:
		return FailureOther
	}
}

// IsClassifier builds an ErrorClassifier that reports reason when errors.Is(err, target).
func IsClassifier(target error, reason string) ErrorClassifier {
	return func(err error) (string, bool) {
		if errors.Is(err, target) {
			return reason, true
		}
		return "", false
	}
}

// Pipeline Metrics
var (
	// Runs by terminal state (complete, failed, canceled)
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finadvisor_pipeline_runs_total",
		Help: "Total number of pipeline runs by terminal state",
	}, []string{"state"})

	// Failed runs by bounded reason
	PipelineFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finadvisor_pipeline_failures_total",
		Help: "Total number of failed pipeline runs by reason",
	}, []string{"reason"})

	// End to end run duration
	PipelineRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "finadvisor_pipeline_run_duration_ms",
		Help:    "Pipeline run duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})

	// Stage outcomes (success, fallback, failed)
	StageOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finadvisor_stage_outcomes_total",
		Help: "Total number of stage executions by stage and status",
	}, []string{"stage", "status"})

	// Stage duration
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finadvisor_stage_duration_ms",
		Help:    "Stage execution duration in milliseconds",
		Buckets: []float64{1, 5, 25, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"stage"})

	// Rows skipped during extraction
	SkippedRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finadvisor_extraction_skipped_rows_total",
		Help: "Total number of statement rows skipped during extraction",
	})

	// Holdings extracted
	ExtractedHoldings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finadvisor_extraction_holdings_total",
		Help: "Total number of holdings extracted by category",
	}, []string{"category"})

	// Recommendations produced, by source
	Recommendations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finadvisor_recommendations_total",
		Help: "Total number of recommendations produced by source",
	}, []string{"source"})
)

// System Health Metrics
var (
	// Database connections
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "finadvisor_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "finadvisor_database_connections_idle",
		Help: "Number of idle database connections",
	})

	// Market outlook cache lookups
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finadvisor_cache_lookups_total",
		Help: "Total number of outlook cache lookups by result",
	}, []string{"result"})

	// Audit store writes
	AuditWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finadvisor_audit_writes_total",
		Help: "Total number of run summary writes by status",
	}, []string{"status"})

	// API request duration
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finadvisor_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"method", "path", "status_code"})

	// HTTP requests
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finadvisor_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status_code"})
)

// Helper functions to update metrics

// RecordRun records a finished run
func RecordRun(state string, duration time.Duration) {
	PipelineRuns.WithLabelValues(state).Inc()
	PipelineRunDuration.Observe(float64(duration.Milliseconds()))
}

// RecordRunFailure records a failed run with its normalized reason
func RecordRunFailure(reason string) {
	PipelineFailures.WithLabelValues(reason).Inc()
}

// RecordStage records one stage outcome
func RecordStage(stage, status string, duration time.Duration) {
	StageOutcomes.WithLabelValues(stage, status).Inc()
	StageDuration.WithLabelValues(stage).Observe(float64(duration.Milliseconds()))
}

// RecordExtraction records the holdings and skipped rows of one extraction
func RecordExtraction(holdingsByCategory map[string]int, skipped int) {
	for category, n := range holdingsByCategory {
		ExtractedHoldings.WithLabelValues(category).Add(float64(n))
	}
	if skipped > 0 {
		SkippedRows.Add(float64(skipped))
	}
}

// RecordRecommendation records a produced recommendation
func RecordRecommendation(source string) {
	Recommendations.WithLabelValues(source).Inc()
}

// RecordCacheLookup records an outlook cache lookup
func RecordCacheLookup(hit bool) {
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	CacheLookups.WithLabelValues(result).Inc()
}

// RecordAuditWrite records an audit store write
func RecordAuditWrite(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	AuditWrites.WithLabelValues(status).Inc()
}

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordAPIRequest records an API request with duration
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}
