// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for system monitoring.
// The package provides comprehensive observability features
// including metrics collection, distributed tracing, and logging.
package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// AIRequestsTotal counts LLM Gateway calls by operation (persona,
	// feedback, aggregation) and outcome.
	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	// AIRequestDuration records durations of AI requests by operation.
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"operation"},
	)

	// PersonaGenerationTotal counts individual personas of a generated
	// batch by terminal status (§4.2 Persona generation pipeline).
	PersonaGenerationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_generation_total",
			Help: "Total generated personas by terminal status",
		},
		[]string{"status"},
	)

	// FeedbackResultTotal counts individual (product, persona)
	// feedback-result cells by terminal status (§4.2 step 2).
	FeedbackResultTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_result_total",
			Help: "Total feedback results by terminal status",
		},
		[]string{"status"},
	)

	// FeedbackSessionDuration observes the wall-clock time between a
	// session entering PENDING and reaching a terminal status (§4.6).
	FeedbackSessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedback_session_duration_seconds",
			Help:    "Feedback session duration from dispatch to termination",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	// SessionLockWaitDuration observes how long the Termination
	// Detector waited to acquire the per-session advisory lock (§4.6).
	SessionLockWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "session_lock_wait_seconds",
			Help:    "Time spent waiting to acquire the session termination lock",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)

	// QueueTaskFailuresTotal counts task failures by queue task type
	// and the domain.ErrorCode that caused them, used by the asynq
	// handlers' classify() path (§4.2, §7).
	QueueTaskFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_task_failures_total",
			Help: "Total queue task failures by task type and error code",
		},
		[]string{"task_type", "error_code"},
	)
)

// appEnv mirrors config.Config.AppEnv without importing the config
// package here. It is read only by isDevEnv; no metric's labels or
// registration depend on it.
var appEnv string

// SetAppEnv records the running environment for isDevEnv.
func SetAppEnv(env string) {
	appEnv = strings.ToLower(env)
}

// isDevEnv reports whether the process is running in dev mode.
func isDevEnv() bool {
	return appEnv == "dev"
}

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(PersonaGenerationTotal)
	prometheus.MustRegister(FeedbackResultTotal)
	prometheus.MustRegister(FeedbackSessionDuration)
	prometheus.MustRegister(SessionLockWaitDuration)
	prometheus.MustRegister(QueueTaskFailuresTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// RecordAIRequest records an LLM Gateway call's outcome and duration.
func RecordAIRequest(operation, outcome string, dur time.Duration) {
	AIRequestsTotal.WithLabelValues(operation, outcome).Inc()
	AIRequestDuration.WithLabelValues(operation).Observe(dur.Seconds())
}

// RecordPersonaGeneration records one persona's terminal status.
func RecordPersonaGeneration(status string) {
	PersonaGenerationTotal.WithLabelValues(status).Inc()
}

// RecordFeedbackResult records a feedback-result cell's terminal status.
func RecordFeedbackResult(status string) {
	FeedbackResultTotal.WithLabelValues(status).Inc()
}

// ObserveFeedbackSessionDuration records a session's total dispatch-to-
// termination duration against its terminal status.
func ObserveFeedbackSessionDuration(status string, dur time.Duration) {
	FeedbackSessionDuration.WithLabelValues(status).Observe(dur.Seconds())
}

// ObserveSessionLockWait records how long TryFinalize waited for the
// advisory lock, labeled by whether it was eventually acquired.
func ObserveSessionLockWait(acquired bool, dur time.Duration) {
	outcome := "acquired"
	if !acquired {
		outcome = "timeout"
	}
	SessionLockWaitDuration.WithLabelValues(outcome).Observe(dur.Seconds())
}

// RecordTaskFailureByCode records a worker task failure keyed by the
// domain.ErrorCode that classified it, defaulting to "UNKNOWN" for an
// empty code so dashboards always have a stable label value.
func RecordTaskFailureByCode(taskType, errorCode string) {
	if errorCode == "" {
		errorCode = "UNKNOWN"
	}
	QueueTaskFailuresTotal.WithLabelValues(taskType, errorCode).Inc()
}
