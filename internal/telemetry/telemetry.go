// Package telemetry holds the Prometheus metrics and OpenTelemetry tracing
// shared by the API and the worker.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpa_pages_total",
			Help: "Pages or units visited during traversal, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	recordsPersistedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpa_records_persisted_total",
			Help: "Records written to the result sink, labeled by source.",
		},
		[]string{"source"},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpa_jobs_total",
			Help: "Deliveries handled by workers, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	jobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpa_job_duration_seconds",
			Help:    "Wall time of a traversal, labeled by source and final status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"source", "status"},
	)

	activeJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpa_active_jobs",
			Help: "Number of jobs currently being traversed.",
		},
	)

	enqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpa_enqueued_total",
			Help: "Deliveries published to the work queue, labeled by result.",
		},
		[]string{"result"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpa_rate_limit_delays_seconds",
			Help:    "Histogram of pacing wait durations.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"domain"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, route, rec.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// ObservePage records one visited page or unit.
func ObservePage(source, outcome string) {
	pagesTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveRecords records rows written to the result sink.
func ObserveRecords(source string, n int) {
	if n > 0 {
		recordsPersistedTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveJob records how a delivery was handled.
func ObserveJob(source, outcome string) {
	jobsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveJobDuration records the traversal time of a finished job.
func ObserveJobDuration(source, status string, d time.Duration) {
	jobDurationSeconds.WithLabelValues(source, status).Observe(d.Seconds())
}

// IncActiveJobs increments the in-flight job gauge.
func IncActiveJobs() {
	activeJobs.Inc()
}

// DecActiveJobs decrements the in-flight job gauge.
func DecActiveJobs() {
	activeJobs.Dec()
}

// ObserveEnqueue records published deliveries.
func ObserveEnqueue(result string, n int) {
	if n > 0 {
		enqueuedTotal.WithLabelValues(result).Add(float64(n))
	}
}

// ObserveRateLimitDelay records the duration of a pacing wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
