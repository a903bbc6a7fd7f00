// Package metrics exposes Prometheus collectors for the ingest service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_jobs_total",
			Help: "Total number of jobs that reached a terminal state, labeled by status.",
		},
		[]string{"status"},
	)

	ingestCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_cache_lookups_total",
			Help: "Result cache lookups, labeled by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	ingestExtractionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_extraction_attempts_total",
			Help: "Extraction engine invocations, labeled by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	ingestBackoffSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_backoff_seconds",
			Help:    "Randomized delays slept between extraction strategies.",
			Buckets: []float64{0.5, 1, 2, 3, 4, 5, 10},
		},
	)

	ingestRateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_rate_limit_delays_seconds",
			Help:    "Histogram of per-domain rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	ingestActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_active_workers",
			Help: "Number of workers currently processing a job.",
		},
	)

	ingestSinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_sink_errors_total",
			Help: "Failures delivering a finished job to a completion sink.",
		},
		[]string{"sink"},
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

// SanitizeSite extracts a lowercase hostname for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob counts a job reaching the given terminal status.
func ObserveJob(status string) {
	ingestJobsTotal.WithLabelValues(status).Inc()
}

// ObserveCacheLookup records a cache hit, miss, or error.
func ObserveCacheLookup(result string) {
	ingestCacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveExtractionAttempt counts one engine invocation.
func ObserveExtractionAttempt(strategy, outcome string) {
	ingestExtractionAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveBackoff records the delay slept before a fallback attempt.
func ObserveBackoff(d time.Duration) {
	ingestBackoffSeconds.Observe(d.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	ingestRateLimitDelaysSeconds.WithLabelValues(domain).Observe(d.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	ingestActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	ingestActiveWorkers.Dec()
}

// ObserveSinkError counts a failed completion sink delivery.
func ObserveSinkError(sink string) {
	ingestSinkErrorsTotal.WithLabelValues(sink).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
