// Package metrics exposes Prometheus collectors for the scraper engine.
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

// Task outcome labels used by ObserveTask.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusAborted   = "aborted"
	StatusPanicked  = "panicked"
	StatusRejected  = "rejected"
)

var (
	scraperTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_tasks_total",
			Help: "Total number of scraper tasks executed, labeled by outcome.",
		},
		[]string{"status"},
	)

	scraperTaskDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_task_duration_seconds",
			Help:    "Histogram of scraper task latencies, labeled by outcome.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	scraperInflightTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_inflight_tasks",
			Help: "Number of driver Execute calls currently running.",
		},
	)

	scraperActiveContexts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_active_contexts",
			Help: "Number of browser contexts currently held by tasks.",
		},
	)

	scraperContextOpFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_context_op_failures_total",
			Help: "Total number of failed context operations, labeled by operation.",
		},
		[]string{"op"},
	)

	registryMissingCallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_missing_callbacks_total",
			Help: "Total trampoline invocations for ids with no registered callback.",
		},
	)

	driverBlockedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driver_blocked_requests_total",
			Help: "Total browser requests suppressed by the resource-blocking policy.",
		},
		[]string{"resource"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests to the observability listener, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of observability listener latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	driverRateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driver_rate_limit_delays_seconds",
			Help:    "Histogram of navigation rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
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

// ObserveTask records the outcome and latency of one Execute call.
func ObserveTask(status string, duration time.Duration) {
	scraperTasksTotal.WithLabelValues(status).Inc()
	scraperTaskDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// IncInflightTasks increments the in-flight driver call gauge.
func IncInflightTasks() {
	scraperInflightTasks.Inc()
}

// DecInflightTasks decrements the in-flight driver call gauge.
func DecInflightTasks() {
	scraperInflightTasks.Dec()
}

// IncActiveContexts increments the open context gauge.
func IncActiveContexts() {
	scraperActiveContexts.Inc()
}

// DecActiveContexts decrements the open context gauge.
func DecActiveContexts() {
	scraperActiveContexts.Dec()
}

// ObserveContextOpFailure counts a context operation the driver reported as failed.
func ObserveContextOpFailure(op string) {
	scraperContextOpFailuresTotal.WithLabelValues(op).Inc()
}

// ObserveMissingCallback counts a trampoline call that found no callback.
func ObserveMissingCallback() {
	registryMissingCallbacksTotal.Inc()
}

// ObserveBlockedRequest counts a request failed by the resource-blocking policy.
func ObserveBlockedRequest(resource string) {
	driverBlockedRequestsTotal.WithLabelValues(strings.ToLower(resource)).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	driverRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
