// Package observability exposes Prometheus metrics for the HTTP surface
// and the ingestion pipeline.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks HTTP requests by route, method and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spendsmart_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// RequestDuration tracks request duration per route.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spendsmart_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// ActiveRequests tracks in-flight requests.
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spendsmart_http_active_requests",
			Help: "Number of in-flight HTTP requests",
		},
	)

	// ClassifierCache counts cache hits and misses on the normalized-form
	// classification cache.
	ClassifierCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spendsmart_classifier_cache_total",
			Help: "Classifier cache lookups by result",
		},
		[]string{"result"},
	)

	// ImportRows counts pipeline row outcomes across all imports.
	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spendsmart_import_rows_total",
			Help: "Statement rows processed by the ingestion pipeline",
		},
		[]string{"outcome"},
	)
)

// RecordClassifierLookup counts one cache lookup.
func RecordClassifierLookup(hit bool) {
	if hit {
		ClassifierCache.WithLabelValues("hit").Inc()
		return
	}
	ClassifierCache.WithLabelValues("miss").Inc()
}

// RecordImportOutcome accumulates one import's row counts.
func RecordImportOutcome(inserted, skippedDuplicates, failed int) {
	ImportRows.WithLabelValues("inserted").Add(float64(inserted))
	ImportRows.WithLabelValues("skipped_duplicate").Add(float64(skippedDuplicates))
	ImportRows.WithLabelValues("failed").Add(float64(failed))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware collects request metrics, labeled by the chi route
// pattern so path parameters don't explode cardinality.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ActiveRequests.Inc()
		defer ActiveRequests.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}
