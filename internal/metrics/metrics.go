// Package metrics exposes Prometheus collectors for the catalog importer.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	itemsUpsertedTotal        *prometheus.CounterVec
	itemsSkippedTotal         *prometheus.CounterVec
	pagesFetchedTotal         *prometheus.CounterVec
	apiRequestsTotal          *prometheus.CounterVec
	apiRequestDurationSeconds *prometheus.HistogramVec
	apiRateLimitedTotal       *prometheus.CounterVec
	rateLimitDelaysSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		itemsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_items_upserted_total",
				Help: "Total number of catalog items written, labeled by original language.",
			},
			[]string{"language"},
		)

		itemsSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_items_skipped_total",
				Help: "Total number of search results not written, labeled by reason.",
			},
			[]string{"reason"},
		)

		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_pages_fetched_total",
				Help: "Total number of discovery pages fetched, labeled by original language.",
			},
			[]string{"language"},
		)

		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_api_requests_total",
				Help: "Total number of catalog API requests, labeled by endpoint and code.",
			},
			[]string{"endpoint", "code"},
		)

		apiRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_api_request_duration_seconds",
				Help:    "Histogram of catalog API latencies, labeled by endpoint.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"endpoint"},
		)

		apiRateLimitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_api_rate_limited_total",
				Help: "Total number of HTTP 429 responses from the catalog API, labeled by endpoint.",
			},
			[]string{"endpoint"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "importer_rate_limit_delays_seconds",
				Help:    "Histogram of client-side rate limiter waits.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"endpoint"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveItemUpserted increments the written-items counter.
func ObserveItemUpserted(language string) {
	Init()
	itemsUpsertedTotal.WithLabelValues(language).Inc()
}

// ObserveItemSkipped increments the skipped-items counter.
func ObserveItemSkipped(reason string) {
	Init()
	itemsSkippedTotal.WithLabelValues(reason).Inc()
}

// ObservePageFetched increments the discovery page counter.
func ObservePageFetched(language string) {
	Init()
	pagesFetchedTotal.WithLabelValues(language).Inc()
}

// ObserveAPIRequest records one catalog API round trip. A code of 0 means
// the request failed before a response arrived.
func ObserveAPIRequest(endpoint string, code int, duration time.Duration) {
	Init()
	label := strconv.Itoa(code)
	if code == 0 {
		label = "error"
	}
	apiRequestsTotal.WithLabelValues(endpoint, label).Inc()
	apiRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveRateLimited increments the 429 counter.
func ObserveRateLimited(endpoint string) {
	Init()
	apiRateLimitedTotal.WithLabelValues(endpoint).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(endpoint string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}
