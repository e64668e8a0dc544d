package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Upstream catalog provider
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animehub_upstream_requests_total",
			Help: "Upstream catalog requests by method and outcome",
		},
		[]string{"method", "outcome"}, // outcome: ok, not_found, error, breaker_open
	)

	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animehub_upstream_retries_total",
			Help: "Retries issued against the upstream catalog provider",
		},
		[]string{"status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "animehub_upstream_request_duration_seconds",
			Help:    "Duration of upstream calls including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	UpstreamCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animehub_upstream_cache_total",
			Help: "Upstream response cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "animehub_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Catalog ingestion
	CatalogUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animehub_catalog_upserts_total",
			Help: "Catalog entries touched by ingestion",
		},
		[]string{"path"}, // trending, import, sync, range
	)

	IngestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animehub_ingest_failures_total",
			Help: "Isolated per-item or per-page ingestion failures",
		},
		[]string{"path"},
	)

	// Engine
	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "animehub_recommendation_duration_seconds",
			Help:    "Time to build recommendations for one user",
			Buckets: prometheus.DefBuckets,
		},
	)

	AutoStatusTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "animehub_auto_status_transitions_total",
			Help: "Tracking entries moved by the auto-status rules",
		},
	)

	// Background job
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animehub_job_runs_total",
			Help: "Background job iterations by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "animehub_job_duration_seconds",
			Help:    "Background job iteration duration",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"job"},
	)

	// HTTP
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animehub_api_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "animehub_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "animehub_websocket_connections",
			Help: "Open websocket connections",
		},
	)
)

// GinMiddleware records per-route request counts and latency.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		APIRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		APILatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
