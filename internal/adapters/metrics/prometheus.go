// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	discoveryRuns       *prometheus.CounterVec
	discoveryDuration   prometheus.Histogram
	datasetsCataloged   prometheus.Gauge
	discoveryIssues     prometheus.Gauge
	catalogServed       *prometheus.CounterVec
	queryCounter        *prometheus.CounterVec
	queryDuration       *prometheus.HistogramVec
	upstreamRequests    *prometheus.CounterVec
	upstreamDuration    prometheus.Histogram
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "atlas"
	}

	return &Collector{
		discoveryRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discovery_runs_total",
				Help:      "Total number of discovery runs",
			},
			[]string{"status"},
		),

		discoveryDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "discovery_duration_seconds",
				Help:      "Discovery run duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),

		datasetsCataloged: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "datasets_cataloged",
				Help:      "Number of datasets in the current snapshot",
			},
		),

		discoveryIssues: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "discovery_issues",
				Help:      "Number of items not cataloged in the last run",
			},
		),

		catalogServed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_served_total",
				Help:      "Total number of catalog reads served",
			},
			[]string{"freshness"},
		),

		queryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of feature queries",
			},
			[]string{"service", "status"},
		),

		queryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "End-to-end query duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"},
		),

		upstreamRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of requests to the GIS backend",
			},
			[]string{"outcome"},
		),

		upstreamDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Upstream request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// IncDiscoveryRuns increments the discovery run counter.
func (c *Collector) IncDiscoveryRuns(success bool) {
	c.discoveryRuns.WithLabelValues(statusLabel(success)).Inc()
}

// ObserveDiscoveryDuration records the duration of a discovery run.
func (c *Collector) ObserveDiscoveryDuration(duration time.Duration) {
	c.discoveryDuration.Observe(duration.Seconds())
}

// SetDatasetsCataloged sets the dataset count of the current snapshot.
func (c *Collector) SetDatasetsCataloged(count int) {
	c.datasetsCataloged.Set(float64(count))
}

// SetDiscoveryIssues sets the issue count of the last discovery run.
func (c *Collector) SetDiscoveryIssues(count int) {
	c.discoveryIssues.Set(float64(count))
}

// IncCatalogServed counts a catalog read, labeled fresh or stale.
func (c *Collector) IncCatalogServed(stale bool) {
	freshness := "fresh"
	if stale {
		freshness = "stale"
	}
	c.catalogServed.WithLabelValues(freshness).Inc()
}

// IncQueryCount increments the query counter per service.
func (c *Collector) IncQueryCount(service string, success bool) {
	c.queryCounter.WithLabelValues(service, statusLabel(success)).Inc()
}

// ObserveQueryDuration records end-to-end query duration per service.
func (c *Collector) ObserveQueryDuration(service string, duration time.Duration) {
	c.queryDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// IncUpstreamRequests counts outbound requests to the GIS backend.
func (c *Collector) IncUpstreamRequests(outcome string) {
	c.upstreamRequests.WithLabelValues(outcome).Inc()
}

// ObserveUpstreamDuration records a single upstream attempt's duration.
func (c *Collector) ObserveUpstreamDuration(duration time.Duration) {
	c.upstreamDuration.Observe(duration.Seconds())
}

// IncHTTPRequests increments the HTTP request counter.
func (c *Collector) IncHTTPRequests(method, path, status string) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveHTTPDuration records HTTP request duration.
func (c *Collector) ObserveHTTPDuration(method, path string, duration time.Duration) {
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns HTTP middleware for metrics collection.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		path := normalizePath(r.URL.Path)
		status := statusToString(wrapped.statusCode)

		c.IncHTTPRequests(r.Method, path, status)
		c.ObserveHTTPDuration(r.Method, path, duration)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// normalizePath caps path length to keep metric cardinality bounded.
func normalizePath(path string) string {
	switch {
	case len(path) > 40:
		return path[:40] + "..."
	default:
		return path
	}
}

// statusToString converts HTTP status code to string category.
func statusToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
