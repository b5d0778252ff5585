// Package metrics holds the Prometheus collectors of the dev and preview
// servers.
//
// Metrics collected:
//   - devpack_http_requests_total: Counter of served requests by server, method and status
//   - devpack_proxy_requests_total: Counter of proxied requests by route and status
//   - devpack_proxy_request_duration_seconds: Histogram of upstream latency by route
//   - devpack_rebuilds_total: Counter of dev rebuilds by result
//   - devpack_rebuild_duration_seconds: Histogram of dev rebuild duration
//   - devpack_reloads_total: Counter of live-reload messages by kind
//   - devpack_watch_events_total: Counter of file change events by kind
//
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures New.
type Config struct {
	// Namespace is the metrics namespace (default: "devpack").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry receives the collectors and backs Handler.
	// Default: a fresh registry.
	Registry *prometheus.Registry
}

// Option configures New.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Metrics is a set of collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	proxyRequests   *prometheus.CounterVec
	proxyDuration   *prometheus.HistogramVec
	rebuilds        *prometheus.CounterVec
	rebuildDuration prometheus.Histogram
	reloads         *prometheus.CounterVec
	watchEvents     *prometheus.CounterVec
}

// New registers the collectors and returns them.
func New(opts ...Option) *Metrics {
	config := Config{
		Namespace: "devpack",
		Buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		registry: config.Registry,

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests served",
			ConstLabels: config.ConstLabels,
		}, []string{"server", "method", "status"}),

		proxyRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "proxy_requests_total",
			Help:        "Total number of requests forwarded to proxy targets",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "status"}),

		proxyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "proxy_request_duration_seconds",
			Help:        "Proxied request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route"}),

		rebuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "rebuilds_total",
			Help:        "Total number of dev server rebuilds",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		rebuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "rebuild_duration_seconds",
			Help:        "Dev server rebuild duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "reloads_total",
			Help:        "Total number of live-reload messages sent to browsers",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		watchEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "watch_events_total",
			Help:        "Total number of file change events",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests served by the named server.
func (m *Metrics) Middleware(server string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.httpRequests.WithLabelValues(server, r.Method, strconv.Itoa(status)).Inc()
		})
	}
}

// RecordProxy records one proxied request. A status of 0 means the
// upstream could not be reached.
func (m *Metrics) RecordProxy(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.proxyRequests.WithLabelValues(route, label).Inc()
	m.proxyDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordRebuild records a dev rebuild.
func (m *Metrics) RecordRebuild(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.rebuilds.WithLabelValues(result).Inc()
	m.rebuildDuration.Observe(d.Seconds())
}

// RecordReload records a live-reload message of the given kind.
func (m *Metrics) RecordReload(kind string) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(kind).Inc()
}

// RecordWatchEvent records a file change event of the given kind.
func (m *Metrics) RecordWatchEvent(kind string) {
	if m == nil {
		return
	}
	m.watchEvents.WithLabelValues(kind).Inc()
}
