// Package metrics exposes draftr's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors on a private registry so tests can create
// as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Drafting
	DraftsTotal *prometheus.CounterVec

	// Scheduling
	ScheduledTotal prometheus.Counter
	PublishTotal   *prometheus.CounterVec
	MissedPosts    prometheus.Gauge

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.DraftsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftr_drafts_total",
			Help: "Draft generations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	m.ScheduledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "draftr_scheduled_posts_total",
		Help: "Posts accepted for scheduling",
	})
	m.PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftr_publish_total",
			Help: "Scheduled post publications by outcome",
		},
		[]string{"outcome"},
	)
	m.MissedPosts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "draftr_missed_posts",
		Help: "Pending posts whose time elapsed while draftr was not running",
	})
	m.HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftr_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)
	m.HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draftr_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.registry.MustRegister(
		m.DraftsTotal,
		m.ScheduledTotal,
		m.PublishTotal,
		m.MissedPosts,
		m.HTTPRequests,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DraftGenerated implements drafting.Metrics.
func (m *Metrics) DraftGenerated(kind, outcome string) {
	m.DraftsTotal.WithLabelValues(kind, outcome).Inc()
}

// PostScheduled implements schedule.Metrics.
func (m *Metrics) PostScheduled() { m.ScheduledTotal.Inc() }

// PostPublished implements schedule.Metrics.
func (m *Metrics) PostPublished(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.PublishTotal.WithLabelValues(outcome).Inc()
}

// PostsMissed implements schedule.Metrics.
func (m *Metrics) PostsMissed(n int) { m.MissedPosts.Set(float64(n)) }

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
