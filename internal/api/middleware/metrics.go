package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. All methods are no-ops
// on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	sizingRuns        *prometheus.CounterVec
	solveSeconds      prometheus.Histogram
	profileCache      *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry, so several
// routers (tests) can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		sizingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sizing_runs_total",
			Help: "Sizing runs by outcome (ok or the error code).",
		}, []string{"status"}),
		solveSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sizing_solve_seconds",
			Help:    "Time spent in the LP solver per successful run.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		profileCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_cache_total",
			Help: "Profile cache lookups by result (hit or miss).",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.sizingRuns,
		m.solveSeconds,
		m.profileCache,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SizingRun(status string, solve time.Duration) {
	if m == nil {
		return
	}
	m.sizingRuns.WithLabelValues(status).Inc()
	if status == "ok" {
		m.solveSeconds.Observe(solve.Seconds())
	}
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.profileCache.WithLabelValues("hit").Inc()
	} else {
		m.profileCache.WithLabelValues("miss").Inc()
	}
}
