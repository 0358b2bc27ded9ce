// Package metrics exposes client instrumentation as Prometheus collectors.
// The package owns its registry; callers that want an HTTP exporter can mount
// promhttp against Registry themselves.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mbgo/internal/exchange"
)

// Metrics implements exchange.Metrics on top of Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      prometheus.Histogram
	rateLimitHits *prometheus.CounterVec
	globalUtil    prometheus.Gauge
	cacheHits     *prometheus.CounterVec
	wsReconnects  prometheus.Counter
	wsDropped     *prometheus.CounterVec
	trackedOrders prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mbgo_requests_total",
			Help: "REST requests by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mbgo_request_duration_seconds",
			Help:    "REST request latency.",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mbgo_ratelimit_hits_total",
			Help: "Requests rejected or delayed by the rate limiter, by scope.",
		}, []string{"scope"}),
		globalUtil: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mbgo_ratelimit_global_utilization",
			Help: "Fraction of the global per-minute budget consumed.",
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mbgo_cache_hits_total",
			Help: "Cache lookups by result.",
		}, []string{"result"}),
		wsReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mbgo_ws_reconnects_total",
			Help: "WebSocket reconnection attempts.",
		}),
		wsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mbgo_ws_dropped_messages_total",
			Help: "Stream messages dropped on full subscriber buffers, by channel.",
		}, []string{"channel"}),
		trackedOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mbgo_tracked_orders",
			Help: "Orders currently tracked by the lifecycle tracker.",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.rateLimitHits,
		m.globalUtil,
		m.cacheHits,
		m.wsReconnects,
		m.wsDropped,
		m.trackedOrders,
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveRequest(outcome exchange.Outcome, elapsed time.Duration) {
	m.requests.WithLabelValues(string(outcome)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) RateLimitHit(scope exchange.Scope) {
	m.rateLimitHits.WithLabelValues(scope.String()).Inc()
}

func (m *Metrics) GlobalUtilization(u float64) {
	m.globalUtil.Set(u)
}

func (m *Metrics) CacheResult(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheHits.WithLabelValues(result).Inc()
}

func (m *Metrics) WSReconnect() {
	m.wsReconnects.Inc()
}

func (m *Metrics) WSDropped(channel string) {
	m.wsDropped.WithLabelValues(channel).Inc()
}

// SetTrackedOrders records the current tracked order count.
func (m *Metrics) SetTrackedOrders(n int) {
	m.trackedOrders.Set(float64(n))
}
