// Package metrics exposes Prometheus counters for the resolver and proxy.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stream_proxy"

// Metrics holds the application collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	resolves     *prometheus.CounterVec
	hopDuration  *prometheus.HistogramVec
	upstream     *prometheus.CounterVec
	segmentBytes prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time to serve HTTP requests, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolves_total",
			Help:      "Resolve attempts by outcome (direct, payload, cache_hit, not_found, invalid).",
		}, []string{"outcome"}),
		hopDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolver_hop_duration_seconds",
			Help:      "Duration of each resolver hop.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 15},
		}, []string{"stage", "result"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_responses_total",
			Help:      "Upstream responses by fetch kind and status class.",
		}, []string{"kind", "class"}),
		segmentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_bytes_total",
			Help:      "Bytes relayed by the segment proxy.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.resolves,
		m.hopDuration,
		m.upstream,
		m.segmentBytes,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveResolve records the outcome of one resolve.
func (m *Metrics) ObserveResolve(outcome string) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(outcome).Inc()
}

// ObserveHop records the duration of one resolver hop.
func (m *Metrics) ObserveHop(stage string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.hopDuration.WithLabelValues(stage, result).Observe(d.Seconds())
}

// ObserveUpstream records an upstream response. A zero status means the
// request failed before a response arrived.
func (m *Metrics) ObserveUpstream(kind string, status int) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(kind, statusClass(status)).Inc()
}

// SegmentBytes returns the relayed byte counter.
func (m *Metrics) SegmentBytes() prometheus.Counter {
	if m == nil {
		return nil
	}
	return m.segmentBytes
}

// AddSegmentBytes adds n to the relayed byte counter.
func (m *Metrics) AddSegmentBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.segmentBytes.Add(float64(n))
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
