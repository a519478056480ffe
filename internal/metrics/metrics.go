// ABOUTME: Prometheus metrics for requests, cached resources, artifacts and the worker pool
// ABOUTME: Each Metrics owns its registry; a nil *Metrics records nothing

// Package metrics exposes the gateway's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "document_gateway"

// Materialize results.
const (
	ResultHit     = "hit"
	ResultDerived = "derived"
	ResultError   = "error"
)

// PoolStats is the part of the worker pool the gauges read.
type PoolStats interface {
	Workers() int
	Busy() int
	Max() int
}

// Metrics holds the gateway collectors.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	materialized  *prometheus.CounterVec
	artifactBytes *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
			},
			[]string{"route"},
		),
		materialized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resource_materializations_total",
				Help:      "Bundled resource lookups by name and result (hit, derived, error).",
			},
			[]string{"name", "result"},
		),
		artifactBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "artifact_bytes",
				Help:      "Size of compiled artifacts in bytes.",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to 256MiB
			},
			[]string{"format"},
		),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.materialized,
		m.artifactBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterPool exports the pool size as gauges.
func (m *Metrics) RegisterPool(p PoolStats) {
	if m == nil || p == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Live worker goroutines.",
		}, func() float64 { return float64(p.Workers()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "busy_workers",
			Help:      "Workers currently handling a request.",
		}, func() float64 { return float64(p.Busy()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "max_workers",
			Help:      "Worker limit.",
		}, func() float64 { return float64(p.Max()) }),
	)
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveMaterialize records a bundled resource lookup.
func (m *Metrics) ObserveMaterialize(name, result string) {
	if m == nil {
		return
	}
	m.materialized.WithLabelValues(name, result).Inc()
}

// ObserveArtifact records the size of a compiled artifact.
func (m *Metrics) ObserveArtifact(format string, size int64) {
	if m == nil {
		return
	}
	m.artifactBytes.WithLabelValues(format).Observe(float64(size))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
