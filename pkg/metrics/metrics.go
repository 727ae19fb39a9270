// Package metrics collects and exposes Prometheus metrics for the concierge pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the pipeline components.
type Recorder interface {
	RecordAnswer(source string, duration time.Duration)
	RecordCacheLookup(hit bool)
	RecordDispatch(source, outcome string, duration time.Duration)
	RecordFallback(reason string)
	RecordRateLimited(keyKind string)
	RecordSideEffectDropped(task string)
	RecordSideEffectFailed(task string)
	RecordIsolationViolation(stage string)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	answers            *prometheus.HistogramVec
	cacheLookups       *prometheus.CounterVec
	dispatchLatency    *prometheus.HistogramVec
	fallbacks          *prometheus.CounterVec
	rateLimited        *prometheus.CounterVec
	sideEffectDropped  *prometheus.CounterVec
	sideEffectFailed   *prometheus.CounterVec
	isolationViolation *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		answers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "concierge_answers_seconds",
			Help:    "End-to-end answer latency by answer source",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_cache_lookups_total",
			Help: "Response cache lookups by result",
		}, []string{"result"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "concierge_dispatch_seconds",
			Help:    "Answer source dispatch latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"source", "outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_fallbacks_total",
			Help: "Fallback answers served by reason",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"key_kind"}),
		sideEffectDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_side_effects_dropped_total",
			Help: "Background tasks dropped because the queue was full or closed",
		}, []string{"task"}),
		sideEffectFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_side_effects_failed_total",
			Help: "Background tasks that returned an error or panicked",
		}, []string{"task"}),
		isolationViolation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_isolation_violation_total",
			Help: "Connections that could not be bound to or reset from a tenant",
		}, []string{"stage"}),
	}

	reg.MustRegister(
		c.answers,
		c.cacheLookups,
		c.dispatchLatency,
		c.fallbacks,
		c.rateLimited,
		c.sideEffectDropped,
		c.sideEffectFailed,
		c.isolationViolation,
	)

	return c
}

func (c *Collector) RecordAnswer(source string, duration time.Duration) {
	c.answers.WithLabelValues(source).Observe(duration.Seconds())
}

func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

func (c *Collector) RecordDispatch(source, outcome string, duration time.Duration) {
	c.dispatchLatency.WithLabelValues(source, outcome).Observe(duration.Seconds())
}

func (c *Collector) RecordFallback(reason string) {
	c.fallbacks.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordRateLimited(keyKind string) {
	c.rateLimited.WithLabelValues(keyKind).Inc()
}

func (c *Collector) RecordSideEffectDropped(task string) {
	c.sideEffectDropped.WithLabelValues(task).Inc()
}

func (c *Collector) RecordSideEffectFailed(task string) {
	c.sideEffectFailed.WithLabelValues(task).Inc()
}

func (c *Collector) RecordIsolationViolation(stage string) {
	c.isolationViolation.WithLabelValues(stage).Inc()
}

// Nop discards everything. Used in tests and when metrics are disabled.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordAnswer(string, time.Duration)           {}
func (Nop) RecordCacheLookup(bool)                       {}
func (Nop) RecordDispatch(string, string, time.Duration) {}
func (Nop) RecordFallback(string)                        {}
func (Nop) RecordRateLimited(string)                     {}
func (Nop) RecordSideEffectDropped(string)               {}
func (Nop) RecordSideEffectFailed(string)                {}
func (Nop) RecordIsolationViolation(string)              {}

// Handler returns the HTTP handler Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
