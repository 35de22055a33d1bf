// Package metrics exposes the service metrics in the Prometheus format.
// The Collector implements the observer interfaces of the pipeline, the
// realtime manager, the caches and the dedup path.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ncobase/placesearch/job"
	"github.com/ncobase/placesearch/provider"
	"github.com/ncobase/placesearch/realtime"
	"github.com/ncobase/placesearch/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents metrics configuration
type Config struct {
	Namespace            string // prefix for all metric names
	EnableProcessMetrics bool   // register the Go runtime and process collectors
}

// DefaultConfig returns the default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace:            "placesearch",
		EnableProcessMetrics: true,
	}
}

// Validate validates the metrics configuration
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return errors.New("metrics namespace must not be empty")
	}
	return nil
}

// Collector owns a private registry so several instances can coexist in
// one process.
type Collector struct {
	registry *prometheus.Registry
	ns       string

	stageDuration  *prometheus.HistogramVec
	runs           *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	dedup          *prometheus.CounterVec
	cacheAccess    *prometheus.CounterVec
	publishFailed  *prometheus.CounterVec
	connections    prometheus.Gauge
}

// NewCollector creates a collector and registers its metrics.
func NewCollector(cfg *Config) (*Collector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	ns := cfg.Namespace
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ns:       ns,
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each pipeline stage",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "pipeline_runs_total",
			Help:      "Finished pipeline runs by outcome",
		}, []string{"kind", "code"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "provider_errors_total",
			Help:      "Failed provider calls by failure class",
		}, []string{"class"}),
		dedup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "dedup_decisions_total",
			Help:      "Dedup decisions by action and reason",
		}, []string{"action", "reason"}),
		cacheAccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by cache and result",
		}, []string{"cache", "result"}),
		publishFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "realtime_publish_failures_total",
			Help:      "Events that could not be delivered to a connection",
		}, []string{"kind"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "realtime_connections",
			Help:      "Open result-channel connections on this instance",
		}),
	}

	c.registry.MustRegister(
		c.stageDuration,
		c.runs,
		c.providerErrors,
		c.dedup,
		c.cacheAccess,
		c.publishFailed,
		c.connections,
	)
	if cfg.EnableProcessMetrics {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c, nil
}

// Registry returns the collector registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// StageObserved records the duration of a pipeline stage.
func (c *Collector) StageObserved(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunFinished counts a finished run.
func (c *Collector) RunFinished(kind search.Kind, code string) {
	c.runs.WithLabelValues(string(kind), code).Inc()
}

// ProviderFailed counts a failed provider call.
func (c *Collector) ProviderFailed(kind provider.Kind) {
	c.providerErrors.WithLabelValues(string(kind)).Inc()
}

// DedupDecided counts a dedup decision.
func (c *Collector) DedupDecided(action job.Action, reason string) {
	c.dedup.WithLabelValues(string(action), reason).Inc()
}

// CacheAccess counts a cache lookup.
func (c *Collector) CacheAccess(name string, hit bool, err error) {
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	c.cacheAccess.WithLabelValues(name, result).Inc()
}

// ConnectionsChanged sets the connection gauge.
func (c *Collector) ConnectionsChanged(n int) {
	c.connections.Set(float64(n))
}

// PublishFailed counts an undeliverable event.
func (c *Collector) PublishFailed(kind realtime.Kind) {
	c.publishFailed.WithLabelValues(string(kind)).Inc()
}

// PoolSource reports worker pool counters.
type PoolSource interface {
	GetMetrics() map[string]int64
}

// WatchPool exports the pool counters as gauges read at scrape time.
func (c *Collector) WatchPool(p PoolSource) {
	for _, name := range []string{"active_workers", "pending_tasks", "completed_tasks", "failed_tasks"} {
		c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: c.ns,
			Subsystem: "worker_pool",
			Name:      name,
			Help:      "Background worker pool " + name,
		}, func() float64 { return float64(p.GetMetrics()[name]) }))
	}
}

// WatchSubscriptions exports subscription counts read at scrape time.
func (c *Collector) WatchSubscriptions(stats func() realtime.Stats) {
	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: c.ns,
			Name:      "realtime_subscriptions",
			Help:      "Active request subscriptions on this instance",
		}, func() float64 { return float64(stats().Subscriptions) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: c.ns,
			Name:      "realtime_pending_intents",
			Help:      "Recorded subscribe intents not yet expired",
		}, func() float64 { return float64(stats().Intents) }),
	)
}
