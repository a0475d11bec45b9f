package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the sync engine.
type Metrics struct {
	config MetricsConfig

	// Preload metrics
	preloadsStarted   prometheus.Counter
	preloadsCompleted *prometheus.CounterVec
	preloadDuration   prometheus.Histogram

	// Scope metrics
	scopeSyncFailures *prometheus.CounterVec
	regionsDiscovered prometheus.Gauge

	// Instance sync metrics
	instancePagesFetched prometheus.Counter
	instancesUpserted    prometheus.Counter
	instancesMarkedStale prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		preloadsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preloads_started_total",
			Help:      "Total number of full preload operations started",
		}),
		preloadsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "preloads_completed_total",
				Help:      "Total number of full preload operations completed",
			},
			[]string{"status"},
		),
		preloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "preload_duration_seconds",
			Help:      "Duration of full preload operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		scopeSyncFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scope_sync_failures_total",
				Help:      "Total number of per-region scope sync failures",
			},
			[]string{"kind"},
		),
		regionsDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "regions_discovered",
			Help:      "Number of regions discovered by the last preload",
		}),
		instancePagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instance_pages_fetched_total",
			Help:      "Total number of instance pages fetched",
		}),
		instancesUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_upserted_total",
			Help:      "Total number of instance rows upserted",
		}),
		instancesMarkedStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_marked_stale_total",
			Help:      "Total number of instance rows flagged stale before pagination",
		}),
	}

	registry.MustRegister(
		m.preloadsStarted,
		m.preloadsCompleted,
		m.preloadDuration,
		m.scopeSyncFailures,
		m.regionsDiscovered,
		m.instancePagesFetched,
		m.instancesUpserted,
		m.instancesMarkedStale,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry, or nil when
// metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PreloadStarted records the start of a preload operation.
func (m *Metrics) PreloadStarted() {
	if m.registry == nil {
		return
	}
	m.preloadsStarted.Inc()
}

// PreloadCompleted records the outcome and duration of a preload operation.
func (m *Metrics) PreloadCompleted(success bool, duration time.Duration) {
	if m.registry == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.preloadsCompleted.WithLabelValues(status).Inc()
	m.preloadDuration.Observe(duration.Seconds())
}

// ScopeSyncFailed records a per-region scope failure by kind (zones, images, regions).
func (m *Metrics) ScopeSyncFailed(kind string) {
	if m.registry == nil {
		return
	}
	m.scopeSyncFailures.WithLabelValues(kind).Inc()
}

// RegionsDiscovered records the size of the last fetched region set.
func (m *Metrics) RegionsDiscovered(n int) {
	if m.registry == nil {
		return
	}
	m.regionsDiscovered.Set(float64(n))
}

// InstancePageFetched records one fetched instance page and its row count.
func (m *Metrics) InstancePageFetched(rows int) {
	if m.registry == nil {
		return
	}
	m.instancePagesFetched.Inc()
	m.instancesUpserted.Add(float64(rows))
}

// InstancesMarkedStale records how many rows the stale-mark phase flagged.
func (m *Metrics) InstancesMarkedStale(n int64) {
	if m.registry == nil {
		return
	}
	m.instancesMarkedStale.Add(float64(n))
}
