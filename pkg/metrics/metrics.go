// Package metrics exposes Prometheus instrumentation for memory capture,
// consolidation runs, oracle calls and the operator API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "mnemo"

// Manager owns a private registry and every collector. A disabled manager
// accepts all calls and records nothing.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	// Consolidation
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	tierOutcomes *prometheus.CounterVec
	purgedFiles  prometheus.Counter
	lastRun      prometheus.Gauge

	// Oracle
	oracleCalls    *prometheus.CounterVec
	oracleDuration *prometheus.HistogramVec

	// Capture
	capturedTurns *prometheus.CounterVec
	capturedBytes prometheus.Counter
	workingFiles  prometheus.Gauge
	workingBytes  prometheus.Gauge

	// HTTP
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool

	RunDurationBuckets    []float64
	OracleDurationBuckets []float64
	HTTPDurationBuckets   []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		RunDurationBuckets:    []float64{0.1, 1, 5, 15, 30, 60, 120, 300},
		OracleDurationBuckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		HTTPDurationBuckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
}

// NewManager creates a new metrics manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{enabled: false}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		enabled:  true,
	}
	m.initConsolidationMetrics(cfg)
	m.initOracleMetrics(cfg)
	m.initCaptureMetrics()
	m.initHTTPMetrics(cfg)
	return m
}

// NoOpManager returns a manager that records nothing.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m != nil && m.enabled
}

// Registry returns the underlying registry, or nil when disabled.
func (m *Manager) Registry() *prometheus.Registry {
	if !m.Enabled() {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	if !m.Enabled() {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
