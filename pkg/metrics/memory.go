package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/entrhq/mnemo/pkg/types"
)

func (m *Manager) initConsolidationMetrics(cfg Config) {
	m.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "consolidation_runs_total",
			Help:      "Consolidation runs by outcome (completed, skipped)",
		},
		[]string{"outcome"},
	)
	m.runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "consolidation_run_duration_seconds",
			Help:      "Wall time of completed consolidation runs",
			Buckets:   cfg.RunDurationBuckets,
		},
	)
	m.tierOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tier_steps_total",
			Help:      "Tier steps by tier and status (updated, unchanged, failed)",
		},
		[]string{"tier", "status"},
	)
	m.purgedFiles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "working_files_purged_total",
			Help:      "Expired working files deleted by consolidation",
		},
	)
	m.lastRun = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed consolidation run",
		},
	)

	m.registry.MustRegister(m.runs, m.runDuration, m.tierOutcomes, m.purgedFiles, m.lastRun)
}

func (m *Manager) initOracleMetrics(cfg Config) {
	m.oracleCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "oracle_calls_total",
			Help:      "Oracle calls by backend and result (ok, failed)",
		},
		[]string{"backend", "result"},
	)
	m.oracleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "oracle_call_duration_seconds",
			Help:      "Oracle call latency",
			Buckets:   cfg.OracleDurationBuckets,
		},
		[]string{"backend"},
	)
	m.registry.MustRegister(m.oracleCalls, m.oracleDuration)
}

func (m *Manager) initCaptureMetrics() {
	m.capturedTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "captured_turns_total",
			Help:      "Turns offered to capture by outcome (written, dropped, disabled, error)",
		},
		[]string{"outcome"},
	)
	m.capturedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "captured_bytes_total",
			Help:      "Bytes appended to working memory",
		},
	)
	m.workingFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "working_files",
			Help:      "Working memory files on disk",
		},
	)
	m.workingBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "working_bytes",
			Help:      "Total size of working memory files",
		},
	)
	m.registry.MustRegister(m.capturedTurns, m.capturedBytes, m.workingFiles, m.workingBytes)
}

// ObserveEvent records a consolidation engine event.
func (m *Manager) ObserveEvent(ev *types.MemoryEvent) {
	if !m.Enabled() || ev == nil {
		return
	}
	switch ev.Type {
	case types.EventTypeRunSkipped:
		m.runs.WithLabelValues("skipped").Inc()
	case types.EventTypeRunComplete:
		m.runs.WithLabelValues("completed").Inc()
		m.lastRun.Set(float64(ev.Timestamp.Unix()))
		if ev.Run != nil {
			m.runDuration.Observe(ev.Run.Duration.Seconds())
		}
	case types.EventTypeTierUpdated:
		m.tierOutcomes.WithLabelValues(string(ev.Tier), "updated").Inc()
	case types.EventTypeTierUnchanged:
		m.tierOutcomes.WithLabelValues(string(ev.Tier), "unchanged").Inc()
	case types.EventTypeTierFailed:
		m.tierOutcomes.WithLabelValues(string(ev.Tier), "failed").Inc()
	case types.EventTypePurge:
		m.purgedFiles.Add(float64(len(ev.Purged)))
	}
}

// ObserveOracleCall records one oracle call. Its signature matches
// oracle.Observer.
func (m *Manager) ObserveOracleCall(backend string, ok bool, elapsed time.Duration) {
	if !m.Enabled() {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.oracleCalls.WithLabelValues(backend, result).Inc()
	m.oracleDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// ObserveCapture records one Append outcome and the bytes it wrote.
func (m *Manager) ObserveCapture(outcome string, bytes int) {
	if !m.Enabled() {
		return
	}
	m.capturedTurns.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		m.capturedBytes.Add(float64(bytes))
	}
}

// SetWorkingSize records the current size of the working tier.
func (m *Manager) SetWorkingSize(files int, bytes int64) {
	if !m.Enabled() {
		return
	}
	m.workingFiles.Set(float64(files))
	m.workingBytes.Set(float64(bytes))
}
