package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cycle results for SchedulerMetrics.IncCycle.
const (
	CycleLocked   = "locked"
	CycleSkipped  = "skipped"
	CycleUnlocked = "unlocked"
)

// sweepBuckets spans a single-page no-op sweep up to a backlog drain.
var sweepBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// SchedulerMetrics covers the background sweeps: how each cycle got its lock,
// and how every sweep in it finished.
type SchedulerMetrics struct {
	cycles   *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewSchedulerMetrics registers the sweep metrics. A nil registerer yields a
// recorder that drops everything.
func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	if reg == nil {
		return &SchedulerMetrics{}
	}
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_cycles_total",
		Help: "Scheduler ticks by lock result: locked, skipped while another instance held it, or unlocked after a lock error.",
	}, []string{"result"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_sweep_runs_total",
		Help: "Sweep executions by sweep name and result.",
	}, []string{"sweep", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_sweep_duration_seconds",
		Help:    "Wall time of one sweep execution.",
		Buckets: sweepBuckets,
	}, []string{"sweep"})
	reg.MustRegister(cycles, runs, duration)
	return &SchedulerMetrics{cycles: cycles, runs: runs, duration: duration}
}

// IncCycle counts one scheduler tick.
func (m *SchedulerMetrics) IncCycle(result string) {
	if m == nil || m.cycles == nil {
		return
	}
	m.cycles.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveSweep records how long a sweep took and whether it returned err.
func (m *SchedulerMetrics) ObserveSweep(sweep string, took time.Duration, err error) {
	if m == nil || m.runs == nil {
		return
	}
	sweep = normalizeLabel(sweep)
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runs.WithLabelValues(sweep, result).Inc()
	m.duration.WithLabelValues(sweep).Observe(took.Seconds())
}

// normalizeLabel keeps empty label values out of the exposition.
func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
