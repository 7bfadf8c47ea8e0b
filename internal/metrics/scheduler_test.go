package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSchedulerMetricsCountsCyclesAndSweeps(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewSchedulerMetrics(reg)

	metrics.IncCycle(CycleLocked)
	metrics.IncCycle(CycleLocked)
	metrics.IncCycle(CycleSkipped)
	metrics.ObserveSweep("trip-autostart", 250*time.Millisecond, nil)
	metrics.ObserveSweep("trip-autostart", 100*time.Millisecond, errors.New("db down"))
	metrics.ObserveSweep("payment-expiry", time.Millisecond, nil)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "scheduler_cycles_total", "result", CycleLocked); err != nil || got != 2 {
		t.Fatalf("expected locked=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "scheduler_cycles_total", "result", CycleSkipped); err != nil || got != 1 {
		t.Fatalf("expected skipped=1, got %f (%v)", got, err)
	}

	runs := findMetricFamily(mfs, "scheduler_sweep_runs_total")
	if runs == nil {
		t.Fatalf("scheduler_sweep_runs_total not found")
	}
	var autostartOK, autostartErr float64
	for _, metric := range runs.GetMetric() {
		if !matchesLabel(metric.GetLabel(), "sweep", "trip-autostart") {
			continue
		}
		switch {
		case matchesLabel(metric.GetLabel(), "result", "ok"):
			autostartOK = metric.GetCounter().GetValue()
		case matchesLabel(metric.GetLabel(), "result", "error"):
			autostartErr = metric.GetCounter().GetValue()
		}
	}
	if autostartOK != 1 || autostartErr != 1 {
		t.Fatalf("expected one ok and one error run, got ok=%f error=%f", autostartOK, autostartErr)
	}

	if got, err := fetchHistogramSum(mfs, "scheduler_sweep_duration_seconds", "sweep", "trip-autostart"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got < 0.35 {
		t.Fatalf("expected both runs in the duration sum, got %f", got)
	}
}

func TestSchedulerMetricsNilSafe(t *testing.T) {
	var metrics *SchedulerMetrics
	metrics.IncCycle(CycleUnlocked)
	metrics.ObserveSweep("sweep", time.Second, nil)

	unregistered := NewSchedulerMetrics(nil)
	unregistered.IncCycle(CycleSkipped)
	unregistered.ObserveSweep("", time.Second, errors.New("x"))
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
