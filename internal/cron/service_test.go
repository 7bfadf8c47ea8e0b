package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking/internal/logger"
	"booking/internal/metrics"
)

type fakeLock struct {
	acquired   bool
	err        error
	releaseCnt int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releaseCnt++
	return nil
}

type testJob struct {
	name  string
	err   error
	panic bool
	runs  int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	if t.panic {
		panic("boom")
	}
	return t.err
}

func TestServiceRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	panicky := &testJob{name: "panic", panic: true}
	last := &testJob{name: "last"}
	lock := &fakeLock{}

	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(success, failure, panicky, last),
		Lock:     lock,
	})
	require.NoError(t, err)

	service.RunOnce(context.Background())

	for _, job := range []*testJob{success, failure, panicky, last} {
		assert.Equal(t, 1, job.runs, "job %s", job.name)
	}
	assert.False(t, lock.acquired, "lock should be released after the cycle")
	assert.Equal(t, 1, lock.releaseCnt)
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := &testJob{name: "sweep"}
	lock := &fakeLock{acquired: true}

	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     lock,
		Metrics:  metrics.NewSchedulerMetrics(reg),
	})
	require.NoError(t, err)

	service.RunOnce(context.Background())

	assert.Equal(t, 0, job.runs)
	assert.Equal(t, 0, lock.releaseCnt)

	assert.Equal(t, float64(1), counterFor(t, reg, "scheduler_cycles_total", map[string]string{"result": metrics.CycleSkipped}))
}

func TestServiceRunsUnlockedWhenLockErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := &testJob{name: "sweep"}
	lock := &fakeLock{err: errors.New("redis: connection refused")}

	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     lock,
		Metrics:  metrics.NewSchedulerMetrics(reg),
	})
	require.NoError(t, err)

	service.RunOnce(context.Background())

	assert.Equal(t, 1, job.runs)
	assert.Equal(t, 0, lock.releaseCnt, "a lock that was never acquired is not released")
	assert.Equal(t, float64(1), counterFor(t, reg, "scheduler_cycles_total", map[string]string{"result": metrics.CycleUnlocked}))
}

func TestServiceRecordsJobOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	cronMetrics := metrics.NewSchedulerMetrics(reg)

	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(&testJob{name: "ok"}, &testJob{name: "bad", err: errors.New("nope")}),
		Lock:     &fakeLock{},
		Metrics:  cronMetrics,
	})
	require.NoError(t, err)

	service.RunOnce(context.Background())
	service.RunOnce(context.Background())

	assert.Equal(t, float64(2), counterFor(t, reg, "scheduler_cycles_total", map[string]string{"result": metrics.CycleLocked}))
	assert.Equal(t, float64(2), counterFor(t, reg, "scheduler_sweep_runs_total", map[string]string{"sweep": "ok", "result": "ok"}))
	assert.Equal(t, float64(2), counterFor(t, reg, "scheduler_sweep_runs_total", map[string]string{"sweep": "bad", "result": "error"}))
	assert.Equal(t, float64(0), counterFor(t, reg, "scheduler_sweep_runs_total", map[string]string{"sweep": "bad", "result": "ok"}))
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "sweep"}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = service.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, job.runs, "canceled context runs no jobs")
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	assert.EqualError(t, err, "logger required")

	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	assert.EqualError(t, err, "lock required")
}

func counterFor(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, label := range metric.GetLabel() {
				if want, ok := labels[label.GetName()]; ok && want == label.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
