package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

type fakeLock struct {
	held     map[string]bool
	name     string
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held[f.name] {
		return false, nil
	}
	f.held[f.name] = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held[f.name] = false
	f.released++
	return nil
}

type fakeLocks struct {
	held  map[string]bool
	locks map[string]*fakeLock
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: map[string]bool{}, locks: map[string]*fakeLock{}}
}

func (f *fakeLocks) factory(job string) (Lock, error) {
	lock := &fakeLock{held: f.held, name: job}
	f.locks[job] = lock
	return lock, nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, locks *fakeLocks, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(jobs...),
		Locks:    locks.factory,
	})
	require.NoError(t, err)
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	locks := newFakeLocks()
	service := newTestService(t, locks, failure, success)

	err := service.runCycle(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "fail: boom")
	require.Equal(t, 1, success.runs)
	require.Equal(t, 1, failure.runs)
	require.Equal(t, 1, locks.locks["success"].released)
	require.Equal(t, 1, locks.locks["fail"].released)
}

func TestServiceSkipsJobHeldElsewhere(t *testing.T) {
	busy := &testJob{name: "busy"}
	free := &testJob{name: "free"}
	locks := newFakeLocks()
	locks.held["busy"] = true
	service := newTestService(t, locks, busy, free)

	require.NoError(t, service.runCycle(context.Background()))
	require.Zero(t, busy.runs)
	require.Equal(t, 1, free.runs)
}

func TestServiceRunOnce(t *testing.T) {
	job := &testJob{name: "single"}
	service := newTestService(t, newFakeLocks(), job)

	require.NoError(t, service.RunOnce(context.Background(), "single"))
	require.Equal(t, 1, job.runs)
	require.Error(t, service.RunOnce(context.Background(), "unknown"))
}

func TestNewServiceRequiresLocks(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.Nop()})
	require.Error(t, err)
}

type periodicJob struct {
	testJob
	every time.Duration
}

func (p *periodicJob) Every() time.Duration { return p.every }

func TestServiceRunsPeriodicJobsWhenDue(t *testing.T) {
	hourly := &periodicJob{testJob: testJob{name: "hourly"}, every: time.Hour}
	tick := &testJob{name: "tick"}
	service := newTestService(t, newFakeLocks(), hourly, tick)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, service.runCycle(ctx))
	now = now.Add(30 * time.Minute)
	require.NoError(t, service.runCycle(ctx))
	require.Equal(t, 1, hourly.runs)
	require.Equal(t, 2, tick.runs)

	now = now.Add(30 * time.Minute)
	require.NoError(t, service.runCycle(ctx))
	require.Equal(t, 2, hourly.runs)
}

func TestServiceRetriesFailedPeriodicJobNextTick(t *testing.T) {
	hourly := &periodicJob{testJob: testJob{name: "hourly", err: errors.New("db down")}, every: time.Hour}
	service := newTestService(t, newFakeLocks(), hourly)
	ctx := context.Background()

	require.Error(t, service.runCycle(ctx))
	hourly.err = nil
	require.NoError(t, service.runCycle(ctx))
	require.Equal(t, 2, hourly.runs)
}
