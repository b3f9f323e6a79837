package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

func TestOutboxRetentionJobDeletesInBatches(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{results: []int64{10, 10, 3}}
	job := newOutboxRetentionJob(t, repo, 10)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 3, repo.called)
	require.True(t, repo.lastCutoff.Equal(now.Add(-defaultOutboxRetention)))
	require.Equal(t, 10, repo.lastLimit)
}

func TestOutboxRetentionJobStopsOnEmptyBatch(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, 10)

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 1, repo.called)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{err: errors.New("boom")}
	job := newOutboxRetentionJob(t, repo, 10)

	require.Error(t, job.Run(context.Background()))
}

func TestOutboxRetentionJobCountsParkedSinceLastRun(t *testing.T) {
	first := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	dlq := &fakeDLQCounter{count: 2}
	job := newOutboxRetentionJob(t, &fakeOutboxRetentionRepo{}, 10)
	job.dlq = dlq
	job.now = func() time.Time { return first }

	require.NoError(t, job.Run(context.Background()))
	require.True(t, dlq.since.Equal(first.Add(-24*time.Hour)))

	second := first.Add(time.Hour)
	job.now = func() time.Time { return second }
	require.NoError(t, job.Run(context.Background()))
	require.True(t, dlq.since.Equal(first))
}

func TestOutboxRetentionJobDLQErrorKeepsWindow(t *testing.T) {
	dlq := &fakeDLQCounter{err: errors.New("db down")}
	job := newOutboxRetentionJob(t, &fakeOutboxRetentionRepo{}, 10)
	job.dlq = dlq

	require.ErrorContains(t, job.Run(context.Background()), "count parked outbox events")
	require.True(t, job.lastRun.IsZero())
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo, batch int) *outboxRetentionJob {
	t.Helper()
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		Repository: repo,
		BatchSize:  batch,
	})
	require.NoError(t, err)
	job, ok := jobIface.(*outboxRetentionJob)
	require.True(t, ok)
	return job
}

type fakeOutboxRetentionRepo struct {
	results    []int64
	lastCutoff time.Time
	lastLimit  int
	called     int
	err        error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	f.lastLimit = limit
	if f.err != nil {
		return 0, f.err
	}
	if len(f.results) == 0 {
		return 0, nil
	}
	n := f.results[0]
	f.results = f.results[1:]
	return n, nil
}

type fakeDLQCounter struct {
	count int64
	since time.Time
	err   error
}

func (f *fakeDLQCounter) CountSince(ctx context.Context, since time.Time) (int64, error) {
	f.since = since
	return f.count, f.err
}
