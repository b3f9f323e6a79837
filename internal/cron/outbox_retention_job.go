package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	outboxDeleteBatch      = 500
	outboxMaxBatches       = 100
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	// DLQ is optional. When set, each run warns about events parked since
	// the previous run.
	DLQ       outboxDLQCounter
	Retention time.Duration
	BatchSize int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type outboxDLQCounter interface {
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = outboxDeleteBatch
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		dlq:       params.DLQ,
		retention: retention,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxRetentionRepo
	dlq       outboxDLQCounter
	retention time.Duration
	batch     int
	now       func() time.Time
	lastRun   time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Every() time.Duration { return purgeEvery }

// Run deletes published rows in batches. Unpublished rows are never touched.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.retention)
	deleted, err := purgeInBatches(ctx, j.repo.DeletePublishedBefore, cutoff, j.batch, outboxMaxBatches)
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")

	return j.reportParked(ctx, now)
}

func (j *outboxRetentionJob) reportParked(ctx context.Context, now time.Time) error {
	if j.dlq == nil {
		return nil
	}
	since := j.lastRun
	if since.IsZero() {
		since = now.Add(-24 * time.Hour)
	}
	parked, err := j.dlq.CountSince(ctx, since)
	if err != nil {
		return fmt.Errorf("count parked outbox events: %w", err)
	}
	j.lastRun = now
	if parked > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"since":  since,
			"parked": parked,
		}), "outbox events parked in dlq")
	}
	return nil
}
