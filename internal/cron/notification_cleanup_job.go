package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

const (
	notificationRetentionDays = 30
	notificationDeleteBatch   = 1000
	notificationMaxBatches    = 50
)

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	Repository readNotificationPurger
	// RetentionDays counts from read_at. Unread notifications are never purged.
	RetentionDays int
	BatchSize     int
}

type readNotificationPurger interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = notificationRetentionDays
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = notificationDeleteBatch
	}
	return &notificationCleanupJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: time.Duration(days) * 24 * time.Hour,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type notificationCleanupJob struct {
	logg      *logger.Logger
	repo      readNotificationPurger
	retention time.Duration
	batch     int
	now       func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *notificationCleanupJob) Every() time.Duration { return purgeEvery }

func (j *notificationCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := purgeInBatches(ctx, j.repo.DeleteReadBefore, cutoff, j.batch, notificationMaxBatches)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	if err != nil {
		j.logg.Error(logCtx, "read notification purge stopped", err)
		return fmt.Errorf("purge read notifications: %w", err)
	}
	j.logg.Info(logCtx, "read notifications purged")
	return nil
}
