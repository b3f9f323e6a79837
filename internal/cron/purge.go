package cron

import (
	"context"
	"time"
)

// purgeEvery spaces out the retention jobs.
const purgeEvery = time.Hour

// purgeFunc deletes at most limit rows older than cutoff.
type purgeFunc func(ctx context.Context, cutoff time.Time, limit int) (int64, error)

// purgeInBatches repeats purge until a short batch or maxBatches, so a large
// backlog is cleared by many short deletes instead of one long one.
func purgeInBatches(ctx context.Context, purge purgeFunc, cutoff time.Time, batch, maxBatches int) (int64, error) {
	var total int64
	for i := 0; i < maxBatches; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rows, err := purge(ctx, cutoff, batch)
		total += rows
		if err != nil {
			return total, err
		}
		if rows < int64(batch) {
			break
		}
	}
	return total, nil
}
