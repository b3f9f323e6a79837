package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

const (
	defaultAutoConfirmAfter = 72 * time.Hour
	defaultAutoConfirmBatch = 100
)

type deliveryConfirmer interface {
	ListAutoConfirmCandidates(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error)
	ConfirmDelivery(ctx context.Context, actor orders.Actor, orderID uuid.UUID) (*orders.TransitionResult, error)
}

type AutoConfirmJobParams struct {
	Logger    *logger.Logger
	Orders    deliveryConfirmer
	After     time.Duration
	BatchSize int
}

// NewAutoConfirmJob confirms delivery on behalf of customers who never did,
// which releases the held vendor funds.
func NewAutoConfirmJob(params AutoConfirmJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	after := params.After
	if after <= 0 {
		after = defaultAutoConfirmAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAutoConfirmBatch
	}
	return &autoConfirmJob{
		logg:   params.Logger,
		orders: params.Orders,
		after:  after,
		batch:  batch,
	}, nil
}

type autoConfirmJob struct {
	logg   *logger.Logger
	orders deliveryConfirmer
	after  time.Duration
	batch  int
}

func (j *autoConfirmJob) Name() string { return "order-auto-confirm" }

func (j *autoConfirmJob) Run(ctx context.Context) error {
	ids, err := j.orders.ListAutoConfirmCandidates(ctx, j.after, j.batch)
	if err != nil {
		return fmt.Errorf("list candidates: %w", err)
	}

	var (
		confirmed int
		skipped   int
		errs      error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		_, err := j.orders.ConfirmDelivery(ctx, orders.SystemActor(), id)
		switch {
		case err == nil:
			confirmed++
		case pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition):
			// moved on since the candidate list was read
			skipped++
		default:
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", id, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(ids),
		"confirmed":  confirmed,
		"skipped":    skipped,
	})
	j.logg.Info(logCtx, "order auto-confirm complete")
	return errs
}
