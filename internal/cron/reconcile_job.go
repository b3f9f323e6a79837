package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketplace-settlement/internal/ledger"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

const (
	reconcilePageSize          = 200
	defaultReconcileConcurrency = 4
)

type walletLister interface {
	ListWalletIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type walletReconciler interface {
	Reconcile(ctx context.Context, walletID uuid.UUID) (*ledger.ReconcileResult, error)
}

type driftRecorder interface {
	IncDrift()
}

type ReconcileJobParams struct {
	Logger      *logger.Logger
	Wallets     walletLister
	Ledger      walletReconciler
	Metrics     driftRecorder
	Concurrency int
	PageSize    int
}

// NewReconcileJob replays every wallet's log and reports drift against the
// cached balances. It never repairs a wallet.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet lister required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultReconcileConcurrency
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = reconcilePageSize
	}
	return &reconcileJob{
		logg:        params.Logger,
		wallets:     params.Wallets,
		ledger:      params.Ledger,
		metrics:     params.Metrics,
		concurrency: concurrency,
		pageSize:    pageSize,
	}, nil
}

type reconcileJob struct {
	logg        *logger.Logger
	wallets     walletLister
	ledger      walletReconciler
	metrics     driftRecorder
	concurrency int
	pageSize    int
}

func (j *reconcileJob) Name() string { return "wallet-reconciliation" }

func (j *reconcileJob) Run(ctx context.Context) error {
	var (
		after    uuid.UUID
		checked  int
		drifted  int
		failures error
	)
	for {
		ids, err := j.wallets.ListWalletIDs(ctx, after, j.pageSize)
		if err != nil {
			return multierr.Append(failures, fmt.Errorf("list wallets: %w", err))
		}
		if len(ids) == 0 {
			break
		}
		pageDrift, pageErr := j.reconcilePage(ctx, ids)
		checked += len(ids)
		drifted += pageDrift
		failures = multierr.Append(failures, pageErr)
		if len(ids) < j.pageSize {
			break
		}
		after = ids[len(ids)-1]
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"wallets_checked": checked,
		"wallets_drifted": drifted,
	})
	j.logg.Info(logCtx, "wallet reconciliation complete")
	return failures
}

func (j *reconcileJob) reconcilePage(ctx context.Context, ids []uuid.UUID) (int, error) {
	var (
		mu      sync.Mutex
		drifted int
		errs    error
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(j.concurrency)
	for _, id := range ids {
		walletID := id
		group.Go(func() error {
			result, err := j.ledger.Reconcile(groupCtx, walletID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("wallet %s: %w", walletID, err))
				return nil
			}
			if !result.Consistent() {
				drifted++
				j.reportDrift(groupCtx, result)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		errs = multierr.Append(errs, err)
	}
	return drifted, errs
}

func (j *reconcileJob) reportDrift(ctx context.Context, result *ledger.ReconcileResult) {
	if j.metrics != nil {
		j.metrics.IncDrift()
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"wallet_id":        result.WalletID.String(),
		"cached_pending":   result.Cached.Pending.String(),
		"cached_available": result.Cached.Available.String(),
		"replay_pending":   result.Replayed.Pending.String(),
		"replay_available": result.Replayed.Available.String(),
		"problems":         result.Problems,
	})
	j.logg.Warn(logCtx, "wallet balance drift detected")
}
