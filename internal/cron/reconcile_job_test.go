package cron

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-settlement/internal/ledger"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

type pagedWallets struct {
	ids    []uuid.UUID
	afters []uuid.UUID
}

func (p *pagedWallets) ListWalletIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	p.afters = append(p.afters, after)
	start := 0
	if after != uuid.Nil {
		for i, id := range p.ids {
			if id == after {
				start = i + 1
			}
		}
	}
	end := start + limit
	if end > len(p.ids) {
		end = len(p.ids)
	}
	return p.ids[start:end], nil
}

type scriptedReconciler struct {
	mu      sync.Mutex
	drift   map[uuid.UUID]bool
	fail    map[uuid.UUID]bool
	checked []uuid.UUID
}

func (s *scriptedReconciler) Reconcile(ctx context.Context, walletID uuid.UUID) (*ledger.ReconcileResult, error) {
	s.mu.Lock()
	s.checked = append(s.checked, walletID)
	s.mu.Unlock()
	if s.fail[walletID] {
		return nil, errors.New("db down")
	}
	cached := ledger.Balances{Pending: decimal.NewFromInt(10), Available: decimal.Zero, TotalEarnings: decimal.Zero, TotalWithdrawn: decimal.Zero}
	replayed := cached
	if s.drift[walletID] {
		replayed.Pending = decimal.NewFromInt(9)
	}
	return &ledger.ReconcileResult{WalletID: walletID, Cached: cached, Replayed: replayed}, nil
}

type countingDrift struct {
	mu sync.Mutex
	n  int
}

func (c *countingDrift) IncDrift() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func walletIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func TestReconcileJobPagesThroughAllWallets(t *testing.T) {
	ids := walletIDs(5)
	wallets := &pagedWallets{ids: ids}
	reconciler := &scriptedReconciler{drift: map[uuid.UUID]bool{ids[3]: true}}
	drift := &countingDrift{}

	job, err := NewReconcileJob(ReconcileJobParams{
		Logger:      logger.Nop(),
		Wallets:     wallets,
		Ledger:      reconciler,
		Metrics:     drift,
		Concurrency: 2,
		PageSize:    2,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	require.ElementsMatch(t, ids, reconciler.checked)
	require.Equal(t, []uuid.UUID{uuid.Nil, ids[1], ids[3]}, wallets.afters)
	require.Equal(t, 1, drift.n)
}

func TestReconcileJobCollectsFailuresAndContinues(t *testing.T) {
	ids := walletIDs(3)
	reconciler := &scriptedReconciler{fail: map[uuid.UUID]bool{ids[0]: true, ids[2]: true}}

	job, err := NewReconcileJob(ReconcileJobParams{
		Logger:  logger.Nop(),
		Wallets: &pagedWallets{ids: ids},
		Ledger:  reconciler,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, ids[0].String())
	require.ErrorContains(t, err, ids[2].String())
	require.Len(t, reconciler.checked, 3)
}
