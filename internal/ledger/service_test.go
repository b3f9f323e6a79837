package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/pagination"
)

type countingMetrics struct {
	mu        sync.Mutex
	postings  map[string]int
	rejected  map[string]int
	conflicts int
	drift     int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{postings: map[string]int{}, rejected: map[string]int{}}
}

func (m *countingMetrics) IncPosting(txType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postings[txType]++
}

func (m *countingMetrics) IncRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[reason]++
}

func (m *countingMetrics) IncConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

func (m *countingMetrics) IncDrift() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drift++
}

type harness struct {
	conn    *gorm.DB
	svc     Service
	metrics *countingMetrics
	wallet  models.Wallet
	vendor  models.Vendor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	metrics := newCountingMetrics()
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Tx:      db.NewFromConn(conn),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Metrics: metrics,
		Logger:  logger.Nop(),
	})
	require.NoError(t, err)
	vendor := dbtest.SeedVendor(t, conn, "10")
	wallet := dbtest.SeedWallet(t, conn, vendor.ID)
	return &harness{conn: conn, svc: svc, metrics: metrics, wallet: wallet, vendor: vendor}
}

func (h *harness) post(t *testing.T, p Posting) *models.WalletTransaction {
	t.Helper()
	p.WalletID = h.wallet.ID
	if p.Description == "" {
		p.Description = string(p.Type)
	}
	row, err := h.svc.PostTransaction(context.Background(), nil, p)
	require.NoError(t, err)
	return row
}

func (h *harness) reload(t *testing.T) *models.Wallet {
	t.Helper()
	wallet, err := h.svc.GetWallet(context.Background(), h.wallet.ID)
	require.NoError(t, err)
	return wallet
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Repo: NewRepository(nil)})
	require.Error(t, err)
}

func TestPostTransaction_HoldThenReleaseConservesGross(t *testing.T) {
	h := newHarness(t)
	orderRef, orderID := Ref(enums.ReferenceOrder, uuid.New())

	hold := h.post(t, Posting{Type: enums.WalletTxHold, Amount: d("1000"), ReferenceType: orderRef, ReferenceID: orderID})
	h.post(t, Posting{Type: enums.WalletTxCommission, Amount: d("100"), ReferenceType: orderRef, ReferenceID: orderID})
	release := h.post(t, Posting{Type: enums.WalletTxRelease, Amount: d("900"), BasisAmount: d("1000"), ReferenceType: orderRef, ReferenceID: orderID})

	assert.Equal(t, int64(1), hold.Sequence)
	assert.True(t, hold.PendingAfter.Equal(d("1000")))
	assert.Equal(t, int64(3), release.Sequence)
	assert.True(t, release.PendingBefore.Equal(d("1000")))
	assert.True(t, release.AvailableAfter.Equal(d("900")))

	wallet := h.reload(t)
	assert.True(t, wallet.PendingBalance.IsZero())
	assert.True(t, wallet.AvailableBalance.Equal(d("900")))
	assert.True(t, wallet.TotalEarnings.Equal(d("900")))
	assert.Equal(t, int64(3), wallet.Version)
	assert.True(t, wallet.AvailableBalance.Add(d("100")).Equal(d("1000")))

	released, err := h.svc.HasPosting(context.Background(), nil, h.wallet.ID, enums.WalletTxRelease, enums.ReferenceOrder, *orderID)
	require.NoError(t, err)
	assert.True(t, released)

	assert.Equal(t, 1, h.metrics.postings["HOLD"])
	assert.Equal(t, 1, h.metrics.postings["RELEASE"])
}

func TestPostTransaction_EmitsOutboxEventPerPosting(t *testing.T) {
	h := newHarness(t)
	h.post(t, Posting{Type: enums.WalletTxHold, Amount: d("50")})
	h.post(t, Posting{Type: enums.WalletTxHold, Amount: d("25")})

	var events []models.OutboxEvent
	require.NoError(t, h.conn.Where("aggregate_id = ?", h.wallet.ID).Find(&events).Error)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, enums.EventWalletPosted, ev.EventType)
		assert.Equal(t, enums.AggregateWallet, ev.AggregateType)
	}
}

func TestPostTransaction_InsufficientBalanceLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.post(t, Posting{Type: enums.WalletTxCredit, Amount: d("40")})

	_, err := h.svc.PostTransaction(context.Background(), nil, Posting{
		WalletID:    h.wallet.ID,
		Type:        enums.WalletTxPayout,
		Amount:      d("-40.01"),
		Description: "withdrawal",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance))

	wallet := h.reload(t)
	assert.True(t, wallet.AvailableBalance.Equal(d("40")))
	assert.Equal(t, int64(1), wallet.Version)

	var count int64
	require.NoError(t, h.conn.Model(&models.WalletTransaction{}).Where("wallet_id = ?", h.wallet.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1, h.metrics.rejected["insufficient_balance"])
}

func TestPostTransaction_RejectsInvalidShape(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.PostTransaction(context.Background(), nil, Posting{
		WalletID: h.wallet.ID,
		Type:     enums.WalletTxRefund,
		Amount:   d("-10"),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPostTransaction_UnknownWallet(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.PostTransaction(context.Background(), nil, Posting{
		WalletID: uuid.New(),
		Type:     enums.WalletTxHold,
		Amount:   d("10"),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestPostTransaction_ConcurrentPostingsSerialize(t *testing.T) {
	h := newHarness(t)
	const writers = 8

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.PostTransaction(context.Background(), nil, Posting{
				WalletID:    h.wallet.ID,
				Type:        enums.WalletTxHold,
				Amount:      d("12.50"),
				Description: "hold",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	wallet := h.reload(t)
	assert.True(t, wallet.PendingBalance.Equal(d("100")))
	assert.Equal(t, int64(writers), wallet.Version)

	result, err := h.svc.Reconcile(context.Background(), h.wallet.ID)
	require.NoError(t, err)
	assert.True(t, result.Consistent(), "problems: %v", result.Problems)
}

func TestUpdateBalances_StaleVersionLoses(t *testing.T) {
	h := newHarness(t)
	repo := NewRepository(h.conn)
	wallet, err := repo.FindWallet(context.Background(), h.wallet.ID)
	require.NoError(t, err)

	wallet.AvailableBalance = d("999")
	ok, err := repo.UpdateBalances(context.Background(), wallet, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	fresh := h.reload(t)
	assert.True(t, fresh.AvailableBalance.IsZero())
}

func TestReconcile_ReplayMatchesCachedBalances(t *testing.T) {
	h := newHarness(t)
	orderRef, orderID := Ref(enums.ReferenceOrder, uuid.New())
	payoutRef, payoutID := Ref(enums.ReferencePayout, uuid.New())

	h.post(t, Posting{Type: enums.WalletTxHold, Amount: d("500"), ReferenceType: orderRef, ReferenceID: orderID})
	h.post(t, Posting{Type: enums.WalletTxCommission, Amount: d("100"), ReferenceType: orderRef, ReferenceID: orderID})
	h.post(t, Posting{Type: enums.WalletTxRelease, Amount: d("400"), BasisAmount: d("500"), ReferenceType: orderRef, ReferenceID: orderID})
	h.post(t, Posting{Type: enums.WalletTxPayout, Amount: d("-150"), ReferenceType: payoutRef, ReferenceID: payoutID})
	h.post(t, Posting{Type: enums.WalletTxCredit, Amount: d("150"), ReferenceType: payoutRef, ReferenceID: payoutID})
	h.post(t, Posting{Type: enums.WalletTxRefund, Amount: d("-500"), BasisAmount: d("400"), Bucket: enums.WalletBucketAvailable, ReferenceType: orderRef, ReferenceID: orderID})
	h.post(t, Posting{Type: enums.WalletTxCommission, Amount: d("-100"), ReferenceType: orderRef, ReferenceID: orderID})

	result, err := h.svc.Reconcile(context.Background(), h.wallet.ID)
	require.NoError(t, err)
	assert.True(t, result.Consistent(), "problems: %v", result.Problems)
	assert.Equal(t, 7, result.Transactions)
	assert.True(t, result.Replayed.Available.IsZero())
	assert.True(t, result.Replayed.TotalEarnings.IsZero())
	assert.True(t, result.Replayed.TotalWithdrawn.IsZero())
	assert.Zero(t, h.metrics.drift)
}

func TestReconcile_ReportsDrift(t *testing.T) {
	h := newHarness(t)
	h.post(t, Posting{Type: enums.WalletTxHold, Amount: d("75")})
	require.NoError(t, h.conn.Exec("UPDATE wallets SET pending_balance = '80' WHERE id = ?", h.wallet.ID).Error)

	result, err := h.svc.Reconcile(context.Background(), h.wallet.ID)
	require.NoError(t, err)
	assert.False(t, result.Consistent())
	assert.True(t, result.Replayed.Pending.Equal(d("75")))
	assert.True(t, result.Cached.Pending.Equal(d("80")))
	assert.Equal(t, 1, h.metrics.drift)
}

func TestListTransactions_PagesBySequence(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.post(t, Posting{Type: enums.WalletTxHold, Amount: d("1")})
	}
	ctx := context.Background()

	page, err := h.svc.ListTransactions(ctx, h.wallet.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, int64(5), page.Transactions[0].Sequence)
	assert.Equal(t, int64(4), page.Transactions[1].Sequence)
	require.NotEmpty(t, page.NextCursor)

	page, err = h.svc.ListTransactions(ctx, h.wallet.ID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, int64(3), page.Transactions[0].Sequence)

	page, err = h.svc.ListTransactions(ctx, h.wallet.ID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, int64(1), page.Transactions[0].Sequence)
	assert.Empty(t, page.NextCursor)

	_, err = h.svc.ListTransactions(ctx, h.wallet.ID, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestEnsureWallet_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	vendor := dbtest.SeedVendor(t, h.conn, "15")
	ctx := context.Background()

	first, err := h.svc.EnsureWallet(ctx, nil, vendor.ID)
	require.NoError(t, err)
	second, err := h.svc.EnsureWallet(ctx, nil, vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.AvailableBalance.IsZero())

	_, err = h.svc.EnsureWallet(ctx, nil, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAdjust(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := uuid.New()

	_, err := h.svc.Adjust(ctx, AdjustmentInput{VendorID: h.vendor.ID, Amount: d("10"), Reason: "short", ActorID: admin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	row, err := h.svc.Adjust(ctx, AdjustmentInput{VendorID: h.vendor.ID, Amount: d("25"), Reason: "goodwill credit for late delivery", ActorID: admin})
	require.NoError(t, err)
	assert.Equal(t, enums.WalletTxCredit, row.Type)
	require.NotNil(t, row.CreatedByID)
	assert.Equal(t, admin, *row.CreatedByID)

	_, err = h.svc.Adjust(ctx, AdjustmentInput{VendorID: h.vendor.ID, Amount: d("-30"), Reason: "chargeback recovery fee", ActorID: admin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance))

	row, err = h.svc.Adjust(ctx, AdjustmentInput{VendorID: h.vendor.ID, Amount: d("-5"), Reason: "chargeback recovery fee", ActorID: admin})
	require.NoError(t, err)
	assert.Equal(t, enums.WalletTxDebit, row.Type)

	wallet := h.reload(t)
	assert.True(t, wallet.AvailableBalance.Equal(d("20")))
	assert.True(t, wallet.TotalEarnings.Equal(d("20")))
}
