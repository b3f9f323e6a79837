package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-settlement/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type postingMetrics interface {
	IncPosting(txType string)
	IncRejected(reason string)
	IncConflict()
	IncDrift()
}

// Service is the single choke point for wallet balance mutation.
type Service interface {
	EnsureWallet(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*models.Wallet, error)
	WalletForVendor(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*models.Wallet, error)
	PostTransaction(ctx context.Context, tx *gorm.DB, posting Posting) (*models.WalletTransaction, error)
	HasPosting(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, txType enums.WalletTransactionType, refType enums.ReferenceType, refID uuid.UUID) (bool, error)
	OrderEscrow(ctx context.Context, tx *gorm.DB, walletID, orderID uuid.UUID) (OrderEscrow, error)
	Adjust(ctx context.Context, input AdjustmentInput) (*models.WalletTransaction, error)
	GetWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	GetWalletByVendor(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) (*TransactionPage, error)
	Reconcile(ctx context.Context, walletID uuid.UUID) (*ReconcileResult, error)
}

type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Metrics postingMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics postingMetrics
	logg    *logger.Logger
}

// NewService wires the ledger with its repository and unit-of-work runner.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// AdjustmentInput is an admin-initiated CREDIT or DEBIT.
type AdjustmentInput struct {
	VendorID uuid.UUID
	Amount   decimal.Decimal
	Reason   string
	ActorID  uuid.UUID
}

// TransactionPage is one page of wallet history, newest first.
type TransactionPage struct {
	Transactions []models.WalletTransaction `json:"transactions"`
	NextCursor   string                     `json:"next_cursor,omitempty"`
}

// ReconcileResult compares cached balances against a replay of the log.
type ReconcileResult struct {
	WalletID     uuid.UUID `json:"wallet_id"`
	Cached       Balances  `json:"cached"`
	Replayed     Balances  `json:"replayed"`
	Transactions int       `json:"transactions"`
	Problems     []string  `json:"problems,omitempty"`
}

// Consistent reports whether the wallet row matches its log.
func (r ReconcileResult) Consistent() bool {
	return r.Cached.Equal(r.Replayed) && len(r.Problems) == 0
}

func (s *service) EnsureWallet(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*models.Wallet, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	var wallet *models.Wallet
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindVendor(ctx, vendorID); err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
		}
		existing, err := repo.FindWalletByVendor(ctx, vendorID)
		if err == nil {
			wallet = existing
			return nil
		}
		if !isNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}
		created := &models.Wallet{
			VendorID:         vendorID,
			PendingBalance:   decimal.Zero,
			AvailableBalance: decimal.Zero,
			TotalEarnings:    decimal.Zero,
			TotalWithdrawn:   decimal.Zero,
		}
		if err := repo.CreateWallet(ctx, created); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "wallet created concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
		}
		wallet = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *service) WalletForVendor(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.WithTx(tx).FindWalletByVendor(ctx, vendorID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found").
				WithDetails(map[string]any{"vendor_id": vendorID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

// PostTransaction appends one row and moves the cached balances. When tx is
// nil the posting runs in its own unit of work.
func (s *service) PostTransaction(ctx context.Context, tx *gorm.DB, posting Posting) (*models.WalletTransaction, error) {
	if err := posting.validate(); err != nil {
		s.reject("invalid_posting")
		return nil, err
	}
	var row *models.WalletTransaction
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		var err error
		row, err = s.post(ctx, tx, posting)
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *service) post(ctx context.Context, tx *gorm.DB, p Posting) (*models.WalletTransaction, error) {
	repo := s.repo.WithTx(tx)
	wallet, err := repo.FindWalletForUpdate(ctx, p.WalletID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}

	before := BalancesOf(wallet)
	after, err := apply(before, p)
	if err != nil {
		s.reject("insufficient_balance")
		return nil, err
	}

	row := &models.WalletTransaction{
		WalletID:        wallet.ID,
		Type:            p.Type,
		Amount:          p.Amount,
		BasisAmount:     p.BasisAmount,
		Bucket:          p.Bucket,
		PendingBefore:   before.Pending,
		PendingAfter:    after.Pending,
		AvailableBefore: before.Available,
		AvailableAfter:  after.Available,
		Description:     p.Description,
		ReferenceType:   p.ReferenceType,
		ReferenceID:     p.ReferenceID,
		CreatedByID:     p.CreatedBy,
		Sequence:        wallet.Version + 1,
		CreatedAt:       time.Now().UTC(),
	}
	if err := repo.InsertTransaction(ctx, row); err != nil {
		if db.IsUniqueViolation(err, "") {
			s.conflict()
			return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "wallet sequence already taken")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert wallet transaction")
	}

	expected := wallet.Version
	wallet.PendingBalance = after.Pending
	wallet.AvailableBalance = after.Available
	wallet.TotalEarnings = after.TotalEarnings
	wallet.TotalWithdrawn = after.TotalWithdrawn
	ok, err := repo.UpdateBalances(ctx, wallet, expected)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balances")
	}
	if !ok {
		s.conflict()
		return nil, pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "wallet was modified concurrently").
			WithDetails(map[string]any{"wallet_id": wallet.ID, "expected_version": expected})
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventWalletPosted,
		AggregateType: enums.AggregateWallet,
		AggregateID:   wallet.ID,
		Data: payloads.WalletTransactionPostedEvent{
			TransactionID:  row.ID,
			WalletID:       wallet.ID,
			VendorID:       wallet.VendorID,
			Type:           row.Type,
			Amount:         row.Amount,
			BasisAmount:    row.BasisAmount,
			Bucket:         row.Bucket,
			Sequence:       row.Sequence,
			PendingAfter:   row.PendingAfter,
			AvailableAfter: row.AvailableAfter,
			ReferenceType:  row.ReferenceType,
			ReferenceID:    row.ReferenceID,
			Description:    row.Description,
			CreatedAt:      row.CreatedAt,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit wallet posting event")
	}

	if s.metrics != nil {
		s.metrics.IncPosting(string(row.Type))
	}
	logCtx := s.logg.WithWalletID(ctx, wallet.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"type":     row.Type,
		"amount":   row.Amount.StringFixed(2),
		"sequence": row.Sequence,
	})
	s.logg.Debug(logCtx, "wallet transaction posted")
	return row, nil
}

func (s *service) HasPosting(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, txType enums.WalletTransactionType, refType enums.ReferenceType, refID uuid.UUID) (bool, error) {
	found, err := s.repo.WithTx(tx).HasPosting(ctx, walletID, txType, refType, refID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check wallet postings")
	}
	return found, nil
}

func (s *service) Adjust(ctx context.Context, input AdjustmentInput) (*models.WalletTransaction, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if input.Amount.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment amount must be non-zero")
	}
	reason := strings.TrimSpace(input.Reason)
	if len(reason) < 10 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason must be at least 10 characters")
	}
	txType := enums.WalletTxCredit
	if input.Amount.IsNegative() {
		txType = enums.WalletTxDebit
	}

	var row *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		wallet, err := s.WalletForVendor(ctx, tx, input.VendorID)
		if err != nil {
			return err
		}
		refType, refID := Ref(enums.ReferenceManual, uuid.New())
		actor := input.ActorID
		row, err = s.PostTransaction(ctx, tx, Posting{
			WalletID:      wallet.ID,
			Type:          txType,
			Amount:        input.Amount,
			ReferenceType: refType,
			ReferenceID:   refID,
			Description:   reason,
			CreatedBy:     &actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithVendorID(ctx, input.VendorID.String()), "manual wallet adjustment posted")
	return row, nil
}

func (s *service) GetWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.FindWallet(ctx, walletID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

func (s *service) GetWalletByVendor(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error) {
	return s.WalletForVendor(ctx, nil, vendorID)
}

func (s *service) ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) (*TransactionPage, error) {
	before, err := pagination.ParseSequenceCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListTransactions(ctx, walletID, before, limit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet transactions")
	}
	page := &TransactionPage{Transactions: rows}
	if len(rows) > limit {
		page.Transactions = rows[:limit]
		page.NextCursor = pagination.EncodeSequenceCursor(rows[limit-1].Sequence)
	}
	return page, nil
}

func (s *service) Reconcile(ctx context.Context, walletID uuid.UUID) (*ReconcileResult, error) {
	wallet, err := s.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.AllTransactions(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet transactions")
	}
	replayed, problems := Replay(txs)
	result := &ReconcileResult{
		WalletID:     walletID,
		Cached:       BalancesOf(wallet),
		Replayed:     replayed,
		Transactions: len(txs),
		Problems:     problems,
	}
	if int64(len(txs)) != wallet.Version {
		result.Problems = append(result.Problems, fmt.Sprintf("version %d but %d transactions", wallet.Version, len(txs)))
	}
	if !result.Consistent() {
		if s.metrics != nil {
			s.metrics.IncDrift()
		}
		s.logg.Warn(s.logg.WithWalletID(ctx, walletID.String()), "wallet balances drifted from ledger")
	}
	return result, nil
}

func (s *service) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.tx.WithTx(ctx, fn)
}

func (s *service) reject(reason string) {
	if s.metrics != nil {
		s.metrics.IncRejected(reason)
	}
}

func (s *service) conflict() {
	if s.metrics != nil {
		s.metrics.IncConflict()
	}
}
