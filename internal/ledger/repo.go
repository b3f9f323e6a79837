package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

// Repository manages persistence for wallets and their transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	FindWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	FindWalletByVendor(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error)
	FindWalletForUpdate(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	UpdateBalances(ctx context.Context, wallet *models.Wallet, expectedVersion int64) (bool, error)
	InsertTransaction(ctx context.Context, txn *models.WalletTransaction) error
	ListTransactions(ctx context.Context, walletID uuid.UUID, afterSequence int64, limit int) ([]models.WalletTransaction, error)
	AllTransactions(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error)
	HasPosting(ctx context.Context, walletID uuid.UUID, txType enums.WalletTransactionType, refType enums.ReferenceType, refID uuid.UUID) (bool, error)
	OrderPostings(ctx context.Context, walletID, orderID uuid.UUID) ([]models.WalletTransaction, error)
	ListWalletIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repository) FindWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", walletID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindWalletByVendor(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// FindWalletForUpdate takes the row lock that serializes postings to one wallet.
func (r *repository) FindWalletForUpdate(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", walletID).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// UpdateBalances writes the cached projection only if nobody else advanced the
// version in between. Returns false when the version check lost.
func (r *repository) UpdateBalances(ctx context.Context, wallet *models.Wallet, expectedVersion int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND version = ?", wallet.ID, expectedVersion).
		Updates(map[string]any{
			"pending_balance":   wallet.PendingBalance,
			"available_balance": wallet.AvailableBalance,
			"total_earnings":    wallet.TotalEarnings,
			"total_withdrawn":   wallet.TotalWithdrawn,
			"version":           expectedVersion + 1,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	wallet.Version = expectedVersion + 1
	return true, nil
}

func (r *repository) InsertTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID, afterSequence int64, limit int) ([]models.WalletTransaction, error) {
	var rows []models.WalletTransaction
	query := r.db.WithContext(ctx).Where("wallet_id = ?", walletID)
	if afterSequence > 0 {
		query = query.Where("sequence < ?", afterSequence)
	}
	err := query.Order("sequence DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *repository) AllTransactions(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error) {
	var rows []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("sequence ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) HasPosting(ctx context.Context, walletID uuid.UUID, txType enums.WalletTransactionType, refType enums.ReferenceType, refID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("wallet_id = ? AND type = ? AND reference_type = ? AND reference_id = ?", walletID, txType, refType, refID).
		Count(&count).Error
	return count > 0, err
}

// OrderPostings returns the wallet's rows that reference the order or one of
// its disputes.
func (r *repository) OrderPostings(ctx context.Context, walletID, orderID uuid.UUID) ([]models.WalletTransaction, error) {
	disputes := r.db.Model(&models.Dispute{}).Select("id").Where("order_id = ?", orderID)
	var rows []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Where("(reference_type = ? AND reference_id = ?) OR (reference_type = ? AND reference_id IN (?))",
			enums.ReferenceOrder, orderID, enums.ReferenceDispute, disputes).
		Order("sequence ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListWalletIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).Model(&models.Wallet{})
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}
	err := query.Order("id ASC").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).Where("id = ?", vendorID).First(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
