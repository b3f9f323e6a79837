package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

// WalletTransaction is an immutable ledger row. Amount is the signed headline
// figure; BasisAmount carries the second leg for RELEASE (gross leaving
// pending) and REFUND (amount taken from Bucket).
type WalletTransaction struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID        uuid.UUID                   `gorm:"column:wallet_id;type:uuid;not null;index"`
	Type            enums.WalletTransactionType `gorm:"column:type;type:wallet_transaction_type;not null"`
	Amount          decimal.Decimal             `gorm:"column:amount;type:numeric(14,2);not null"`
	BasisAmount     decimal.Decimal             `gorm:"column:basis_amount;type:numeric(14,2);not null;default:0"`
	Bucket          enums.WalletBucket          `gorm:"column:bucket;type:text"`
	PendingBefore   decimal.Decimal             `gorm:"column:pending_before;type:numeric(14,2);not null"`
	PendingAfter    decimal.Decimal             `gorm:"column:pending_after;type:numeric(14,2);not null"`
	AvailableBefore decimal.Decimal             `gorm:"column:available_before;type:numeric(14,2);not null"`
	AvailableAfter  decimal.Decimal             `gorm:"column:available_after;type:numeric(14,2);not null"`
	Description     string                      `gorm:"column:description;not null"`
	ReferenceType   *enums.ReferenceType        `gorm:"column:reference_type;type:text"`
	ReferenceID     *uuid.UUID                  `gorm:"column:reference_id;type:uuid"`
	CreatedByID     *uuid.UUID                  `gorm:"column:created_by_id;type:uuid"`
	Sequence        int64                       `gorm:"column:sequence;not null"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (t *WalletTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// WalletTransaction rows are never updated or deleted.
func (t *WalletTransaction) BeforeUpdate(*gorm.DB) error {
	return ErrImmutableRow
}

func (t *WalletTransaction) BeforeDelete(*gorm.DB) error {
	return ErrImmutableRow
}
