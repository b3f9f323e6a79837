package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

// PayoutRequest is a vendor withdrawal. AccountNumberSealed holds the
// secretbox-sealed account number; only AccountLast4 is ever returned to clients.
type PayoutRequest struct {
	ID                  uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID            uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;index"`
	WalletID            uuid.UUID          `gorm:"column:wallet_id;type:uuid;not null"`
	Amount              decimal.Decimal    `gorm:"column:amount;type:numeric(14,2);not null"`
	BankName            string             `gorm:"column:bank_name;not null"`
	AccountNumberSealed []byte             `gorm:"column:account_number_sealed;type:bytea;not null"`
	AccountLast4        string             `gorm:"column:account_last4;not null"`
	AccountHolder       string             `gorm:"column:account_holder;not null"`
	BranchCode          *string            `gorm:"column:branch_code"`
	Status              enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'PENDING'"`
	TransactionRef      *string            `gorm:"column:transaction_ref"`
	AdminNotes          *string            `gorm:"column:admin_notes"`
	FailureReason       *string            `gorm:"column:failure_reason"`
	ApprovedBy          *uuid.UUID         `gorm:"column:approved_by;type:uuid"`
	ApprovedAt          *time.Time         `gorm:"column:approved_at"`
	ProcessedAt         *time.Time         `gorm:"column:processed_at"`
	CreatedAt           time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PayoutRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
