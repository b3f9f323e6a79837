package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet caches a vendor's balances. The wallet_transactions log is the source
// of truth; these columns must always equal a replay of it.
type Wallet struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID         uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex"`
	PendingBalance   decimal.Decimal `gorm:"column:pending_balance;type:numeric(14,2);not null;default:0"`
	AvailableBalance decimal.Decimal `gorm:"column:available_balance;type:numeric(14,2);not null;default:0"`
	TotalEarnings    decimal.Decimal `gorm:"column:total_earnings;type:numeric(14,2);not null;default:0"`
	TotalWithdrawn   decimal.Decimal `gorm:"column:total_withdrawn;type:numeric(14,2);not null;default:0"`
	Version          int64           `gorm:"column:version;not null;default:0"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}
