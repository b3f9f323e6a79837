package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

type Dispute struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	CustomerID     uuid.UUID                `gorm:"column:customer_id;type:uuid;not null"`
	Reason         string                   `gorm:"column:reason;not null"`
	Description    string                   `gorm:"column:description;not null"`
	Evidence       pq.StringArray           `gorm:"column:evidence;type:text[]"`
	Status         enums.DisputeStatus      `gorm:"column:status;type:dispute_status;not null;default:'OPEN'"`
	ResolutionType *enums.DisputeResolution `gorm:"column:resolution_type;type:text"`
	RefundAmount   *decimal.Decimal         `gorm:"column:refund_amount;type:numeric(14,2)"`
	ResolvedBy     *uuid.UUID               `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt     *time.Time               `gorm:"column:resolved_at"`
	Comments       []DisputeComment         `gorm:"foreignKey:DisputeID"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *Dispute) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

type DisputeComment struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DisputeID  uuid.UUID       `gorm:"column:dispute_id;type:uuid;not null;index"`
	AuthorID   uuid.UUID       `gorm:"column:author_id;type:uuid;not null"`
	AuthorRole enums.ActorRole `gorm:"column:author_role;not null"`
	Body       string          `gorm:"column:body;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (c *DisputeComment) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
