package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/types"
)

// Order is the customer-facing order spanning one or more vendors.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID      uuid.UUID             `gorm:"column:customer_id;type:uuid;not null;index"`
	Status          enums.OrderStatus     `gorm:"column:status;type:order_status;not null;default:'PENDING_PAYMENT'"`
	Subtotal        decimal.Decimal       `gorm:"column:subtotal;type:numeric(14,2);not null"`
	Discount        decimal.Decimal       `gorm:"column:discount;type:numeric(14,2);not null;default:0"`
	Shipping        decimal.Decimal       `gorm:"column:shipping;type:numeric(14,2);not null;default:0"`
	Total           decimal.Decimal       `gorm:"column:total;type:numeric(14,2);not null"`
	Currency        string                `gorm:"column:currency;not null;default:'LKR'"`
	AddressSnapshot types.AddressSnapshot `gorm:"column:address_snapshot;type:jsonb;serializer:json;not null"`
	CouponSnapshot  *types.CouponSnapshot `gorm:"column:coupon_snapshot;type:jsonb;serializer:json"`
	PaymentRef      *string               `gorm:"column:payment_ref"`
	Items           []OrderItem           `gorm:"foreignKey:OrderID"`
	History         []OrderStatusHistory  `gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem is a single vendor line within an order. CommissionRate is the
// vendor's rate captured at checkout so later rate changes never rewrite history.
type OrderItem struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	VendorID       uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null;index"`
	ProductID      uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	Title          string            `gorm:"column:title;not null"`
	UnitPrice      decimal.Decimal   `gorm:"column:unit_price;type:numeric(14,2);not null"`
	Quantity       int               `gorm:"column:quantity;not null"`
	Total          decimal.Decimal   `gorm:"column:total;type:numeric(14,2);not null"`
	CommissionRate decimal.Decimal   `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	Status         enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'PENDING_PAYMENT'"`
	TrackingNumber *string           `gorm:"column:tracking_number"`
	Carrier        *string           `gorm:"column:carrier"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// OrderStatusHistory is append-only. The row with the highest Sequence is the
// order's current status.
type OrderStatusHistory struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	Sequence       int64                `gorm:"column:sequence;not null"`
	Status         enums.OrderStatus    `gorm:"column:status;type:order_status;not null"`
	PreviousStatus *enums.OrderStatus   `gorm:"column:previous_status;type:order_status"`
	ActorID        *uuid.UUID           `gorm:"column:actor_id;type:uuid"`
	ActorRole      enums.ActorRole      `gorm:"column:actor_role;not null"`
	Reason         *string              `gorm:"column:reason"`
	ReferenceType  *enums.ReferenceType `gorm:"column:reference_type;type:text"`
	ReferenceID    *uuid.UUID           `gorm:"column:reference_id;type:uuid"`
	CreatedAt      time.Time            `gorm:"column:created_at;not null"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}
