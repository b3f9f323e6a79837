package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

// VendorAmount is the per-vendor split carried on order events.
type VendorAmount struct {
	VendorID   uuid.UUID       `json:"vendor_id"`
	Gross      decimal.Decimal `json:"gross"`
	Commission decimal.Decimal `json:"commission"`
	Net        decimal.Decimal `json:"net"`
}

// OrderCreatedEvent is emitted when a customer places an order.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID       `json:"order_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
	VendorIDs  []uuid.UUID     `json:"vendor_ids"`
}

// OrderPaymentConfirmedEvent is emitted once funds are held for every vendor.
type OrderPaymentConfirmedEvent struct {
	OrderID    uuid.UUID      `json:"order_id"`
	CustomerID uuid.UUID      `json:"customer_id"`
	PaymentRef string         `json:"payment_ref,omitempty"`
	Vendors    []VendorAmount `json:"vendors"`
}

// OrderStatusChangedEvent covers every order transition that does not carry
// a richer payload of its own.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	From       enums.OrderStatus `json:"from"`
	To         enums.OrderStatus `json:"to"`
	ActorRole  enums.ActorRole   `json:"actor_role"`
	Reason     string            `json:"reason,omitempty"`
	VendorIDs  []uuid.UUID       `json:"vendor_ids,omitempty"`
}

// RefundAllocation describes how much of a refund one vendor carried.
type RefundAllocation struct {
	VendorID           uuid.UUID          `json:"vendor_id"`
	Share              decimal.Decimal    `json:"share"`
	CommissionReversed decimal.Decimal    `json:"commission_reversed"`
	NetReversed        decimal.Decimal    `json:"net_reversed"`
	Source             enums.WalletBucket `json:"source"`
}

// OrderRefundedEvent is emitted after the refund engine reversed funds.
type OrderRefundedEvent struct {
	OrderID      uuid.UUID          `json:"order_id"`
	CustomerID   uuid.UUID          `json:"customer_id"`
	DisputeID    *uuid.UUID         `json:"dispute_id,omitempty"`
	Status       enums.OrderStatus  `json:"status"`
	RefundAmount decimal.Decimal    `json:"refund_amount"`
	Allocations  []RefundAllocation `json:"allocations"`
}

// WalletTransactionPostedEvent mirrors a single ledger posting.
type WalletTransactionPostedEvent struct {
	TransactionID  uuid.UUID                   `json:"transaction_id"`
	WalletID       uuid.UUID                   `json:"wallet_id"`
	VendorID       uuid.UUID                   `json:"vendor_id"`
	Type           enums.WalletTransactionType `json:"type"`
	Amount         decimal.Decimal             `json:"amount"`
	BasisAmount    decimal.Decimal             `json:"basis_amount"`
	Bucket         enums.WalletBucket          `json:"bucket,omitempty"`
	Sequence       int64                       `json:"sequence"`
	PendingAfter   decimal.Decimal             `json:"pending_after"`
	AvailableAfter decimal.Decimal             `json:"available_after"`
	ReferenceType  *enums.ReferenceType        `json:"reference_type,omitempty"`
	ReferenceID    *uuid.UUID                  `json:"reference_id,omitempty"`
	Description    string                      `json:"description"`
	CreatedAt      time.Time                   `json:"created_at"`
}

// PayoutEvent is shared by every payout lifecycle event.
type PayoutEvent struct {
	PayoutID       uuid.UUID          `json:"payout_id"`
	VendorID       uuid.UUID          `json:"vendor_id"`
	WalletID       uuid.UUID          `json:"wallet_id"`
	Amount         decimal.Decimal    `json:"amount"`
	Status         enums.PayoutStatus `json:"status"`
	AccountLast4   string             `json:"account_last4,omitempty"`
	TransactionRef string             `json:"transaction_ref,omitempty"`
	FailureReason  string             `json:"failure_reason,omitempty"`
}

// DisputeEvent is shared by every dispute lifecycle event.
type DisputeEvent struct {
	DisputeID    uuid.UUID                `json:"dispute_id"`
	OrderID      uuid.UUID                `json:"order_id"`
	CustomerID   uuid.UUID                `json:"customer_id"`
	Status       enums.DisputeStatus      `json:"status"`
	Reason       string                   `json:"reason,omitempty"`
	Resolution   *enums.DisputeResolution `json:"resolution,omitempty"`
	RefundAmount *decimal.Decimal         `json:"refund_amount,omitempty"`
	CommentID    *uuid.UUID               `json:"comment_id,omitempty"`
	AuthorRole   enums.ActorRole          `json:"author_role,omitempty"`
}
