package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/types"
)

// Actor is the principal driving a transition.
type Actor struct {
	ID       uuid.UUID
	Role     enums.ActorRole
	VendorID *uuid.UUID
}

// SystemActor is used by background jobs and verified webhooks.
func SystemActor() Actor {
	return Actor{Role: enums.ActorRoleSystem}
}

func (a Actor) privileged() bool {
	return a.Role == enums.ActorRoleAdmin || a.Role == enums.ActorRoleSystem
}

// CreateItemInput is one checkout line.
type CreateItemInput struct {
	VendorID  uuid.UUID
	ProductID uuid.UUID
	Title     string
	UnitPrice decimal.Decimal
	Quantity  int
}

// CreateOrderInput is the checkout handoff.
type CreateOrderInput struct {
	CustomerID    uuid.UUID
	Items         []CreateItemInput
	Discount      decimal.Decimal
	Shipping      decimal.Decimal
	Currency      string
	Address       types.AddressSnapshot
	Coupon        *types.CouponSnapshot
	ExpectedTotal *decimal.Decimal
}

// ConfirmPaymentInput carries a verified payment. Amount, when set, must match
// the order total.
type ConfirmPaymentInput struct {
	OrderID    uuid.UUID
	PaymentRef string
	Amount     *decimal.Decimal
}

// ShipmentInput records tracking for the actor's items.
type ShipmentInput struct {
	OrderID        uuid.UUID
	TrackingNumber string
	Carrier        *string
}

// OverrideInput is an admin correction of the order status.
type OverrideInput struct {
	OrderID uuid.UUID
	Target  enums.OrderStatus
	Reason  string
}

// TransitionResult is returned by every status change.
type TransitionResult struct {
	OrderID        uuid.UUID         `json:"order_id"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	Status         enums.OrderStatus `json:"status"`
	ChangedAt      time.Time         `json:"changed_at"`
}

// RefundOutcome is returned by transitions that reversed funds.
type RefundOutcome struct {
	TransitionResult
	RefundAmount     decimal.Decimal `json:"refund_amount"`
	AlreadyProcessed bool            `json:"already_processed"`
}

// ListFilter narrows order listings. Customer and vendor scopes are applied by
// the service from the caller's identity.
type ListFilter struct {
	CustomerID *uuid.UUID
	VendorID   *uuid.UUID
	Status     *enums.OrderStatus
}

// OrderList wraps a page of orders plus the next cursor.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
}

// ItemView is the API shape of an order item.
type ItemView struct {
	ID             uuid.UUID         `json:"id"`
	VendorID       uuid.UUID         `json:"vendor_id"`
	ProductID      uuid.UUID         `json:"product_id"`
	Title          string            `json:"title"`
	UnitPrice      decimal.Decimal   `json:"unit_price"`
	Quantity       int               `json:"quantity"`
	Total          decimal.Decimal   `json:"total"`
	CommissionRate decimal.Decimal   `json:"commission_rate"`
	Status         enums.OrderStatus `json:"status"`
	TrackingNumber *string           `json:"tracking_number,omitempty"`
	Carrier        *string           `json:"carrier,omitempty"`
}

// HistoryView is the API shape of a status history row.
type HistoryView struct {
	Sequence       int64                `json:"sequence"`
	Status         enums.OrderStatus    `json:"status"`
	PreviousStatus *enums.OrderStatus   `json:"previous_status,omitempty"`
	ActorID        *uuid.UUID           `json:"actor_id,omitempty"`
	ActorRole      enums.ActorRole      `json:"actor_role"`
	Reason         *string              `json:"reason,omitempty"`
	ReferenceType  *enums.ReferenceType `json:"reference_type,omitempty"`
	ReferenceID    *uuid.UUID           `json:"reference_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// OrderView is the API shape of an order.
type OrderView struct {
	ID         uuid.UUID             `json:"id"`
	CustomerID uuid.UUID             `json:"customer_id"`
	Status     enums.OrderStatus     `json:"status"`
	Subtotal   decimal.Decimal       `json:"subtotal"`
	Discount   decimal.Decimal       `json:"discount"`
	Shipping   decimal.Decimal       `json:"shipping"`
	Total      decimal.Decimal       `json:"total"`
	Currency   string                `json:"currency"`
	Address    types.AddressSnapshot `json:"address"`
	Coupon     *types.CouponSnapshot `json:"coupon,omitempty"`
	PaymentRef *string               `json:"payment_ref,omitempty"`
	Items      []ItemView            `json:"items"`
	History    []HistoryView         `json:"history,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// OrderPage is a page of order views.
type OrderPage struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// NewOrderView maps the stored order into its API shape.
func NewOrderView(order *models.Order) OrderView {
	view := OrderView{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Status:     order.Status,
		Subtotal:   order.Subtotal,
		Discount:   order.Discount,
		Shipping:   order.Shipping,
		Total:      order.Total,
		Currency:   order.Currency,
		Address:    order.AddressSnapshot,
		Coupon:     order.CouponSnapshot,
		PaymentRef: order.PaymentRef,
		Items:      make([]ItemView, 0, len(order.Items)),
		CreatedAt:  order.CreatedAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, ItemView{
			ID:             item.ID,
			VendorID:       item.VendorID,
			ProductID:      item.ProductID,
			Title:          item.Title,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			Total:          item.Total,
			CommissionRate: item.CommissionRate,
			Status:         item.Status,
			TrackingNumber: item.TrackingNumber,
			Carrier:        item.Carrier,
		})
	}
	for _, h := range order.History {
		view.History = append(view.History, HistoryView{
			Sequence:       h.Sequence,
			Status:         h.Status,
			PreviousStatus: h.PreviousStatus,
			ActorID:        h.ActorID,
			ActorRole:      h.ActorRole,
			Reason:         h.Reason,
			ReferenceType:  h.ReferenceType,
			ReferenceID:    h.ReferenceID,
			CreatedAt:      h.CreatedAt,
		})
	}
	return view
}
