package enums

import "fmt"

// OrderStatus maps to the order_status enum in Postgres. Items share the same
// vocabulary for their per-vendor sub-status.
type OrderStatus string

const (
	OrderStatusPendingPayment    OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaymentConfirmed  OrderStatus = "PAYMENT_CONFIRMED"
	OrderStatusProcessing        OrderStatus = "PROCESSING"
	OrderStatusShipped           OrderStatus = "SHIPPED"
	OrderStatusDelivered         OrderStatus = "DELIVERED"
	OrderStatusDeliveryConfirmed OrderStatus = "DELIVERY_CONFIRMED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
	OrderStatusReturnRequested   OrderStatus = "RETURN_REQUESTED"
	OrderStatusReturned          OrderStatus = "RETURNED"
	OrderStatusDisputed          OrderStatus = "DISPUTED"
	OrderStatusRefunded          OrderStatus = "REFUNDED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPendingPayment,
	OrderStatusPaymentConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusDeliveryConfirmed,
	OrderStatusCancelled,
	OrderStatusReturnRequested,
	OrderStatusReturned,
	OrderStatusDisputed,
	OrderStatusRefunded,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical order_status enum.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no ordinary transition leaves the status.
// DELIVERY_CONFIRMED is terminal for fulfillment but still accepts the
// return and dispute branches while their windows are open.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDeliveryConfirmed, OrderStatusCancelled, OrderStatusReturned, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
