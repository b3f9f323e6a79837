package orders

import "github.com/angelmondragon/marketplace-settlement/pkg/enums"

// validNext lists the ordinary transitions. OverrideStatus bypasses it.
var validNext = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPendingPayment:    {enums.OrderStatusPaymentConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusPaymentConfirmed:  {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing:        {enums.OrderStatusShipped},
	enums.OrderStatusShipped:           {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered:         {enums.OrderStatusDeliveryConfirmed, enums.OrderStatusReturnRequested, enums.OrderStatusDisputed},
	enums.OrderStatusDeliveryConfirmed: {enums.OrderStatusReturnRequested, enums.OrderStatusDisputed},
	enums.OrderStatusReturnRequested:   {enums.OrderStatusReturned},
	enums.OrderStatusDisputed:          {enums.OrderStatusRefunded, enums.OrderStatusDelivered, enums.OrderStatusDeliveryConfirmed},
}

// CanTransition reports whether from -> to is an ordinary transition.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range validNext[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// paymentSettled reports whether confirmPayment already ran for an order in
// this status.
func paymentSettled(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusPendingPayment, enums.OrderStatusCancelled:
		return false
	default:
		return true
	}
}
