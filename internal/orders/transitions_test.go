package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]enums.OrderStatus{
		{enums.OrderStatusPendingPayment, enums.OrderStatusPaymentConfirmed},
		{enums.OrderStatusPendingPayment, enums.OrderStatusCancelled},
		{enums.OrderStatusPaymentConfirmed, enums.OrderStatusCancelled},
		{enums.OrderStatusShipped, enums.OrderStatusDelivered},
		{enums.OrderStatusDelivered, enums.OrderStatusDeliveryConfirmed},
		{enums.OrderStatusDeliveryConfirmed, enums.OrderStatusReturnRequested},
		{enums.OrderStatusDeliveryConfirmed, enums.OrderStatusDisputed},
		{enums.OrderStatusDisputed, enums.OrderStatusRefunded},
	}
	for _, pair := range allowed {
		assert.Truef(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}

	rejected := [][2]enums.OrderStatus{
		{enums.OrderStatusPendingPayment, enums.OrderStatusShipped},
		{enums.OrderStatusProcessing, enums.OrderStatusCancelled},
		{enums.OrderStatusShipped, enums.OrderStatusCancelled},
		{enums.OrderStatusCancelled, enums.OrderStatusPaymentConfirmed},
		{enums.OrderStatusReturned, enums.OrderStatusRefunded},
		{enums.OrderStatusRefunded, enums.OrderStatusDisputed},
		{enums.OrderStatusDeliveryConfirmed, enums.OrderStatusDelivered},
	}
	for _, pair := range rejected {
		assert.Falsef(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}
}

func TestTerminalStatusesHaveNoForwardExit(t *testing.T) {
	for _, status := range []enums.OrderStatus{enums.OrderStatusCancelled, enums.OrderStatusReturned, enums.OrderStatusRefunded} {
		assert.True(t, status.IsTerminal())
		assert.Empty(t, validNext[status])
	}
}
