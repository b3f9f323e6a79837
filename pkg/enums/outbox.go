package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateWallet  OutboxAggregateType = "wallet"
	AggregatePayout  OutboxAggregateType = "payout"
	AggregateDispute OutboxAggregateType = "dispute"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateWallet,
	AggregatePayout,
	AggregateDispute,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated           OutboxEventType = "order_created"
	EventOrderPaymentConfirmed  OutboxEventType = "order_payment_confirmed"
	EventOrderStatusChanged     OutboxEventType = "order_status_changed"
	EventOrderDeliveryConfirmed OutboxEventType = "order_delivery_confirmed"
	EventOrderCancelled         OutboxEventType = "order_cancelled"
	EventOrderReturnRequested   OutboxEventType = "order_return_requested"
	EventOrderStatusOverridden  OutboxEventType = "order_status_overridden"
	EventOrderRefunded          OutboxEventType = "order_refunded"
	EventWalletPosted           OutboxEventType = "wallet_transaction_posted"
	EventPayoutRequested        OutboxEventType = "payout_requested"
	EventPayoutApproved         OutboxEventType = "payout_approved"
	EventPayoutCompleted        OutboxEventType = "payout_completed"
	EventPayoutFailed           OutboxEventType = "payout_failed"
	EventDisputeOpened          OutboxEventType = "dispute_opened"
	EventDisputeCommentAdded    OutboxEventType = "dispute_comment_added"
	EventDisputeInReview        OutboxEventType = "dispute_in_review"
	EventDisputeResolved        OutboxEventType = "dispute_resolved"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaymentConfirmed,
	EventOrderStatusChanged,
	EventOrderDeliveryConfirmed,
	EventOrderCancelled,
	EventOrderReturnRequested,
	EventOrderStatusOverridden,
	EventOrderRefunded,
	EventWalletPosted,
	EventPayoutRequested,
	EventPayoutApproved,
	EventPayoutCompleted,
	EventPayoutFailed,
	EventDisputeOpened,
	EventDisputeCommentAdded,
	EventDisputeInReview,
	EventDisputeResolved,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
