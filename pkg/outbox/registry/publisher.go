package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry. Every settlement event shares one
// topic so consumers observe per-aggregate ordering through the ordering key.
func NewEventRegistry(topic string) (*EventRegistry, error) {
	if topic == "" {
		return nil, fmt.Errorf("settlement topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	orderStatus := func() interface{} { return &payloads.OrderStatusChangedEvent{} }
	payout := func() interface{} { return &payloads.PayoutEvent{} }
	dispute := func() interface{} { return &payloads.DisputeEvent{} }

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventOrderCreated,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() interface{} { return &payloads.OrderCreatedEvent{} },
		},
		{
			EventType:      enums.EventOrderPaymentConfirmed,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() interface{} { return &payloads.OrderPaymentConfirmedEvent{} },
		},
		{EventType: enums.EventOrderStatusChanged, AggregateType: enums.AggregateOrder, PayloadFactory: orderStatus},
		{EventType: enums.EventOrderDeliveryConfirmed, AggregateType: enums.AggregateOrder, PayloadFactory: orderStatus},
		{EventType: enums.EventOrderCancelled, AggregateType: enums.AggregateOrder, PayloadFactory: orderStatus},
		{EventType: enums.EventOrderReturnRequested, AggregateType: enums.AggregateOrder, PayloadFactory: orderStatus},
		{EventType: enums.EventOrderStatusOverridden, AggregateType: enums.AggregateOrder, PayloadFactory: orderStatus},
		{
			EventType:      enums.EventOrderRefunded,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() interface{} { return &payloads.OrderRefundedEvent{} },
		},
		{
			EventType:      enums.EventWalletPosted,
			AggregateType:  enums.AggregateWallet,
			PayloadFactory: func() interface{} { return &payloads.WalletTransactionPostedEvent{} },
		},
		{EventType: enums.EventPayoutRequested, AggregateType: enums.AggregatePayout, PayloadFactory: payout},
		{EventType: enums.EventPayoutApproved, AggregateType: enums.AggregatePayout, PayloadFactory: payout},
		{EventType: enums.EventPayoutCompleted, AggregateType: enums.AggregatePayout, PayloadFactory: payout},
		{EventType: enums.EventPayoutFailed, AggregateType: enums.AggregatePayout, PayloadFactory: payout},
		{EventType: enums.EventDisputeOpened, AggregateType: enums.AggregateDispute, PayloadFactory: dispute},
		{EventType: enums.EventDisputeCommentAdded, AggregateType: enums.AggregateDispute, PayloadFactory: dispute},
		{EventType: enums.EventDisputeInReview, AggregateType: enums.AggregateDispute, PayloadFactory: dispute},
		{EventType: enums.EventDisputeResolved, AggregateType: enums.AggregateDispute, PayloadFactory: dispute},
	} {
		desc.Topic = topic
		reg.register(desc)
	}

	return reg, nil
}

// Supports reports whether the event type has a descriptor.
func (r *EventRegistry) Supports(eventType enums.OutboxEventType) bool {
	_, ok := r.entries[eventType]
	return ok
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
