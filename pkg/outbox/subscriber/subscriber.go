// Package subscriber adapts Pub/Sub and Kafka deliveries of settlement
// events to a single handler signature used by the workers.
package subscriber

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/kafka"
)

// Attribute and header keys set by the outbox publisher.
const (
	KeyEventID       = "event_id"
	KeyEventType     = "event_type"
	KeyAggregateType = "aggregate_type"
	KeyAggregateID   = "aggregate_id"
	KeyCreatedAt     = "created_at"
)

// Delivery is one settlement event as received from either transport.
// Data holds the JSON payload envelope.
type Delivery struct {
	MessageID string
	EventType enums.OutboxEventType
	Data      []byte
}

// Handler returns nil to acknowledge the delivery. An error asks the
// transport to redeliver.
type Handler func(ctx context.Context, d Delivery) error

// FromPubSub converts a Pub/Sub message.
func FromPubSub(msg *pubsub.Message) Delivery {
	return Delivery{
		MessageID: msg.ID,
		EventType: enums.OutboxEventType(msg.Attributes[KeyEventType]),
		Data:      msg.Data,
	}
}

// FromKafka converts a Kafka record. The message id falls back to the
// partition offset when the event_id header is missing.
func FromKafka(m kafkago.Message) Delivery {
	id := kafka.HeaderValue(m, KeyEventID)
	if id == "" {
		id = fmt.Sprintf("%s/%d@%d", m.Topic, m.Partition, m.Offset)
	}
	return Delivery{
		MessageID: id,
		EventType: enums.OutboxEventType(kafka.HeaderValue(m, KeyEventType)),
		Data:      m.Value,
	}
}

// RunPubSub receives until ctx is cancelled, acking or nacking each message
// based on the handler result.
func RunPubSub(ctx context.Context, sub *pubsub.Subscriber, h Handler) error {
	if sub == nil {
		return errors.New("pubsub subscriber required")
	}
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := h(ctx, FromPubSub(msg)); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// RunKafka consumes until ctx is cancelled. A handler error stops the loop
// with the offset uncommitted.
func RunKafka(ctx context.Context, consumer *kafka.Consumer, h Handler) error {
	if consumer == nil {
		return errors.New("kafka consumer required")
	}
	return consumer.Run(ctx, func(ctx context.Context, m kafkago.Message) error {
		return h(ctx, FromKafka(m))
	})
}
