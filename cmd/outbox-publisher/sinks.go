package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/marketplace-settlement/pkg/kafka"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/registry"
)

type pubsubClient interface {
	Ping(context.Context) error
	SettlementPublisher() *gcppubsub.Publisher
}

type orderedPublisher interface {
	Publish(context.Context, *gcppubsub.Message) *gcppubsub.PublishResult
	ResumePublish(orderingKey string)
}

// pubsubSink publishes to the settlement topic with the aggregate id as the
// ordering key.
type pubsubSink struct {
	client    pubsubClient
	publisher orderedPublisher
}

func newPubSubSink(client pubsubClient) (*pubsubSink, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	pub := client.SettlementPublisher()
	if pub == nil {
		return nil, errors.New("settlement publisher not configured")
	}
	return &pubsubSink{client: client, publisher: pub}, nil
}

func (s *pubsubSink) Name() string { return "pubsub" }

func (s *pubsubSink) Ping(ctx context.Context) error { return s.client.Ping(ctx) }

func (s *pubsubSink) Send(ctx context.Context, msg message) error {
	result := s.publisher.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.Key,
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", msg.Topic))
	}
	if _, err := result.Get(ctx); err != nil {
		// A failed ordered publish pauses the key until resumed.
		s.publisher.ResumePublish(msg.Key)
		return err
	}
	return nil
}

type kafkaProducer interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// kafkaSink writes to the configured topic keyed by aggregate id. Message
// attributes travel as record headers.
type kafkaSink struct {
	producer kafkaProducer
	ping     func(context.Context) error
}

func newKafkaSink(producer kafkaProducer, ping func(context.Context) error) (*kafkaSink, error) {
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	if ping == nil {
		ping = func(context.Context) error { return nil }
	}
	return &kafkaSink{producer: producer, ping: ping}, nil
}

func (s *kafkaSink) Name() string { return "kafka" }

func (s *kafkaSink) Ping(ctx context.Context) error { return s.ping(ctx) }

func (s *kafkaSink) Send(ctx context.Context, msg message) error {
	keys := make([]string, 0, len(msg.Attributes))
	for k := range msg.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(msg.Attributes[k])})
	}
	return s.producer.Publish(ctx, []byte(msg.Key), msg.Data, headers...)
}
