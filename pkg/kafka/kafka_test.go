package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

type fakeReader struct {
	queue     []kafka.Message
	committed []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.queue) == 0 {
		return kafka.Message{}, context.Canceled
	}
	m := f.queue[0]
	f.queue = f.queue[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestProducerPublishKeepsKeyAndHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{w: w}

	err := p.Publish(context.Background(), []byte("wallet-1"), []byte(`{}`), Header{Key: "event_type", Value: []byte("wallet_transaction_posted")})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	require.Equal(t, "wallet-1", string(w.msgs[0].Key))
	require.Equal(t, "wallet_transaction_posted", HeaderValue(w.msgs[0], "event_type"))
}

func TestProducerPublishPropagatesErrors(t *testing.T) {
	p := &Producer{w: &fakeWriter{err: errors.New("leader not available")}}
	require.Error(t, p.Publish(context.Background(), nil, []byte(`{}`)))
}

func TestProducerPingWithoutBrokers(t *testing.T) {
	p := &Producer{w: &fakeWriter{}}
	require.EqualError(t, p.Ping(context.Background()), "kafka brokers are required")
}

func TestNewProducerValidatesConfig(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{Topic: "settlement-events"})
	require.Error(t, err)
	_, err = NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)
}

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}}
	c := &Consumer{r: r}

	err := c.Run(context.Background(), func(_ context.Context, m kafka.Message) error {
		if m.Offset == 2 {
			return errors.New("handler failed")
		}
		return nil
	})
	require.Error(t, err)
	require.Len(t, r.committed, 1)
	require.Equal(t, int64(1), r.committed[0].Offset)
}

func TestConsumerStopsCleanlyOnCancel(t *testing.T) {
	c := &Consumer{r: &fakeReader{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Run(ctx, func(context.Context, kafka.Message) error { return nil }))
}
