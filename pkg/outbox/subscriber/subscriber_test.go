package subscriber

import (
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

func TestFromPubSubReadsAttributes(t *testing.T) {
	msg := &pubsub.Message{
		ID:         "m-1",
		Data:       []byte(`{"version":1}`),
		Attributes: map[string]string{KeyEventType: string(enums.EventPayoutApproved)},
	}

	d := FromPubSub(msg)
	assert.Equal(t, "m-1", d.MessageID)
	assert.Equal(t, enums.EventPayoutApproved, d.EventType)
	assert.JSONEq(t, `{"version":1}`, string(d.Data))
}

func TestFromKafkaReadsHeaders(t *testing.T) {
	m := kafkago.Message{
		Topic:     "settlement-events",
		Partition: 3,
		Offset:    42,
		Value:     []byte(`{}`),
		Headers: []kafkago.Header{
			{Key: KeyEventID, Value: []byte("evt-1")},
			{Key: KeyEventType, Value: []byte(enums.EventOrderRefunded)},
		},
	}

	d := FromKafka(m)
	assert.Equal(t, "evt-1", d.MessageID)
	assert.Equal(t, enums.EventOrderRefunded, d.EventType)
}

func TestFromKafkaFallsBackToOffset(t *testing.T) {
	d := FromKafka(kafkago.Message{Topic: "settlement-events", Partition: 12, Offset: 7})
	assert.Equal(t, "settlement-events/12@7", d.MessageID)
	assert.Equal(t, enums.OutboxEventType(""), d.EventType)
}
