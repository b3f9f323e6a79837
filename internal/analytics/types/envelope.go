package types

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

// Envelope is a decoded settlement event ready for routing.
type Envelope struct {
	EventID    string                `json:"event_id"`
	EventType  enums.OutboxEventType `json:"event_type"`
	OccurredAt time.Time             `json:"occurred_at"`
	Payload    json.RawMessage       `json:"payload"`
}
