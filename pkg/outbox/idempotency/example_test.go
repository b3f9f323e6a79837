package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// memoryStore is a map-backed IdempotencyStore without expiry.
type memoryStore map[string]string

func (s memoryStore) Get(_ context.Context, key string) (string, error) {
	return s[key], nil
}

func (s memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := s[key]; ok {
		return false, nil
	}
	s[key] = fmt.Sprint(value)
	return true, nil
}

func (s memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s, key)
	}
	return nil
}

func (s memoryStore) IdempotencyKey(scope, id string) string {
	return "stl:idempotency:" + scope + ":" + id
}

// A payout notification is written once even when the broker redelivers the
// event, and a failed attempt leaves the event free for the next delivery.
func ExampleManager_Process() {
	ctx := context.Background()
	manager, _ := NewManager(memoryStore{}, 7*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	attempts := 0
	notify := func(context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("notifications table locked")
		}
		fmt.Println("vendor notified: payout approved")
		return nil
	}

	for delivery := 1; delivery <= 3; delivery++ {
		done, err := manager.Process(ctx, "notification-worker", eventID, notify)
		fmt.Printf("delivery %d: handled=%t err=%v\n", delivery, done, err)
	}
	// Output:
	// delivery 1: handled=false err=notifications table locked
	// vendor notified: payout approved
	// delivery 2: handled=true err=<nil>
	// delivery 3: handled=false err=<nil>
}
