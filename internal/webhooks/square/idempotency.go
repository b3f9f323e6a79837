package squarewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/redis"
)

const guardScope = "square-webhook"

// EventGuard acknowledges Square redeliveries without settling twice.
// Square retries for up to 72 hours, which bounds the useful ttl.
type EventGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewEventGuard(store redis.IdempotencyStore, ttl time.Duration) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &EventGuard{store: store, ttl: ttl}, nil
}

// Once runs fn for the first delivery of eventID and reports whether it ran.
// When fn fails the event id is forgotten so Square's retry is processed.
// Store failures come back as dependency errors; fn's error is returned as is.
func (g *EventGuard) Once(ctx context.Context, eventID string, fn func(context.Context) error) (bool, error) {
	if eventID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	key := g.store.IdempotencyKey(guardScope, eventID)

	first, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve square event")
	}
	if !first {
		return false, nil
	}
	if err := fn(ctx); err != nil {
		if delErr := g.store.Del(ctx, key); delErr != nil {
			return false, fmt.Errorf("%w (forget square event: %v)", err, delErr)
		}
		return false, err
	}
	return true, nil
}
