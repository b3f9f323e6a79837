// Package idempotency keeps event consumers at-most-once per event id on top
// of at-least-once delivery.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/pkg/redis"
)

const processedScope = "evt:processed"

var (
	ErrConsumerRequired = errors.New("consumer name is required")
	ErrEventIDRequired  = errors.New("event id is required")
)

// Manager claims event ids per consumer with SETNX. A claim lives for ttl, so
// ttl must outlast the broker's redelivery horizon.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Claim reports whether this caller is the first to see eventID for consumer.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
}

// Release drops a claim so the next delivery runs again.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// Process runs handle only for the delivery that wins the claim and reports
// whether it ran to completion. A failed handle releases the claim.
func (m *Manager) Process(ctx context.Context, consumer string, eventID uuid.UUID, handle func(context.Context) error) (bool, error) {
	claimed, err := m.Claim(ctx, consumer, eventID)
	if err != nil || !claimed {
		return false, err
	}
	if err := handle(ctx); err != nil {
		if relErr := m.Release(ctx, consumer, eventID); relErr != nil {
			return false, fmt.Errorf("%w (release claim: %v)", err, relErr)
		}
		return false, err
	}
	return true, nil
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", ErrConsumerRequired
	case eventID == uuid.Nil:
		return "", ErrEventIDRequired
	}
	return m.store.IdempotencyKey(processedScope+":"+consumer, eventID.String()), nil
}
