package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/internal/analytics/types"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/subscriber"
)

const analyticsConsumerName = "ledger-analytics"

// Handler defines how to process analytics envelopes.
type Handler interface {
	Supports(eventType enums.OutboxEventType) bool
	Handle(ctx context.Context, envelope types.Envelope) error
}

type idempotencyChecker interface {
	Process(ctx context.Context, consumer string, eventID uuid.UUID, handle func(context.Context) error) (bool, error)
}

// Service consumes ledger events while honoring Redis idempotency.
type Service struct {
	handler Handler
	manager idempotencyChecker
	logg    *logger.Logger
}

// NewService creates a new analytics worker service.
func NewService(handler Handler, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	if handler == nil {
		return nil, errors.New("analytics handler is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	return &Service{
		handler: handler,
		manager: manager,
		logg:    logg,
	}, nil
}

// Handle processes one delivery. Undecodable envelopes are acknowledged.
// Handler failures release the idempotency claim and request redelivery.
func (s *Service) Handle(ctx context.Context, d subscriber.Delivery) error {
	fields := map[string]any{
		"message_id": d.MessageID,
		"event_type": d.EventType,
	}
	logCtx := s.logg.WithFields(ctx, fields)

	if !s.handler.Supports(d.EventType) {
		return nil
	}

	envelope, err := buildEnvelope(d)
	if err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "invalid analytics envelope")
		return nil
	}
	fields["event_id"] = envelope.EventID
	logCtx = s.logg.WithFields(ctx, fields)

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid event id")
		return nil
	}

	handled, err := s.manager.Process(logCtx, analyticsConsumerName, eventID, func(ctx context.Context) error {
		return s.handler.Handle(ctx, *envelope)
	})
	if err != nil {
		s.logg.Error(logCtx, "analytics event failed", err)
		return err
	}
	if !handled {
		s.logg.Info(logCtx, "event already processed")
		return nil
	}

	s.logg.Debug(logCtx, "analytics event handled")
	return nil
}

func buildEnvelope(d subscriber.Delivery) (*types.Envelope, error) {
	stored, err := outbox.DecodeEnvelope(d.Data)
	if err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	if !d.EventType.IsValid() {
		return nil, fmt.Errorf("event_type: unknown %q", d.EventType)
	}
	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}
	return &types.Envelope{
		EventID:    eventID,
		EventType:  d.EventType,
		OccurredAt: stored.OccurredAt.UTC(),
		Payload:    stored.Data,
	}, nil
}
