package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-settlement/internal/analytics/types"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/subscriber"
)

func TestBuildEnvelope(t *testing.T) {
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := delivery(t, enums.EventWalletPosted, "9b2f3c1e-0000-4000-8000-000000000001", occurred)

	env, err := buildEnvelope(d)
	require.NoError(t, err)
	assert.Equal(t, enums.EventWalletPosted, env.EventType)
	assert.Equal(t, "9b2f3c1e-0000-4000-8000-000000000001", env.EventID)
	assert.Equal(t, occurred, env.OccurredAt)
	assert.JSONEq(t, `{"amount":"1.00"}`, string(env.Payload))
}

func TestHandleSkipsUnsupportedEvents(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestService(t, handler, manager)

	err := svc.Handle(context.Background(), delivery(t, enums.EventDisputeOpened, uuid.NewString(), time.Now()))
	require.NoError(t, err)
	assert.Empty(t, manager.checked)
	assert.False(t, handler.called)
}

func TestHandleAlreadyProcessed(t *testing.T) {
	manager := &stubManager{duplicate: true}
	handler := &stubHandler{}
	svc := newTestService(t, handler, manager)

	require.NoError(t, svc.Handle(context.Background(), delivery(t, enums.EventWalletPosted, uuid.NewString(), time.Now())))
	assert.False(t, handler.called)
	assert.Len(t, manager.checked, 1)
}

func TestHandleHandlerErrorRetries(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{err: errors.New("boom")}
	svc := newTestService(t, handler, manager)

	err := svc.Handle(context.Background(), delivery(t, enums.EventWalletPosted, uuid.NewString(), time.Now()))
	require.Error(t, err)
	assert.Len(t, manager.released, 1)
}

func TestHandleIdempotencyFailureRetries(t *testing.T) {
	manager := &stubManager{claimErr: errors.New("redis down")}
	svc := newTestService(t, &stubHandler{}, manager)

	err := svc.Handle(context.Background(), delivery(t, enums.EventWalletPosted, uuid.NewString(), time.Now()))
	assert.Error(t, err)
}

func TestHandleAcksMalformedEnvelope(t *testing.T) {
	handler := &stubHandler{}
	svc := newTestService(t, handler, &stubManager{})

	err := svc.Handle(context.Background(), subscriber.Delivery{EventType: enums.EventWalletPosted, Data: []byte("nope")})
	require.NoError(t, err)
	assert.False(t, handler.called)
}

func delivery(t *testing.T, eventType enums.OutboxEventType, eventID string, occurred time.Time) subscriber.Delivery {
	t.Helper()
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: occurred,
		Data:       json.RawMessage(`{"amount":"1.00"}`),
	})
	require.NoError(t, err)
	return subscriber.Delivery{MessageID: "m-1", EventType: eventType, Data: body}
}

func newTestService(t *testing.T, handler Handler, manager idempotencyChecker) *Service {
	t.Helper()
	svc, err := NewService(handler, manager, logger.Nop())
	require.NoError(t, err)
	return svc
}

type stubHandler struct {
	called bool
	err    error
}

func (s *stubHandler) Supports(eventType enums.OutboxEventType) bool {
	return eventType == enums.EventWalletPosted
}

func (s *stubHandler) Handle(ctx context.Context, envelope types.Envelope) error {
	s.called = true
	return s.err
}

type stubManager struct {
	duplicate bool
	claimErr  error
	checked   []uuid.UUID
	released  []uuid.UUID
}

func (s *stubManager) Process(ctx context.Context, consumer string, eventID uuid.UUID, handle func(context.Context) error) (bool, error) {
	if s.claimErr != nil {
		return false, s.claimErr
	}
	s.checked = append(s.checked, eventID)
	if s.duplicate {
		return false, nil
	}
	if err := handle(ctx); err != nil {
		s.released = append(s.released, eventID)
		return false, err
	}
	return true, nil
}
