package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/marketplace-settlement/internal/analytics/types"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertPosting(ctx context.Context, row types.PostingRow) error
	InsertPayout(ctx context.Context, row types.PayoutRow) error
}

// Handler receives an envelope plus its decoded payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// HandlerFunc adapts a typed function to Handler. A payload of the wrong type
// is reported instead of panicking.
type HandlerFunc[T any] func(ctx context.Context, envelope types.Envelope, payload *T) error

func (f HandlerFunc[T]) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	typed, ok := payload.(*T)
	if !ok {
		return fmt.Errorf("invalid payload %T for %s", payload, envelope.EventType)
	}
	return f(ctx, envelope, typed)
}

type route struct {
	decode  func(json.RawMessage) (any, error)
	handler Handler
}

func newRoute[T any](handler HandlerFunc[T]) route {
	return route{
		decode: func(raw json.RawMessage) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(raw, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
		handler: handler,
	}
}

// Router maps settlement event types onto BigQuery row builders. Only wallet
// postings and payout lifecycle events are exported.
type Router struct {
	routes map[enums.OutboxEventType]route
	logg   *logger.Logger
}

// NewRouter wires the default handlers. overrides replaces the handler for
// an already routed event type and is ignored for anything else.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	payout := newRoute(payoutHandler(writer, logg))
	routes := map[enums.OutboxEventType]route{
		enums.EventWalletPosted:    newRoute(walletPostedHandler(writer, logg)),
		enums.EventPayoutRequested: payout,
		enums.EventPayoutApproved:  payout,
		enums.EventPayoutCompleted: payout,
		enums.EventPayoutFailed:    payout,
	}
	for event, custom := range overrides {
		r, ok := routes[event]
		if !ok || custom == nil {
			continue
		}
		r.handler = custom
		routes[event] = r
	}
	return &Router{routes: routes, logg: logg}, nil
}

// Supports reports whether the event type has a handler.
func (r *Router) Supports(eventType enums.OutboxEventType) bool {
	_, ok := r.routes[eventType]
	return ok
}

// Handle decodes the envelope payload and dispatches it.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	rt, ok := r.routes[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	payload, err := rt.decode(envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return rt.handler.Handle(ctx, envelope, payload)
}

var (
	_ Handler = HandlerFunc[payloads.PayoutEvent](nil)
	_ Handler = HandlerFunc[payloads.WalletTransactionPostedEvent](nil)
)
