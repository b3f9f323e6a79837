package squarewebhook

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/square"
)

const eventPaymentUpdated = "payment.updated"

type paymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*square.PaymentSummary, error)
}

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, input orders.ConfirmPaymentInput) (*orders.TransitionResult, error)
}

type ServiceParams struct {
	Payments paymentFetcher
	Orders   paymentConfirmer
	Logger   *logger.Logger
}

type Service struct {
	payments paymentFetcher
	orders   paymentConfirmer
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square payments client required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{payments: params.Payments, orders: params.Orders, logg: params.Logger}, nil
}

// Event is the envelope Square posts to the notification URL.
type Event struct {
	MerchantID string    `json:"merchant_id"`
	Type       string    `json:"type"`
	EventID    string    `json:"event_id"`
	CreatedAt  string    `json:"created_at"`
	Data       EventData `json:"data"`
}

type EventData struct {
	Type   string      `json:"type"`
	ID     string      `json:"id"`
	Object EventObject `json:"object"`
}

type EventObject struct {
	Payment *PaymentObject `json:"payment,omitempty"`
}

type PaymentObject struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
}

// HandleEvent settles an order once Square reports its payment completed.
// The payment is re-read from Square; only its id is taken from the body.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}
	if !strings.EqualFold(event.Type, eventPaymentUpdated) {
		return nil
	}

	paymentID := event.Data.ID
	if event.Data.Object.Payment != nil && event.Data.Object.Payment.ID != "" {
		paymentID = event.Data.Object.Payment.ID
	}
	if strings.TrimSpace(paymentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"square_event_id": event.EventID,
		"payment_id":      paymentID,
	})

	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if !payment.Completed() {
		s.logg.Debug(s.logg.WithField(ctx, "status", payment.Status), "payment not completed yet")
		return nil
	}

	orderID, err := uuid.Parse(strings.TrimSpace(payment.ReferenceID))
	if err != nil {
		// not a marketplace checkout
		s.logg.Warn(s.logg.WithField(ctx, "reference_id", payment.ReferenceID), "completed payment has no order reference")
		return nil
	}

	amount := payment.Amount()
	result, err := s.orders.ConfirmPayment(ctx, orders.ConfirmPaymentInput{
		OrderID:    orderID,
		PaymentRef: payment.ID,
		Amount:     &amount,
	})
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": result.OrderID.String(),
		"status":   string(result.Status),
	}), "order payment confirmed")
	return nil
}
