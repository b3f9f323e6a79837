package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

var baseURLs = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// paymentsAPI is the slice of the SDK payments resource used for settlement.
type paymentsAPI interface {
	Get(ctx context.Context, request *sq.GetPaymentsRequest, opts ...sqoption.RequestOption) (*sq.GetPaymentResponse, error)
}

// Client reads payments back from Square before an order is settled.
type Client struct {
	payments      paymentsAPI
	webhookSecret string
	logger        *logger.Logger
}

// NewClient validates the Square credentials and builds an SDK-backed client.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("square environment %q is not sandbox or production", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square access token is required")
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errors.New("square webhook secret is required")
	}

	sdk := sqclient.NewClient(sqoption.WithBaseURL(baseURL), sqoption.WithToken(token))
	logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	return newClient(sdk.Payments, secret, logg), nil
}

func newClient(payments paymentsAPI, secret string, logg *logger.Logger) *Client {
	return &Client{payments: payments, webhookSecret: secret, logger: logg}
}

// SigningSecret is the key for webhook signature checks.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// PaymentSummary is the subset of a Square payment the settlement flow trusts.
type PaymentSummary struct {
	ID          string
	Status      string
	AmountMinor int64
	Currency    string
	ReferenceID string
	OrderID     string
}

// Completed reports whether Square captured the funds.
func (p PaymentSummary) Completed() bool {
	return strings.EqualFold(p.Status, "COMPLETED")
}

// Amount converts minor units into a two decimal amount.
func (p PaymentSummary) Amount() decimal.Decimal {
	return decimal.New(p.AmountMinor, -2)
}

// GetPayment loads a payment by id. Webhook bodies only ever supply the id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*PaymentSummary, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	ctx = c.logger.WithField(ctx, "square_payment_id", paymentID)

	resp, err := c.payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
	if err != nil {
		mapped := mapError(err, "get payment")
		c.logger.Error(ctx, "square get payment failed", mapped)
		return nil, mapped
	}
	payment := resp.GetPayment()
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned an empty payment")
	}

	summary := summarize(payment)
	c.logger.Info(c.logger.WithFields(ctx, map[string]any{
		"square_status":  summary.Status,
		"amount_minor":   summary.AmountMinor,
		"reference_id":   summary.ReferenceID,
		"square_order":   summary.OrderID,
		"payment_amount": summary.Amount().StringFixed(2),
	}), "square payment fetched")
	return summary, nil
}

func summarize(payment *sq.Payment) *PaymentSummary {
	summary := &PaymentSummary{
		ID:          deref(payment.GetID()),
		Status:      deref(payment.GetStatus()),
		ReferenceID: deref(payment.GetReferenceID()),
		OrderID:     deref(payment.GetOrderID()),
	}
	money := payment.GetAmountMoney()
	if money == nil {
		return summary
	}
	if amount := money.GetAmount(); amount != nil {
		summary.AmountMinor = *amount
	}
	if currency := money.GetCurrency(); currency != nil {
		summary.Currency = string(*currency)
	}
	return summary
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
