package square

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

type fakePayments struct {
	resp      *sq.GetPaymentResponse
	err       error
	requested string
}

func (f *fakePayments) Get(_ context.Context, req *sq.GetPaymentsRequest, _ ...sqoption.RequestOption) (*sq.GetPaymentResponse, error) {
	f.requested = req.PaymentID
	return f.resp, f.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "square-test", Output: io.Discard})
}

func strPtr(s string) *string { return &s }

func TestGetPaymentSummarizesSquarePayment(t *testing.T) {
	amount := int64(150050)
	currency := sq.Currency("USD")
	payments := &fakePayments{resp: &sq.GetPaymentResponse{Payment: &sq.Payment{
		ID:          strPtr("pay_1"),
		Status:      strPtr("COMPLETED"),
		ReferenceID: strPtr("0d6b3c0e-8c4f-4a53-9a0e-5f7d0d2b8c11"),
		OrderID:     strPtr("sq_order_1"),
		AmountMoney: &sq.Money{Amount: &amount, Currency: &currency},
	}}}
	client := newClient(payments, "secret", testLogger())

	got, err := client.GetPayment(context.Background(), "  pay_1 ")
	require.NoError(t, err)
	require.Equal(t, "pay_1", payments.requested)
	require.True(t, got.Completed())
	require.Equal(t, "USD", got.Currency)
	require.Equal(t, "sq_order_1", got.OrderID)
	require.True(t, got.Amount().Equal(decimal.RequireFromString("1500.50")))
}

func TestGetPaymentRejectsBlankID(t *testing.T) {
	client := newClient(&fakePayments{}, "secret", testLogger())
	_, err := client.GetPayment(context.Background(), " ")
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestGetPaymentEmptyResponseIsDependencyError(t *testing.T) {
	client := newClient(&fakePayments{resp: &sq.GetPaymentResponse{}}, "secret", testLogger())
	_, err := client.GetPayment(context.Background(), "pay_2")
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestGetPaymentMapsAPIErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want pkgerrors.Code
	}{
		{
			name: "not found",
			err:  sqcore.NewAPIError(http.StatusNotFound, errors.New(`{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"NOT_FOUND"}]}`)),
			want: pkgerrors.CodeNotFound,
		},
		{
			name: "authentication category wins over status",
			err:  sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`)),
			want: pkgerrors.CodeUnauthorized,
		},
		{
			name: "rate limited",
			err:  sqcore.NewAPIError(http.StatusTooManyRequests, errors.New("slow down")),
			want: pkgerrors.CodeRateLimit,
		},
		{
			name: "server error",
			err:  sqcore.NewAPIError(http.StatusBadGateway, errors.New("bad gateway")),
			want: pkgerrors.CodeDependency,
		},
		{
			name: "transport error",
			err:  context.DeadlineExceeded,
			want: pkgerrors.CodeDependency,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newClient(&fakePayments{err: tc.err}, "secret", testLogger())
			_, err := client.GetPayment(context.Background(), "pay_3")
			require.Error(t, err)
			require.Equal(t, tc.want, pkgerrors.As(err).Code())
		})
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	logg := testLogger()

	_, err := NewClient(ctx, config.SquareConfig{Env: "staging", AccessToken: "t", WebhookSecret: "s"}, logg)
	require.ErrorContains(t, err, "staging")

	_, err = NewClient(ctx, config.SquareConfig{WebhookSecret: "s"}, logg)
	require.ErrorContains(t, err, "access token")

	_, err = NewClient(ctx, config.SquareConfig{AccessToken: "t"}, logg)
	require.ErrorContains(t, err, "webhook secret")

	client, err := NewClient(ctx, config.SquareConfig{AccessToken: "t", WebhookSecret: " s "}, logg)
	require.NoError(t, err)
	require.Equal(t, "s", client.SigningSecret())
}
