package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/pagination"
)

type payoutBody struct {
	Amount   decimal.Decimal  `json:"amount" validate:"money"`
	Refund   *decimal.Decimal `json:"refund,omitempty" validate:"omitempty,money"`
	BankName string           `json:"bank_name" validate:"required,max=100"`
}

type adjustmentBody struct {
	Amount decimal.Decimal `json:"amount" validate:"signed_money"`
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func validationDetails(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok, "details %T", typed.Details())
	return details
}

func TestDecodeJSONBodyAcceptsMoney(t *testing.T) {
	var body payoutBody
	require.NoError(t, DecodeJSONBody(jsonRequest(`{"amount":"1500.50","bank_name":"First Bank"}`), &body))
	require.True(t, body.Amount.Equal(decimal.RequireFromString("1500.5")))
	require.Nil(t, body.Refund)
}

func TestDecodeJSONBodyRejectsBadAmounts(t *testing.T) {
	cases := map[string]string{
		"zero":            `{"amount":"0","bank_name":"b"}`,
		"negative":        `{"amount":"-5.00","bank_name":"b"}`,
		"sub-cent":        `{"amount":"10.001","bank_name":"b"}`,
		"sub-cent refund": `{"amount":"10","refund":"0.005","bank_name":"b"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			var body payoutBody
			details := validationDetails(t, DecodeJSONBody(jsonRequest(payload), &body))
			if name == "sub-cent refund" {
				require.Contains(t, details, "refund")
				return
			}
			require.Equal(t, "must be a positive amount with at most 2 decimals", details["amount"])
		})
	}
}

func TestSignedMoneyAllowsDebitsButNotZero(t *testing.T) {
	var body adjustmentBody
	require.NoError(t, DecodeJSONBody(jsonRequest(`{"amount":"-25.00"}`), &body))

	details := validationDetails(t, DecodeJSONBody(jsonRequest(`{"amount":"0.00"}`), &adjustmentBody{}))
	require.Contains(t, details, "amount")
}

func TestDecodeJSONBodyIsStrict(t *testing.T) {
	var body payoutBody
	err := DecodeJSONBody(jsonRequest(`{"amount":"1","bank_name":"b","iban":"x"}`), &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = DecodeJSONBody(jsonRequest(`{"amount":"1","bank_name":"b"}{"amount":"2"}`), &body)
	require.ErrorContains(t, err, "single JSON object")

	details := validationDetails(t, DecodeJSONBody(jsonRequest(`{"amount":"1"}`), &body))
	require.Equal(t, "is required", details["bank_name"])
}

func TestDecodeOptionalJSONBodyAcceptsEmptyBody(t *testing.T) {
	type notes struct {
		Notes *string `json:"notes,omitempty" validate:"omitempty,max=5"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	var body notes
	require.NoError(t, DecodeOptionalJSONBody(req, &body))
	require.Nil(t, body.Notes)

	details := validationDetails(t, DecodeOptionalJSONBody(jsonRequest(`{"notes":"too long"}`), &body))
	require.Equal(t, "must be at most 5", details["notes"])
}

func TestParsePagination(t *testing.T) {
	params, err := ParsePagination(httptest.NewRequest(http.MethodGet, "/?cursor=abc", nil))
	require.NoError(t, err)
	require.Equal(t, pagination.Params{Limit: pagination.DefaultLimit, Cursor: "abc"}, params)

	_, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=0", nil))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=ten", nil))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?unreadOnly=true&vendorId=not-a-uuid", nil)

	unread, err := ParseQueryBool(req, "unreadOnly")
	require.NoError(t, err)
	require.True(t, unread)

	_, err = ParseOptionalUUIDQuery(req, "vendorId")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	missing, err := ParseOptionalUUIDQuery(req, "walletId")
	require.NoError(t, err)
	require.Nil(t, missing)
}
