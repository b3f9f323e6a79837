package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadataForSettlementCodes(t *testing.T) {
	cases := map[Code]Metadata{
		CodeValidation:          {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
		CodeInvalidTransition:   {HTTPStatus: http.StatusConflict, PublicMessage: "state transition disallowed", DetailsAllowed: true},
		CodeInsufficientBalance: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "insufficient balance", DetailsAllowed: true},
		CodeNotFound:            {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
		CodeAlreadyTerminal:     {HTTPStatus: http.StatusConflict, PublicMessage: "resource already in a terminal state", DetailsAllowed: true},
		CodeConcurrencyConflict: {HTTPStatus: http.StatusConflict, Retryable: true, PublicMessage: "concurrent modification, retry the operation"},
		CodeDependency:          {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},
	}
	for code, want := range cases {
		require.Equal(t, want, MetadataFor(code), code)
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	require.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
	require.Equal(t, http.StatusInternalServerError, MetadataFor("SOMETHING_UNKNOWN").HTTPStatus)
}

func TestWrapKeepsCauseInChainAndMessage(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, cause, "load wallet")

	require.ErrorIs(t, err, cause)
	require.Equal(t, "DEPENDENCY_ERROR: load wallet: connection reset", err.Error())
	require.Equal(t, "load wallet", err.Message())

	require.Equal(t, "VALIDATION_ERROR: amount is required", Wrap(CodeValidation, nil, "amount is required").Error())
	require.Nil(t, Wrap(CodeValidation, nil, "x").Unwrap())
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	require.Equal(t, CodeInternal, e.Code())
	require.Empty(t, e.Error())
	require.Nil(t, e.Details())
	require.Nil(t, e.WithDetails("x"))
	require.Nil(t, As(nil))
}

func TestTransitionErrorsCarryStates(t *testing.T) {
	err := InvalidTransition("order", "SHIPPED", "CANCELLED")
	require.Equal(t, CodeInvalidTransition, err.Code())
	require.Equal(t, TransitionDetails{Current: "SHIPPED", Attempted: "CANCELLED"}, err.Details())
	require.Contains(t, err.Message(), "SHIPPED to CANCELLED")

	done := AlreadyTerminal("payout", "COMPLETED", "APPROVE")
	require.Equal(t, CodeAlreadyTerminal, done.Code())
	require.Equal(t, TransitionDetails{Current: "COMPLETED", Attempted: "APPROVE"}, done.Details())
}

func TestIsCodeAndRetryableSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("approve payout: %w", New(CodeConcurrencyConflict, "version mismatch"))
	require.True(t, IsCode(wrapped, CodeConcurrencyConflict))
	require.False(t, IsCode(wrapped, CodeConflict))
	require.True(t, IsRetryable(wrapped))
	require.False(t, IsRetryable(New(CodeInsufficientBalance, "short")))
	require.False(t, IsRetryable(stdErrors.New("plain")))
}

func TestClassifyKeepsTypedErrors(t *testing.T) {
	typed := New(CodeValidation, "invalid cursor")
	require.Same(t, typed, Classify(CodeDependency, typed, "list orders"))

	plain := stdErrors.New("connection refused")
	require.True(t, IsCode(Classify(CodeDependency, plain, "list orders"), CodeDependency))
	require.NoError(t, Classify(CodeDependency, nil, "list orders"))
}
