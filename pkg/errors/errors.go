package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeAlreadyTerminal     Code = "ALREADY_TERMINAL"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
)

// Metadata describes how a code surfaces over HTTP and whether callers may retry.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func meta(status int, retryable, details bool, public string) Metadata {
	return Metadata{HTTPStatus: status, Retryable: retryable, PublicMessage: public, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:   meta(http.StatusBadRequest, false, true, "validation failed"),
	CodeUnauthorized: meta(http.StatusUnauthorized, false, false, "authentication required"),
	CodeForbidden:    meta(http.StatusForbidden, false, false, "access denied"),
	CodeNotFound:     meta(http.StatusNotFound, false, false, "resource not found"),
	CodeConflict:     meta(http.StatusConflict, false, false, "conflict detected"),
	CodeIdempotency:  meta(http.StatusConflict, false, true, "idempotency key reused"),
	CodeRateLimit:    meta(http.StatusTooManyRequests, false, false, "rate limit exceeded"),
	CodeInternal:     meta(http.StatusInternalServerError, true, false, "internal server error"),
	CodeDependency:   meta(http.StatusServiceUnavailable, true, true, "dependency unavailable"),

	// Ledger and state machine outcomes.
	CodeInvalidTransition:   meta(http.StatusConflict, false, true, "state transition disallowed"),
	CodeInsufficientBalance: meta(http.StatusUnprocessableEntity, false, true, "insufficient balance"),
	CodeAlreadyTerminal:     meta(http.StatusConflict, false, true, "resource already in a terminal state"),
	CodeConcurrencyConflict: meta(http.StatusConflict, true, false, "concurrent modification, retry the operation"),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is the domain error carried from services to the HTTP layer.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// TransitionDetails is attached to INVALID_TRANSITION and ALREADY_TERMINAL errors.
type TransitionDetails struct {
	Current   string `json:"current"`
	Attempted string `json:"attempted"`
}

// InvalidTransition builds the error returned when a state machine rejects a move.
func InvalidTransition(entity, current, attempted string) *Error {
	return New(CodeInvalidTransition, fmt.Sprintf("%s cannot move from %s to %s", entity, current, attempted)).
		WithDetails(TransitionDetails{Current: current, Attempted: attempted})
}

// AlreadyTerminal builds the error returned when an entity has finished its lifecycle.
func AlreadyTerminal(entity, current, attempted string) *Error {
	return New(CodeAlreadyTerminal, fmt.Sprintf("%s is already %s", entity, current)).
		WithDetails(TransitionDetails{Current: current, Attempted: attempted})
}

// Classify keeps an error that already carries a code and wraps anything
// else with code.
func Classify(code Code, err error, message string) error {
	if err == nil || As(err) != nil {
		return err
	}
	return Wrap(code, err, message)
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// IsRetryable reports whether the caller may retry the whole operation.
func IsRetryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).Retryable
}

// As extracts the first *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
