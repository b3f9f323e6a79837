package types

// SuccessEnvelope wraps every 2xx body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the machine-readable half of a rejected request. Retryable is
// set for codes where repeating the identical request can succeed, such as a
// lost optimistic-lock race on a wallet.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewErrorEnvelope builds the body for code with its public message.
func NewErrorEnvelope(code, message string, retryable bool) ErrorEnvelope {
	return ErrorEnvelope{Error: APIError{Code: code, Message: message, Retryable: retryable}}
}
