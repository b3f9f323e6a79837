package squarewebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqwebhooks "github.com/square/square-go-sdk/webhooks/client"
)

// SignatureHeader carries Square's HMAC-SHA256 signature.
const SignatureHeader = "X-Square-Hmacsha256-Signature"

// Verifier authenticates a raw webhook body.
type Verifier interface {
	Verify(payload []byte, signature string) bool
}

// sdkWebhooks only verifies signatures locally, so it never needs a token.
var sdkWebhooks = sqwebhooks.NewClient()

// HMACVerifier checks base64(HMAC-SHA256(secret, notificationURL+body)).
type HMACVerifier struct {
	Secret          string
	NotificationURL string
}

func (v HMACVerifier) Verify(payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	// the SDK accepts an empty body without looking at the signature
	if len(payload) == 0 || signature == "" || v.Secret == "" {
		return false
	}
	err := sdkWebhooks.VerifySignature(context.Background(), &sq.VerifySignatureRequest{
		RequestBody:     string(payload),
		SignatureHeader: signature,
		SignatureKey:    v.Secret,
		NotificationURL: v.NotificationURL,
	})
	return err == nil
}

// Sign returns the signature Square would send for payload.
func (v HMACVerifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write([]byte(v.NotificationURL))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
