package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	squarewebhook "github.com/angelmondragon/marketplace-settlement/internal/webhooks/square"
)

const testNotificationURL = "https://settlement.example.com/api/v1/webhooks/square"

func TestSquareWebhook_SuccessAndIdempotent(t *testing.T) {
	payload := buildSquareEvent(t, "payment.updated")
	verifier := squarewebhook.HMACVerifier{Secret: "secret", NotificationURL: testNotificationURL}
	service := &fakeSquareWebhookService{}
	guard := newGuard(t)
	handler := SquareWebhook(service, verifier, guard, nil)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
		req.Header.Set(squarewebhook.SignatureHeader, verifier.Sign(payload))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d (%s)", i+1, rec.Code, rec.Body.String())
		}
	}
	if service.calls != 1 {
		t.Fatalf("duplicate delivery should be skipped, got %d calls", service.calls)
	}
}

func TestSquareWebhook_InvalidSignature(t *testing.T) {
	payload := buildSquareEvent(t, "payment.updated")
	verifier := squarewebhook.HMACVerifier{Secret: "secret", NotificationURL: testNotificationURL}
	service := &fakeSquareWebhookService{}
	handler := SquareWebhook(service, verifier, newGuard(t), nil)

	forged := squarewebhook.HMACVerifier{Secret: "other", NotificationURL: testNotificationURL}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req.Header.Set(squarewebhook.SignatureHeader, forged.Sign(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestSquareWebhook_MissingSignature(t *testing.T) {
	payload := buildSquareEvent(t, "payment.updated")
	verifier := squarewebhook.HMACVerifier{Secret: "secret", NotificationURL: testNotificationURL}
	handler := SquareWebhook(&fakeSquareWebhookService{}, verifier, newGuard(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when signature missing, got %d", rec.Code)
	}
}

func TestSquareWebhook_FailureAllowsRedelivery(t *testing.T) {
	payload := buildSquareEvent(t, "payment.updated")
	verifier := squarewebhook.HMACVerifier{Secret: "secret", NotificationURL: testNotificationURL}
	service := &fakeSquareWebhookService{err: errors.New("order store down")}
	handler := SquareWebhook(service, verifier, newGuard(t), nil)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
		req.Header.Set(squarewebhook.SignatureHeader, verifier.Sign(payload))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on handler failure, got %d", code)
	}
	service.err = nil
	if code := send(); code != http.StatusOK {
		t.Fatalf("expected redelivery to succeed, got %d", code)
	}
	if service.calls != 2 {
		t.Fatalf("expected the event to be processed again, got %d calls", service.calls)
	}
}

func newGuard(t *testing.T) *squarewebhook.EventGuard {
	t.Helper()
	guard, err := squarewebhook.NewEventGuard(newInMemoryStore(), time.Minute)
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard
}

func buildSquareEvent(t *testing.T, eventType string) []byte {
	t.Helper()
	event := &squarewebhook.Event{
		MerchantID: "merchant",
		EventID:    uuid.NewString(),
		Type:       eventType,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		Data: squarewebhook.EventData{
			Type: "payment",
			ID:   "pay_" + uuid.NewString(),
			Object: squarewebhook.EventObject{
				Payment: &squarewebhook.PaymentObject{
					ID:          "pay_1",
					Status:      "COMPLETED",
					ReferenceID: uuid.NewString(),
				},
			},
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

type fakeSquareWebhookService struct {
	calls int
	err   error
}

func (f *fakeSquareWebhookService) HandleEvent(ctx context.Context, event *squarewebhook.Event) error {
	f.calls++
	return f.err
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: make(map[string]string)}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("stl:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
