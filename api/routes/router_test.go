package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-settlement/internal/notifications"
	squarewebhook "github.com/angelmondragon/marketplace-settlement/internal/webhooks/square"
	pkgAuth "github.com/angelmondragon/marketplace-settlement/pkg/auth"
	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/metrics"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubNotificationsService struct{}

func (stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotificationsService) MarkRead(ctx context.Context, recipient notifications.Recipient, notificationID uuid.UUID) error {
	return nil
}

func (stubNotificationsService) MarkAllRead(ctx context.Context, recipient notifications.Recipient) (int64, error) {
	return 0, nil
}

type stubWebhookService struct{}

func (stubWebhookService) HandleEvent(ctx context.Context, event *squarewebhook.Event) error {
	return nil
}

type stubGuard struct{}

func (stubGuard) Once(ctx context.Context, eventID string, fn func(context.Context) error) (bool, error) {
	return true, fn(ctx)
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0", CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{
			Secret: "secret",
			Issuer: "identity",
		},
		RateLimit: config.RateLimitConfig{PayoutWindow: time.Hour, PayoutIPLimit: 30, PayoutCallerLimit: 10},
	}
}

func testDeps(cfg *config.Config) Deps {
	return Deps{
		Config:         cfg,
		Logger:         logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard}),
		DB:             stubPinger{},
		Notifications:  stubNotificationsService{},
		SquareWebhook:  stubWebhookService{},
		SquareVerifier: squarewebhook.HMACVerifier{Secret: "square", NotificationURL: "https://example.com/hook"},
		SquareGuard:    stubGuard{},
	}
}

func buildToken(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	payload := pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role}
	if role == enums.ActorRoleVendor {
		vendorID := uuid.New()
		payload.VendorID = &vendorID
	}
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), time.Hour, payload)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(router http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthLive(t *testing.T) {
	router := NewRouter(testDeps(testConfig()))
	resp := serve(router, http.MethodGet, "/health/live", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Settlement-Env") != "test" {
		t.Fatalf("missing env header")
	}
}

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	deps := testDeps(testConfig())
	deps.Redis = stubPinger{err: context.DeadlineExceeded}
	router := NewRouter(deps)
	resp := serve(router, http.MethodGet, "/health/ready", "")
	if resp.Code == http.StatusOK {
		t.Fatalf("expected readiness failure got %d", resp.Code)
	}
}

func TestPrivateGroupRejectsMissingJWT(t *testing.T) {
	router := NewRouter(testDeps(testConfig()))
	resp := serve(router, http.MethodGet, "/api/v1/orders", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestAdminGroupRequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(testDeps(cfg))

	resp := serve(router, http.MethodGet, "/api/admin/v1/notifications", buildToken(t, cfg, enums.ActorRoleVendor))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for vendor got %d", resp.Code)
	}

	resp = serve(router, http.MethodGet, "/api/admin/v1/notifications", buildToken(t, cfg, enums.ActorRoleAdmin))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func TestPayoutRoutesRequireVendorRole(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(testDeps(cfg))
	resp := serve(router, http.MethodGet, "/api/v1/payouts", buildToken(t, cfg, enums.ActorRoleCustomer))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", resp.Code)
	}
}

func TestWalletRoutesRequireVendorRole(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(testDeps(cfg))
	resp := serve(router, http.MethodGet, "/api/v1/wallet", buildToken(t, cfg, enums.ActorRoleAdmin))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin on vendor wallet got %d", resp.Code)
	}
}

func TestVendorNotificationsSucceedWithJWT(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(testDeps(cfg))
	resp := serve(router, http.MethodGet, "/api/v1/notifications", buildToken(t, cfg, enums.ActorRoleVendor))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestSquareWebhookIsPublic(t *testing.T) {
	router := NewRouter(testDeps(testConfig()))
	resp := serve(router, http.MethodPost, "/api/v1/webhooks/square", "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected signature validation (400) rather than auth got %d", resp.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	deps := testDeps(testConfig())
	deps.Gatherer = reg
	deps.Metrics = metrics.NewHTTPMetrics(reg)
	router := NewRouter(deps)

	serve(router, http.MethodGet, "/health/live", "")
	resp := serve(router, http.MethodGet, "/metrics", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "settlement_http_request_duration_seconds") {
		t.Fatalf("expected http latency histogram in exposition")
	}
}
