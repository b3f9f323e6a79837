package analytics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/api/middleware"
	"github.com/angelmondragon/marketplace-settlement/internal/analytics/types"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestVendorLedgerRequiresVendorContext(t *testing.T) {
	stub := &testAnalyticsService{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/ledger", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), middleware.Principal{
		UserID: uuid.New(),
		Role:   enums.ActorRoleCustomer,
	}))
	resp := httptest.NewRecorder()
	VendorLedger(stub, quietLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when vendor context missing, got %d", resp.Code)
	}
	if stub.called() {
		t.Fatal("service should not be invoked without vendor context")
	}
}

func TestVendorLedgerUsesPreset(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	timeNowUTC = func() time.Time { return now }
	defer func() { timeNowUTC = func() time.Time { return time.Now().UTC() } }()

	vendorID := uuid.New()
	stub := &testAnalyticsService{
		response: &types.LedgerQueryResponse{
			Held: []types.TimeSeriesPoint{{Date: "2025-01-09", Value: 9000}},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/ledger?preset=7d", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), middleware.Principal{
		UserID:   uuid.New(),
		Role:     enums.ActorRoleVendor,
		VendorID: &vendorID,
	}))
	resp := httptest.NewRecorder()
	VendorLedger(stub, quietLogger()).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if stub.period() != 7*24*time.Hour {
		t.Fatalf("expected 7d range, got %v", stub.period())
	}
	if stub.last.VendorID != vendorID.String() {
		t.Fatalf("expected vendor scope %s, got %s", vendorID, stub.last.VendorID)
	}
	var envelope struct {
		Data types.LedgerQueryResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Held) != 1 || envelope.Data.Held[0].Value != 9000 {
		t.Fatalf("unexpected held series: %+v", envelope.Data.Held)
	}
}

func TestMarketplaceLedgerExplicitRange(t *testing.T) {
	stub := &testAnalyticsService{}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/analytics/ledger?from=2025-01-01T00:00:00Z&to=2025-01-03T00:00:00Z", nil)
	resp := httptest.NewRecorder()
	MarketplaceLedger(stub, quietLogger()).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if stub.last.VendorID != "" {
		t.Fatalf("expected marketplace-wide query, got vendor %s", stub.last.VendorID)
	}
	if stub.period() != 48*time.Hour {
		t.Fatalf("expected 48h range, got %v", stub.period())
	}
}

func TestMarketplaceLedgerRejectsHalfRange(t *testing.T) {
	stub := &testAnalyticsService{}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/analytics/ledger?from=2025-01-01T00:00:00Z", nil)
	resp := httptest.NewRecorder()
	MarketplaceLedger(stub, quietLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if stub.called() {
		t.Fatal("service should not be invoked for invalid range")
	}
}

func TestMarketplaceLedgerVendorFilter(t *testing.T) {
	vendorID := uuid.New()
	stub := &testAnalyticsService{}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/analytics/ledger?vendor_id="+vendorID.String(), nil)
	resp := httptest.NewRecorder()
	MarketplaceLedger(stub, quietLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if stub.last.VendorID != vendorID.String() {
		t.Fatalf("expected vendor filter %s, got %s", vendorID, stub.last.VendorID)
	}
}

func TestResolveAnalyticsRangeDateOnlyCoversWholeDay(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?from=2025-03-01&to=2025-03-01", nil)
	start, end, err := resolveAnalyticsRange(req, time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if end.Sub(start) != 24*time.Hour {
		t.Fatalf("expected one day, got %v", end.Sub(start))
	}
}

func TestResolveAnalyticsRangeRejectsOversizedWindow(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?from=2023-01-01&to=2025-01-01", nil)
	if _, _, err := resolveAnalyticsRange(req, time.Now().UTC()); err == nil {
		t.Fatal("expected oversized window to be rejected")
	}
}

func TestResolveAnalyticsRangeUnknownPreset(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?preset=2w", nil)
	if _, _, err := resolveAnalyticsRange(req, time.Now().UTC()); err == nil {
		t.Fatal("expected unknown preset to be rejected")
	}
}
