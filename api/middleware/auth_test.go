package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-settlement/pkg/auth"
	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "identity"}

func mintTestToken(t *testing.T, payload auth.AccessTokenPayload) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), time.Hour, payload)
	require.NoError(t, err)
	return token
}

func serveAuth(t *testing.T, header string) (*httptest.ResponseRecorder, Principal, bool) {
	t.Helper()
	var (
		captured Principal
		found    bool
	)
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, found = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, captured, found
}

func TestAuthRejectsMissingToken(t *testing.T) {
	rec, _, _ := serveAuth(t, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	rec, _, _ := serveAuth(t, "Bearer invalid")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthSeedsVendorPrincipal(t *testing.T) {
	userID, vendorID := uuid.New(), uuid.New()
	token := mintTestToken(t, auth.AccessTokenPayload{UserID: userID, VendorID: &vendorID, Role: enums.ActorRoleVendor})

	rec, principal, found := serveAuth(t, "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, found)
	require.Equal(t, userID, principal.UserID)
	require.Equal(t, enums.ActorRoleVendor, principal.Role)
	require.NotNil(t, principal.VendorID)
	require.Equal(t, vendorID, *principal.VendorID)
}

func TestAuthSeedsCustomerPrincipal(t *testing.T) {
	userID := uuid.New()
	token := mintTestToken(t, auth.AccessTokenPayload{UserID: userID, Role: enums.ActorRoleCustomer})

	rec, principal, _ := serveAuth(t, "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, enums.ActorRoleCustomer, principal.Role)
	require.Nil(t, principal.VendorID)
}

func TestAuthRejectsSystemTokens(t *testing.T) {
	token := mintTestToken(t, auth.AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleSystem})
	rec, _, _ := serveAuth(t, "Bearer "+token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.ActorRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	admin := req.WithContext(WithPrincipal(req.Context(), Principal{UserID: uuid.New(), Role: enums.ActorRoleAdmin}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, admin)
	require.Equal(t, http.StatusOK, rec.Code)

	customer := req.WithContext(WithPrincipal(req.Context(), Principal{UserID: uuid.New(), Role: enums.ActorRoleCustomer}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, customer)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsSchemeWithoutToken(t *testing.T) {
	rec, _, found := serveAuth(t, "Bearer   ")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, found)
}
