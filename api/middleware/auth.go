package middleware

import (
	"net/http"

	"github.com/angelmondragon/marketplace-settlement/api/responses"
	pkgAuth "github.com/angelmondragon/marketplace-settlement/pkg/auth"
	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

// Auth verifies the bearer token and stores the caller as a Principal.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := pkgAuth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			principal := Principal{UserID: claims.UserID, Role: claims.Role, VendorID: claims.VendorID}
			ctx := WithPrincipal(r.Context(), principal)
			if logg != nil {
				ctx = logg.WithFields(ctx, principal.logFields())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (p Principal) logFields() map[string]any {
	fields := map[string]any{
		"user_id":    p.UserID.String(),
		"actor_role": string(p.Role),
	}
	if p.VendorID != nil {
		fields["vendor_id"] = p.VendorID.String()
	}
	return fields
}
