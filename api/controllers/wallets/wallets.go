package wallets

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/api/middleware"
	"github.com/angelmondragon/marketplace-settlement/api/responses"
	"github.com/angelmondragon/marketplace-settlement/api/validators"
	"github.com/angelmondragon/marketplace-settlement/internal/ledger"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

type adjustmentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"signed_money"`
	Reason string          `json:"reason" validate:"required,min=10,max=500"`
}

// vendorScope resolves the wallet owner: the caller's vendor for vendor routes,
// the {vendorId} path parameter for admin routes.
type vendorScope func(r *http.Request) (uuid.UUID, error)

// OwnVendor scopes a handler to the authenticated vendor.
func OwnVendor(r *http.Request) (uuid.UUID, error) {
	p, err := middleware.RequirePrincipal(r.Context())
	if err != nil {
		return uuid.Nil, err
	}
	if p.VendorID == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context required")
	}
	return *p.VendorID, nil
}

// PathVendor scopes a handler to the vendor named in the URL.
func PathVendor(r *http.Request) (uuid.UUID, error) {
	return validators.ParseUUIDParam(r, "vendorId")
}

func Wallet(svc ledger.Service, scope vendorScope, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendorID, err := scope(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		wallet, err := svc.GetWalletByVendor(ctx, vendorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, wallet)
	}
}

func Transactions(svc ledger.Service, scope vendorScope, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendorID, err := scope(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		wallet, err := svc.GetWalletByVendor(ctx, vendorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := svc.ListTransactions(ctx, wallet.ID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Provision creates the vendor's wallet if it does not exist yet.
func Provision(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendorID, err := PathVendor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		wallet, err := svc.EnsureWallet(ctx, nil, vendorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, wallet)
	}
}

func Reconcile(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendorID, err := PathVendor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		wallet, err := svc.GetWalletByVendor(ctx, vendorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Reconcile(ctx, wallet.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"consistent": result.Consistent(),
			"result":     result,
		})
	}
}

func Adjust(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p, err := middleware.RequirePrincipal(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		vendorID, err := PathVendor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body adjustmentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		row, err := svc.Adjust(ctx, ledger.AdjustmentInput{
			VendorID: vendorID,
			Amount:   body.Amount,
			Reason:   validators.SanitizeString(body.Reason, 500),
			ActorID:  p.UserID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, row)
	}
}
