package payouts

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/api/middleware"
	"github.com/angelmondragon/marketplace-settlement/api/responses"
	"github.com/angelmondragon/marketplace-settlement/api/validators"
	internalpayouts "github.com/angelmondragon/marketplace-settlement/internal/payouts"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

type requestPayoutRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"money"`
	BankName      string          `json:"bank_name" validate:"required,max=100"`
	AccountNumber string          `json:"account_number" validate:"required,min=4,max=34"`
	AccountHolder string          `json:"account_holder" validate:"required,max=100"`
	BranchCode    *string         `json:"branch_code,omitempty" validate:"omitempty,max=20"`
}

type notesRequest struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type completeRequest struct {
	TransactionRef string  `json:"transaction_ref" validate:"required,min=5,max=100"`
	Notes          *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type failRequest struct {
	Reason string `json:"reason" validate:"required,min=10,max=500"`
}

func actorFrom(r *http.Request) (internalpayouts.Actor, error) {
	p, err := middleware.RequirePrincipal(r.Context())
	if err != nil {
		return internalpayouts.Actor{}, err
	}
	return internalpayouts.Actor{ID: p.UserID, Role: p.Role, VendorID: p.VendorID}, nil
}

// Request opens a withdrawal for the calling vendor.
func Request(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if actor.VendorID == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context required"))
			return
		}
		var body requestPayoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		view, err := svc.Request(ctx, actor, internalpayouts.RequestInput{
			VendorID:      *actor.VendorID,
			Amount:        body.Amount,
			BankName:      validators.SanitizeString(body.BankName, 100),
			AccountNumber: strings.ReplaceAll(strings.TrimSpace(body.AccountNumber), " ", ""),
			AccountHolder: validators.SanitizeString(body.AccountHolder, 100),
			BranchCode:    body.BranchCode,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func List(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var status *enums.PayoutStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParsePayoutStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			status = &parsed
		}
		page, err := svc.List(ctx, actor, status, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func withPayout(logg *logger.Logger, run func(r *http.Request, actor internalpayouts.Actor, payoutID uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := run(r, actor, payoutID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Detail(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return withPayout(logg, func(r *http.Request, actor internalpayouts.Actor, payoutID uuid.UUID) (any, error) {
		return svc.Get(r.Context(), actor, payoutID)
	})
}

func Approve(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return withPayout(logg, func(r *http.Request, actor internalpayouts.Actor, payoutID uuid.UUID) (any, error) {
		var body notesRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.Approve(r.Context(), actor, payoutID, body.Notes)
	})
}

func Complete(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return withPayout(logg, func(r *http.Request, actor internalpayouts.Actor, payoutID uuid.UUID) (any, error) {
		var body completeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.Complete(r.Context(), actor, payoutID, strings.TrimSpace(body.TransactionRef), body.Notes)
	})
}

func Fail(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return withPayout(logg, func(r *http.Request, actor internalpayouts.Actor, payoutID uuid.UUID) (any, error) {
		var body failRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.Fail(r.Context(), actor, payoutID, validators.SanitizeString(body.Reason, 500))
	})
}
