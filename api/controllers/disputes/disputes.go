package disputes

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/api/middleware"
	"github.com/angelmondragon/marketplace-settlement/api/responses"
	"github.com/angelmondragon/marketplace-settlement/api/validators"
	internaldisputes "github.com/angelmondragon/marketplace-settlement/internal/disputes"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

type openRequest struct {
	OrderID     uuid.UUID `json:"order_id" validate:"required"`
	Reason      string    `json:"reason" validate:"required,min=3,max=200"`
	Description string    `json:"description" validate:"required,min=10,max=2000"`
	Evidence    []string  `json:"evidence,omitempty" validate:"omitempty,max=10,dive,url"`
}

type commentRequest struct {
	Body string `json:"body" validate:"required,min=1,max=2000"`
}

type resolveRequest struct {
	Resolution   string           `json:"resolution" validate:"required"`
	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty" validate:"omitempty,money"`
}

func actorFrom(r *http.Request) (internaldisputes.Actor, error) {
	p, err := middleware.RequirePrincipal(r.Context())
	if err != nil {
		return internaldisputes.Actor{}, err
	}
	return internaldisputes.Actor{ID: p.UserID, Role: p.Role, VendorID: p.VendorID}, nil
}

// Open files a dispute against a delivered order.
func Open(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body openRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		view, err := svc.Open(ctx, actor, internaldisputes.OpenInput{
			OrderID:     body.OrderID,
			Reason:      validators.SanitizeString(body.Reason, 200),
			Description: validators.SanitizeString(body.Description, 2000),
			Evidence:    body.Evidence,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func List(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
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
		var status *enums.DisputeStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseDisputeStatus(raw)
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

func withDispute(logg *logger.Logger, status int, run func(r *http.Request, actor internaldisputes.Actor, disputeID uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		disputeID, err := validators.ParseUUIDParam(r, "disputeId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := run(r, actor, disputeID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

func Detail(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return withDispute(logg, http.StatusOK, func(r *http.Request, actor internaldisputes.Actor, disputeID uuid.UUID) (any, error) {
		return svc.Get(r.Context(), actor, disputeID)
	})
}

func AddComment(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return withDispute(logg, http.StatusCreated, func(r *http.Request, actor internaldisputes.Actor, disputeID uuid.UUID) (any, error) {
		var body commentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.AddComment(r.Context(), actor, disputeID, validators.SanitizeString(body.Body, 2000))
	})
}

func StartReview(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return withDispute(logg, http.StatusOK, func(r *http.Request, actor internaldisputes.Actor, disputeID uuid.UUID) (any, error) {
		return svc.StartReview(r.Context(), actor, disputeID)
	})
}

// Resolve records the admin decision and moves funds for customer-favour outcomes.
func Resolve(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return withDispute(logg, http.StatusOK, func(r *http.Request, actor internaldisputes.Actor, disputeID uuid.UUID) (any, error) {
		var body resolveRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		resolution, err := enums.ParseDisputeResolution(body.Resolution)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid resolution")
		}
		return svc.Resolve(r.Context(), actor, internaldisputes.ResolveInput{
			DisputeID:          disputeID,
			Resolution:         resolution,
			CustomRefundAmount: body.RefundAmount,
		})
	})
}
