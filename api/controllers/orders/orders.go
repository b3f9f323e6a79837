package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/api/middleware"
	"github.com/angelmondragon/marketplace-settlement/api/responses"
	"github.com/angelmondragon/marketplace-settlement/api/validators"
	internalorders "github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/types"
)

type createItemRequest struct {
	VendorID  uuid.UUID       `json:"vendor_id" validate:"required"`
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Title     string          `json:"title" validate:"required,max=200"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
}

type createOrderRequest struct {
	CustomerID    *uuid.UUID            `json:"customer_id,omitempty"`
	Items         []createItemRequest   `json:"items" validate:"required,min=1,dive"`
	Discount      decimal.Decimal       `json:"discount"`
	Shipping      decimal.Decimal       `json:"shipping"`
	Currency      string                `json:"currency" validate:"omitempty,len=3"`
	Address       types.AddressSnapshot `json:"address"`
	Coupon        *types.CouponSnapshot `json:"coupon,omitempty"`
	ExpectedTotal *decimal.Decimal      `json:"expected_total,omitempty"`
}

type shipRequest struct {
	TrackingNumber string  `json:"tracking_number" validate:"required,max=100"`
	Carrier        *string `json:"carrier,omitempty" validate:"omitempty,max=100"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type requiredReasonRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

type overrideRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"required,min=10,max=500"`
}

type confirmPaymentRequest struct {
	PaymentRef string           `json:"payment_ref" validate:"required,max=200"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
}

func actorFrom(r *http.Request) (internalorders.Actor, error) {
	p, err := middleware.RequirePrincipal(r.Context())
	if err != nil {
		return internalorders.Actor{}, err
	}
	return internalorders.Actor{ID: p.UserID, Role: p.Role, VendorID: p.VendorID}, nil
}

// Create places an order from the checkout handoff.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		customerID := actor.ID
		if body.CustomerID != nil && actor.Role == enums.ActorRoleAdmin {
			customerID = *body.CustomerID
		}
		input := internalorders.CreateOrderInput{
			CustomerID:    customerID,
			Items:         make([]internalorders.CreateItemInput, 0, len(body.Items)),
			Discount:      body.Discount,
			Shipping:      body.Shipping,
			Currency:      strings.ToUpper(strings.TrimSpace(body.Currency)),
			Address:       body.Address.Normalize(),
			Coupon:        body.Coupon,
			ExpectedTotal: body.ExpectedTotal,
		}
		for _, item := range body.Items {
			input.Items = append(input.Items, internalorders.CreateItemInput{
				VendorID:  item.VendorID,
				ProductID: item.ProductID,
				Title:     validators.SanitizeString(item.Title, 200),
				UnitPrice: item.UnitPrice,
				Quantity:  item.Quantity,
			})
		}

		view, err := svc.Create(ctx, actor, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// List returns the caller's orders: a customer sees their own, a vendor sees
// orders containing their items and an admin sees everything.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
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
		var status *enums.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseOrderStatus(raw)
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

// Detail returns one order with its history.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		view, err := svc.Get(ctx, actor, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// transition serves the endpoints whose only input is the order id.
func transition(logg *logger.Logger, run func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := run(r, actor, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func MarkProcessing(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error) {
		return svc.MarkProcessing(r.Context(), actor, orderID)
	})
}

func MarkShipped(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error) {
		var body shipRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.MarkShipped(r.Context(), actor, internalorders.ShipmentInput{
			OrderID:        orderID,
			TrackingNumber: validators.SanitizeString(body.TrackingNumber, 100),
			Carrier:        body.Carrier,
		})
	})
}

func MarkDelivered(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error) {
		return svc.MarkDelivered(r.Context(), actor, orderID)
	})
}

// ConfirmDelivery is the customer's receipt; it releases vendor funds.
func ConfirmDelivery(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error) {
		return svc.ConfirmDelivery(r.Context(), actor, orderID)
	})
}

func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error) {
		var body reasonRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.Cancel(r.Context(), actor, orderID, validators.SanitizeString(body.Reason, 500))
	})
}

func RequestReturn(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error) {
		var body requiredReasonRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.RequestReturn(r.Context(), actor, orderID, validators.SanitizeString(body.Reason, 500))
	})
}

func CompleteReturn(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error) {
		return svc.CompleteReturn(r.Context(), actor, orderID)
	})
}

// Override lets an admin force a status the machine allows for overrides.
func Override(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error) {
		var body overrideRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		target, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		return svc.OverrideStatus(r.Context(), actor, internalorders.OverrideInput{
			OrderID: orderID,
			Target:  target,
			Reason:  validators.SanitizeString(body.Reason, 500),
		})
	})
}

// ConfirmPayment records a payment settled outside the webhook path, e.g.
// after a manual reconciliation with the processor.
func ConfirmPayment(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, func(r *http.Request, _ internalorders.Actor, orderID uuid.UUID) (any, error) {
		var body confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.ConfirmPayment(r.Context(), internalorders.ConfirmPaymentInput{
			OrderID:    orderID,
			PaymentRef: strings.TrimSpace(body.PaymentRef),
			Amount:     body.Amount,
		})
	})
}
