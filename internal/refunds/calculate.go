// Package refunds splits a customer refund across the vendors of an order and
// reverses each vendor's share through the wallet ledger.
package refunds

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/internal/commission"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

// Allocation is one vendor's part of a refund.
type Allocation struct {
	VendorID           uuid.UUID          `json:"vendor_id"`
	Gross              decimal.Decimal    `json:"gross"`
	Commission         decimal.Decimal    `json:"commission"`
	Share              decimal.Decimal    `json:"share"`
	CommissionReversed decimal.Decimal    `json:"commission_reversed"`
	NetReversed        decimal.Decimal    `json:"net_reversed"`
	Source             enums.WalletBucket `json:"source,omitempty"`
}

// Plan is the full per-vendor breakdown of a refund.
type Plan struct {
	OrderID      uuid.UUID       `json:"order_id"`
	OrderTotal   decimal.Decimal `json:"order_total"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Allocations  []Allocation    `json:"allocations"`
}

// TotalShares sums the vendor shares of the plan.
func (p Plan) TotalShares() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Share)
	}
	return total
}

// CalculateRefund allocates refundAmount (the whole order when nil) to vendors
// in proportion to their item totals. Vendors are ordered by id and the last
// one absorbs the rounding remainder.
func CalculateRefund(order *models.Order, custom *decimal.Decimal) (*Plan, error) {
	if order == nil || len(order.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no items to refund")
	}
	if !order.Total.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}

	refund := order.Total
	if custom != nil {
		refund = *custom
	}
	if !refund.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if !refund.Equal(refund.Round(commission.Scale)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must have at most two decimal places")
	}
	if refund.GreaterThan(order.Total) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds order total").
			WithDetails(map[string]any{"order_total": order.Total.StringFixed(2), "refund_amount": refund.StringFixed(2)})
	}

	vendors, err := vendorTotals(order.Items)
	if err != nil {
		return nil, err
	}

	merchandise := decimal.Zero
	for _, v := range vendors {
		merchandise = merchandise.Add(v.Gross)
	}
	// Shipping and discounts are platform funded; vendors only give back
	// their merchandise portion.
	target := proportion(merchandise, refund, order.Total)
	if target.GreaterThan(refund) {
		target = refund
	}

	plan := &Plan{OrderID: order.ID, OrderTotal: order.Total, RefundAmount: refund}
	allocated := decimal.Zero
	for i, v := range vendors {
		share := proportion(v.Gross, refund, order.Total)
		if i == len(vendors)-1 {
			share = target.Sub(allocated)
		}
		if share.GreaterThan(v.Gross) {
			share = v.Gross
		}
		if share.IsNegative() {
			share = decimal.Zero
		}
		allocated = allocated.Add(share)

		reversed := decimal.Zero
		if v.Gross.IsPositive() {
			reversed = share.Mul(v.Commission).Div(v.Gross).Round(commission.Scale)
		}
		plan.Allocations = append(plan.Allocations, Allocation{
			VendorID:           v.VendorID,
			Gross:              v.Gross,
			Commission:         v.Commission,
			Share:              share,
			CommissionReversed: reversed,
			NetReversed:        share.Sub(reversed),
		})
	}
	return plan, nil
}

func proportion(part, refund, total decimal.Decimal) decimal.Decimal {
	return part.Mul(refund).Div(total).Round(commission.Scale)
}

func vendorTotals(items []models.OrderItem) ([]commission.VendorSplit, error) {
	lines := make([]commission.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, commission.Line{VendorID: item.VendorID, Total: item.Total, Rate: item.CommissionRate})
	}
	splits, err := commission.ByVendor(lines)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "compute item commission")
	}
	return splits, nil
}
