package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AddressSnapshot is the delivery address frozen onto an order at checkout.
type AddressSnapshot struct {
	RecipientName string  `json:"recipient_name" validate:"required"`
	Phone         string  `json:"phone" validate:"required"`
	Line1         string  `json:"line1" validate:"required"`
	Line2         *string `json:"line2,omitempty"`
	City          string  `json:"city" validate:"required"`
	District      string  `json:"district,omitempty"`
	PostalCode    string  `json:"postal_code,omitempty"`
	Country       string  `json:"country" validate:"required,len=2"`
}

// Normalize trims user supplied fields and upper-cases the country code.
func (a AddressSnapshot) Normalize() AddressSnapshot {
	a.RecipientName = strings.TrimSpace(a.RecipientName)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.City = strings.TrimSpace(a.City)
	a.District = strings.TrimSpace(a.District)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	return a
}

// CouponSnapshot captures the coupon applied at checkout.
type CouponSnapshot struct {
	Code           string          `json:"code"`
	DiscountType   string          `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	AppliedAmount  decimal.Decimal `json:"applied_amount"`
	FundedByVendor bool            `json:"funded_by_vendor"`
}
