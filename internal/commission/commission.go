// Package commission splits an order line between the platform and the vendor.
package commission

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places currency amounts are kept at.
const Scale = 2

var hundred = decimal.NewFromInt(100)

// Split is the result of applying a vendor commission rate to an amount.
type Split struct {
	Gross      decimal.Decimal `json:"gross"`
	Rate       decimal.Decimal `json:"rate"`
	Commission decimal.Decimal `json:"commission"`
	VendorNet  decimal.Decimal `json:"vendor_net"`
}

// Compute returns the platform commission and the vendor net for itemTotal at
// ratePercent. Commission is rounded half away from zero to Scale places and
// the net is derived by subtraction, so Commission+VendorNet always equals the
// rounded gross.
func Compute(itemTotal, ratePercent decimal.Decimal) (Split, error) {
	if itemTotal.IsNegative() {
		return Split{}, fmt.Errorf("item total must not be negative: %s", itemTotal)
	}
	if ratePercent.IsNegative() || ratePercent.GreaterThan(hundred) {
		return Split{}, fmt.Errorf("commission rate must be within [0, 100]: %s", ratePercent)
	}

	gross := itemTotal.Round(Scale)
	commission := gross.Mul(ratePercent).Div(hundred).Round(Scale)
	return Split{
		Gross:      gross,
		Rate:       ratePercent,
		Commission: commission,
		VendorNet:  gross.Sub(commission),
	}, nil
}

// MustCompute is Compute for callers that already validated their inputs.
func MustCompute(itemTotal, ratePercent decimal.Decimal) Split {
	split, err := Compute(itemTotal, ratePercent)
	if err != nil {
		panic(err)
	}
	return split
}

// Sum adds splits together, typically the lines a single vendor sold in one order.
func Sum(splits ...Split) Split {
	total := Split{Gross: decimal.Zero, Commission: decimal.Zero, VendorNet: decimal.Zero}
	for _, s := range splits {
		total.Gross = total.Gross.Add(s.Gross)
		total.Commission = total.Commission.Add(s.Commission)
		total.VendorNet = total.VendorNet.Add(s.VendorNet)
	}
	return total
}

// Line is one priced order line with the rate captured at checkout.
type Line struct {
	VendorID uuid.UUID
	Total    decimal.Decimal
	Rate     decimal.Decimal
}

// VendorSplit is the summed split of every line a vendor sold in one order.
type VendorSplit struct {
	VendorID uuid.UUID `json:"vendor_id"`
	Split
}

// ByVendor computes each line's split and groups them per vendor, ordered by
// vendor id so callers touching several wallets always lock in the same order.
func ByVendor(lines []Line) ([]VendorSplit, error) {
	grouped := make(map[uuid.UUID][]Split)
	for _, line := range lines {
		split, err := Compute(line.Total, line.Rate)
		if err != nil {
			return nil, err
		}
		grouped[line.VendorID] = append(grouped[line.VendorID], split)
	}
	out := make([]VendorSplit, 0, len(grouped))
	for vendorID, splits := range grouped {
		sum := Sum(splits...)
		if len(splits) == 1 {
			sum.Rate = splits[0].Rate
		}
		out = append(out, VendorSplit{VendorID: vendorID, Split: sum})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].VendorID.String() < out[j].VendorID.String()
	})
	return out, nil
}
