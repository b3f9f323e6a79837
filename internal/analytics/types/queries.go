package types

import (
	"time"
)

// LedgerQueryRequest selects the postings summarized by the ledger report.
// An empty VendorID covers the whole marketplace.
type LedgerQueryRequest struct {
	VendorID string
	Start    time.Time
	End      time.Time
}

// TimeSeriesPoint describes a single date/value pair in minor units.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// LabelValue represents a top-N entry.
type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// LedgerQueryResponse groups daily ledger movement by posting type.
type LedgerQueryResponse struct {
	Held        []TimeSeriesPoint `json:"held"`
	Commission  []TimeSeriesPoint `json:"commission"`
	Released    []TimeSeriesPoint `json:"released"`
	Refunded    []TimeSeriesPoint `json:"refunded"`
	PaidOut     []TimeSeriesPoint `json:"paid_out"`
	TopVendors  []LabelValue      `json:"top_vendors"`
	PayoutCount int64             `json:"payout_count"`
}
