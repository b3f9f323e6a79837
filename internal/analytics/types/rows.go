package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// PostingRow mirrors the wallet_postings BigQuery schema. Amounts are signed
// minor units.
type PostingRow struct {
	EventID             string             `bigquery:"event_id"`
	OccurredAt          time.Time          `bigquery:"occurred_at"`
	TransactionID       string             `bigquery:"transaction_id"`
	WalletID            string             `bigquery:"wallet_id"`
	VendorID            string             `bigquery:"vendor_id"`
	Type                string             `bigquery:"type"`
	AmountCents         int64              `bigquery:"amount_cents"`
	BasisAmountCents    int64              `bigquery:"basis_amount_cents"`
	Bucket              *string            `bigquery:"bucket"`
	Sequence            int64              `bigquery:"sequence"`
	PendingAfterCents   int64              `bigquery:"pending_after_cents"`
	AvailableAfterCents int64              `bigquery:"available_after_cents"`
	ReferenceType       *string            `bigquery:"reference_type"`
	ReferenceID         *string            `bigquery:"reference_id"`
	Description         string             `bigquery:"description"`
	Payload             cbigquery.NullJSON `bigquery:"payload"`
}

// PayoutRow mirrors the payouts BigQuery schema. One row per lifecycle event.
type PayoutRow struct {
	EventID        string    `bigquery:"event_id"`
	EventType      string    `bigquery:"event_type"`
	OccurredAt     time.Time `bigquery:"occurred_at"`
	PayoutID       string    `bigquery:"payout_id"`
	VendorID       string    `bigquery:"vendor_id"`
	WalletID       string    `bigquery:"wallet_id"`
	AmountCents    int64     `bigquery:"amount_cents"`
	Status         string    `bigquery:"status"`
	TransactionRef *string   `bigquery:"transaction_ref"`
	FailureReason  *string   `bigquery:"failure_reason"`
}
