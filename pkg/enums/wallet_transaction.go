package enums

import "fmt"

// WalletTransactionType maps to the wallet_transaction_type enum in Postgres.
type WalletTransactionType string

const (
	WalletTxHold       WalletTransactionType = "HOLD"
	WalletTxCommission WalletTransactionType = "COMMISSION"
	WalletTxRelease    WalletTransactionType = "RELEASE"
	WalletTxRefund     WalletTransactionType = "REFUND"
	WalletTxPayout     WalletTransactionType = "PAYOUT"
	WalletTxCredit     WalletTransactionType = "CREDIT"
	WalletTxDebit      WalletTransactionType = "DEBIT"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTxHold,
	WalletTxCommission,
	WalletTxRelease,
	WalletTxRefund,
	WalletTxPayout,
	WalletTxCredit,
	WalletTxDebit,
}

// IsValid reports whether the value matches the canonical wallet transaction enum.
func (t WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseWalletTransactionType converts raw input into WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}

// WalletBucket names the balance a posting draws from or adds to.
type WalletBucket string

const (
	WalletBucketNone      WalletBucket = ""
	WalletBucketPending   WalletBucket = "PENDING"
	WalletBucketAvailable WalletBucket = "AVAILABLE"
)

// IsValid reports whether the bucket is one of the two balances.
func (b WalletBucket) IsValid() bool {
	return b == WalletBucketPending || b == WalletBucketAvailable
}

// ReferenceType identifies the entity a wallet posting originated from.
type ReferenceType string

const (
	ReferenceOrder   ReferenceType = "ORDER"
	ReferenceDispute ReferenceType = "DISPUTE"
	ReferencePayout  ReferenceType = "PAYOUT"
	ReferenceManual  ReferenceType = "MANUAL"
)

var validReferenceTypes = []ReferenceType{
	ReferenceOrder,
	ReferenceDispute,
	ReferencePayout,
	ReferenceManual,
}

// IsValid reports whether the value is a known reference type.
func (r ReferenceType) IsValid() bool {
	for _, candidate := range validReferenceTypes {
		if candidate == r {
			return true
		}
	}
	return false
}
