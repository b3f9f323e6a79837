package payouts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

// Actor is the caller of a payout operation.
type Actor struct {
	ID       uuid.UUID
	Role     enums.ActorRole
	VendorID *uuid.UUID
}

// RequestInput opens a withdrawal against the vendor's available balance.
type RequestInput struct {
	VendorID      uuid.UUID
	Amount        decimal.Decimal
	BankName      string
	AccountNumber string
	AccountHolder string
	BranchCode    *string
}

type ListFilter struct {
	VendorID *uuid.UUID
	Status   *enums.PayoutStatus
}

// PayoutView is the API shape. The account number never leaves the service.
type PayoutView struct {
	ID             uuid.UUID          `json:"id"`
	VendorID       uuid.UUID          `json:"vendor_id"`
	WalletID       uuid.UUID          `json:"wallet_id"`
	Amount         decimal.Decimal    `json:"amount"`
	BankName       string             `json:"bank_name"`
	AccountLast4   string             `json:"account_last4"`
	AccountHolder  string             `json:"account_holder"`
	BranchCode     *string            `json:"branch_code,omitempty"`
	Status         enums.PayoutStatus `json:"status"`
	TransactionRef *string            `json:"transaction_ref,omitempty"`
	AdminNotes     *string            `json:"admin_notes,omitempty"`
	FailureReason  *string            `json:"failure_reason,omitempty"`
	ApprovedBy     *uuid.UUID         `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time         `json:"approved_at,omitempty"`
	ProcessedAt    *time.Time         `json:"processed_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// TransitionResult reports a payout status change.
type TransitionResult struct {
	Payout         PayoutView         `json:"payout"`
	PreviousStatus enums.PayoutStatus `json:"previous_status"`
}

type PayoutPage struct {
	Payouts    []PayoutView `json:"payouts"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

func NewPayoutView(p *models.PayoutRequest) PayoutView {
	return PayoutView{
		ID:             p.ID,
		VendorID:       p.VendorID,
		WalletID:       p.WalletID,
		Amount:         p.Amount,
		BankName:       p.BankName,
		AccountLast4:   p.AccountLast4,
		AccountHolder:  p.AccountHolder,
		BranchCode:     p.BranchCode,
		Status:         p.Status,
		TransactionRef: p.TransactionRef,
		AdminNotes:     p.AdminNotes,
		FailureReason:  p.FailureReason,
		ApprovedBy:     p.ApprovedBy,
		ApprovedAt:     p.ApprovedAt,
		ProcessedAt:    p.ProcessedAt,
		CreatedAt:      p.CreatedAt,
	}
}
