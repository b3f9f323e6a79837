package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

// Balances is the projection the wallet row caches.
type Balances struct {
	Pending        decimal.Decimal `json:"pending"`
	Available      decimal.Decimal `json:"available"`
	TotalEarnings  decimal.Decimal `json:"total_earnings"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
}

// BalancesOf reads the cached projection from a wallet row.
func BalancesOf(w *models.Wallet) Balances {
	return Balances{
		Pending:        w.PendingBalance,
		Available:      w.AvailableBalance,
		TotalEarnings:  w.TotalEarnings,
		TotalWithdrawn: w.TotalWithdrawn,
	}
}

// Equal compares every bucket numerically.
func (b Balances) Equal(o Balances) bool {
	return b.Pending.Equal(o.Pending) &&
		b.Available.Equal(o.Available) &&
		b.TotalEarnings.Equal(o.TotalEarnings) &&
		b.TotalWithdrawn.Equal(o.TotalWithdrawn)
}

func (b Balances) add(d Balances) Balances {
	return Balances{
		Pending:        b.Pending.Add(d.Pending),
		Available:      b.Available.Add(d.Available),
		TotalEarnings:  b.TotalEarnings.Add(d.TotalEarnings),
		TotalWithdrawn: b.TotalWithdrawn.Add(d.TotalWithdrawn),
	}
}

// Posting is a request to append one transaction to a wallet.
//
// Amount is the signed headline figure stored on the row. BasisAmount is the
// second leg: the gross leaving pending for RELEASE, and the amount taken out
// of Bucket for REFUND.
type Posting struct {
	WalletID      uuid.UUID
	Type          enums.WalletTransactionType
	Amount        decimal.Decimal
	BasisAmount   decimal.Decimal
	Bucket        enums.WalletBucket
	ReferenceType *enums.ReferenceType
	ReferenceID   *uuid.UUID
	Description   string
	CreatedBy     *uuid.UUID
}

// Ref builds the reference pair carried by postings and history rows.
func Ref(refType enums.ReferenceType, id uuid.UUID) (*enums.ReferenceType, *uuid.UUID) {
	return &refType, &id
}

func (p Posting) validate() error {
	if p.WalletID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	if !p.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown transaction type %q", p.Type))
	}
	if !isCents(p.Amount) || !isCents(p.BasisAmount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amounts must have at most two decimal places")
	}
	return checkShape(p.Type, p.Amount, p.BasisAmount, p.Bucket)
}

func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// checkShape enforces the sign conventions for each transaction type.
func checkShape(t enums.WalletTransactionType, amount, basis decimal.Decimal, bucket enums.WalletBucket) error {
	bad := func(msg string) error {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s: %s", t, msg))
	}
	switch t {
	case enums.WalletTxHold, enums.WalletTxCommission:
		if amount.IsZero() {
			return bad("amount must be non-zero")
		}
	case enums.WalletTxRelease:
		if amount.IsNegative() {
			return bad("net amount must not be negative")
		}
		if !basis.IsPositive() {
			return bad("gross basis must be positive")
		}
		if basis.LessThan(amount) {
			return bad("gross basis must cover the net amount")
		}
	case enums.WalletTxRefund:
		if !amount.IsNegative() {
			return bad("amount must be negative")
		}
		if !basis.IsPositive() {
			return bad("basis must be positive")
		}
		if bucket != enums.WalletBucketPending && bucket != enums.WalletBucketAvailable {
			return bad("source bucket is required")
		}
	case enums.WalletTxPayout, enums.WalletTxDebit:
		if !amount.IsNegative() {
			return bad("amount must be negative")
		}
	case enums.WalletTxCredit:
		if !amount.IsPositive() {
			return bad("amount must be positive")
		}
	}
	return nil
}

// effect returns the balance delta for a transaction. Stored rows carry every
// input, so replaying the log through this function rebuilds the wallet.
func effect(t enums.WalletTransactionType, amount, basis decimal.Decimal, bucket enums.WalletBucket, refType *enums.ReferenceType) Balances {
	d := Balances{
		Pending:        decimal.Zero,
		Available:      decimal.Zero,
		TotalEarnings:  decimal.Zero,
		TotalWithdrawn: decimal.Zero,
	}
	switch t {
	case enums.WalletTxHold:
		d.Pending = amount
	case enums.WalletTxCommission:
		// platform revenue bookkeeping only
	case enums.WalletTxRelease:
		d.Pending = basis.Neg()
		d.Available = amount
		d.TotalEarnings = amount
	case enums.WalletTxRefund:
		if bucket == enums.WalletBucketAvailable {
			d.Available = basis.Neg()
			d.TotalEarnings = basis.Neg()
		} else {
			d.Pending = basis.Neg()
		}
	case enums.WalletTxPayout:
		d.Available = amount
		d.TotalWithdrawn = amount.Neg()
	case enums.WalletTxCredit, enums.WalletTxDebit:
		d.Available = amount
		if refType != nil && *refType == enums.ReferencePayout {
			d.TotalWithdrawn = amount.Neg()
		} else {
			d.TotalEarnings = amount
		}
	}
	return d
}

// apply computes the post-transaction balances and enforces non-negativity.
func apply(before Balances, p Posting) (Balances, error) {
	after := before.add(effect(p.Type, p.Amount, p.BasisAmount, p.Bucket, p.ReferenceType))
	if after.Pending.IsNegative() || after.Available.IsNegative() {
		return before, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient wallet balance").
			WithDetails(map[string]any{
				"wallet_id":         p.WalletID,
				"type":              p.Type,
				"amount":            p.Amount.StringFixed(2),
				"pending_balance":   before.Pending.StringFixed(2),
				"available_balance": before.Available.StringFixed(2),
			})
	}
	return after, nil
}

// Replay folds the stored transactions, in sequence order, from zero balances.
// It also checks the before/after snapshots chain without gaps.
func Replay(txs []models.WalletTransaction) (Balances, []string) {
	running := Balances{
		Pending:        decimal.Zero,
		Available:      decimal.Zero,
		TotalEarnings:  decimal.Zero,
		TotalWithdrawn: decimal.Zero,
	}
	var problems []string
	var expectSeq int64 = 1
	for _, tx := range txs {
		if tx.Sequence != expectSeq {
			problems = append(problems, fmt.Sprintf("sequence gap: expected %d got %d", expectSeq, tx.Sequence))
		}
		expectSeq = tx.Sequence + 1
		if !tx.PendingBefore.Equal(running.Pending) || !tx.AvailableBefore.Equal(running.Available) {
			problems = append(problems, fmt.Sprintf("sequence %d: before snapshot does not match replay", tx.Sequence))
		}
		running = running.add(effect(tx.Type, tx.Amount, tx.BasisAmount, tx.Bucket, tx.ReferenceType))
		if !tx.PendingAfter.Equal(running.Pending) || !tx.AvailableAfter.Equal(running.Available) {
			problems = append(problems, fmt.Sprintf("sequence %d: after snapshot does not match replay", tx.Sequence))
		}
		if running.Pending.IsNegative() || running.Available.IsNegative() {
			problems = append(problems, fmt.Sprintf("sequence %d: negative balance", tx.Sequence))
		}
	}
	return running, problems
}
