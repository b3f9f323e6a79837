package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

// OrderEscrow is what one vendor wallet's log says about an order. Order
// transitions decide their postings from it rather than from the order's
// status, which an admin override can rewrite.
type OrderEscrow struct {
	// Held is the net of HOLD postings: the gross put into pending at payment
	// minus any cancellation reversal.
	Held decimal.Decimal
	// Commission is the net COMMISSION booked against the order itself.
	Commission decimal.Decimal
	// Released is the gross moved out of pending by RELEASE.
	Released decimal.Decimal
	// RefundedPending is the gross refunded straight out of pending, for the
	// order or any of its disputes.
	RefundedPending decimal.Decimal
	HasRelease      bool
}

// Outstanding is the gross the order still has sitting in pending.
func (e OrderEscrow) Outstanding() decimal.Decimal {
	return e.Held.Sub(e.Released).Sub(e.RefundedPending)
}

func summarizeEscrow(rows []models.WalletTransaction, orderID uuid.UUID) OrderEscrow {
	e := OrderEscrow{
		Held:            decimal.Zero,
		Commission:      decimal.Zero,
		Released:        decimal.Zero,
		RefundedPending: decimal.Zero,
	}
	for _, row := range rows {
		onOrder := row.ReferenceType != nil && *row.ReferenceType == enums.ReferenceOrder &&
			row.ReferenceID != nil && *row.ReferenceID == orderID
		switch row.Type {
		case enums.WalletTxHold:
			e.Held = e.Held.Add(row.Amount)
		case enums.WalletTxCommission:
			if onOrder {
				e.Commission = e.Commission.Add(row.Amount)
			}
		case enums.WalletTxRelease:
			e.Released = e.Released.Add(row.BasisAmount)
			e.HasRelease = true
		case enums.WalletTxRefund:
			if row.Bucket == enums.WalletBucketPending {
				e.RefundedPending = e.RefundedPending.Add(row.BasisAmount)
			}
		}
	}
	return e
}

// OrderEscrow summarises the wallet's postings for orderID.
func (s *service) OrderEscrow(ctx context.Context, tx *gorm.DB, walletID, orderID uuid.UUID) (OrderEscrow, error) {
	rows, err := s.repo.WithTx(tx).OrderPostings(ctx, walletID, orderID)
	if err != nil {
		return OrderEscrow{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order postings")
	}
	return summarizeEscrow(rows, orderID), nil
}
