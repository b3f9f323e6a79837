package refunds

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/internal/ledger"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

type walletLedger interface {
	WalletForVendor(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*models.Wallet, error)
	HasPosting(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, txType enums.WalletTransactionType, refType enums.ReferenceType, refID uuid.UUID) (bool, error)
	PostTransaction(ctx context.Context, tx *gorm.DB, posting ledger.Posting) (*models.WalletTransaction, error)
}

// Request asks the engine to reverse funds for an order. The reference names
// what caused the refund (a dispute or the order's own return) and is the
// idempotency key.
type Request struct {
	Order         *models.Order
	Amount        *decimal.Decimal
	ReferenceType enums.ReferenceType
	ReferenceID   uuid.UUID
	ActorID       *uuid.UUID
}

// Result reports what the engine posted. AlreadyProcessed is set when the
// reference had been refunded before; nothing is posted in that case.
type Result struct {
	Plan             *Plan `json:"plan"`
	AlreadyProcessed bool  `json:"already_processed"`
}

// Engine posts refund reversals. It never changes order status; callers own
// the order transition and run it in the same transaction.
type Engine struct {
	ledger walletLedger
	logg   *logger.Logger
}

func NewEngine(ledger walletLedger, logg *logger.Logger) (*Engine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Engine{ledger: ledger, logg: logg}, nil
}

// Process must run inside the caller's transaction so that every vendor
// reversal commits or rolls back together with the order transition.
func (e *Engine) Process(ctx context.Context, tx *gorm.DB, req Request) (*Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "refund requires a transaction")
	}
	if !req.ReferenceType.IsValid() || req.ReferenceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reference is required")
	}
	plan, err := CalculateRefund(req.Order, req.Amount)
	if err != nil {
		return nil, err
	}

	wallets := make(map[uuid.UUID]*models.Wallet, len(plan.Allocations))
	for _, alloc := range plan.Allocations {
		wallet, err := e.ledger.WalletForVendor(ctx, tx, alloc.VendorID)
		if err != nil {
			return nil, err
		}
		done, err := e.ledger.HasPosting(ctx, tx, wallet.ID, enums.WalletTxRefund, req.ReferenceType, req.ReferenceID)
		if err != nil {
			return nil, err
		}
		if done {
			return &Result{Plan: plan, AlreadyProcessed: true}, nil
		}
		wallets[alloc.VendorID] = wallet
	}

	refType, refID := ledger.Ref(req.ReferenceType, req.ReferenceID)
	orderRef, orderID := ledger.Ref(enums.ReferenceOrder, req.Order.ID)
	for i := range plan.Allocations {
		alloc := &plan.Allocations[i]
		if alloc.Share.IsZero() {
			continue
		}
		wallet := wallets[alloc.VendorID]
		released, err := e.ledger.HasPosting(ctx, tx, wallet.ID, enums.WalletTxRelease, enums.ReferenceOrder, req.Order.ID)
		if err != nil {
			return nil, err
		}

		refund := ledger.Posting{
			WalletID:      wallet.ID,
			Type:          enums.WalletTxRefund,
			Amount:        alloc.Share.Neg(),
			ReferenceType: refType,
			ReferenceID:   refID,
			Description:   fmt.Sprintf("Refund for order %s", req.Order.ID),
			CreatedBy:     req.ActorID,
		}
		if released {
			alloc.Source = enums.WalletBucketAvailable
			refund.Bucket = enums.WalletBucketAvailable
			refund.BasisAmount = alloc.NetReversed
		} else {
			alloc.Source = enums.WalletBucketPending
			refund.Bucket = enums.WalletBucketPending
			refund.BasisAmount = alloc.Share
		}
		if _, err := e.ledger.PostTransaction(ctx, tx, refund); err != nil {
			return nil, err
		}

		if !alloc.CommissionReversed.IsZero() {
			if _, err := e.ledger.PostTransaction(ctx, tx, ledger.Posting{
				WalletID:      wallet.ID,
				Type:          enums.WalletTxCommission,
				Amount:        alloc.CommissionReversed,
				ReferenceType: refType,
				ReferenceID:   refID,
				Description:   fmt.Sprintf("Commission reversed for order %s", req.Order.ID),
				CreatedBy:     req.ActorID,
			}); err != nil {
				return nil, err
			}
		}

		if !released {
			if err := e.settleRemainder(ctx, tx, wallet.ID, *alloc, orderRef, orderID, req.ActorID); err != nil {
				return nil, err
			}
		}
	}

	logCtx := e.logg.WithOrderID(ctx, req.Order.ID.String())
	logCtx = e.logg.WithFields(logCtx, map[string]any{
		"reference_type": req.ReferenceType,
		"reference_id":   req.ReferenceID.String(),
		"refund_amount":  plan.RefundAmount.StringFixed(2),
		"vendors":        len(plan.Allocations),
	})
	e.logg.Info(logCtx, "refund processed")
	return &Result{Plan: plan}, nil
}

// settleRemainder releases whatever a partial refund left held for the order,
// since the order can no longer reach delivery confirmation.
func (e *Engine) settleRemainder(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, alloc Allocation, refType *enums.ReferenceType, refID *uuid.UUID, actor *uuid.UUID) error {
	remainder := alloc.Gross.Sub(alloc.Share)
	if !remainder.IsPositive() {
		return nil
	}
	net := remainder.Sub(alloc.Commission.Sub(alloc.CommissionReversed))
	posting := ledger.Posting{
		WalletID:      walletID,
		ReferenceType: refType,
		ReferenceID:   refID,
		CreatedBy:     actor,
	}
	if !net.IsNegative() {
		posting.Type = enums.WalletTxRelease
		posting.Amount = net
		posting.BasisAmount = remainder
		posting.Description = fmt.Sprintf("Release of unrefunded remainder for order %s", *refID)
	} else {
		posting.Type = enums.WalletTxHold
		posting.Amount = remainder.Neg()
		posting.Description = fmt.Sprintf("Hold reversal of unrefunded remainder for order %s", *refID)
	}
	_, err := e.ledger.PostTransaction(ctx, tx, posting)
	return err
}
