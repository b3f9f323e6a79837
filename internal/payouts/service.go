package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/internal/ledger"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-settlement/pkg/pagination"
	"github.com/angelmondragon/marketplace-settlement/pkg/security"
)

const (
	minTransactionRefLen = 5
	minFailureReasonLen  = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type walletLedger interface {
	WalletForVendor(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*models.Wallet, error)
	PostTransaction(ctx context.Context, tx *gorm.DB, posting ledger.Posting) (*models.WalletTransaction, error)
}

type sealer interface {
	Seal(plaintext string) ([]byte, error)
}

// Service drives vendor withdrawals. Funds leave the available balance at
// approval and are credited back only when a processing payout fails.
type Service interface {
	Request(ctx context.Context, actor Actor, input RequestInput) (*PayoutView, error)
	Approve(ctx context.Context, actor Actor, payoutID uuid.UUID, notes *string) (*TransitionResult, error)
	Complete(ctx context.Context, actor Actor, payoutID uuid.UUID, transactionRef string, notes *string) (*TransitionResult, error)
	Fail(ctx context.Context, actor Actor, payoutID uuid.UUID, reason string) (*TransitionResult, error)
	Get(ctx context.Context, actor Actor, payoutID uuid.UUID) (*PayoutView, error)
	List(ctx context.Context, actor Actor, status *enums.PayoutStatus, params pagination.Params) (*PayoutPage, error)
}

type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Ledger    walletLedger
	Sealer    sealer
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	Logger    *logger.Logger
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	ledger walletLedger
	sealer sealer
	min    decimal.Decimal
	max    decimal.Decimal
	logg   *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if params.Sealer == nil {
		return nil, fmt.Errorf("account sealer required")
	}
	if !params.MinAmount.IsPositive() || params.MaxAmount.LessThan(params.MinAmount) {
		return nil, fmt.Errorf("payout bounds invalid: min=%s max=%s", params.MinAmount, params.MaxAmount)
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		ledger: params.Ledger,
		sealer: params.Sealer,
		min:    params.MinAmount,
		max:    params.MaxAmount,
		logg:   params.Logger,
	}, nil
}

// Request records a withdrawal. It has no ledger effect; the balance is
// checked again at approval.
func (s *service) Request(ctx context.Context, actor Actor, input RequestInput) (*PayoutView, error) {
	if actor.Role != enums.ActorRoleAdmin && (actor.Role != enums.ActorRoleVendor || actor.VendorID == nil || *actor.VendorID != input.VendorID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payouts can only be requested for your own vendor")
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must have at most two decimal places")
	}
	if input.Amount.LessThan(s.min) || input.Amount.GreaterThan(s.max) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount out of range").
			WithDetails(map[string]any{"min": s.min.StringFixed(2), "max": s.max.StringFixed(2)})
	}
	account := strings.ReplaceAll(strings.TrimSpace(input.AccountNumber), " ", "")
	if account == "" || strings.TrimSpace(input.BankName) == "" || strings.TrimSpace(input.AccountHolder) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank name, account number and holder are required")
	}
	sealed, err := s.sealer.Seal(account)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal account number")
	}

	var payout *models.PayoutRequest
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		wallet, err := s.ledger.WalletForVendor(ctx, tx, input.VendorID)
		if err != nil {
			return err
		}
		payout = &models.PayoutRequest{
			VendorID:            input.VendorID,
			WalletID:            wallet.ID,
			Amount:              input.Amount,
			BankName:            strings.TrimSpace(input.BankName),
			AccountNumberSealed: sealed,
			AccountLast4:        security.Last4(account),
			AccountHolder:       strings.TrimSpace(input.AccountHolder),
			BranchCode:          input.BranchCode,
			Status:              enums.PayoutStatusPending,
		}
		if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout request")
		}
		return s.emit(ctx, tx, enums.EventPayoutRequested, payout, actor)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logCtx(ctx, payout), "payout requested")
	view := NewPayoutView(payout)
	return &view, nil
}

// Approve deducts the amount from available funds. The PENDING guard and the
// PAYOUT posting share one transaction, so a concurrent second approval
// either finds the payout already moved or the balance already spent.
func (s *service) Approve(ctx context.Context, actor Actor, payoutID uuid.UUID, notes *string) (*TransitionResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := s.load(ctx, repo, payoutID)
		if err != nil {
			return err
		}
		if payout.Status != enums.PayoutStatusPending {
			return pkgerrors.AlreadyTerminal("payout", string(payout.Status), string(enums.PayoutStatusProcessing))
		}

		now := time.Now().UTC()
		fields := map[string]any{"approved_by": actor.ID, "approved_at": now, "admin_notes": trimmed(notes)}
		moved, err := repo.Transition(ctx, payout.ID, enums.PayoutStatusPending, enums.PayoutStatusProcessing, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve payout")
		}
		if !moved {
			return pkgerrors.AlreadyTerminal("payout", string(enums.PayoutStatusProcessing), string(enums.PayoutStatusProcessing))
		}

		refType, refID := ledger.Ref(enums.ReferencePayout, payout.ID)
		if _, err := s.ledger.PostTransaction(ctx, tx, ledger.Posting{
			WalletID:      payout.WalletID,
			Type:          enums.WalletTxPayout,
			Amount:        payout.Amount.Neg(),
			ReferenceType: refType,
			ReferenceID:   refID,
			Description:   fmt.Sprintf("Payout to %s ****%s", payout.BankName, payout.AccountLast4),
			CreatedBy:     &actor.ID,
		}); err != nil {
			return err
		}

		approver := actor.ID
		payout.Status = enums.PayoutStatusProcessing
		payout.ApprovedBy = &approver
		payout.ApprovedAt = &now
		payout.AdminNotes = trimmed(notes)
		result = &TransitionResult{Payout: NewPayoutView(payout), PreviousStatus: enums.PayoutStatusPending}
		return s.emit(ctx, tx, enums.EventPayoutApproved, payout, actor)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logCtx(ctx, nil, result), "payout approved")
	return result, nil
}

func (s *service) Complete(ctx context.Context, actor Actor, payoutID uuid.UUID, transactionRef string, notes *string) (*TransitionResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	ref := strings.TrimSpace(transactionRef)
	if len(ref) < minTransactionRefLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("transaction reference must be at least %d characters", minTransactionRefLen))
	}
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := s.load(ctx, repo, payoutID)
		if err != nil {
			return err
		}
		switch {
		case payout.Status.IsTerminal():
			return pkgerrors.AlreadyTerminal("payout", string(payout.Status), string(enums.PayoutStatusCompleted))
		case payout.Status != enums.PayoutStatusProcessing:
			return pkgerrors.InvalidTransition("payout", string(payout.Status), string(enums.PayoutStatusCompleted))
		}

		now := time.Now().UTC()
		fields := map[string]any{"transaction_ref": ref, "processed_at": now}
		if n := trimmed(notes); n != nil {
			fields["admin_notes"] = n
			payout.AdminNotes = n
		}
		moved, err := repo.Transition(ctx, payout.ID, enums.PayoutStatusProcessing, enums.PayoutStatusCompleted, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payout")
		}
		if !moved {
			return pkgerrors.AlreadyTerminal("payout", string(enums.PayoutStatusCompleted), string(enums.PayoutStatusCompleted))
		}
		payout.Status = enums.PayoutStatusCompleted
		payout.TransactionRef = &ref
		payout.ProcessedAt = &now
		result = &TransitionResult{Payout: NewPayoutView(payout), PreviousStatus: enums.PayoutStatusProcessing}
		return s.emit(ctx, tx, enums.EventPayoutCompleted, payout, actor)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logCtx(ctx, nil, result), "payout completed")
	return result, nil
}

// Fail rejects a payout. Funds deducted at approval come back as a CREDIT.
func (s *service) Fail(ctx context.Context, actor Actor, payoutID uuid.UUID, reason string) (*TransitionResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if len(reason) < minFailureReasonLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason must be at least %d characters", minFailureReasonLen))
	}
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := s.load(ctx, repo, payoutID)
		if err != nil {
			return err
		}
		if payout.Status.IsTerminal() {
			return pkgerrors.AlreadyTerminal("payout", string(payout.Status), string(enums.PayoutStatusFailed))
		}
		previous := payout.Status

		now := time.Now().UTC()
		moved, err := repo.Transition(ctx, payout.ID, previous, enums.PayoutStatusFailed, map[string]any{
			"failure_reason": reason,
			"processed_at":   now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payout")
		}
		if !moved {
			return pkgerrors.InvalidTransition("payout", string(previous), string(enums.PayoutStatusFailed))
		}

		if previous == enums.PayoutStatusProcessing {
			refType, refID := ledger.Ref(enums.ReferencePayout, payout.ID)
			if _, err := s.ledger.PostTransaction(ctx, tx, ledger.Posting{
				WalletID:      payout.WalletID,
				Type:          enums.WalletTxCredit,
				Amount:        payout.Amount,
				ReferenceType: refType,
				ReferenceID:   refID,
				Description:   fmt.Sprintf("Payout failed: %s", reason),
				CreatedBy:     &actor.ID,
			}); err != nil {
				return err
			}
		}

		payout.Status = enums.PayoutStatusFailed
		payout.FailureReason = &reason
		payout.ProcessedAt = &now
		result = &TransitionResult{Payout: NewPayoutView(payout), PreviousStatus: previous}
		return s.emit(ctx, tx, enums.EventPayoutFailed, payout, actor)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Warn(s.logCtx(ctx, nil, result), "payout failed")
	return result, nil
}

func (s *service) Get(ctx context.Context, actor Actor, payoutID uuid.UUID) (*PayoutView, error) {
	payout, err := s.load(ctx, s.repo, payoutID)
	if err != nil {
		return nil, err
	}
	if actor.Role != enums.ActorRoleAdmin && (actor.VendorID == nil || *actor.VendorID != payout.VendorID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	view := NewPayoutView(payout)
	return &view, nil
}

func (s *service) List(ctx context.Context, actor Actor, status *enums.PayoutStatus, params pagination.Params) (*PayoutPage, error) {
	filter := ListFilter{Status: status}
	switch actor.Role {
	case enums.ActorRoleAdmin:
	case enums.ActorRoleVendor:
		if actor.VendorID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
		}
		filter.VendorID = actor.VendorID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list payouts")
	}
	rows, next, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Classify(pkgerrors.CodeDependency, err, "list payouts")
	}
	page := &PayoutPage{Payouts: make([]PayoutView, 0, len(rows)), NextCursor: next}
	for i := range rows {
		page.Payouts = append(page.Payouts, NewPayoutView(&rows[i]))
	}
	return page, nil
}

func (s *service) load(ctx context.Context, repo Repository, payoutID uuid.UUID) (*models.PayoutRequest, error) {
	payout, err := repo.FindForUpdate(ctx, payoutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payout *models.PayoutRequest, actor Actor) error {
	event := payloads.PayoutEvent{
		PayoutID:     payout.ID,
		VendorID:     payout.VendorID,
		WalletID:     payout.WalletID,
		Amount:       payout.Amount,
		Status:       payout.Status,
		AccountLast4: payout.AccountLast4,
	}
	if payout.TransactionRef != nil {
		event.TransactionRef = *payout.TransactionRef
	}
	if payout.FailureReason != nil {
		event.FailureReason = *payout.FailureReason
	}
	userID := actor.ID
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Actor:         &outbox.ActorRef{UserID: &userID, VendorID: actor.VendorID, Role: string(actor.Role)},
		Data:          event,
	})
}

func (s *service) logCtx(ctx context.Context, payout *models.PayoutRequest, results ...*TransitionResult) context.Context {
	fields := map[string]any{}
	if payout != nil {
		fields["payout_id"] = payout.ID.String()
		fields["amount"] = payout.Amount.StringFixed(2)
		ctx = s.logg.WithVendorID(ctx, payout.VendorID.String())
	}
	for _, r := range results {
		fields["payout_id"] = r.Payout.ID.String()
		fields["amount"] = r.Payout.Amount.StringFixed(2)
		fields["from"] = r.PreviousStatus
		fields["to"] = r.Payout.Status
		ctx = s.logg.WithVendorID(ctx, r.Payout.VendorID.String())
	}
	return s.logg.WithFields(ctx, fields)
}

func requireAdmin(actor Actor) error {
	if actor.Role != enums.ActorRoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
