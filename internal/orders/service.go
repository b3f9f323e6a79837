package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/internal/commission"
	"github.com/angelmondragon/marketplace-settlement/internal/ledger"
	"github.com/angelmondragon/marketplace-settlement/internal/refunds"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-settlement/pkg/pagination"
)

const minOverrideReasonLen = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type walletLedger interface {
	EnsureWallet(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*models.Wallet, error)
	WalletForVendor(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*models.Wallet, error)
	PostTransaction(ctx context.Context, tx *gorm.DB, posting ledger.Posting) (*models.WalletTransaction, error)
	OrderEscrow(ctx context.Context, tx *gorm.DB, walletID, orderID uuid.UUID) (ledger.OrderEscrow, error)
}

type refunder interface {
	Process(ctx context.Context, tx *gorm.DB, req refunds.Request) (*refunds.Result, error)
}

// Windows are the business time limits measured from stored timestamps.
type Windows struct {
	Cancel  time.Duration
	Return  time.Duration
	Dispute time.Duration
}

// Service drives the order state machine. Every transition updates item
// sub-statuses, appends history and emits an outbox event in one transaction.
type Service interface {
	Create(ctx context.Context, actor Actor, input CreateOrderInput) (*OrderView, error)
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderView, error)
	List(ctx context.Context, actor Actor, status *enums.OrderStatus, params pagination.Params) (*OrderPage, error)
	Load(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*TransitionResult, error)
	MarkProcessing(ctx context.Context, actor Actor, orderID uuid.UUID) (*TransitionResult, error)
	MarkShipped(ctx context.Context, actor Actor, input ShipmentInput) (*TransitionResult, error)
	MarkDelivered(ctx context.Context, actor Actor, orderID uuid.UUID) (*TransitionResult, error)
	ConfirmDelivery(ctx context.Context, actor Actor, orderID uuid.UUID) (*TransitionResult, error)
	Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*TransitionResult, error)
	RequestReturn(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*TransitionResult, error)
	CompleteReturn(ctx context.Context, actor Actor, orderID uuid.UUID) (*RefundOutcome, error)
	OverrideStatus(ctx context.Context, actor Actor, input OverrideInput) (*TransitionResult, error)
	BeginDispute(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, disputeID uuid.UUID) (*TransitionResult, error)
	SettleDispute(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, disputeID uuid.UUID, refund *refunds.Result) (*TransitionResult, error)
	ListAutoConfirmCandidates(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error)
}

type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Ledger  walletLedger
	Refunds refunder
	Windows Windows
	Logger  *logger.Logger
	Clock   func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	ledger  walletLedger
	refunds refunder
	windows Windows
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
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
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund engine required")
	}
	if params.Windows.Cancel <= 0 || params.Windows.Return <= 0 || params.Windows.Dispute <= 0 {
		return nil, fmt.Errorf("order windows must be positive")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		ledger:  params.Ledger,
		refunds: params.Refunds,
		windows: params.Windows,
		logg:    params.Logger,
		now:     func() time.Time { return params.Clock().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, actor Actor, input CreateOrderInput) (*OrderView, error) {
	if !actor.privileged() && (actor.Role != enums.ActorRoleCustomer || actor.ID != input.CustomerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "orders can only be placed for yourself")
	}
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	if input.Discount.IsNegative() || input.Shipping.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount and shipping must not be negative")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		vendorIDs := make([]uuid.UUID, 0, len(input.Items))
		for _, item := range input.Items {
			vendorIDs = append(vendorIDs, item.VendorID)
		}
		vendors, err := repo.FindVendors(ctx, vendorIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendors")
		}
		rates := make(map[uuid.UUID]decimal.Decimal, len(vendors))
		for _, v := range vendors {
			if v.Status != enums.VendorStatusApproved {
				return pkgerrors.New(pkgerrors.CodeValidation, "vendor is not accepting orders").
					WithDetails(map[string]any{"vendor_id": v.ID})
			}
			rates[v.ID] = v.CommissionRate
		}

		now := s.now()
		built := &models.Order{
			CustomerID:      input.CustomerID,
			Status:          enums.OrderStatusPendingPayment,
			Subtotal:        decimal.Zero,
			Discount:        input.Discount.Round(commission.Scale),
			Shipping:        input.Shipping.Round(commission.Scale),
			Currency:        strings.ToUpper(strings.TrimSpace(input.Currency)),
			AddressSnapshot: input.Address.Normalize(),
			CouponSnapshot:  input.Coupon,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if built.Currency == "" {
			built.Currency = "LKR"
		}
		for i, item := range input.Items {
			rate, ok := rates[item.VendorID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, "vendor not found").
					WithDetails(map[string]any{"item": i, "vendor_id": item.VendorID})
			}
			if item.Quantity <= 0 || !item.UnitPrice.IsPositive() || !item.UnitPrice.Equal(item.UnitPrice.Round(commission.Scale)) {
				return pkgerrors.New(pkgerrors.CodeValidation, "item quantity and unit price must be positive").
					WithDetails(map[string]any{"item": i})
			}
			total := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
			built.Items = append(built.Items, models.OrderItem{
				VendorID:       item.VendorID,
				ProductID:      item.ProductID,
				Title:          strings.TrimSpace(item.Title),
				UnitPrice:      item.UnitPrice,
				Quantity:       item.Quantity,
				Total:          total,
				CommissionRate: rate,
				Status:         enums.OrderStatusPendingPayment,
				CreatedAt:      now.Add(time.Duration(i) * time.Microsecond),
				UpdatedAt:      now,
			})
			built.Subtotal = built.Subtotal.Add(total)
		}
		built.Total = built.Subtotal.Sub(built.Discount).Add(built.Shipping)
		if built.Total.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds order subtotal")
		}
		if input.ExpectedTotal != nil && !input.ExpectedTotal.Equal(built.Total) {
			return pkgerrors.New(pkgerrors.CodeValidation, "order total does not match items").
				WithDetails(map[string]any{"expected": input.ExpectedTotal.StringFixed(2), "computed": built.Total.StringFixed(2)})
		}

		if err := repo.Create(ctx, built); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
			OrderID:   built.ID,
			Status:    enums.OrderStatusPendingPayment,
			ActorID:   actorID(actor),
			ActorRole: actor.Role,
			CreatedAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}
		order = built
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   built.ID,
			Actor:         actorRef(actor),
			Data: payloads.OrderCreatedEvent{
				OrderID:    built.ID,
				CustomerID: built.CustomerID,
				Total:      built.Total,
				Currency:   built.Currency,
				VendorIDs:  vendorsOf(built),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order created")
	view := NewOrderView(order)
	return &view, nil
}

func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderView, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	if err := canView(actor, order); err != nil {
		return nil, err
	}
	view := NewOrderView(order)
	return &view, nil
}

func (s *service) List(ctx context.Context, actor Actor, status *enums.OrderStatus, params pagination.Params) (*OrderPage, error) {
	filter := ListFilter{Status: status}
	switch actor.Role {
	case enums.ActorRoleCustomer:
		id := actor.ID
		filter.CustomerID = &id
	case enums.ActorRoleVendor:
		if actor.VendorID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
		}
		filter.VendorID = actor.VendorID
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list orders")
	}
	list, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Classify(pkgerrors.CodeDependency, err, "list orders")
	}
	page := &OrderPage{Orders: make([]OrderView, 0, len(list.Orders)), NextCursor: list.NextCursor}
	for i := range list.Orders {
		page.Orders = append(page.Orders, NewOrderView(&list.Orders[i]))
	}
	return page, nil
}

// Load returns the order with its items. With a transaction the row is locked.
func (s *service) Load(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	var (
		order *models.Order
		err   error
	)
	if tx != nil {
		order, err = repo.FindForUpdate(ctx, orderID)
	} else {
		order, err = repo.FindByID(ctx, orderID)
	}
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	return order, nil
}

// ConfirmPayment holds every vendor's gross in pending and records the
// accrued commission. Repeated confirmations are no-ops.
func (s *service) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	actor := SystemActor()
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.Load(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if paymentSettled(order.Status) {
			result = &TransitionResult{OrderID: order.ID, PreviousStatus: order.Status, Status: order.Status, ChangedAt: order.UpdatedAt}
			return nil
		}
		if order.Status != enums.OrderStatusPendingPayment {
			return pkgerrors.InvalidTransition("order", string(order.Status), string(enums.OrderStatusPaymentConfirmed))
		}
		if input.Amount != nil && !input.Amount.Equal(order.Total) {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment amount does not match order total").
				WithDetails(map[string]any{"order_total": order.Total.StringFixed(2), "paid": input.Amount.StringFixed(2)})
		}

		splits, err := splitsOf(order)
		if err != nil {
			return err
		}
		refType, refID := ledger.Ref(enums.ReferenceOrder, order.ID)
		vendors := make([]payloads.VendorAmount, 0, len(splits))
		for _, split := range splits {
			vendors = append(vendors, payloads.VendorAmount{
				VendorID:   split.VendorID,
				Gross:      split.Gross,
				Commission: split.Commission,
				Net:        split.VendorNet,
			})
			wallet, err := s.ledger.EnsureWallet(ctx, tx, split.VendorID)
			if err != nil {
				return err
			}
			escrow, err := s.ledger.OrderEscrow(ctx, tx, wallet.ID, order.ID)
			if err != nil {
				return err
			}
			if escrow.Held.IsPositive() {
				// already held before an override moved the order back
				continue
			}
			for _, item := range order.Items {
				if item.VendorID != split.VendorID {
					continue
				}
				line := commission.MustCompute(item.Total, item.CommissionRate)
				if _, err := s.ledger.PostTransaction(ctx, tx, ledger.Posting{
					WalletID:      wallet.ID,
					Type:          enums.WalletTxHold,
					Amount:        line.Gross,
					ReferenceType: refType,
					ReferenceID:   refID,
					Description:   fmt.Sprintf("Payment held for %s", item.Title),
				}); err != nil {
					return err
				}
				if line.Commission.IsZero() {
					continue
				}
				if _, err := s.ledger.PostTransaction(ctx, tx, ledger.Posting{
					WalletID:      wallet.ID,
					Type:          enums.WalletTxCommission,
					Amount:        line.Commission,
					ReferenceType: refType,
					ReferenceID:   refID,
					Description:   fmt.Sprintf("Platform commission %s%% on %s", line.Rate.String(), item.Title),
				}); err != nil {
					return err
				}
			}
		}

		if input.PaymentRef != "" {
			if err := repo.UpdatePaymentRef(ctx, order.ID, input.PaymentRef); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment reference")
			}
		}
		result, err = s.transition(ctx, tx, order, enums.OrderStatusPaymentConfirmed, actor, nil, nil, nil)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			Data: payloads.OrderPaymentConfirmedEvent{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				PaymentRef: input.PaymentRef,
				Vendors:    vendors,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, result)
	return result, nil
}

func (s *service) MarkProcessing(ctx context.Context, actor Actor, orderID uuid.UUID) (*TransitionResult, error) {
	return s.simple(ctx, actor, orderID, enums.OrderStatusProcessing, canFulfil, nil)
}

func (s *service) MarkShipped(ctx context.Context, actor Actor, input ShipmentInput) (*TransitionResult, error) {
	tracking := strings.TrimSpace(input.TrackingNumber)
	if tracking == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number required")
	}
	return s.simple(ctx, actor, input.OrderID, enums.OrderStatusShipped, canFulfil, func(tx *gorm.DB, order *models.Order) error {
		var vendorID *uuid.UUID
		if actor.Role == enums.ActorRoleVendor {
			vendorID = actor.VendorID
		}
		if _, err := s.repo.WithTx(tx).UpdateShipment(ctx, order.ID, vendorID, tracking, input.Carrier); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store tracking")
		}
		return nil
	})
}

func (s *service) MarkDelivered(ctx context.Context, actor Actor, orderID uuid.UUID) (*TransitionResult, error) {
	return s.simple(ctx, actor, orderID, enums.OrderStatusDelivered, canFulfil, nil)
}

// ConfirmDelivery releases each vendor's held gross: net to available,
// commission retained by the platform.
func (s *service) ConfirmDelivery(ctx context.Context, actor Actor, orderID uuid.UUID) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := canActAsCustomer(actor, order); err != nil {
			return err
		}
		if order.Status != enums.OrderStatusDelivered {
			return pkgerrors.InvalidTransition("order", string(order.Status), string(enums.OrderStatusDeliveryConfirmed))
		}
		splits, err := splitsOf(order)
		if err != nil {
			return err
		}
		refType, refID := ledger.Ref(enums.ReferenceOrder, order.ID)
		for _, split := range splits {
			wallet, escrow, err := s.escrowFor(ctx, tx, order.ID, split.VendorID)
			if err != nil {
				return err
			}
			if wallet == nil || escrow.HasRelease {
				continue
			}
			outstanding := escrow.Outstanding()
			if outstanding.IsZero() {
				// nothing was ever held, the status was forced past payment
				continue
			}
			if !outstanding.Equal(split.Gross) {
				return escrowMismatch(order.ID, split, outstanding)
			}
			if _, err := s.ledger.PostTransaction(ctx, tx, ledger.Posting{
				WalletID:      wallet.ID,
				Type:          enums.WalletTxRelease,
				Amount:        split.VendorNet,
				BasisAmount:   split.Gross,
				ReferenceType: refType,
				ReferenceID:   refID,
				Description:   fmt.Sprintf("Funds released for order %s", order.ID),
				CreatedBy:     actorID(actor),
			}); err != nil {
				return err
			}
		}
		result, err = s.transition(ctx, tx, order, enums.OrderStatusDeliveryConfirmed, actor, nil, nil, nil)
		if err != nil {
			return err
		}
		return s.emitStatus(ctx, tx, enums.EventOrderDeliveryConfirmed, order, result, actor, "")
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, result)
	return result, nil
}

// Cancel is allowed before fulfillment starts and within the cancel window.
// Held funds are reversed per vendor.
func (s *service) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*TransitionResult, error) {
	reason = strings.TrimSpace(reason)
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := canActAsCustomer(actor, order); err != nil {
			return err
		}
		if !CanTransition(order.Status, enums.OrderStatusCancelled) {
			return pkgerrors.InvalidTransition("order", string(order.Status), string(enums.OrderStatusCancelled))
		}
		if err := s.withinWindow(order.CreatedAt, s.windows.Cancel, "cancellation"); err != nil {
			return err
		}

		if err := s.reverseHolds(ctx, tx, order, actor); err != nil {
			return err
		}
		result, err = s.transition(ctx, tx, order, enums.OrderStatusCancelled, actor, optional(reason), nil, nil)
		if err != nil {
			return err
		}
		return s.emitStatus(ctx, tx, enums.EventOrderCancelled, order, result, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, result)
	return result, nil
}

func (s *service) reverseHolds(ctx context.Context, tx *gorm.DB, order *models.Order, actor Actor) error {
	splits, err := splitsOf(order)
	if err != nil {
		return err
	}
	refType, refID := ledger.Ref(enums.ReferenceOrder, order.ID)
	for _, split := range splits {
		wallet, escrow, err := s.escrowFor(ctx, tx, order.ID, split.VendorID)
		if err != nil {
			return err
		}
		if wallet == nil {
			continue
		}
		if escrow.HasRelease {
			return pkgerrors.New(pkgerrors.CodeConflict, "funds for this order were already released; refund through a return or dispute").
				WithDetails(map[string]any{"order_id": order.ID, "vendor_id": split.VendorID})
		}
		outstanding := escrow.Outstanding()
		if outstanding.IsZero() {
			continue
		}
		if !outstanding.Equal(split.Gross) {
			return escrowMismatch(order.ID, split, outstanding)
		}
		if _, err := s.ledger.PostTransaction(ctx, tx, ledger.Posting{
			WalletID:      wallet.ID,
			Type:          enums.WalletTxHold,
			Amount:        outstanding.Neg(),
			ReferenceType: refType,
			ReferenceID:   refID,
			Description:   fmt.Sprintf("Hold reversed, order %s cancelled", order.ID),
			CreatedBy:     actorID(actor),
		}); err != nil {
			return err
		}
		if escrow.Commission.IsZero() {
			continue
		}
		if _, err := s.ledger.PostTransaction(ctx, tx, ledger.Posting{
			WalletID:      wallet.ID,
			Type:          enums.WalletTxCommission,
			Amount:        escrow.Commission.Neg(),
			ReferenceType: refType,
			ReferenceID:   refID,
			Description:   fmt.Sprintf("Commission reversed, order %s cancelled", order.ID),
			CreatedBy:     actorID(actor),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) RequestReturn(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*TransitionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return reason required")
	}
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := canActAsCustomer(actor, order); err != nil {
			return err
		}
		if !CanTransition(order.Status, enums.OrderStatusReturnRequested) {
			return pkgerrors.InvalidTransition("order", string(order.Status), string(enums.OrderStatusReturnRequested))
		}
		anchor, err := s.deliveryAnchor(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if err := s.withinWindow(anchor, s.windows.Return, "return"); err != nil {
			return err
		}
		result, err = s.transition(ctx, tx, order, enums.OrderStatusReturnRequested, actor, &reason, nil, nil)
		if err != nil {
			return err
		}
		return s.emitStatus(ctx, tx, enums.EventOrderReturnRequested, order, result, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, result)
	return result, nil
}

// CompleteReturn refunds the whole order once the goods are back.
func (s *service) CompleteReturn(ctx context.Context, actor Actor, orderID uuid.UUID) (*RefundOutcome, error) {
	if !actor.privileged() && actor.Role != enums.ActorRoleVendor {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the vendor or an admin can complete a return")
	}
	var outcome *RefundOutcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := canFulfil(actor, order); err != nil {
			return err
		}
		if order.Status != enums.OrderStatusReturnRequested {
			return pkgerrors.InvalidTransition("order", string(order.Status), string(enums.OrderStatusReturned))
		}
		refund, err := s.refunds.Process(ctx, tx, refunds.Request{
			Order:         order,
			ReferenceType: enums.ReferenceOrder,
			ReferenceID:   order.ID,
			ActorID:       actorID(actor),
		})
		if err != nil {
			return err
		}
		refType, refID := ledger.Ref(enums.ReferenceOrder, order.ID)
		result, err := s.transition(ctx, tx, order, enums.OrderStatusReturned, actor, nil, refType, refID)
		if err != nil {
			return err
		}
		outcome = &RefundOutcome{TransitionResult: *result, RefundAmount: refund.Plan.RefundAmount, AlreadyProcessed: refund.AlreadyProcessed}
		return s.emitRefunded(ctx, tx, order, nil, refund, actor)
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, &outcome.TransitionResult)
	return outcome, nil
}

// OverrideStatus lets an admin force any status. It never touches the ledger;
// later transitions read the wallet log to decide what is left to post.
func (s *service) OverrideStatus(ctx context.Context, actor Actor, input OverrideInput) (*TransitionResult, error) {
	if actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	reason := strings.TrimSpace(input.Reason)
	if len(reason) < minOverrideReasonLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason must be at least %d characters", minOverrideReasonLen))
	}
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Load(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status == input.Target {
			return pkgerrors.InvalidTransition("order", string(order.Status), string(input.Target))
		}
		result, err = s.transition(ctx, tx, order, input.Target, actor, &reason, nil, nil)
		if err != nil {
			return err
		}
		return s.emitStatus(ctx, tx, enums.EventOrderStatusOverridden, order, result, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithOrderID(ctx, result.OrderID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": result.PreviousStatus, "to": result.Status, "actor_id": actor.ID.String()})
	s.logg.Warn(logCtx, "order status overridden")
	return result, nil
}

// BeginDispute is the order side of opening a dispute. It runs inside the
// dispute service's transaction with the order already locked.
func (s *service) BeginDispute(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, disputeID uuid.UUID) (*TransitionResult, error) {
	if err := canActAsCustomer(actor, order); err != nil {
		return nil, err
	}
	if !CanTransition(order.Status, enums.OrderStatusDisputed) {
		return nil, pkgerrors.InvalidTransition("order", string(order.Status), string(enums.OrderStatusDisputed))
	}
	anchor, err := s.deliveryAnchor(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	if err := s.withinWindow(anchor, s.windows.Dispute, "dispute"); err != nil {
		return nil, err
	}
	refType, refID := ledger.Ref(enums.ReferenceDispute, disputeID)
	result, err := s.transition(ctx, tx, order, enums.OrderStatusDisputed, actor, nil, refType, refID)
	if err != nil {
		return nil, err
	}
	if err := s.emitStatus(ctx, tx, enums.EventOrderStatusChanged, order, result, actor, ""); err != nil {
		return nil, err
	}
	return result, nil
}

// SettleDispute moves a disputed order to REFUNDED when funds were reversed,
// otherwise back to the status it had before the dispute.
func (s *service) SettleDispute(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, disputeID uuid.UUID, refund *refunds.Result) (*TransitionResult, error) {
	if order.Status != enums.OrderStatusDisputed {
		return nil, pkgerrors.InvalidTransition("order", string(order.Status), string(enums.OrderStatusRefunded))
	}
	refType, refID := ledger.Ref(enums.ReferenceDispute, disputeID)
	if refund != nil {
		result, err := s.transition(ctx, tx, order, enums.OrderStatusRefunded, actor, nil, refType, refID)
		if err != nil {
			return nil, err
		}
		if err := s.emitRefunded(ctx, tx, order, &disputeID, refund, actor); err != nil {
			return nil, err
		}
		return result, nil
	}

	opened, err := s.repo.WithTx(tx).LatestHistory(ctx, order.ID, enums.OrderStatusDisputed)
	if err != nil {
		return nil, notFoundOr(err, "load dispute history")
	}
	target := enums.OrderStatusDeliveryConfirmed
	if opened.PreviousStatus != nil {
		target = *opened.PreviousStatus
	}
	if !CanTransition(order.Status, target) {
		return nil, pkgerrors.InvalidTransition("order", string(order.Status), string(target))
	}
	result, err := s.transition(ctx, tx, order, target, actor, nil, refType, refID)
	if err != nil {
		return nil, err
	}
	if err := s.emitStatus(ctx, tx, enums.EventOrderStatusChanged, order, result, actor, ""); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ListAutoConfirmCandidates(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error) {
	ids, err := s.repo.ListDeliveredBefore(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list delivered orders")
	}
	return ids, nil
}

type guard func(actor Actor, order *models.Order) error

// simple runs a transition without ledger effects.
func (s *service) simple(ctx context.Context, actor Actor, orderID uuid.UUID, target enums.OrderStatus, allowed guard, extra func(tx *gorm.DB, order *models.Order) error) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := allowed(actor, order); err != nil {
			return err
		}
		if !CanTransition(order.Status, target) {
			return pkgerrors.InvalidTransition("order", string(order.Status), string(target))
		}
		if extra != nil {
			if err := extra(tx, order); err != nil {
				return err
			}
		}
		result, err = s.transition(ctx, tx, order, target, actor, nil, nil, nil)
		if err != nil {
			return err
		}
		return s.emitStatus(ctx, tx, enums.EventOrderStatusChanged, order, result, actor, "")
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, result)
	return result, nil
}

func (s *service) transition(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, actor Actor, reason *string, refType *enums.ReferenceType, refID *uuid.UUID) (*TransitionResult, error) {
	repo := s.repo.WithTx(tx)
	previous := order.Status
	now := s.now()
	if err := repo.UpdateStatus(ctx, order.ID, target); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
		OrderID:        order.ID,
		Status:         target,
		PreviousStatus: &previous,
		ActorID:        actorID(actor),
		ActorRole:      actor.Role,
		Reason:         reason,
		ReferenceType:  refType,
		ReferenceID:    refID,
		CreatedAt:      now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}
	order.Status = target
	for i := range order.Items {
		order.Items[i].Status = target
	}
	return &TransitionResult{OrderID: order.ID, PreviousStatus: previous, Status: target, ChangedAt: now}, nil
}

// deliveryAnchor is when the customer's return and dispute windows start.
func (s *service) deliveryAnchor(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (time.Time, error) {
	repo := s.repo.WithTx(tx)
	for _, status := range []enums.OrderStatus{enums.OrderStatusDeliveryConfirmed, enums.OrderStatusDelivered} {
		entry, err := repo.LatestHistory(ctx, orderID, status)
		if err == nil {
			return entry.CreatedAt, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery history")
		}
	}
	return time.Time{}, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order has no delivery record")
}

func (s *service) withinWindow(start time.Time, window time.Duration, name string) error {
	deadline := start.Add(window)
	if s.now().After(deadline) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s window has expired", name)).
			WithDetails(map[string]any{"deadline": deadline.UTC()})
	}
	return nil
}

func (s *service) emitStatus(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, order *models.Order, result *TransitionResult, actor Actor, reason string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actor),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			From:       result.PreviousStatus,
			To:         result.Status,
			ActorRole:  actor.Role,
			Reason:     reason,
			VendorIDs:  vendorsOf(order),
		},
	})
}

func (s *service) emitRefunded(ctx context.Context, tx *gorm.DB, order *models.Order, disputeID *uuid.UUID, refund *refunds.Result, actor Actor) error {
	allocations := make([]payloads.RefundAllocation, 0, len(refund.Plan.Allocations))
	for _, a := range refund.Plan.Allocations {
		allocations = append(allocations, payloads.RefundAllocation{
			VendorID:           a.VendorID,
			Share:              a.Share,
			CommissionReversed: a.CommissionReversed,
			NetReversed:        a.NetReversed,
			Source:             a.Source,
		})
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actor),
		Data: payloads.OrderRefundedEvent{
			OrderID:      order.ID,
			CustomerID:   order.CustomerID,
			DisputeID:    disputeID,
			Status:       order.Status,
			RefundAmount: refund.Plan.RefundAmount,
			Allocations:  allocations,
		},
	})
}

func (s *service) logTransition(ctx context.Context, result *TransitionResult) {
	logCtx := s.logg.WithOrderID(ctx, result.OrderID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": result.PreviousStatus, "to": result.Status})
	s.logg.Info(logCtx, "order status changed")
}

// escrowFor returns a nil wallet when the vendor has none yet, which means
// nothing was ever held for them.
func (s *service) escrowFor(ctx context.Context, tx *gorm.DB, orderID, vendorID uuid.UUID) (*models.Wallet, ledger.OrderEscrow, error) {
	wallet, err := s.ledger.WalletForVendor(ctx, tx, vendorID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, ledger.OrderEscrow{}, nil
		}
		return nil, ledger.OrderEscrow{}, err
	}
	escrow, err := s.ledger.OrderEscrow(ctx, tx, wallet.ID, orderID)
	if err != nil {
		return nil, ledger.OrderEscrow{}, err
	}
	return wallet, escrow, nil
}

// escrowMismatch is returned when part of the held gross already left
// pending, so neither a full release nor a full reversal is correct.
func escrowMismatch(orderID uuid.UUID, split commission.VendorSplit, outstanding decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "held funds do not match the order; settle with an adjustment").
		WithDetails(map[string]any{
			"order_id":    orderID,
			"vendor_id":   split.VendorID,
			"gross":       split.Gross.StringFixed(2),
			"outstanding": outstanding.StringFixed(2),
		})
}

func splitsOf(order *models.Order) ([]commission.VendorSplit, error) {
	lines := make([]commission.Line, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, commission.Line{VendorID: item.VendorID, Total: item.Total, Rate: item.CommissionRate})
	}
	splits, err := commission.ByVendor(lines)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute vendor splits")
	}
	return splits, nil
}

func vendorsOf(order *models.Order) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(order.Items))
	out := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		if _, ok := seen[item.VendorID]; ok {
			continue
		}
		seen[item.VendorID] = struct{}{}
		out = append(out, item.VendorID)
	}
	return out
}

func hasVendor(order *models.Order, vendorID uuid.UUID) bool {
	for _, item := range order.Items {
		if item.VendorID == vendorID {
			return true
		}
	}
	return false
}

func canView(actor Actor, order *models.Order) error {
	switch {
	case actor.privileged():
		return nil
	case actor.Role == enums.ActorRoleCustomer && actor.ID == order.CustomerID:
		return nil
	case actor.Role == enums.ActorRoleVendor && actor.VendorID != nil && hasVendor(order, *actor.VendorID):
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func canActAsCustomer(actor Actor, order *models.Order) error {
	if actor.privileged() || (actor.Role == enums.ActorRoleCustomer && actor.ID == order.CustomerID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
}

func canFulfil(actor Actor, order *models.Order) error {
	if actor.privileged() || (actor.Role == enums.ActorRoleVendor && actor.VendorID != nil && hasVendor(order, *actor.VendorID)) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order does not include vendor items")
}

func actorID(actor Actor) *uuid.UUID {
	if actor.ID == uuid.Nil {
		return nil
	}
	id := actor.ID
	return &id
}

func actorRef(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actorID(actor), VendorID: actor.VendorID, Role: string(actor.Role)}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func notFoundOr(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
