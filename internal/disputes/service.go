package disputes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/internal/refunds"
	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-settlement/pkg/pagination"
)

const maxEvidence = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type orderMachine interface {
	Load(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	BeginDispute(ctx context.Context, tx *gorm.DB, actor orders.Actor, order *models.Order, disputeID uuid.UUID) (*orders.TransitionResult, error)
	SettleDispute(ctx context.Context, tx *gorm.DB, actor orders.Actor, order *models.Order, disputeID uuid.UUID, refund *refunds.Result) (*orders.TransitionResult, error)
}

type refunder interface {
	Process(ctx context.Context, tx *gorm.DB, req refunds.Request) (*refunds.Result, error)
}

// Service runs the dispute machine: OPEN -> IN_REVIEW -> one of the
// terminal outcomes. Resolution settles the order in the same transaction.
type Service interface {
	Open(ctx context.Context, actor Actor, input OpenInput) (*DisputeView, error)
	AddComment(ctx context.Context, actor Actor, disputeID uuid.UUID, body string) (*CommentView, error)
	StartReview(ctx context.Context, actor Actor, disputeID uuid.UUID) (*DisputeView, error)
	Resolve(ctx context.Context, actor Actor, input ResolveInput) (*ResolveResult, error)
	Get(ctx context.Context, actor Actor, disputeID uuid.UUID) (*DisputeView, error)
	List(ctx context.Context, actor Actor, status *enums.DisputeStatus, params pagination.Params) (*DisputePage, error)
}

type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Orders  orderMachine
	Refunds refunder
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	orders  orderMachine
	refunds refunder
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("disputes repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order machine required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund engine required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		orders:  params.Orders,
		refunds: params.Refunds,
		logg:    params.Logger,
	}, nil
}

func (s *service) Open(ctx context.Context, actor Actor, input OpenInput) (*DisputeView, error) {
	if actor.Role != enums.ActorRoleCustomer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only customers can open disputes")
	}
	reason := strings.TrimSpace(input.Reason)
	description := strings.TrimSpace(input.Description)
	if reason == "" || description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason and description are required")
	}
	if len(input.Evidence) > maxEvidence {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d evidence links", maxEvidence))
	}

	var dispute *models.Dispute
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.Load(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if order.CustomerID != actor.ID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		dispute = &models.Dispute{
			OrderID:     order.ID,
			CustomerID:  order.CustomerID,
			Reason:      reason,
			Description: description,
			Evidence:    pq.StringArray(cleanEvidence(input.Evidence)),
			Status:      enums.DisputeStatusOpen,
		}
		if err := s.repo.WithTx(tx).Create(ctx, dispute); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already has an active dispute")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispute")
		}
		if _, err := s.orders.BeginDispute(ctx, tx, actor, order, dispute.ID); err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventDisputeOpened, dispute, actor, func(e *payloads.DisputeEvent) {
			e.Reason = reason
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logCtx(ctx, dispute), "dispute opened")
	view := NewDisputeView(dispute)
	return &view, nil
}

// AddComment appends to the thread of a dispute that is still open or in review.
func (s *service) AddComment(ctx context.Context, actor Actor, disputeID uuid.UUID, body string) (*CommentView, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment body required")
	}
	var comment *models.DisputeComment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		dispute, err := s.load(ctx, repo, disputeID)
		if err != nil {
			return err
		}
		if err := s.canParticipate(ctx, tx, actor, dispute); err != nil {
			return err
		}
		if dispute.Status.IsTerminal() {
			return pkgerrors.AlreadyTerminal("dispute", string(dispute.Status), "COMMENT")
		}
		comment = &models.DisputeComment{
			DisputeID:  dispute.ID,
			AuthorID:   actor.ID,
			AuthorRole: actor.Role,
			Body:       body,
		}
		if err := repo.AddComment(ctx, comment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add dispute comment")
		}
		return s.emit(ctx, tx, enums.EventDisputeCommentAdded, dispute, actor, func(e *payloads.DisputeEvent) {
			e.CommentID = &comment.ID
			e.AuthorRole = actor.Role
		})
	})
	if err != nil {
		return nil, err
	}
	return &CommentView{
		ID:         comment.ID,
		AuthorID:   comment.AuthorID,
		AuthorRole: comment.AuthorRole,
		Body:       comment.Body,
		CreatedAt:  comment.CreatedAt,
	}, nil
}

func (s *service) StartReview(ctx context.Context, actor Actor, disputeID uuid.UUID) (*DisputeView, error) {
	if actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	var dispute *models.Dispute
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		dispute, err = s.load(ctx, repo, disputeID)
		if err != nil {
			return err
		}
		if err := checkMove(dispute.Status, enums.DisputeStatusOpen, enums.DisputeStatusInReview); err != nil {
			return err
		}
		moved, err := repo.Transition(ctx, dispute.ID, enums.DisputeStatusOpen, enums.DisputeStatusInReview, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start dispute review")
		}
		if !moved {
			return pkgerrors.InvalidTransition("dispute", string(dispute.Status), string(enums.DisputeStatusInReview))
		}
		dispute.Status = enums.DisputeStatusInReview
		return s.emit(ctx, tx, enums.EventDisputeInReview, dispute, actor, nil)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logCtx(ctx, dispute), "dispute in review")
	view := NewDisputeView(dispute)
	return &view, nil
}

// Resolve closes the dispute. A customer-favour outcome reverses the order's
// funds through the refund engine; every other outcome returns the order to
// where it stood before the dispute. Both happen in one transaction with the
// dispute update, so a resolved dispute can never be refunded twice.
func (s *service) Resolve(ctx context.Context, actor Actor, input ResolveInput) (*ResolveResult, error) {
	if actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !input.Resolution.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown resolution type")
	}
	if input.CustomRefundAmount != nil && input.Resolution != enums.DisputeResolutionCustomerFavor {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount only applies to customer favour resolutions")
	}
	target := input.Resolution.TargetStatus()

	var result *ResolveResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		dispute, err := s.load(ctx, repo, input.DisputeID)
		if err != nil {
			return err
		}
		if err := checkMove(dispute.Status, enums.DisputeStatusInReview, target); err != nil {
			return err
		}
		order, err := s.orders.Load(ctx, tx, dispute.OrderID)
		if err != nil {
			return err
		}

		var refund *refunds.Result
		if input.Resolution == enums.DisputeResolutionCustomerFavor {
			refund, err = s.refunds.Process(ctx, tx, refunds.Request{
				Order:         order,
				Amount:        input.CustomRefundAmount,
				ReferenceType: enums.ReferenceDispute,
				ReferenceID:   dispute.ID,
				ActorID:       &actor.ID,
			})
			if err != nil {
				return err
			}
		}
		moved, err := s.orders.SettleDispute(ctx, tx, actor, order, dispute.ID, refund)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		resolution := input.Resolution
		fields := map[string]any{
			"resolution_type": resolution,
			"resolved_by":     actor.ID,
			"resolved_at":     now,
		}
		if refund != nil {
			fields["refund_amount"] = refund.Plan.RefundAmount
			amount := refund.Plan.RefundAmount
			dispute.RefundAmount = &amount
		}
		ok, err := repo.Transition(ctx, dispute.ID, enums.DisputeStatusInReview, target, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve dispute")
		}
		if !ok {
			return pkgerrors.AlreadyTerminal("dispute", string(dispute.Status), string(target))
		}
		resolver := actor.ID
		dispute.Status = target
		dispute.ResolutionType = &resolution
		dispute.ResolvedBy = &resolver
		dispute.ResolvedAt = &now

		result = &ResolveResult{
			Dispute:        NewDisputeView(dispute),
			PreviousStatus: enums.DisputeStatusInReview,
			OrderStatus:    moved.Status,
			PreviousOrder:  moved.PreviousStatus,
			RefundAmount:   dispute.RefundAmount,
		}
		if refund != nil {
			result.AlreadyProcessed = refund.AlreadyProcessed
			for _, a := range refund.Plan.Allocations {
				result.Allocations = append(result.Allocations, AllocationView{
					VendorID:           a.VendorID,
					Share:              a.Share,
					CommissionReversed: a.CommissionReversed,
					NetReversed:        a.NetReversed,
					Source:             a.Source,
				})
			}
		}
		return s.emit(ctx, tx, enums.EventDisputeResolved, dispute, actor, func(e *payloads.DisputeEvent) {
			e.Resolution = &resolution
			e.RefundAmount = dispute.RefundAmount
		})
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"dispute_id": result.Dispute.ID.String(),
		"resolution": input.Resolution,
		"order_to":   result.OrderStatus,
	})
	s.logg.Info(s.logg.WithOrderID(logCtx, result.Dispute.OrderID.String()), "dispute resolved")
	return result, nil
}

func (s *service) Get(ctx context.Context, actor Actor, disputeID uuid.UUID) (*DisputeView, error) {
	dispute, err := s.repo.FindByID(ctx, disputeID)
	if err != nil {
		return nil, notFoundOr(err, "load dispute")
	}
	if err := s.canParticipate(ctx, nil, actor, dispute); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
	}
	view := NewDisputeView(dispute)
	return &view, nil
}

func (s *service) List(ctx context.Context, actor Actor, status *enums.DisputeStatus, params pagination.Params) (*DisputePage, error) {
	filter := ListFilter{Status: status}
	switch actor.Role {
	case enums.ActorRoleAdmin:
	case enums.ActorRoleCustomer:
		id := actor.ID
		filter.CustomerID = &id
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list disputes")
	}
	rows, next, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Classify(pkgerrors.CodeDependency, err, "list disputes")
	}
	page := &DisputePage{Disputes: make([]DisputeView, 0, len(rows)), NextCursor: next}
	for i := range rows {
		page.Disputes = append(page.Disputes, NewDisputeView(&rows[i]))
	}
	return page, nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Dispute, error) {
	dispute, err := repo.FindForUpdate(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "load dispute")
	}
	return dispute, nil
}

// canParticipate allows the customer who opened the dispute, vendors with
// items on the order, and admins.
func (s *service) canParticipate(ctx context.Context, tx *gorm.DB, actor Actor, dispute *models.Dispute) error {
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleCustomer:
		if actor.ID == dispute.CustomerID {
			return nil
		}
	case enums.ActorRoleVendor:
		if actor.VendorID == nil {
			break
		}
		order, err := s.orders.Load(ctx, tx, dispute.OrderID)
		if err != nil {
			return err
		}
		for _, item := range order.Items {
			if item.VendorID == *actor.VendorID {
				return nil
			}
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this dispute")
}

func checkMove(current, required, target enums.DisputeStatus) error {
	if current.IsTerminal() {
		return pkgerrors.AlreadyTerminal("dispute", string(current), string(target))
	}
	if current != required {
		return pkgerrors.InvalidTransition("dispute", string(current), string(target))
	}
	return nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, dispute *models.Dispute, actor Actor, decorate func(*payloads.DisputeEvent)) error {
	event := payloads.DisputeEvent{
		DisputeID:  dispute.ID,
		OrderID:    dispute.OrderID,
		CustomerID: dispute.CustomerID,
		Status:     dispute.Status,
	}
	if decorate != nil {
		decorate(&event)
	}
	userID := actor.ID
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateDispute,
		AggregateID:   dispute.ID,
		Actor:         &outbox.ActorRef{UserID: &userID, VendorID: actor.VendorID, Role: string(actor.Role)},
		Data:          event,
	})
}

func (s *service) logCtx(ctx context.Context, dispute *models.Dispute) context.Context {
	ctx = s.logg.WithOrderID(ctx, dispute.OrderID.String())
	return s.logg.WithFields(ctx, map[string]any{"dispute_id": dispute.ID.String(), "status": dispute.Status})
}

func cleanEvidence(in []string) []string {
	out := make([]string, 0, len(in))
	for _, link := range in {
		if link = strings.TrimSpace(link); link != "" {
			out = append(out, link)
		}
	}
	return out
}

func notFoundOr(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
