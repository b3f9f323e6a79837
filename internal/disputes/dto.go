package disputes

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

// Actor is shared with the order machine so dispute transitions are
// attributed the same way in order history.
type Actor = orders.Actor

type OpenInput struct {
	OrderID     uuid.UUID
	Reason      string
	Description string
	Evidence    []string
}

type ResolveInput struct {
	DisputeID          uuid.UUID
	Resolution         enums.DisputeResolution
	CustomRefundAmount *decimal.Decimal
}

type ListFilter struct {
	CustomerID *uuid.UUID
	OrderID    *uuid.UUID
	Status     *enums.DisputeStatus
}

type CommentView struct {
	ID         uuid.UUID       `json:"id"`
	AuthorID   uuid.UUID       `json:"author_id"`
	AuthorRole enums.ActorRole `json:"author_role"`
	Body       string          `json:"body"`
	CreatedAt  time.Time       `json:"created_at"`
}

type DisputeView struct {
	ID             uuid.UUID                `json:"id"`
	OrderID        uuid.UUID                `json:"order_id"`
	CustomerID     uuid.UUID                `json:"customer_id"`
	Reason         string                   `json:"reason"`
	Description    string                   `json:"description"`
	Evidence       []string                 `json:"evidence"`
	Status         enums.DisputeStatus      `json:"status"`
	ResolutionType *enums.DisputeResolution `json:"resolution_type,omitempty"`
	RefundAmount   *decimal.Decimal         `json:"refund_amount,omitempty"`
	ResolvedBy     *uuid.UUID               `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time               `json:"resolved_at,omitempty"`
	Comments       []CommentView            `json:"comments,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}

// ResolveResult reports the dispute decision together with the order move
// and, for customer-favour outcomes, the per-vendor reversal.
type ResolveResult struct {
	Dispute          DisputeView         `json:"dispute"`
	PreviousStatus   enums.DisputeStatus `json:"previous_status"`
	OrderStatus      enums.OrderStatus   `json:"order_status"`
	PreviousOrder    enums.OrderStatus   `json:"previous_order_status"`
	RefundAmount     *decimal.Decimal    `json:"refund_amount,omitempty"`
	Allocations      []AllocationView    `json:"allocations,omitempty"`
	AlreadyProcessed bool                `json:"already_processed"`
}

type AllocationView struct {
	VendorID           uuid.UUID          `json:"vendor_id"`
	Share              decimal.Decimal    `json:"share"`
	CommissionReversed decimal.Decimal    `json:"commission_reversed"`
	NetReversed        decimal.Decimal    `json:"net_reversed"`
	Source             enums.WalletBucket `json:"source"`
}

type DisputePage struct {
	Disputes   []DisputeView `json:"disputes"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

func NewDisputeView(d *models.Dispute) DisputeView {
	view := DisputeView{
		ID:             d.ID,
		OrderID:        d.OrderID,
		CustomerID:     d.CustomerID,
		Reason:         d.Reason,
		Description:    d.Description,
		Evidence:       []string(d.Evidence),
		Status:         d.Status,
		ResolutionType: d.ResolutionType,
		RefundAmount:   d.RefundAmount,
		ResolvedBy:     d.ResolvedBy,
		ResolvedAt:     d.ResolvedAt,
		CreatedAt:      d.CreatedAt,
	}
	if view.Evidence == nil {
		view.Evidence = []string{}
	}
	for _, c := range d.Comments {
		view.Comments = append(view.Comments, CommentView{
			ID:         c.ID,
			AuthorID:   c.AuthorID,
			AuthorRole: c.AuthorRole,
			Body:       c.Body,
			CreatedAt:  c.CreatedAt,
		})
	}
	return view
}
