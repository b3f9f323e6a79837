package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/pagination"
)

// Repository defines persistence operations for orders, their items and the
// status history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
	UpdatePaymentRef(ctx context.Context, orderID uuid.UUID, paymentRef string) error
	UpdateShipment(ctx context.Context, orderID uuid.UUID, vendorID *uuid.UUID, tracking string, carrier *string) (int64, error)
	AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	LatestHistory(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*models.OrderStatusHistory, error)
	FindVendors(ctx context.Context, vendorIDs []uuid.UUID) ([]models.Vendor, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error)
	ListDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}
