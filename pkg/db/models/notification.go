package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

// Notification is an in-app inbox entry derived from a settlement event.
// Admin notifications carry no recipient id and are visible to every admin.
type Notification struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID       uuid.UUID              `gorm:"column:event_id;type:uuid;not null"`
	RecipientRole enums.ActorRole        `gorm:"column:recipient_role;not null"`
	RecipientID   *uuid.UUID             `gorm:"column:recipient_id;type:uuid"`
	Type          enums.NotificationType `gorm:"column:type;type:notification_type;not null"`
	Title         string                 `gorm:"column:title;not null"`
	Message       string                 `gorm:"column:message;not null"`
	Link          *string                `gorm:"column:link"`
	ReadAt        *time.Time             `gorm:"column:read_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
