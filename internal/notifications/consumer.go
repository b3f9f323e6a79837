package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/subscriber"
)

const settlementNotificationConsumer = "settlement-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type processor interface {
	Process(ctx context.Context, consumer string, eventID uuid.UUID, handle func(context.Context) error) (bool, error)
}

// Notifier delivers a stored notification outside the inbox (email, push).
// Failures are logged and never block the inbox write.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logg *logger.Logger
}

// NewLogNotifier returns the default notifier.
func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) Notify(ctx context.Context, notification models.Notification) error {
	fields := map[string]any{
		"notification_id": notification.ID.String(),
		"recipient_role":  notification.RecipientRole,
		"type":            notification.Type,
		"title":           notification.Title,
	}
	if notification.RecipientID != nil {
		fields["recipient_id"] = notification.RecipientID.String()
	}
	n.logg.Info(n.logg.WithFields(ctx, fields), "notification dispatched")
	return nil
}

// Consumer turns settlement events into inbox notifications.
type Consumer struct {
	repo        repository
	notifier    Notifier
	idempotency processor
	logg        *logger.Logger
}

// NewConsumer builds a settlement notification consumer.
func NewConsumer(repo repository, notifier Notifier, manager processor, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:        repo,
		notifier:    notifier,
		idempotency: manager,
		logg:        logg,
	}, nil
}

// Handle processes one delivery. Malformed payloads are acknowledged and
// logged. Storage and idempotency failures are returned for redelivery.
func (c *Consumer) Handle(ctx context.Context, d subscriber.Delivery) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": d.MessageID,
		"event_type": d.EventType,
	})

	if !handled(d.EventType) {
		c.logg.Debug(logCtx, "skipping event without notifications")
		return nil
	}

	envelope, err := outbox.DecodeEnvelope(d.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return nil
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return nil
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	notifications, err := compose(d.EventType, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return nil
	}

	ran, err := c.idempotency.Process(ctx, settlementNotificationConsumer, eventID, func(ctx context.Context) error {
		return c.store(logCtx, eventID, notifications)
	})
	if err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		return err
	}
	if !ran {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}
	c.logg.Info(c.logg.WithField(logCtx, "count", len(notifications)), "notifications stored")
	return nil
}

func (c *Consumer) store(ctx context.Context, eventID uuid.UUID, notifications []models.Notification) error {
	for i := range notifications {
		n := notifications[i]
		n.EventID = eventID
		if err := c.repo.Create(ctx, &n); err != nil {
			if db.IsUniqueViolation(err, "") {
				continue
			}
			return fmt.Errorf("store notification: %w", err)
		}
		if err := c.notifier.Notify(ctx, n); err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "notification_id", n.ID.String()), "notifier failed: "+err.Error())
		}
	}
	return nil
}
