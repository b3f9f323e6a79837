package notifications

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
)

type composer func(data json.RawMessage) ([]models.Notification, error)

// composers lists the events that produce inbox entries. Wallet postings and
// comment events are intentionally silent.
var composers = map[enums.OutboxEventType]composer{
	enums.EventOrderCreated:           composeOrderCreated,
	enums.EventOrderPaymentConfirmed:  composePaymentConfirmed,
	enums.EventOrderStatusChanged:     composeStatusChanged,
	enums.EventOrderDeliveryConfirmed: composeDeliveryConfirmed,
	enums.EventOrderCancelled:         composeStatusChanged,
	enums.EventOrderReturnRequested:   composeStatusChanged,
	enums.EventOrderStatusOverridden:  composeStatusChanged,
	enums.EventOrderRefunded:          composeRefunded,
	enums.EventPayoutRequested:        composePayoutRequested,
	enums.EventPayoutApproved:         composePayout,
	enums.EventPayoutCompleted:        composePayout,
	enums.EventPayoutFailed:           composePayout,
	enums.EventDisputeOpened:          composeDisputeOpened,
	enums.EventDisputeInReview:        composeDisputeUpdate,
	enums.EventDisputeResolved:        composeDisputeUpdate,
}

func handled(eventType enums.OutboxEventType) bool {
	_, ok := composers[eventType]
	return ok
}

func compose(eventType enums.OutboxEventType, data json.RawMessage) ([]models.Notification, error) {
	fn, ok := composers[eventType]
	if !ok {
		return nil, nil
	}
	return fn(data)
}

func notice(role enums.ActorRole, id *uuid.UUID, typ enums.NotificationType, title, message, link string) models.Notification {
	n := models.Notification{
		RecipientRole: role,
		RecipientID:   id,
		Type:          typ,
		Title:         title,
		Message:       message,
	}
	if link != "" {
		n.Link = &link
	}
	return n
}

func customer(id uuid.UUID, typ enums.NotificationType, title, message, link string) models.Notification {
	return notice(enums.ActorRoleCustomer, &id, typ, title, message, link)
}

func vendor(id uuid.UUID, typ enums.NotificationType, title, message, link string) models.Notification {
	return notice(enums.ActorRoleVendor, &id, typ, title, message, link)
}

func admins(typ enums.NotificationType, title, message, link string) models.Notification {
	return notice(enums.ActorRoleAdmin, nil, typ, title, message, link)
}

func orderLink(id uuid.UUID) string   { return "/orders/" + id.String() }
func payoutLink(id uuid.UUID) string  { return "/payouts/" + id.String() }
func disputeLink(id uuid.UUID) string { return "/disputes/" + id.String() }

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func composeOrderCreated(data json.RawMessage) ([]models.Notification, error) {
	var evt payloads.OrderCreatedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	link := orderLink(evt.OrderID)
	out := []models.Notification{
		customer(evt.CustomerID, enums.NotificationTypeOrderUpdate, "Order placed",
			fmt.Sprintf("Order %s for %s %s is awaiting payment.", shortID(evt.OrderID), evt.Total.StringFixed(2), evt.Currency), link),
	}
	for _, id := range evt.VendorIDs {
		out = append(out, vendor(id, enums.NotificationTypeOrderUpdate, "New order",
			fmt.Sprintf("Order %s includes your items.", shortID(evt.OrderID)), link))
	}
	return out, nil
}

func composePaymentConfirmed(data json.RawMessage) ([]models.Notification, error) {
	var evt payloads.OrderPaymentConfirmedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	link := orderLink(evt.OrderID)
	out := []models.Notification{
		customer(evt.CustomerID, enums.NotificationTypeOrderUpdate, "Payment received",
			fmt.Sprintf("Payment for order %s is confirmed.", shortID(evt.OrderID)), link),
	}
	for _, v := range evt.Vendors {
		out = append(out, vendor(v.VendorID, enums.NotificationTypeFundsUpdate, "Funds on hold",
			fmt.Sprintf("%s is pending for order %s after %s commission.", v.Net.StringFixed(2), shortID(evt.OrderID), v.Commission.StringFixed(2)), link))
	}
	return out, nil
}

func composeStatusChanged(data json.RawMessage) ([]models.Notification, error) {
	var evt payloads.OrderStatusChangedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	link := orderLink(evt.OrderID)
	message := fmt.Sprintf("Order %s moved from %s to %s.", shortID(evt.OrderID), evt.From, evt.To)
	if evt.Reason != "" {
		message += " Reason: " + evt.Reason
	}
	out := []models.Notification{
		customer(evt.CustomerID, enums.NotificationTypeOrderUpdate, "Order update", message, link),
	}
	for _, id := range evt.VendorIDs {
		out = append(out, vendor(id, enums.NotificationTypeOrderUpdate, "Order update", message, link))
	}
	return out, nil
}

func composeDeliveryConfirmed(data json.RawMessage) ([]models.Notification, error) {
	var evt payloads.OrderStatusChangedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	link := orderLink(evt.OrderID)
	out := []models.Notification{
		customer(evt.CustomerID, enums.NotificationTypeOrderUpdate, "Delivery confirmed",
			fmt.Sprintf("Order %s is complete.", shortID(evt.OrderID)), link),
	}
	for _, id := range evt.VendorIDs {
		out = append(out, vendor(id, enums.NotificationTypeFundsUpdate, "Funds released",
			fmt.Sprintf("Earnings from order %s are now available for payout.", shortID(evt.OrderID)), link))
	}
	return out, nil
}

func composeRefunded(data json.RawMessage) ([]models.Notification, error) {
	var evt payloads.OrderRefundedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	link := orderLink(evt.OrderID)
	out := []models.Notification{
		customer(evt.CustomerID, enums.NotificationTypeOrderUpdate, "Refund processed",
			fmt.Sprintf("%s was refunded for order %s.", evt.RefundAmount.StringFixed(2), shortID(evt.OrderID)), link),
	}
	for _, a := range evt.Allocations {
		out = append(out, vendor(a.VendorID, enums.NotificationTypeFundsUpdate, "Refund deducted",
			fmt.Sprintf("%s was reversed from your %s balance for order %s.", a.NetReversed.StringFixed(2), a.Source, shortID(evt.OrderID)), link))
	}
	return out, nil
}

func composePayoutRequested(data json.RawMessage) ([]models.Notification, error) {
	var evt payloads.PayoutEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return []models.Notification{
		admins(enums.NotificationTypePayoutUpdate, "Payout awaiting approval",
			fmt.Sprintf("Vendor %s requested %s to account ending %s.", shortID(evt.VendorID), evt.Amount.StringFixed(2), evt.AccountLast4), payoutLink(evt.PayoutID)),
	}, nil
}

func composePayout(data json.RawMessage) ([]models.Notification, error) {
	var evt payloads.PayoutEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	var message string
	switch evt.Status {
	case enums.PayoutStatusProcessing:
		message = fmt.Sprintf("Your payout of %s was approved and is being processed.", evt.Amount.StringFixed(2))
	case enums.PayoutStatusCompleted:
		message = fmt.Sprintf("Your payout of %s was sent. Reference %s.", evt.Amount.StringFixed(2), evt.TransactionRef)
	case enums.PayoutStatusFailed:
		message = fmt.Sprintf("Your payout of %s failed: %s", evt.Amount.StringFixed(2), evt.FailureReason)
	default:
		message = fmt.Sprintf("Your payout of %s is %s.", evt.Amount.StringFixed(2), evt.Status)
	}
	return []models.Notification{
		vendor(evt.VendorID, enums.NotificationTypePayoutUpdate, "Payout update", message, payoutLink(evt.PayoutID)),
	}, nil
}

func composeDisputeOpened(data json.RawMessage) ([]models.Notification, error) {
	var evt payloads.DisputeEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return []models.Notification{
		admins(enums.NotificationTypeDisputeUpdate, "Dispute opened",
			fmt.Sprintf("Order %s is disputed: %s", shortID(evt.OrderID), evt.Reason), disputeLink(evt.DisputeID)),
	}, nil
}

func composeDisputeUpdate(data json.RawMessage) ([]models.Notification, error) {
	var evt payloads.DisputeEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	message := fmt.Sprintf("Your dispute on order %s is now %s.", shortID(evt.OrderID), evt.Status)
	if evt.RefundAmount != nil {
		message += fmt.Sprintf(" Refund: %s.", evt.RefundAmount.StringFixed(2))
	}
	return []models.Notification{
		customer(evt.CustomerID, enums.NotificationTypeDisputeUpdate, "Dispute update", message, disputeLink(evt.DisputeID)),
	}, nil
}
