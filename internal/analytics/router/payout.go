package router

import (
	"context"

	"github.com/angelmondragon/marketplace-settlement/internal/analytics/types"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
)

// payoutHandler writes one row per payout lifecycle event; the status column
// carries the state the payout reached.
func payoutHandler(writer Writer, logg *logger.Logger) HandlerFunc[payloads.PayoutEvent] {
	return func(ctx context.Context, envelope types.Envelope, event *payloads.PayoutEvent) error {
		logCtx := logg.WithFields(ctx, map[string]any{
			"payout_id": event.PayoutID.String(),
			"status":    event.Status,
		})

		row := types.PayoutRow{
			EventID:        envelope.EventID,
			EventType:      string(envelope.EventType),
			OccurredAt:     envelope.OccurredAt,
			PayoutID:       event.PayoutID.String(),
			VendorID:       event.VendorID.String(),
			WalletID:       event.WalletID.String(),
			AmountCents:    cents(event.Amount),
			Status:         string(event.Status),
			TransactionRef: stringPtr(event.TransactionRef),
			FailureReason:  stringPtr(event.FailureReason),
		}
		if err := writer.InsertPayout(logCtx, row); err != nil {
			logg.Error(logCtx, "failed to insert payout row", err)
			return err
		}
		logg.Debug(logCtx, "payout row inserted")
		return nil
	}
}
