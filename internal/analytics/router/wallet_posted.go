package router

import (
	"context"

	"github.com/angelmondragon/marketplace-settlement/internal/analytics/types"
	"github.com/angelmondragon/marketplace-settlement/internal/analytics/writer"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/payloads"
)

// walletPostedHandler exports a posting with signed minor-unit amounts and
// the balances after it. The posting's own timestamp wins over the envelope's.
func walletPostedHandler(w Writer, logg *logger.Logger) HandlerFunc[payloads.WalletTransactionPostedEvent] {
	return func(ctx context.Context, envelope types.Envelope, event *payloads.WalletTransactionPostedEvent) error {
		logCtx := logg.WithFields(ctx, map[string]any{
			"transaction_id": event.TransactionID.String(),
			"wallet_id":      event.WalletID.String(),
			"type":           event.Type,
			"sequence":       event.Sequence,
		})

		raw, err := writer.EncodeJSON(event)
		if err != nil {
			return err
		}
		row := types.PostingRow{
			EventID:             envelope.EventID,
			OccurredAt:          envelope.OccurredAt,
			TransactionID:       event.TransactionID.String(),
			WalletID:            event.WalletID.String(),
			VendorID:            event.VendorID.String(),
			Type:                string(event.Type),
			AmountCents:         cents(event.Amount),
			BasisAmountCents:    cents(event.BasisAmount),
			Bucket:              stringPtr(string(event.Bucket)),
			Sequence:            event.Sequence,
			PendingAfterCents:   cents(event.PendingAfter),
			AvailableAfterCents: cents(event.AvailableAfter),
			ReferenceID:         uuidPtr(event.ReferenceID),
			Description:         event.Description,
			Payload:             raw,
		}
		if event.ReferenceType != nil {
			row.ReferenceType = stringPtr(string(*event.ReferenceType))
		}
		if !event.CreatedAt.IsZero() {
			row.OccurredAt = event.CreatedAt.UTC()
		}

		if err := w.InsertPosting(logCtx, row); err != nil {
			logg.Error(logCtx, "failed to insert posting row", err)
			return err
		}
		logg.Debug(logCtx, "posting row inserted")
		return nil
	}
}
