package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

func escrowRow(txType enums.WalletTransactionType, amount, basis string, bucket enums.WalletBucket, refType enums.ReferenceType, refID uuid.UUID) models.WalletTransaction {
	return models.WalletTransaction{
		Type:          txType,
		Amount:        d(amount),
		BasisAmount:   d(basis),
		Bucket:        bucket,
		ReferenceType: &refType,
		ReferenceID:   &refID,
	}
}

func TestSummarizeEscrow(t *testing.T) {
	order := uuid.New()
	dispute := uuid.New()

	t.Run("held only", func(t *testing.T) {
		e := summarizeEscrow([]models.WalletTransaction{
			escrowRow(enums.WalletTxHold, "600", "0", "", enums.ReferenceOrder, order),
			escrowRow(enums.WalletTxCommission, "60", "0", "", enums.ReferenceOrder, order),
			escrowRow(enums.WalletTxHold, "400", "0", "", enums.ReferenceOrder, order),
			escrowRow(enums.WalletTxCommission, "40", "0", "", enums.ReferenceOrder, order),
		}, order)
		assert.True(t, d("1000").Equal(e.Held))
		assert.True(t, d("100").Equal(e.Commission))
		assert.True(t, d("1000").Equal(e.Outstanding()))
		assert.False(t, e.HasRelease)
	})

	t.Run("cancelled nets to zero", func(t *testing.T) {
		e := summarizeEscrow([]models.WalletTransaction{
			escrowRow(enums.WalletTxHold, "500", "0", "", enums.ReferenceOrder, order),
			escrowRow(enums.WalletTxCommission, "50", "0", "", enums.ReferenceOrder, order),
			escrowRow(enums.WalletTxHold, "-500", "0", "", enums.ReferenceOrder, order),
			escrowRow(enums.WalletTxCommission, "-50", "0", "", enums.ReferenceOrder, order),
		}, order)
		assert.True(t, e.Held.IsZero())
		assert.True(t, e.Commission.IsZero())
		assert.True(t, e.Outstanding().IsZero())
	})

	t.Run("zero net release still counts", func(t *testing.T) {
		e := summarizeEscrow([]models.WalletTransaction{
			escrowRow(enums.WalletTxHold, "250", "0", "", enums.ReferenceOrder, order),
			escrowRow(enums.WalletTxRelease, "0", "250", "", enums.ReferenceOrder, order),
		}, order)
		assert.True(t, e.HasRelease)
		assert.True(t, e.Outstanding().IsZero())
	})

	t.Run("dispute refund from pending", func(t *testing.T) {
		e := summarizeEscrow([]models.WalletTransaction{
			escrowRow(enums.WalletTxHold, "1000", "0", "", enums.ReferenceOrder, order),
			escrowRow(enums.WalletTxCommission, "100", "0", "", enums.ReferenceOrder, order),
			escrowRow(enums.WalletTxRefund, "-300", "300", enums.WalletBucketPending, enums.ReferenceDispute, dispute),
			escrowRow(enums.WalletTxCommission, "-30", "0", "", enums.ReferenceDispute, dispute),
		}, order)
		assert.True(t, d("100").Equal(e.Commission))
		assert.True(t, d("300").Equal(e.RefundedPending))
		assert.True(t, d("700").Equal(e.Outstanding()))
	})

	t.Run("refund from available leaves pending alone", func(t *testing.T) {
		e := summarizeEscrow([]models.WalletTransaction{
			escrowRow(enums.WalletTxHold, "1000", "0", "", enums.ReferenceOrder, order),
			escrowRow(enums.WalletTxRelease, "900", "1000", "", enums.ReferenceOrder, order),
			escrowRow(enums.WalletTxRefund, "-1000", "900", enums.WalletBucketAvailable, enums.ReferenceOrder, order),
		}, order)
		assert.True(t, e.RefundedPending.IsZero())
		assert.True(t, e.Outstanding().IsZero())
	})
}
