package query

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/marketplace-settlement/internal/analytics/types"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

func TestValidateRequest(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	assert.NoError(t, ValidateRequest(types.LedgerQueryRequest{Start: start, End: end}))
	assert.NoError(t, ValidateRequest(types.LedgerQueryRequest{VendorID: uuid.NewString(), Start: start, End: end}))

	err := ValidateRequest(types.LedgerQueryRequest{VendorID: "vendor-1", Start: start, End: end})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = ValidateRequest(types.LedgerQueryRequest{Start: end, End: start})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = ValidateRequest(types.LedgerQueryRequest{End: end})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestVendorClauseAndParams(t *testing.T) {
	req := types.LedgerQueryRequest{Start: time.Now(), End: time.Now()}
	assert.Equal(t, "TRUE", vendorClause(req))
	assert.Len(t, baseParams(req), 2)

	req.VendorID = uuid.NewString()
	assert.Equal(t, "vendor_id = @vendorID", vendorClause(req))
	assert.Len(t, baseParams(req), 3)
}

func TestPivotReportsDebitsAsMagnitudes(t *testing.T) {
	resp := Pivot([]TypedPoint{
		{Day: "2026-01-01", Type: "HOLD", Value: 100000},
		{Day: "2026-01-01", Type: "COMMISSION", Value: -10000},
		{Day: "2026-01-04", Type: "RELEASE", Value: 90000},
		{Day: "2026-01-05", Type: "REFUND", Value: -40000},
		{Day: "2026-01-06", Type: "PAYOUT", Value: -50000},
		{Day: "2026-01-06", Type: "CREDIT", Value: 500},
	})

	assert.Equal(t, []types.TimeSeriesPoint{{Date: "2026-01-01", Value: 100000}}, resp.Held)
	assert.Equal(t, int64(10000), resp.Commission[0].Value)
	assert.Equal(t, int64(90000), resp.Released[0].Value)
	assert.Equal(t, int64(40000), resp.Refunded[0].Value)
	assert.Equal(t, int64(50000), resp.PaidOut[0].Value)
}
