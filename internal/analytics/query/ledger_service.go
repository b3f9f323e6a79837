package query

import (
	"context"
	"fmt"
	"strings"

	cloudbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/angelmondragon/marketplace-settlement/internal/analytics/types"
	"github.com/angelmondragon/marketplace-settlement/pkg/bigquery"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

const (
	ledgerSeriesSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(occurred_at)) AS day,
  type,
  SUM(amount_cents) AS value
FROM %s
WHERE %s
  AND occurred_at BETWEEN @start AND @end
GROUP BY day, type
ORDER BY day ASC
`

	topVendorsSQL = `
SELECT vendor_id AS label, SUM(amount_cents) AS value
FROM %s
WHERE type = 'RELEASE'
  AND occurred_at BETWEEN @start AND @end
GROUP BY vendor_id
ORDER BY value DESC
LIMIT 5
`

	payoutCountSQL = `
SELECT COUNT(DISTINCT payout_id) AS value
FROM %s
WHERE %s
  AND event_type = 'payout_completed'
  AND occurred_at BETWEEN @start AND @end
`
)

// LedgerService reports ledger movement from the wallet_postings export.
type LedgerService interface {
	Query(ctx context.Context, req types.LedgerQueryRequest) (*types.LedgerQueryResponse, error)
}

type ledgerService struct {
	client     *bigquery.Client
	ledgerRef  string
	payoutsRef string
}

// NewLedgerService builds a service backed by BigQuery.
func NewLedgerService(client *bigquery.Client) (LedgerService, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if client.LedgerTable() == "" || client.PayoutsTable() == "" {
		return nil, fmt.Errorf("ledger and payouts tables are required")
	}
	return &ledgerService{
		client:     client,
		ledgerRef:  client.TableRef(client.LedgerTable()),
		payoutsRef: client.TableRef(client.PayoutsTable()),
	}, nil
}

func (s *ledgerService) Query(ctx context.Context, req types.LedgerQueryRequest) (*types.LedgerQueryResponse, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	clause := vendorClause(req)
	params := baseParams(req)

	points, err := s.queryTypedSeries(ctx, fmt.Sprintf(ledgerSeriesSQL, s.ledgerRef, clause), params)
	if err != nil {
		return nil, err
	}
	resp := Pivot(points)

	if req.VendorID == "" {
		top, err := s.queryTopLabels(ctx, fmt.Sprintf(topVendorsSQL, s.ledgerRef), params)
		if err != nil {
			return nil, err
		}
		resp.TopVendors = top
	}

	count, err := s.queryCount(ctx, fmt.Sprintf(payoutCountSQL, s.payoutsRef, clause), params)
	if err != nil {
		return nil, err
	}
	resp.PayoutCount = count
	return resp, nil
}

// ValidateRequest checks the window and optional vendor id.
func ValidateRequest(req types.LedgerQueryRequest) error {
	if req.VendorID != "" {
		if _, err := uuid.Parse(req.VendorID); err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "vendor id must be a uuid")
		}
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	}
	if req.End.Before(req.Start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	return nil
}

func vendorClause(req types.LedgerQueryRequest) string {
	if req.VendorID == "" {
		return "TRUE"
	}
	return "vendor_id = @vendorID"
}

func baseParams(req types.LedgerQueryRequest) []cloudbigquery.QueryParameter {
	params := []cloudbigquery.QueryParameter{
		{Name: "start", Value: req.Start},
		{Name: "end", Value: req.End},
	}
	if req.VendorID != "" {
		params = append(params, cloudbigquery.QueryParameter{Name: "vendorID", Value: req.VendorID})
	}
	return params
}

// TypedPoint is one day of summed postings for a transaction type.
type TypedPoint struct {
	Day   string `bigquery:"day"`
	Type  string `bigquery:"type"`
	Value int64  `bigquery:"value"`
}

// Pivot splits typed points into per-type series. Debit types are reported
// as positive magnitudes.
func Pivot(points []TypedPoint) *types.LedgerQueryResponse {
	resp := &types.LedgerQueryResponse{}
	for _, p := range points {
		point := types.TimeSeriesPoint{Date: p.Day, Value: p.Value}
		switch enums.WalletTransactionType(strings.ToUpper(p.Type)) {
		case enums.WalletTxHold:
			resp.Held = append(resp.Held, point)
		case enums.WalletTxCommission:
			point.Value = -point.Value
			resp.Commission = append(resp.Commission, point)
		case enums.WalletTxRelease:
			resp.Released = append(resp.Released, point)
		case enums.WalletTxRefund:
			point.Value = -point.Value
			resp.Refunded = append(resp.Refunded, point)
		case enums.WalletTxPayout:
			point.Value = -point.Value
			resp.PaidOut = append(resp.PaidOut, point)
		}
	}
	return resp
}

func (s *ledgerService) queryTypedSeries(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]TypedPoint, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query ledger series: %w", err)
	}

	var points []TypedPoint
	for {
		var row TypedPoint
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("reading ledger series row: %w", err)
		}
		points = append(points, row)
	}
	return points, nil
}

func (s *ledgerService) queryTopLabels(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.LabelValue, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query top labels: %w", err)
	}

	var result []types.LabelValue
	for {
		var row struct {
			Label string `bigquery:"label"`
			Value int64  `bigquery:"value"`
		}
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("reading top label row: %w", err)
		}
		result = append(result, types.LabelValue{Label: row.Label, Value: row.Value})
	}
	return result, nil
}

func (s *ledgerService) queryCount(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (int64, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return 0, fmt.Errorf("query payout count: %w", err)
	}
	var row struct {
		Value int64 `bigquery:"value"`
	}
	if err := iter.Next(&row); err != nil {
		if err == iterator.Done {
			return 0, nil
		}
		return 0, fmt.Errorf("reading payout count row: %w", err)
	}
	return row.Value, nil
}
