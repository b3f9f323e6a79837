package analytics

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-settlement/internal/analytics/query"
	"github.com/angelmondragon/marketplace-settlement/internal/analytics/types"
	"github.com/angelmondragon/marketplace-settlement/pkg/bigquery"
)

// Service provides ledger reports based on exported postings.
type Service interface {
	// Query returns daily ledger movement for the provided request.
	Query(ctx context.Context, req types.LedgerQueryRequest) (*types.LedgerQueryResponse, error)
}

type service struct {
	ledger query.LedgerService
}

// NewService builds an analytics service backed by BigQuery.
func NewService(client *bigquery.Client) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}

	ledger, err := query.NewLedgerService(client)
	if err != nil {
		return nil, err
	}

	return &service{ledger: ledger}, nil
}

func (s *service) Query(ctx context.Context, req types.LedgerQueryRequest) (*types.LedgerQueryResponse, error) {
	return s.ledger.Query(ctx, req)
}
