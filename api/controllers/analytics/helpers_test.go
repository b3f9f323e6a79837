package analytics

import (
	"context"
	"time"

	"github.com/angelmondragon/marketplace-settlement/internal/analytics/types"
)

type testAnalyticsService struct {
	calls    int
	last     types.LedgerQueryRequest
	response *types.LedgerQueryResponse
	err      error
}

func (s *testAnalyticsService) Query(ctx context.Context, req types.LedgerQueryRequest) (*types.LedgerQueryResponse, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	if s.response == nil {
		s.response = &types.LedgerQueryResponse{}
	}
	return s.response, nil
}

func (s *testAnalyticsService) called() bool {
	return s.calls > 0
}

func (s *testAnalyticsService) period() time.Duration {
	return s.last.End.Sub(s.last.Start)
}
