package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-settlement/internal/analytics/types"
)

type fakeLedgerService struct {
	lastReq  types.LedgerQueryRequest
	response *types.LedgerQueryResponse
	err      error
}

func (f *fakeLedgerService) Query(ctx context.Context, req types.LedgerQueryRequest) (*types.LedgerQueryResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.response == nil {
		f.response = &types.LedgerQueryResponse{}
	}
	return f.response, nil
}

func TestServiceQueryReturnsResponse(t *testing.T) {
	fake := &fakeLedgerService{}
	srv := &service{ledger: fake}
	now := time.Now().UTC()
	req := types.LedgerQueryRequest{
		VendorID: "0b6c3a59-5d1f-4e7b-9a47-6b1e3f0f2a10",
		Start:    now,
		End:      now.Add(2 * time.Hour),
	}

	resp, err := srv.Query(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, fake.response, resp)
	assert.Equal(t, req.VendorID, fake.lastReq.VendorID)
	assert.True(t, fake.lastReq.Start.Equal(req.Start))
}

func TestServiceQueryPropagatesError(t *testing.T) {
	want := errors.New("query failed")
	srv := &service{ledger: &fakeLedgerService{err: want}}

	resp, err := srv.Query(context.Background(), types.LedgerQueryRequest{})
	assert.Equal(t, want, err)
	assert.Nil(t, resp)
}

func TestNewServiceRequiresClient(t *testing.T) {
	_, err := NewService(nil)
	assert.Error(t, err)
}
