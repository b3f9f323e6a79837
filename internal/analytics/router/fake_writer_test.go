package router

import (
	"context"

	"github.com/angelmondragon/marketplace-settlement/internal/analytics/types"
)

type fakeWriter struct {
	postings []types.PostingRow
	payouts  []types.PayoutRow
	err      error
}

func (f *fakeWriter) InsertPosting(_ context.Context, row types.PostingRow) error {
	if f.err != nil {
		return f.err
	}
	f.postings = append(f.postings, row)
	return nil
}

func (f *fakeWriter) InsertPayout(_ context.Context, row types.PayoutRow) error {
	if f.err != nil {
		return f.err
	}
	f.payouts = append(f.payouts, row)
	return nil
}
