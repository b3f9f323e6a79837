package bigquery

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
)

func TestNewClientValidatesConfigBeforeDialing(t *testing.T) {
	ctx := context.Background()
	full := config.BigQueryConfig{Dataset: "settlement", LedgerTable: "wallet_postings", PayoutsTable: "payouts"}

	_, err := NewClient(ctx, config.GCPConfig{}, full, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "acme"}, config.BigQueryConfig{LedgerTable: "l", PayoutsTable: "p"}, nil)
	require.ErrorIs(t, err, errDatasetRequired)

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "acme"}, config.BigQueryConfig{Dataset: "settlement", LedgerTable: " "}, nil)
	require.ErrorIs(t, err, errTableNameRequired)
}

func TestDescribeNotFound(t *testing.T) {
	err := describe("table", "payouts", &googleapi.Error{Code: http.StatusNotFound})
	require.EqualError(t, err, `table "payouts" does not exist`)

	cause := errors.New("permission denied")
	err = describe("dataset", "settlement", cause)
	require.ErrorIs(t, err, cause)
}

func TestTableRef(t *testing.T) {
	require.Equal(t, "`acme.settlement.wallet_postings`", tableRef("acme", "settlement", " wallet_postings "))
}

func TestZeroClient(t *testing.T) {
	var c *Client
	require.ErrorIs(t, c.Ping(context.Background()), errClientNotInitialized)
	require.ErrorIs(t, c.InsertRows(context.Background(), "t", []any{1}), errClientNotInitialized)
	require.NoError(t, c.Close())
}
