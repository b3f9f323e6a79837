package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
)

func TestDescribeMapsNotFound(t *testing.T) {
	require.NoError(t, describe("topic", "settlement-events", nil))

	err := describe("subscription", "notify", status.Error(codes.NotFound, "gone"))
	require.EqualError(t, err, `subscription "notify" does not exist`)

	cause := status.Error(codes.PermissionDenied, "denied")
	err = describe("topic", "settlement-events", cause)
	require.True(t, errors.Is(err, cause))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
}

func TestZeroClient(t *testing.T) {
	var c *Client
	require.Error(t, c.Ping(context.Background()))
	require.NoError(t, c.Close())
}
