package gcp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
)

func TestClientOptionsPrefersInlineJSON(t *testing.T) {
	opts := ClientOptions(config.GCPConfig{
		CredentialsJSON:        `{"type":"service_account"}`,
		ApplicationCredentials: "/tmp/creds.json",
	})
	require.Len(t, opts, 1)

	require.Len(t, ClientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds.json"}), 1)
	require.Empty(t, ClientOptions(config.GCPConfig{}))
}

func TestResourceName(t *testing.T) {
	cases := []struct {
		project, collection, name, want string
	}{
		{"acme", "topics", "settlement-events", "projects/acme/topics/settlement-events"},
		{"acme", "subscriptions", " notify ", "projects/acme/subscriptions/notify"},
		{"", "topics", "projects/other/topics/settlement-events", "projects/other/topics/settlement-events"},
		{"", "topics", "settlement-events", ""},
		{"acme", "topics", "", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ResourceName(tc.project, tc.collection, tc.name), tc.name)
	}
}
