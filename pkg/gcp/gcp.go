// Package gcp holds the pieces shared by the Pub/Sub and BigQuery clients.
package gcp

import (
	"fmt"
	"strings"

	"google.golang.org/api/option"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
)

// ClientOptions picks inline JSON credentials over a credentials file. With
// neither set the SDK falls back to application default credentials.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}
	case strings.TrimSpace(cfg.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(cfg.ApplicationCredentials)}
	default:
		return nil
	}
}

// ResourceName expands a short id into projects/<project>/<collection>/<id>.
// Names that are already fully qualified pass through.
func ResourceName(projectID, collection, name string) string {
	name = strings.TrimSpace(name)
	projectID = strings.TrimSpace(projectID)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+collection+"/") {
		return name
	}
	if projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", projectID, collection, name)
}
