package instance

import (
	"fmt"
	"os"
)

// GetID returns the worker instance identifier used as the owner value of
// distributed locks. Falls back to host and pid so two replicas never share it.
func GetID() string {
	if id := os.Getenv("SETTLEMENT_WORKER_ID"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
