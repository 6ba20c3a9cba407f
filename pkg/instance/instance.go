package instance

import (
	"os"
	"strings"
)

const envWorkerID = "UTILSPLIT_WORKER_ID"

// GetID returns the process instance identifier used to tag lock ownership.
// Falls back to the hostname, then to "worker-0".
func GetID() string {
	if id := strings.TrimSpace(os.Getenv(envWorkerID)); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
