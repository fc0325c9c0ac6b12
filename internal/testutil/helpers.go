package testutil

import (
	"os"
	"testing"
)

// RequireRoot skips the test unless it runs as root with ALERTWALL_ENGINE_TEST
// set. Tests behind it mutate the host's real packet filter.
func RequireRoot(t *testing.T) {
	t.Helper()
	if os.Getenv("ALERTWALL_ENGINE_TEST") == "" {
		t.Skip("Skipping test: requires ALERTWALL_ENGINE_TEST environment")
	}
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
}
