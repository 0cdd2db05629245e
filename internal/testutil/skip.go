package testutil

import (
	"os"
	"testing"
)

// SkipIfNoNetwork skips the test if CHATSYNC_TEST_SKIP_NETWORK is set.
// Use this for tests that listen on loopback sockets, which may not be
// available in sandboxed environments.
func SkipIfNoNetwork(t testing.TB) {
	t.Helper()
	if os.Getenv("CHATSYNC_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: CHATSYNC_TEST_SKIP_NETWORK is set")
	}
}
