package testutil

import (
	"testing"
	"time"
)

// WaitFor polls condition until it returns true or timeout elapses, failing
// the test on timeout.
//
// Usage:
//
//	testutil.WaitFor(t, time.Second, "first alert dispatched", func() bool {
//	    return len(notifier.Events()) == 1
//	})
func WaitFor(t testing.TB, timeout time.Duration, message string, condition func() bool) {
	t.Helper()

	if condition() {
		return
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for %s (waited %v)", message, timeout)
		}
	}
}

// Never asserts that condition stays false for the whole duration.
func Never(t testing.TB, duration time.Duration, message string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if condition() {
			t.Fatalf("Unexpected: %s", message)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
