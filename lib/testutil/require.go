// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"
	"time"
)

// RequireClosed waits for ch to close (or deliver a value) within
// timeout, or fails the test. Session and relay lifecycles signal by
// closing their Done channels; a missed close should fail the test
// rather than hang it.
//
//	testutil.RequireClosed(t, session.Done(), 5*time.Second, "session reaped")
func RequireClosed(t *testing.T, ch <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for: %s", timeout, what)
	}
}
