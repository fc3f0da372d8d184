// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/console/lib/testutil"
)

func TestSessionEchoesInput(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	if !session.Running() {
		t.Fatal("Running() = false for a live session")
	}
	if !strings.HasPrefix(session.ProcessID(), "cat-") {
		t.Errorf("ProcessID() = %q, want cat-<pid>", session.ProcessID())
	}

	if err := session.Input([]byte("ping\r")); err != nil {
		t.Fatalf("Input: %v", err)
	}
	waitForOutput(t, session, func(output []byte) bool {
		return bytes.Contains(output, []byte("ping"))
	})
}

func TestSessionRetainsOutputAcrossReads(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	if err := session.Input([]byte("first\r")); err != nil {
		t.Fatalf("Input: %v", err)
	}
	output := waitForOutput(t, session, func(output []byte) bool {
		return bytes.Contains(output, []byte("first"))
	})

	// Offset-addressed reads never consume: the same request yields
	// the same bytes.
	again := session.ReadFrom(0)
	if !bytes.Equal(output, again) {
		t.Errorf("second ReadFrom(0) = %q, want %q", again, output)
	}
}

func TestSessionCleanExit(t *testing.T) {
	t.Parallel()

	session, err := StartSession(SessionOptions{
		Command: []string{"/bin/sh", "-c", "printf finished"},
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })

	testutil.RequireClosed(t, session.Done(), 5*time.Second, "session finished")
	if session.Running() {
		t.Error("Running() = true after exit")
	}
	if err := session.Err(); err != nil {
		t.Errorf("Err() = %v for a zero exit, want nil", err)
	}
	if output := session.ReadFrom(0); !bytes.Contains(output, []byte("finished")) {
		t.Errorf("output = %q, want it to contain %q", output, "finished")
	}
}

func TestSessionNonzeroExitReportsError(t *testing.T) {
	t.Parallel()

	session, err := StartSession(SessionOptions{
		Command: []string{"/bin/sh", "-c", "exit 3"},
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })

	testutil.RequireClosed(t, session.Done(), 5*time.Second, "session finished")
	if err := session.Err(); err == nil {
		t.Error("Err() = nil for exit status 3, want an error")
	}
}

func TestSessionCloseIsQuiet(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if session.Running() {
		t.Error("Running() = true after Close")
	}
	// A deliberate shutdown is not a process failure.
	if err := session.Err(); err != nil {
		t.Errorf("Err() = %v after Close, want nil", err)
	}
	// Close twice is fine.
	if err := session.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSessionResizeTracksSize(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	if columns, rows := session.Size(); columns != 80 || rows != 24 {
		t.Errorf("initial size = %dx%d, want 80x24", columns, rows)
	}

	if err := session.Resize(132, 43); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if columns, rows := session.Size(); columns != 132 || rows != 43 {
		t.Errorf("size after resize = %dx%d, want 132x43", columns, rows)
	}
}

func TestSessionResizeRejectsNonPositive(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	if err := session.Resize(0, 24); err == nil {
		t.Error("Resize(0, 24) succeeded")
	}
	if err := session.Resize(80, -1); err == nil {
		t.Error("Resize(80, -1) succeeded")
	}
}

func TestStartSessionRequiresCommand(t *testing.T) {
	t.Parallel()

	if _, err := StartSession(SessionOptions{}); err == nil {
		t.Error("StartSession with no command succeeded")
	}
}
