// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bytes"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/console/lib/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// startCatSession spawns /bin/cat under a PTY. cat echoes every input
// line back, which together with the line discipline's echo gives the
// tests deterministic output for any input they send.
func startCatSession(t *testing.T) *Session {
	t.Helper()
	session, err := StartSession(SessionOptions{
		Command: []string{"/bin/cat"},
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

// connectRemote wires a Remote to the session through an in-memory
// pipe, running the relay on its own goroutine.
func connectRemote(t *testing.T, session *Session, readOnly bool, options RemoteOptions) *Remote {
	t.Helper()
	serverEnd, clientEnd := net.Pipe()
	go func() { _ = Relay(serverEnd, session, readOnly, discardLogger()) }()

	options.Logger = discardLogger()
	remote, err := Connect(clientEnd, options)
	if err != nil {
		_ = clientEnd.Close()
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = remote.Close() })
	return remote
}

// waitForOutput polls the source until its retained output satisfies
// the predicate or the deadline passes.
func waitForOutput(t *testing.T, source Source, predicate func([]byte) bool) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		output := source.ReadFrom(0)
		if predicate(output) {
			return output
		}
		select {
		case <-source.Updates():
		case <-time.After(50 * time.Millisecond):
		}
	}
	t.Fatalf("timed out waiting for output, have %q", source.ReadFrom(0))
	return nil
}

func TestRelayStreamsLiveOutput(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	remote := connectRemote(t, session, false, RemoteOptions{})

	if remote.ProcessID() != session.ProcessID() {
		t.Errorf("remote process = %q, want %q", remote.ProcessID(), session.ProcessID())
	}
	if remote.ReadOnly() {
		t.Error("readwrite connection reported read-only")
	}
	if !remote.Running() {
		t.Error("Running() = false for a live session")
	}

	if err := remote.Input([]byte("hello relay\r")); err != nil {
		t.Fatalf("Input: %v", err)
	}
	waitForOutput(t, remote, func(output []byte) bool {
		return bytes.Contains(output, []byte("hello relay"))
	})
}

func TestRelayReplaysHistory(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	if err := session.Input([]byte("before connect\r")); err != nil {
		t.Fatalf("Input: %v", err)
	}
	waitForOutput(t, session, func(output []byte) bool {
		return bytes.Contains(output, []byte("before connect"))
	})

	remote := connectRemote(t, session, false, RemoteOptions{})
	output := waitForOutput(t, remote, func(output []byte) bool {
		return bytes.Contains(output, []byte("before connect"))
	})
	if !bytes.Equal(output, session.ReadFrom(0)) {
		t.Errorf("replayed history %q differs from session history %q", output, session.ReadFrom(0))
	}
}

func TestRelayResumeFromOffset(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	first := connectRemote(t, session, false, RemoteOptions{})

	if err := first.Input([]byte("one\r")); err != nil {
		t.Fatalf("Input: %v", err)
	}
	waitForOutput(t, first, func(output []byte) bool {
		return bytes.Contains(output, []byte("one"))
	})
	resumeOffset := first.CurrentOffset()
	_ = first.Close()

	if err := session.Input([]byte("two\r")); err != nil {
		t.Fatalf("Input: %v", err)
	}
	waitForOutput(t, session, func(output []byte) bool {
		return bytes.Contains(output, []byte("two"))
	})

	second := connectRemote(t, session, false, RemoteOptions{ResumeOffset: resumeOffset})
	output := waitForOutput(t, second, func(output []byte) bool {
		return bytes.Contains(output, []byte("two"))
	})
	if bytes.Contains(output, []byte("one")) {
		t.Errorf("resumed connection replayed already consumed output: %q", output)
	}
	if second.CurrentOffset() != session.CurrentOffset() {
		t.Errorf("resumed offset = %d, want server offset %d", second.CurrentOffset(), session.CurrentOffset())
	}
}

func TestRelayReadOnlyRejectsInput(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	remote := connectRemote(t, session, true, RemoteOptions{})

	if !remote.ReadOnly() {
		t.Fatal("read-only relay granted input")
	}
	err := remote.Input([]byte("forbidden\r"))
	if err == nil {
		t.Fatal("Input on a read-only connection succeeded")
	}
	if !strings.Contains(err.Error(), "read-only") {
		t.Errorf("error = %q, want read-only mention", err)
	}
}

func TestRelayClientRequestsReadOnly(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	remote := connectRemote(t, session, false, RemoteOptions{Mode: ModeReadOnly})

	if !remote.ReadOnly() {
		t.Error("readonly mode request was not honored")
	}
}

func TestRelayResizeReachesSession(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	remote := connectRemote(t, session, false, RemoteOptions{})

	if err := remote.Resize(100, 30); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if columns, rows := session.Size(); columns == 100 && rows == 30 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	columns, rows := session.Size()
	t.Errorf("session size = %dx%d, want 100x30", columns, rows)
}

func TestRelayRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()
	go func() { _ = Relay(serverEnd, session, false, discardLogger()) }()

	hello, err := EncodeHello(Hello{Mode: "admin"})
	if err != nil {
		t.Fatalf("EncodeHello: %v", err)
	}
	if err := WriteFrame(clientEnd, hello); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	frame, err := ReadFrame(clientEnd)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	welcome, err := DecodeWelcome(frame)
	if err != nil {
		t.Fatalf("DecodeWelcome: %v", err)
	}
	if welcome.OK {
		t.Error("server accepted an unknown mode")
	}
	if !strings.Contains(welcome.Error, "unknown mode") {
		t.Errorf("welcome error = %q, want unknown mode mention", welcome.Error)
	}
}

func TestRelayRemoteSeesSessionEnd(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	remote := connectRemote(t, session, false, RemoteOptions{})

	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	testutil.RequireClosed(t, remote.Done(), 5*time.Second, "remote observes session end")
	if remote.Running() {
		t.Error("Running() = true after session end")
	}
}

func TestRelayServesHistoryOfEndedSession(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	if err := session.Input([]byte("last words\r")); err != nil {
		t.Fatalf("Input: %v", err)
	}
	waitForOutput(t, session, func(output []byte) bool {
		return bytes.Contains(output, []byte("last words"))
	})
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The relay still serves the retained history; the handshake
	// metadata tells the client the process is already gone.
	remote := connectRemote(t, session, false, RemoteOptions{})
	if remote.Running() {
		t.Error("Running() = true for an ended session")
	}
	if !bytes.Contains(remote.ReadFrom(0), []byte("last words")) {
		t.Errorf("history missing final output: %q", remote.ReadFrom(0))
	}
	testutil.RequireClosed(t, remote.Done(), 5*time.Second, "ended session disconnects promptly")
}

func TestServeHandlesMultipleConnections(t *testing.T) {
	t.Parallel()

	session := startCatSession(t)
	listener, err := net.Listen("unix", testutil.SocketDir(t)+"/relay.sock")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })
	go func() { _ = Serve(listener, session, false, discardLogger()) }()

	first, err := Dial("unix", listener.Addr().String(), RemoteOptions{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Dial first: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })

	second, err := Dial("unix", listener.Addr().String(), RemoteOptions{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Dial second: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	if err := first.Input([]byte("shared\r")); err != nil {
		t.Fatalf("Input: %v", err)
	}
	for _, remote := range []*Remote{first, second} {
		waitForOutput(t, remote, func(output []byte) bool {
			return bytes.Contains(output, []byte("shared"))
		})
	}
}
