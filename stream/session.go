// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// SessionOptions configures a local PTY session.
type SessionOptions struct {
	// Command is the program and arguments to run. Required.
	Command []string

	// Dir is the working directory; empty means inherit.
	Dir string

	// Env is the child environment; nil means inherit.
	Env []string

	// InitialColumns and InitialRows size the PTY at spawn. Default
	// 80x24; the first panel fit resizes it almost immediately.
	InitialColumns int
	InitialRows    int

	// HistoryBytes is the ring buffer capacity. Default
	// DefaultHistoryBytes.
	HistoryBytes int

	// Logger receives structured events. Nil means slog.Default().
	Logger *slog.Logger
}

// Session runs one process under a pseudo-terminal and retains its
// output in a ring buffer for offset-addressed consumption. A reader
// goroutine copies PTY output into the ring until the process exits or
// the session is closed.
type Session struct {
	id      string
	command *exec.Cmd
	master  *os.File
	ring    *RingBuffer
	logger  *slog.Logger

	updates chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	mutex     sync.Mutex
	exitErr   error
	running   bool
	columns   int
	rows      int
	// closing is set before the shutdown SIGTERM so the exit status
	// of a deliberately killed child is not reported as a failure.
	closing bool
}

var _ Source = (*Session)(nil)

// StartSession spawns the command under a fresh PTY and begins
// retaining its output.
func StartSession(options SessionOptions) (*Session, error) {
	if len(options.Command) == 0 {
		return nil, fmt.Errorf("session: no command given")
	}
	if options.InitialColumns <= 0 {
		options.InitialColumns = 80
	}
	if options.InitialRows <= 0 {
		options.InitialRows = 24
	}
	if options.HistoryBytes <= 0 {
		options.HistoryBytes = DefaultHistoryBytes
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	command := exec.Command(options.Command[0], options.Command[1:]...)
	command.Dir = options.Dir
	command.Env = options.Env

	master, err := pty.StartWithSize(command, &pty.Winsize{
		Cols: uint16(options.InitialColumns),
		Rows: uint16(options.InitialRows),
	})
	if err != nil {
		return nil, fmt.Errorf("start %s under PTY: %w", options.Command[0], err)
	}

	session := &Session{
		id:      fmt.Sprintf("%s-%d", filepath.Base(options.Command[0]), command.Process.Pid),
		command: command,
		master:  master,
		ring:    NewRingBuffer(options.HistoryBytes),
		logger:  logger,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
		running: true,
		columns: options.InitialColumns,
		rows:    options.InitialRows,
	}

	go session.readLoop()

	logger.Info("session started",
		"process", session.id,
		"command", options.Command[0],
		"columns", options.InitialColumns,
		"rows", options.InitialRows,
	)
	return session, nil
}

// readLoop copies PTY output into the ring until the PTY closes. EIO
// is the normal Linux signal that the child released its side.
func (session *Session) readLoop() {
	buffer := make([]byte, 4096)
	for {
		bytesRead, err := session.master.Read(buffer)
		if bytesRead > 0 {
			session.ring.Write(buffer[:bytesRead])
			session.notify()
		}
		if err != nil {
			break
		}
	}

	waitErr := session.command.Wait()

	session.mutex.Lock()
	session.running = false
	if waitErr != nil && !session.isNormalExit(waitErr) {
		session.exitErr = fmt.Errorf("%s exited: %w", session.id, waitErr)
	}
	exitErr := session.exitErr
	session.mutex.Unlock()

	close(session.done)
	session.notify()

	if exitErr != nil {
		session.logger.Warn("session ended", "process", session.id, "error", exitErr)
	} else {
		session.logger.Info("session ended", "process", session.id)
	}
}

// isNormalExit reports whether the child's exit is part of a clean
// shutdown: exit code 0 (cmd.Wait returns nil for that), exiting
// because its controlling PTY closed, or killed by the SIGTERM this
// session sent during Close. Caller holds the mutex.
func (session *Session) isNormalExit(err error) bool {
	if !session.closing {
		return false
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.ExitCode() == 0 || exitErr.ExitCode() == 1 {
		return true
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && status.Signaled() && (status.Signal() == syscall.SIGTERM || status.Signal() == syscall.SIGHUP)
}

// notify signals consumers without blocking; a pending notification
// already covers any amount of new output.
func (session *Session) notify() {
	select {
	case session.updates <- struct{}{}:
	default:
	}
}

// ProcessID implements Source.
func (session *Session) ProcessID() string { return session.id }

// Ring exposes the retained history for relays serving this session.
func (session *Session) Ring() *RingBuffer { return session.ring }

// ReadFrom implements Source.
func (session *Session) ReadFrom(offset uint64) []byte {
	return session.ring.ReadFrom(offset)
}

// ReadSince implements Source.
func (session *Session) ReadSince(offset uint64) ([]byte, uint64) {
	return session.ring.ReadSince(offset)
}

// CurrentOffset implements Source.
func (session *Session) CurrentOffset() uint64 {
	return session.ring.CurrentOffset()
}

// Updates implements Source.
func (session *Session) Updates() <-chan struct{} { return session.updates }

// Done is closed when the process has exited and its output is fully
// retained.
func (session *Session) Done() <-chan struct{} { return session.done }

// Input writes user input bytes to the PTY master, verbatim. The
// process (and its line discipline) own echo and editing semantics.
func (session *Session) Input(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if _, err := session.master.Write(data); err != nil {
		return fmt.Errorf("write input to %s: %w", session.id, err)
	}
	return nil
}

// Resize sets the PTY window size, delivering SIGWINCH to the child's
// foreground process group.
func (session *Session) Resize(columns, rows int) error {
	if columns < 1 || rows < 1 {
		return fmt.Errorf("resize %s to %dx%d: dimensions must be positive", session.id, columns, rows)
	}
	winsize := &pty.Winsize{Cols: uint16(columns), Rows: uint16(rows)}
	if err := pty.Setsize(session.master, winsize); err != nil {
		return fmt.Errorf("resize %s PTY: %w", session.id, err)
	}
	session.mutex.Lock()
	session.columns = columns
	session.rows = rows
	session.mutex.Unlock()
	return nil
}

// Size returns the current PTY dimensions.
func (session *Session) Size() (columns, rows int) {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.columns, session.rows
}

// Command returns the program running in this session.
func (session *Session) Command() string { return session.command.Path }

// Running implements Source.
func (session *Session) Running() bool {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.running
}

// Err implements Source.
func (session *Session) Err() error {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.exitErr
}

// Close terminates the session: SIGTERM to the child, close the PTY
// master to unblock the reader, wait for the reader to drain.
func (session *Session) Close() error {
	session.closeOnce.Do(func() {
		session.mutex.Lock()
		session.closing = true
		session.mutex.Unlock()

		_ = session.command.Process.Signal(syscall.SIGTERM)
		_ = session.master.Close()
		<-session.done
	})
	return nil
}
