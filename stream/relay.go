// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// Relay serves one session to one connection: handshake, metadata,
// compressed history replay from the client's resume offset, then a
// bidirectional bridge that streams new output down and (unless the
// connection is read-only) forwards input and resize frames up.
//
// Relay blocks until the connection closes, the session ends, or
// either side fails. A clean disconnect returns nil.
func Relay(conn net.Conn, session *Session, readOnly bool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	hello, err := readHello(conn)
	if err != nil {
		welcome, encodeErr := EncodeWelcome(Welcome{Error: err.Error()})
		if encodeErr == nil {
			_ = WriteFrame(conn, welcome)
		}
		return fmt.Errorf("handshake: %w", err)
	}
	grantedReadOnly := readOnly || hello.Mode == ModeReadOnly

	// History and its end offset come from one atomic read so the
	// output pump starts exactly where the replay stops.
	history, pumpOffset := session.Ring().ReadSince(hello.Offset)
	historyStart := pumpOffset - uint64(len(history))

	welcome, err := EncodeWelcome(Welcome{
		OK:           true,
		ProcessID:    session.ProcessID(),
		HistoryStart: historyStart,
	})
	if err != nil {
		return fmt.Errorf("encode welcome: %w", err)
	}
	if err := WriteFrame(conn, welcome); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}

	columns, rows := session.Size()
	metadata, err := EncodeMetadata(Metadata{
		ProcessID: session.ProcessID(),
		Command:   session.Command(),
		Columns:   columns,
		Rows:      rows,
		ReadOnly:  grantedReadOnly,
		Running:   session.Running(),
	})
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := WriteFrame(conn, metadata); err != nil {
		return fmt.Errorf("send metadata: %w", err)
	}

	if err := WriteFrame(conn, NewHistoryFrame(history)); err != nil {
		return fmt.Errorf("send history: %w", err)
	}

	logger.Info("relay connected",
		"process", session.ProcessID(),
		"resume_offset", hello.Offset,
		"history_bytes", len(history),
		"read_only", grantedReadOnly,
	)

	done := make(chan struct{})
	var closeDone sync.Once
	finish := func() { closeDone.Do(func() { close(done) }) }

	// Whichever side finishes first closes the connection so the other
	// side's blocked read or write returns.
	go func() {
		<-done
		_ = conn.Close()
	}()

	// Output pump: wake on session updates, write whatever the ring
	// has accumulated past the pump offset as one data frame.
	var pumpErr error
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		defer finish()
		offset := pumpOffset
		for {
			data, next := session.Ring().ReadSince(offset)
			if len(data) > 0 {
				if err := WriteFrame(conn, Frame{Type: FrameData, Payload: data}); err != nil {
					if !isClosedConn(err) {
						pumpErr = fmt.Errorf("send output: %w", err)
					}
					return
				}
				offset = next
			}
			select {
			case <-session.Updates():
			case <-session.Done():
				// Drain anything that landed before the exit.
				if data, _ := session.Ring().ReadSince(offset); len(data) > 0 {
					if err := WriteFrame(conn, Frame{Type: FrameData, Payload: data}); err != nil && !isClosedConn(err) {
						pumpErr = fmt.Errorf("send output: %w", err)
					}
				}
				return
			case <-done:
				return
			}
		}
	}()

	// Input loop on this goroutine: read frames until the connection
	// or the session goes away.
	var inputErr error
	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !isClosedConn(err) {
				inputErr = fmt.Errorf("read frame: %w", err)
			}
			break
		}
		switch frame.Type {
		case FrameData:
			if grantedReadOnly {
				continue
			}
			if err := session.Input(frame.Payload); err != nil {
				inputErr = err
				break
			}
		case FrameResize:
			if grantedReadOnly {
				continue
			}
			frameColumns, frameRows, err := ParseResizePayload(frame.Payload)
			if err != nil {
				logger.Warn("relay dropped malformed resize", "process", session.ProcessID(), "error", err)
				continue
			}
			if err := session.Resize(int(frameColumns), int(frameRows)); err != nil {
				logger.Warn("relay resize failed", "process", session.ProcessID(), "error", err)
			}
		default:
			logger.Warn("relay dropped unexpected frame", "process", session.ProcessID(), "type", frame.Type)
		}
		if inputErr != nil {
			break
		}
	}

	finish()
	<-pumpDone

	logger.Info("relay disconnected", "process", session.ProcessID())
	if inputErr != nil {
		return inputErr
	}
	// The pump closing the connection makes the reader fail; only
	// report the pump's own error in that case.
	return pumpErr
}

// readHello reads and validates the client's opening frame.
func readHello(conn net.Conn) (Hello, error) {
	frame, err := ReadFrame(conn)
	if err != nil {
		return Hello{}, fmt.Errorf("read hello: %w", err)
	}
	hello, err := DecodeHello(frame)
	if err != nil {
		return Hello{}, err
	}
	if hello.Mode != ModeReadWrite && hello.Mode != ModeReadOnly {
		return Hello{}, fmt.Errorf("unknown mode %q", hello.Mode)
	}
	return hello, nil
}

// Serve accepts connections on the listener and relays the session to
// each, one goroutine per connection. It returns when the listener
// closes.
func Serve(listener net.Listener, session *Session, readOnly bool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		conn, err := listener.Accept()
		if err != nil {
			if isClosedConn(err) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := Relay(conn, session, readOnly, logger); err != nil {
				logger.Warn("relay failed", "process", session.ProcessID(), "error", err)
			}
		}()
	}
}

// isClosedConn reports whether the error is the routine closed-socket
// failure raised when the other half of a relay tears the connection
// down first.
func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
