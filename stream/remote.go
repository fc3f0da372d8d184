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

// RemoteOptions configures a connection to a relayed session.
type RemoteOptions struct {
	// Mode is the requested access mode. Default ModeReadWrite; the
	// server may still grant only readonly.
	Mode string

	// ResumeOffset is the last offset this client has already
	// consumed, zero on first connect. The server replays history from
	// here (or from the oldest byte it still retains).
	ResumeOffset uint64

	// HistoryBytes is the local ring capacity. Default
	// DefaultHistoryBytes.
	HistoryBytes int

	// Logger receives structured events. Nil means slog.Default().
	Logger *slog.Logger
}

// Remote mirrors a relayed session over a connection. Its ring buffer
// uses the server's offset numbering, so CurrentOffset is a valid
// ResumeOffset for the next connection to the same relay.
type Remote struct {
	conn     net.Conn
	metadata Metadata
	ring     *RingBuffer
	logger   *slog.Logger

	updates chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	mutex     sync.Mutex
	running   bool
	readErr   error
}

var _ Source = (*Remote)(nil)

// Dial connects to a relay, completes the handshake, and replays the
// server's history into a local ring before returning.
func Dial(network, address string, options RemoteOptions) (*Remote, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	remote, err := Connect(conn, options)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return remote, nil
}

// Connect completes the handshake on an established connection. On
// error the connection is left to the caller to close.
func Connect(conn net.Conn, options RemoteOptions) (*Remote, error) {
	if options.Mode == "" {
		options.Mode = ModeReadWrite
	}
	if options.HistoryBytes <= 0 {
		options.HistoryBytes = DefaultHistoryBytes
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hello, err := EncodeHello(Hello{Mode: options.Mode, Offset: options.ResumeOffset})
	if err != nil {
		return nil, fmt.Errorf("encode hello: %w", err)
	}
	if err := WriteFrame(conn, hello); err != nil {
		return nil, fmt.Errorf("send hello: %w", err)
	}

	frame, err := ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	welcome, err := DecodeWelcome(frame)
	if err != nil {
		return nil, err
	}
	if !welcome.OK {
		return nil, fmt.Errorf("server rejected handshake: %s", welcome.Error)
	}

	frame, err = ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	metadata, err := DecodeMetadata(frame)
	if err != nil {
		return nil, err
	}

	frame, err = ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	history, err := DecodeHistory(frame)
	if err != nil {
		return nil, err
	}

	// Seed the ring at the server's offset for the first history byte
	// so local offsets stay aligned with the server's numbering.
	ring := NewRingBufferAt(options.HistoryBytes, welcome.HistoryStart)
	ring.Write(history)

	remote := &Remote{
		conn:     conn,
		metadata: metadata,
		ring:     ring,
		logger:   logger,
		updates:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		running:  metadata.Running,
	}
	go remote.readLoop()

	logger.Info("remote connected",
		"process", metadata.ProcessID,
		"history_bytes", len(history),
		"read_only", metadata.ReadOnly,
	)
	return remote, nil
}

// readLoop copies data frames into the local ring until the connection
// closes.
func (remote *Remote) readLoop() {
	var readErr error
	for {
		frame, err := ReadFrame(remote.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !isClosedConn(err) {
				readErr = fmt.Errorf("connection to %s lost: %w", remote.metadata.ProcessID, err)
			}
			break
		}
		switch frame.Type {
		case FrameData:
			remote.ring.Write(frame.Payload)
			remote.notify()
		case FrameMetadata:
			metadata, err := DecodeMetadata(frame)
			if err != nil {
				remote.logger.Warn("remote dropped malformed metadata", "error", err)
				continue
			}
			remote.mutex.Lock()
			remote.metadata = metadata
			remote.running = metadata.Running
			remote.mutex.Unlock()
		default:
			remote.logger.Warn("remote dropped unexpected frame", "type", frame.Type)
		}
	}

	remote.mutex.Lock()
	remote.running = false
	remote.readErr = readErr
	remote.mutex.Unlock()

	close(remote.done)
	remote.notify()

	if readErr != nil {
		remote.logger.Warn("remote disconnected", "process", remote.metadata.ProcessID, "error", readErr)
	} else {
		remote.logger.Info("remote disconnected", "process", remote.metadata.ProcessID)
	}
}

func (remote *Remote) notify() {
	select {
	case remote.updates <- struct{}{}:
	default:
	}
}

// ProcessID implements Source.
func (remote *Remote) ProcessID() string {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	return remote.metadata.ProcessID
}

// Metadata returns the session description from the handshake.
func (remote *Remote) Metadata() Metadata {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	return remote.metadata
}

// ReadOnly reports whether the server granted input.
func (remote *Remote) ReadOnly() bool {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	return remote.metadata.ReadOnly
}

// ReadFrom implements Source.
func (remote *Remote) ReadFrom(offset uint64) []byte {
	return remote.ring.ReadFrom(offset)
}

// ReadSince implements Source.
func (remote *Remote) ReadSince(offset uint64) ([]byte, uint64) {
	return remote.ring.ReadSince(offset)
}

// CurrentOffset implements Source. The value is server-aligned and can
// be passed as ResumeOffset on reconnect.
func (remote *Remote) CurrentOffset() uint64 {
	return remote.ring.CurrentOffset()
}

// Updates implements Source.
func (remote *Remote) Updates() <-chan struct{} { return remote.updates }

// Done is closed when the connection is gone and all received output
// is in the ring.
func (remote *Remote) Done() <-chan struct{} { return remote.done }

// Input implements Source, forwarding bytes to the relay.
func (remote *Remote) Input(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if remote.ReadOnly() {
		return fmt.Errorf("session %s is read-only", remote.ProcessID())
	}
	if err := WriteFrame(remote.conn, Frame{Type: FrameData, Payload: data}); err != nil {
		return fmt.Errorf("send input: %w", err)
	}
	return nil
}

// Resize implements Source, forwarding the new dimensions to the relay.
func (remote *Remote) Resize(columns, rows int) error {
	if columns < 1 || rows < 1 {
		return fmt.Errorf("resize to %dx%d: dimensions must be positive", columns, rows)
	}
	if remote.ReadOnly() {
		return nil
	}
	if err := WriteFrame(remote.conn, NewResizeFrame(uint16(columns), uint16(rows))); err != nil {
		return fmt.Errorf("send resize: %w", err)
	}
	return nil
}

// Running implements Source.
func (remote *Remote) Running() bool {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	return remote.running
}

// Err implements Source.
func (remote *Remote) Err() error {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	return remote.readErr
}

// Close implements Source, closing the connection and waiting for the
// reader to drain.
func (remote *Remote) Close() error {
	remote.closeOnce.Do(func() {
		_ = remote.conn.Close()
		<-remote.done
	})
	return nil
}
