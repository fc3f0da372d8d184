// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

// Source is the process I/O contract the panel consumes. Output is an
// append-only byte stream addressed by offset; the panel accumulates
// it into the growing string the bridge synchronizes against.
//
// ProcessID changes exactly when the underlying process changes; the
// bridge uses it to detect a switch and reset its flushed offset.
type Source interface {
	// ProcessID identifies the bound process, stable for its lifetime.
	ProcessID() string

	// ReadFrom returns output bytes from the given offset (see
	// RingBuffer.ReadFrom for the semantics when the offset has
	// fallen out of the retained window).
	ReadFrom(offset uint64) []byte

	// ReadSince is ReadFrom plus the offset just past the returned
	// bytes, so a consumer can advance its cursor without losing data
	// written between the read and the next call.
	ReadSince(offset uint64) ([]byte, uint64)

	// CurrentOffset is the total output produced so far.
	CurrentOffset() uint64

	// Done is closed once the process has ended (or the connection to
	// it is gone) and all of its output is readable.
	Done() <-chan struct{}

	// Updates signals that new output (or a status change) is
	// available. The channel carries edge notifications, not data:
	// consumers drain it and then pull via ReadFrom.
	Updates() <-chan struct{}

	// Input delivers user input bytes to the process, verbatim.
	Input(data []byte) error

	// Resize propagates new grid dimensions to the process's PTY.
	Resize(columns, rows int) error

	// Running reports whether the process is still alive.
	Running() bool

	// Err returns the terminal error after the source stops, nil for
	// a clean exit or while still running.
	Err() error

	// Close releases the source. Idempotent.
	Close() error
}
