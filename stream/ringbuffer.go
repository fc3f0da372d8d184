// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import "sync"

// DefaultHistoryBytes is the default ring capacity. 1 MB of raw
// terminal output covers hours of coding-agent activity, escape
// sequences included.
const DefaultHistoryBytes = 1024 * 1024

// RingBuffer stores the most recent output bytes of one session along
// with a monotonically increasing byte offset. Observers remember the
// offset they have consumed and ask for everything after it; on
// reconnect the same offset yields exactly the missed suffix, which is
// what lets the panel's bridge treat the stream as append-only across
// connection churn.
//
// Escape sequences are preserved byte for byte — the buffer holds raw
// output, not rendered text. When full, the oldest bytes are
// overwritten.
//
// All methods are safe for concurrent use.
type RingBuffer struct {
	mutex    sync.Mutex
	data     []byte
	capacity int

	// head is the next write position within data (0..capacity-1).
	head int

	// written is the offset just past the last byte written; the
	// retained window spans [written-stored, written) where stored is
	// min(written-start, capacity).
	written uint64

	// start is the offset numbering origin (zero for local sessions,
	// the resume offset for remote mirrors).
	start uint64
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	return NewRingBufferAt(capacity, 0)
}

// NewRingBufferAt creates a ring buffer whose offset numbering starts
// at the given value instead of zero. A remote observer uses this to
// keep its local copy of a session's history aligned with the
// server-side offsets, so the offset it saves for reconnection is
// meaningful to the server.
func NewRingBufferAt(capacity int, startOffset uint64) *RingBuffer {
	return &RingBuffer{
		data:     make([]byte, capacity),
		capacity: capacity,
		written:  startOffset,
		start:    startOffset,
	}
}

// Write appends bytes, advancing the offset and overwriting the oldest
// data when the buffer is full.
func (ring *RingBuffer) Write(data []byte) {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()

	remaining := data
	for len(remaining) > 0 {
		chunk := copy(ring.data[ring.head:], remaining)
		ring.head = (ring.head + chunk) % ring.capacity
		remaining = remaining[chunk:]
	}
	ring.written += uint64(len(data))
}

// ReadFrom returns a copy of all bytes written at or after the given
// offset. An offset older than the retained window yields the whole
// window (the caller missed data that is gone for good); an offset at
// or past the current write offset yields nil.
func (ring *RingBuffer) ReadFrom(offset uint64) []byte {
	data, _ := ring.ReadSince(offset)
	return data
}

// ReadSince is ReadFrom plus the offset just past the returned data,
// captured under the same lock. Relays pumping a live session need the
// pair to be consistent: the returned end is exactly where the next
// delta starts, even if a write lands between calls.
func (ring *RingBuffer) ReadSince(offset uint64) ([]byte, uint64) {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()

	if offset >= ring.written {
		return nil, ring.written
	}

	stored := ring.written - ring.start
	if stored > uint64(ring.capacity) {
		stored = uint64(ring.capacity)
	}
	oldest := ring.written - stored
	if offset < oldest {
		offset = oldest
	}

	length := int(ring.written - offset)
	result := make([]byte, length)

	// head marks both the next write position and the wrap point of
	// the retained window; the window starts stored bytes behind it.
	position := (ring.head - int(stored) + int(offset-oldest)) % ring.capacity
	if position < 0 {
		position += ring.capacity
	}

	copied := copy(result, ring.data[position:])
	if copied < length {
		copy(result[copied:], ring.data[:length-copied])
	}
	return result, ring.written
}

// Oldest returns the offset of the oldest retained byte.
func (ring *RingBuffer) Oldest() uint64 {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()

	stored := ring.written - ring.start
	if stored > uint64(ring.capacity) {
		stored = uint64(ring.capacity)
	}
	return ring.written - stored
}

// CurrentOffset returns the total bytes written so far: the offset an
// observer should record and pass back to ReadFrom after a reconnect.
func (ring *RingBuffer) CurrentOffset() uint64 {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()
	return ring.written
}
