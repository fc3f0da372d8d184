// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Frame type constants for the observation wire format. Each frame is
// a 5-byte header (1 byte type + 4 byte big-endian payload length)
// followed by the payload.
const (
	// FrameData carries raw terminal bytes. Bidirectional: output
	// flows server→client, input flows client→server. Opaque bytes,
	// passed through unmodified.
	FrameData byte = 0x01

	// FrameResize carries grid dimensions, client→server only.
	// Payload is 4 bytes: columns then rows, each big-endian uint16.
	FrameResize byte = 0x02

	// FrameHistory carries a zstd-compressed ring replay,
	// server→client only, sent once after the handshake and before
	// any live data.
	FrameHistory byte = 0x03

	// FrameMetadata carries session information as JSON,
	// server→client only, sent immediately after the handshake.
	FrameMetadata byte = 0x04

	// FrameHello is the client's CBOR handshake request.
	FrameHello byte = 0x05

	// FrameWelcome is the server's CBOR handshake response.
	FrameWelcome byte = 0x06
)

// frameHeaderLength is the fixed header size: 1 byte type + 4 bytes
// payload length.
const frameHeaderLength = 5

// maxPayloadLength bounds a single payload. 16 MB is generous for
// terminal traffic; even an uncompressed full-ring history replay is
// 1 MB.
const maxPayloadLength = 16 * 1024 * 1024

// Frame is a single protocol frame.
type Frame struct {
	Type    byte
	Payload []byte
}

// WriteFrame writes a framed message to w.
func WriteFrame(w io.Writer, frame Frame) error {
	var header [frameHeaderLength]byte
	header[0] = frame.Type
	binary.BigEndian.PutUint32(header[1:5], uint32(len(frame.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(frame.Payload) > 0 {
		if _, err := w.Write(frame.Payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one framed message from r, rejecting payloads over
// maxPayloadLength.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}
	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > maxPayloadLength {
		return Frame{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, maxPayloadLength)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return Frame{Type: header[0], Payload: payload}, nil
}

// NewResizeFrame encodes grid dimensions.
func NewResizeFrame(columns, rows uint16) Frame {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], columns)
	binary.BigEndian.PutUint16(payload[2:4], rows)
	return Frame{Type: FrameResize, Payload: payload}
}

// ParseResizePayload decodes a resize payload. Errors unless the
// payload is exactly 4 bytes.
func ParseResizePayload(payload []byte) (columns, rows uint16, err error) {
	if len(payload) != 4 {
		return 0, 0, fmt.Errorf("resize payload must be 4 bytes, got %d", len(payload))
	}
	return binary.BigEndian.Uint16(payload[0:2]), binary.BigEndian.Uint16(payload[2:4]), nil
}

// Handshake modes a client may request. The server can still downgrade
// a readwrite request to readonly; Metadata reports what was granted.
const (
	ModeReadWrite = "readwrite"
	ModeReadOnly  = "readonly"
)

// Hello is the client handshake request, CBOR-encoded in a FrameHello.
type Hello struct {
	// Mode is "readwrite" or "readonly".
	Mode string `cbor:"mode"`

	// Offset is the ring offset the client has already consumed, zero
	// on first connect. The server replays history from here.
	Offset uint64 `cbor:"offset"`
}

// Welcome is the server handshake response, CBOR-encoded in a
// FrameWelcome. On failure the connection is closed after sending it.
type Welcome struct {
	OK        bool   `cbor:"ok"`
	ProcessID string `cbor:"process_id,omitempty"`
	Error     string `cbor:"error,omitempty"`

	// HistoryStart is the server offset of the first byte of the
	// history frame that follows. It can exceed the client's requested
	// offset when the requested bytes have aged out of the ring.
	HistoryStart uint64 `cbor:"history_start,omitempty"`
}

// Metadata describes the served session, JSON-encoded in a
// FrameMetadata.
type Metadata struct {
	// ProcessID identifies the served process.
	ProcessID string `json:"process_id"`

	// Command is the program running in the session.
	Command string `json:"command"`

	// Columns and Rows are the PTY dimensions at handshake time.
	Columns int `json:"columns"`
	Rows    int `json:"rows"`

	// ReadOnly reports whether the server granted input.
	ReadOnly bool `json:"read_only"`

	// Running reports whether the process was still alive at
	// handshake time. A relay keeps serving retained history after
	// its process exits; clients of such a session start out stopped.
	Running bool `json:"running"`
}

// EncodeHello wraps a Hello into its frame.
func EncodeHello(hello Hello) (Frame, error) {
	payload, err := cbor.Marshal(hello)
	if err != nil {
		return Frame{}, fmt.Errorf("encode hello: %w", err)
	}
	return Frame{Type: FrameHello, Payload: payload}, nil
}

// DecodeHello unwraps a FrameHello.
func DecodeHello(frame Frame) (Hello, error) {
	if frame.Type != FrameHello {
		return Hello{}, fmt.Errorf("expected hello frame, got type 0x%02x", frame.Type)
	}
	var hello Hello
	if err := cbor.Unmarshal(frame.Payload, &hello); err != nil {
		return Hello{}, fmt.Errorf("decode hello: %w", err)
	}
	return hello, nil
}

// EncodeWelcome wraps a Welcome into its frame.
func EncodeWelcome(welcome Welcome) (Frame, error) {
	payload, err := cbor.Marshal(welcome)
	if err != nil {
		return Frame{}, fmt.Errorf("encode welcome: %w", err)
	}
	return Frame{Type: FrameWelcome, Payload: payload}, nil
}

// DecodeWelcome unwraps a FrameWelcome.
func DecodeWelcome(frame Frame) (Welcome, error) {
	if frame.Type != FrameWelcome {
		return Welcome{}, fmt.Errorf("expected welcome frame, got type 0x%02x", frame.Type)
	}
	var welcome Welcome
	if err := cbor.Unmarshal(frame.Payload, &welcome); err != nil {
		return Welcome{}, fmt.Errorf("decode welcome: %w", err)
	}
	return welcome, nil
}

// EncodeMetadata wraps a Metadata into its frame.
func EncodeMetadata(metadata Metadata) (Frame, error) {
	payload, err := json.Marshal(metadata)
	if err != nil {
		return Frame{}, fmt.Errorf("encode metadata: %w", err)
	}
	return Frame{Type: FrameMetadata, Payload: payload}, nil
}

// DecodeMetadata unwraps a FrameMetadata.
func DecodeMetadata(frame Frame) (Metadata, error) {
	if frame.Type != FrameMetadata {
		return Metadata{}, fmt.Errorf("expected metadata frame, got type 0x%02x", frame.Type)
	}
	var metadata Metadata
	if err := json.Unmarshal(frame.Payload, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return metadata, nil
}

// History frames are zstd-compressed: replays approach the full ring
// capacity and terminal output (prompts, redraws, log prefixes)
// compresses well. Shared codec instances; EncodeAll/DecodeAll are
// safe for concurrent use.
var (
	historyEncoder, _ = zstd.NewWriter(nil)
	historyDecoder, _ = zstd.NewReader(nil)
)

// NewHistoryFrame compresses a ring replay into its frame.
func NewHistoryFrame(history []byte) Frame {
	return Frame{
		Type:    FrameHistory,
		Payload: historyEncoder.EncodeAll(history, nil),
	}
}

// DecodeHistory decompresses a FrameHistory payload, bounding the
// decompressed size to the payload limit.
func DecodeHistory(frame Frame) ([]byte, error) {
	if frame.Type != FrameHistory {
		return nil, fmt.Errorf("expected history frame, got type 0x%02x", frame.Type)
	}
	history, err := historyDecoder.DecodeAll(frame.Payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress history: %w", err)
	}
	if len(history) > maxPayloadLength {
		return nil, fmt.Errorf("decompressed history %d bytes exceeds maximum %d", len(history), maxPayloadLength)
	}
	return history, nil
}
