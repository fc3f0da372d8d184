// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream supplies terminal output to the console's panels: it
// is the process I/O side of the bridge contract. A [Source] produces
// a monotonically growing output stream identified by a process ID,
// accepts input bytes, and accepts PTY resize requests.
//
// Two sources are provided. [Session] runs a local process under a
// pseudo-terminal and feeds its output through an offset-tracked
// [RingBuffer]. [Remote] consumes a session served over a connection
// by [Relay], using the same ring-buffer offsets to resume after a
// reconnect without replaying bytes the client already has — the
// server replays exactly the suffix the client missed, so the panel's
// bridge always sees a pure append.
//
// The wire format is a framed binary protocol: a 5-byte header (1 byte
// type, 4 bytes big-endian payload length) followed by the payload.
// Data frames carry raw terminal bytes in both directions, Resize
// frames carry grid dimensions, History frames carry a zstd-compressed
// ring replay, and Metadata frames describe the session. The handshake
// (Hello/Welcome) is CBOR inside the same framing.
package stream
