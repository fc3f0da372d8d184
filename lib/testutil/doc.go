// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for console packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. This exists because Unix domain sockets have a
// 108-byte path limit (sun_path in sockaddr_un), and build systems can
// set TEST_TMPDIR to deeply nested paths that exceed this limit,
// making t.TempDir() unsuitable for socket files. The directory is
// automatically removed when the test completes.
//
// [RequireClosed] waits for a lifecycle channel (a session's or
// remote's Done) with a timeout, so a missed close fails the test
// instead of hanging it.
//
// Helpers call t.Fatalf on failure rather than returning errors, since
// test setup failures are not recoverable.
//
// This package has no console-internal dependencies.
package testutil
