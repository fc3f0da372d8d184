// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package terminal implements the console's terminal bridge: the
// binding between one observed process's output stream and one
// emulated terminal screen.
//
// The bridge owns a single emulation [Engine] for its lifetime. Output
// arrives as a monotonically growing string; [Bridge.Sync] writes only
// the suffix beyond the last flushed offset into the engine, so no
// byte is ever written twice and the cost of an update is proportional
// to the new output, not the total. A process identity change (or a
// shrinking output string, which implies one) clears the screen and
// resets the offset in the same step, so a stale delta can never land
// after a clear.
//
// Sizing is delegated to an injected [FitCalculator] that converts the
// viewport's pixel dimensions and font metrics into columns and rows.
// A failed fit (viewport not yet laid out) leaves the previous
// dimensions intact; a successful one resizes the engine and notifies
// the caller so the remote PTY can be kept in step.
//
// Input flows the other way: the host delivers key bytes to
// [Bridge.Input], which forwards them verbatim — no echo, no line
// editing — unless the bridge was constructed read-only, in which case
// the forwarding path does not exist at all.
//
// State transitions (ready, focused, resized, error) are surfaced as a
// single replaceable announcement string for assistive output; see
// [Announcer].
package terminal
