// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package panel renders a live terminal session as a bubbletea
// component. It owns the UI states around the session lifecycle
// (connecting, failed, ended, active), translates key presses into the
// byte sequences a PTY expects, and feeds process output through a
// terminal.Bridge so only new bytes ever reach the emulation engine.
package panel
