// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "console.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() fails validation: %v", err)
	}
	if cfg.Terminal.FontSizePx != 14 {
		t.Errorf("default font size = %d, want 14", cfg.Terminal.FontSizePx)
	}
	if cfg.Session.Shell == "" {
		t.Error("default shell is empty")
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
terminal:
  font_size_px: 18
  theme: light
session:
  initial_columns: 120
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Terminal.FontSizePx != 18 {
		t.Errorf("font size = %d, want 18", cfg.Terminal.FontSizePx)
	}
	if cfg.Terminal.Theme != "light" {
		t.Errorf("theme = %q, want light", cfg.Terminal.Theme)
	}
	if cfg.Session.InitialColumns != 120 {
		t.Errorf("initial columns = %d, want 120", cfg.Session.InitialColumns)
	}
	// Untouched fields keep their defaults.
	if cfg.Terminal.ScrollbackLines != 10000 {
		t.Errorf("scrollback = %d, want default 10000", cfg.Terminal.ScrollbackLines)
	}
	if cfg.Terminal.CursorStyle != "block" {
		t.Errorf("cursor style = %q, want default block", cfg.Terminal.CursorStyle)
	}
}

func TestLoadFileRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
terminal:
  cursor_style: wedge
  theme: sepia
`)
	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("LoadFile accepted invalid cursor style and theme")
	}
	if !strings.Contains(err.Error(), "cursor_style") {
		t.Errorf("error %q does not mention cursor_style", err)
	}
	if !strings.Contains(err.Error(), "theme") {
		t.Errorf("error %q does not mention theme", err)
	}
}

func TestLoadFileMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFile on a missing file succeeded")
	}
}

func TestCursorBlinkFalseSurvivesMerge(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
terminal:
  cursor_blink: false
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Terminal.CursorBlink == nil || *cfg.Terminal.CursorBlink {
		t.Error("cursor_blink: false was lost in the merge")
	}
}

func TestVariableExpansion(t *testing.T) {
	t.Setenv("HOME", "/home/operator")

	path := writeConfigFile(t, `
log:
  output: ${HOME}/logs/console.log
relay:
  socket_path: ${MISSING_VAR:-/tmp/fallback}/relay.sock
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Log.Output != "/home/operator/logs/console.log" {
		t.Errorf("log output = %q, want expanded HOME", cfg.Log.Output)
	}
	if cfg.Relay.SocketPath != "/tmp/fallback/relay.sock" {
		t.Errorf("socket path = %q, want default-expanded", cfg.Relay.SocketPath)
	}
}

func TestLoadWithoutEnvUsesDefaults(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Terminal.FontSizePx != 14 {
		t.Errorf("font size = %d, want default 14", cfg.Terminal.FontSizePx)
	}
}

func TestLoadHonorsEnvPath(t *testing.T) {
	path := writeConfigFile(t, `
terminal:
  font_size_px: 21
`)
	t.Setenv("CONSOLE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Terminal.FontSizePx != 21 {
		t.Errorf("font size = %d, want 21 from file", cfg.Terminal.FontSizePx)
	}
}
