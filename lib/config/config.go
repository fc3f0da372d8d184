// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for console binaries.
type Config struct {
	// Terminal configures rendering and cell geometry.
	Terminal TerminalConfig `yaml:"terminal"`

	// Session configures locally spawned processes.
	Session SessionConfig `yaml:"session"`

	// Relay configures the observation socket.
	Relay RelayConfig `yaml:"relay"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// TerminalConfig configures rendering and cell geometry.
type TerminalConfig struct {
	// FontSizePx sets the cell geometry used to fit the terminal grid
	// into the panel viewport. Default: 14.
	FontSizePx int `yaml:"font_size_px"`

	// LineHeightMultiplier scales the cell height relative to the
	// font size. Default: 1.2.
	LineHeightMultiplier float64 `yaml:"line_height_multiplier"`

	// ScrollbackLines bounds the emulator's scrollback. Default: 10000.
	ScrollbackLines int `yaml:"scrollback_lines"`

	// CursorStyle is one of block, underline, bar. Default: block.
	CursorStyle string `yaml:"cursor_style"`

	// CursorBlink enables cursor blinking. Default: true.
	CursorBlink *bool `yaml:"cursor_blink"`

	// Theme is one of dark, light, auto. Auto detects the host
	// terminal's background. Default: auto.
	Theme string `yaml:"theme"`
}

// SessionConfig configures locally spawned processes.
type SessionConfig struct {
	// Shell is the program to run when no command is given on the
	// command line. Default: $SHELL, falling back to /bin/sh.
	Shell string `yaml:"shell"`

	// Dir is the working directory for spawned processes; empty means
	// inherit.
	Dir string `yaml:"dir"`

	// HistoryBytes is the output ring buffer capacity. Default: 1 MB.
	HistoryBytes int `yaml:"history_bytes"`

	// InitialColumns and InitialRows size the PTY at spawn, before
	// the first panel fit. Default: 80x24.
	InitialColumns int `yaml:"initial_columns"`
	InitialRows    int `yaml:"initial_rows"`
}

// RelayConfig configures the observation socket.
type RelayConfig struct {
	// SocketPath is the Unix socket the relay listens on and the
	// console dials. Default: ${XDG_RUNTIME_DIR}/console/relay.sock.
	SocketPath string `yaml:"socket_path"`

	// ReadOnly forces every relayed connection to read-only,
	// regardless of what clients request.
	ReadOnly bool `yaml:"read_only"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Output is the log file path. The console binary must not write
	// to the terminal it is drawing on, so its default is a file under
	// the state directory; "stderr" is honored for the relay.
	Output string `yaml:"output"`

	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level"`
}

// Default returns the default configuration. These defaults exist so
// every field has a sensible value before the file is merged in; the
// console binaries also run config-free on top of them.
func Default() *Config {
	blink := true
	return &Config{
		Terminal: TerminalConfig{
			FontSizePx:           14,
			LineHeightMultiplier: 1.2,
			ScrollbackLines:      10000,
			CursorStyle:          "block",
			CursorBlink:          &blink,
			Theme:                "auto",
		},
		Session: SessionConfig{
			Shell:          defaultShell(),
			HistoryBytes:   1024 * 1024,
			InitialColumns: 80,
			InitialRows:    24,
		},
		Relay: RelayConfig{
			SocketPath: "${XDG_RUNTIME_DIR:-/tmp}/console/relay.sock",
		},
		Log: LogConfig{
			Output: "${HOME}/.local/state/console/console.log",
			Level:  "info",
		},
	}
}

func defaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}

// Load loads configuration from the CONSOLE_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// If CONSOLE_CONFIG is not set, the defaults are returned: the console
// is usable with no config file at all.
func Load() (*Config, error) {
	configPath := os.Getenv("CONSOLE_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":            os.Getenv("HOME"),
		"XDG_RUNTIME_DIR": os.Getenv("XDG_RUNTIME_DIR"),
	}

	c.Session.Dir = expandVars(c.Session.Dir, vars)
	c.Relay.SocketPath = expandVars(c.Relay.SocketPath, vars)
	c.Log.Output = expandVars(c.Log.Output, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Terminal.FontSizePx <= 0 {
		errs = append(errs, fmt.Errorf("terminal.font_size_px must be positive, got %d", c.Terminal.FontSizePx))
	}
	if c.Terminal.LineHeightMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("terminal.line_height_multiplier must be positive, got %g", c.Terminal.LineHeightMultiplier))
	}
	if c.Terminal.ScrollbackLines < 0 {
		errs = append(errs, fmt.Errorf("terminal.scrollback_lines must not be negative, got %d", c.Terminal.ScrollbackLines))
	}

	cursorStyles := []string{"block", "underline", "bar"}
	if !contains(cursorStyles, c.Terminal.CursorStyle) {
		errs = append(errs, fmt.Errorf("terminal.cursor_style must be one of: %v", cursorStyles))
	}

	themes := []string{"dark", "light", "auto"}
	if !contains(themes, c.Terminal.Theme) {
		errs = append(errs, fmt.Errorf("terminal.theme must be one of: %v", themes))
	}

	if c.Session.Shell == "" {
		errs = append(errs, fmt.Errorf("session.shell is required"))
	}
	if c.Session.HistoryBytes <= 0 {
		errs = append(errs, fmt.Errorf("session.history_bytes must be positive, got %d", c.Session.HistoryBytes))
	}
	if c.Session.InitialColumns <= 0 || c.Session.InitialRows <= 0 {
		errs = append(errs, fmt.Errorf("session initial size %dx%d must be positive",
			c.Session.InitialColumns, c.Session.InitialRows))
	}

	if c.Relay.SocketPath == "" {
		errs = append(errs, fmt.Errorf("relay.socket_path is required"))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureLogDir creates the directory holding the log file.
func (c *Config) EnsureLogDir() error {
	if c.Log.Output == "" || c.Log.Output == "stderr" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Log.Output), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
