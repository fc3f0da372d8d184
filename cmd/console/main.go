// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Console is an interactive terminal panel for a single process.
//
// Two modes of operation:
//
// Local mode (default): spawns a command (the configured shell when no
// arguments are given) under a fresh PTY and attaches the panel to it.
//
// Remote mode (--socket): dials a console-relay unix socket and
// mirrors the session it serves. Input and resize are forwarded unless
// --read-only is set or the relay itself is read-only. The panel
// resumes from its saved history offset on reconnect, so the terminal
// never replays output it has already rendered.
//
// Configuration is read from the file named by CONSOLE_CONFIG or
// --config; without either, built-in defaults apply.
package main

import (
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/console/lib/config"
	"github.com/bureau-foundation/console/lib/version"
	"github.com/bureau-foundation/console/panel"
	"github.com/bureau-foundation/console/stream"
	"github.com/bureau-foundation/console/terminal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "console: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var socketPath string
	var readOnly bool
	var logOutput string
	var title string

	flagSet := pflag.NewFlagSet("console", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to console.yaml (overrides CONSOLE_CONFIG)")
	flagSet.StringVar(&socketPath, "socket", "", "dial a console-relay unix socket instead of spawning locally")
	flagSet.BoolVar(&readOnly, "read-only", false, "observe without forwarding input")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file")
	flagSet.StringVar(&title, "title", "", "status line title")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match other console
	// binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("console")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("stdin is not a terminal")
	}

	logger, closeLog, err := openLogger(cfg, logOutput)
	if err != nil {
		return err
	}
	defer closeLog()

	options := panel.Options{
		ReadOnly:             readOnly,
		Theme:                chooseTheme(cfg.Terminal.Theme),
		FontSizePx:           cfg.Terminal.FontSizePx,
		LineHeightMultiplier: cfg.Terminal.LineHeightMultiplier,
		MeasuredMetrics:      measureCellMetrics(logger),
		ScrollbackLines:      cfg.Terminal.ScrollbackLines,
		CursorStyle:          terminal.CursorStyle(cfg.Terminal.CursorStyle),
		CursorBlink:          cfg.Terminal.CursorBlink,
		Title:                title,
		Logger:               logger,
	}

	command := flagSet.Args()
	if socketPath != "" {
		if len(command) > 0 {
			return fmt.Errorf("--socket and a command are mutually exclusive")
		}
		options.Connect = func() (stream.Source, error) {
			mode := stream.ModeReadWrite
			if readOnly {
				mode = stream.ModeReadOnly
			}
			return stream.Dial("unix", socketPath, stream.RemoteOptions{
				Mode:         mode,
				HistoryBytes: cfg.Session.HistoryBytes,
				Logger:       logger,
			})
		}
	} else {
		if len(command) == 0 {
			command = []string{cfg.Session.Shell}
		}
		options.Connect = func() (stream.Source, error) {
			return stream.StartSession(stream.SessionOptions{
				Command:        command,
				Dir:            cfg.Session.Dir,
				InitialColumns: cfg.Session.InitialColumns,
				InitialRows:    cfg.Session.InitialRows,
				HistoryBytes:   cfg.Session.HistoryBytes,
				Logger:         logger,
			})
		}
	}

	program := tea.NewProgram(panel.New(options), tea.WithAltScreen(), tea.WithReportFocus())
	_, err = program.Run()
	return err
}

// loadConfig resolves the configuration: explicit flag path first,
// then the CONSOLE_CONFIG environment variable, then defaults.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// openLogger builds the slog logger. The console draws on the
// terminal, so log records go to a file (JSON) and never to stderr; an
// empty path discards them.
func openLogger(cfg *config.Config, override string) (*slog.Logger, func(), error) {
	path := cfg.Log.Output
	if override != "" {
		path = override
	}
	if path == "" || path == "stderr" {
		// stderr is the TUI's own screen; treat it as "no log file".
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	cfg.Log.Output = path
	if err := cfg.EnsureLogDir(); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})
	return slog.New(handler), func() { _ = file.Close() }, nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func chooseTheme(name string) panel.Theme {
	switch name {
	case "dark":
		return panel.DarkTheme
	case "light":
		return panel.LightTheme
	default:
		return panel.DetectTheme()
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Console — interactive terminal panel for one process.

By default, spawns the configured shell (or the command given after
the flags) under a fresh PTY. With --socket, dials a console-relay and
mirrors the session it serves; reconnects resume from the saved output
offset instead of replaying the whole history.

Usage:
  console [flags] [command [args...]]

Flags:
%s
Examples:
  console                          # interactive shell
  console htop                     # a specific program
  console --socket /run/console/relay.sock --read-only
`, flagSet.FlagUsages())
}
