// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Console-relay runs a command under a PTY and serves its terminal
// session on a unix socket. Any number of console clients may attach
// concurrently; each receives the retained history on connect and the
// live output stream after it. The relay exits when the command does.
//
// The socket path comes from the configuration file (relay.socket_path)
// or the --socket flag. A stale socket left by a previous run is
// removed before listening.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/console/lib/config"
	"github.com/bureau-foundation/console/lib/version"
	"github.com/bureau-foundation/console/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "console-relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var socketPath string
	var readOnly bool
	var logLevelName string

	flagSet := pflag.NewFlagSet("console-relay", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to console.yaml (overrides CONSOLE_CONFIG)")
	flagSet.StringVar(&socketPath, "socket", "", "unix socket path to serve on")
	flagSet.BoolVar(&readOnly, "read-only", false, "serve all clients read-only regardless of requested mode")
	flagSet.StringVar(&logLevelName, "log-level", "", "log level: debug, info, warn, error")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match other console
	// binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("console-relay")
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
	if socketPath == "" {
		socketPath = cfg.Relay.SocketPath
	}
	if !readOnly {
		readOnly = cfg.Relay.ReadOnly
	}
	if logLevelName == "" {
		logLevelName = cfg.Log.Level
	}

	// The relay owns no terminal, so logs go to stderr as text.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(logLevelName),
	}))

	command := flagSet.Args()
	if len(command) == 0 {
		command = []string{cfg.Session.Shell}
	}

	session, err := stream.StartSession(stream.SessionOptions{
		Command:        command,
		Dir:            cfg.Session.Dir,
		InitialColumns: cfg.Session.InitialColumns,
		InitialRows:    cfg.Session.InitialRows,
		HistoryBytes:   cfg.Session.HistoryBytes,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	listener, err := listen(socketPath)
	if err != nil {
		return err
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	logger.Info("relay listening",
		"socket", socketPath,
		"command", session.Command(),
		"process_id", session.ProcessID(),
		"read_only", readOnly,
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- stream.Serve(listener, session, readOnly, logger)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		logger.Info("shutting down", "signal", sig.String())
		listener.Close()
		session.Close()
		<-serveErr
		return nil
	case <-session.Done():
		listener.Close()
		<-serveErr
		if err := session.Err(); err != nil {
			return fmt.Errorf("session ended: %w", err)
		}
		logger.Info("session ended")
		return nil
	case err := <-serveErr:
		return err
	}
}

// listen binds the unix socket, creating the parent directory and
// removing a stale socket from a previous run. A socket another relay
// is still serving on is left alone.
func listen(socketPath string) (net.Listener, error) {
	if socketPath == "" {
		return nil, errors.New("no socket path configured")
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if _, err := os.Stat(socketPath); err == nil {
		conn, dialErr := net.Dial("unix", socketPath)
		if dialErr == nil {
			conn.Close()
			return nil, fmt.Errorf("socket %s is already in use", socketPath)
		}
		if err := os.Remove(socketPath); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	return listener, nil
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
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

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Console-relay — serve a PTY session on a unix socket.

Spawns the configured shell (or the command given after the flags)
under a fresh PTY and serves its terminal session to console clients.
Clients attach with: console --socket <path>

Usage:
  console-relay [flags] [command [args...]]

Flags:
%s
Examples:
  console-relay --socket /run/console/build.sock -- make -j8
  console-relay                    # serve the configured shell
`, flagSet.FlagUsages())
}
