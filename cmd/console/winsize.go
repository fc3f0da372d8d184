// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/console/terminal"
)

// measureCellMetrics asks the host terminal for its pixel dimensions
// via TIOCGWINSZ and derives the real cell geometry from them. Most
// terminal emulators report pixels; multiplexers and consoles that
// report zero fall back to the synthesized font metrics.
func measureCellMetrics(logger *slog.Logger) *terminal.FontMetrics {
	winsize, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		logger.Debug("winsize query failed", "error", err)
		return nil
	}
	if winsize.Xpixel == 0 || winsize.Ypixel == 0 || winsize.Col == 0 || winsize.Row == 0 {
		return nil
	}
	metrics := terminal.FontMetrics{
		CellWidthPx:  float64(winsize.Xpixel) / float64(winsize.Col),
		CellHeightPx: float64(winsize.Ypixel) / float64(winsize.Row),
	}
	logger.Debug("measured cell geometry",
		"cell_width_px", metrics.CellWidthPx,
		"cell_height_px", metrics.CellHeightPx,
	)
	return &metrics
}
