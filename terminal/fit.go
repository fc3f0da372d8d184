// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"errors"
	"fmt"
)

// ErrFitUnavailable reports that a fit computation could not run
// because the viewport has no usable dimensions yet. This is the
// transient "container not laid out" case: the bridge swallows it and
// keeps the previous size.
var ErrFitUnavailable = errors.New("viewport has no usable dimensions")

// Size is a terminal grid size in character cells.
type Size struct {
	Columns int
	Rows    int
}

func (size Size) String() string {
	return fmt.Sprintf("%dx%d", size.Columns, size.Rows)
}

// FontMetrics describes the pixel footprint of one character cell for
// the active font. The bridge derives these from its font options and
// re-derives them when the font size changes, since cell size is what
// converts pixels into columns and rows.
type FontMetrics struct {
	CellWidthPx  float64
	CellHeightPx float64
}

// Metrics computes cell metrics for a monospace font of the given size
// with the given line-height multiplier. The 0.6 em advance width is
// the conventional monospace aspect ratio; exact per-font measurement
// is the renderer's problem, not the bridge's.
func Metrics(fontSizePx int, lineHeightMultiplier float64) FontMetrics {
	return FontMetrics{
		CellWidthPx:  float64(fontSizePx) * 0.6,
		CellHeightPx: float64(fontSizePx) * lineHeightMultiplier,
	}
}

// FitCalculator computes the columns and rows that fit a pixel-sized
// viewport given the active font metrics. It is an injected capability
// so the cell-measurement strategy can vary by host; the bridge only
// depends on the contract: a Size on success, an error when the
// viewport cannot be measured.
type FitCalculator interface {
	Fit(widthPx, heightPx int, metrics FontMetrics) (Size, error)
}

// CellFit is the default calculator: integer division of the viewport
// by the cell footprint. It fails rather than returning a zero or
// negative grid, so a not-yet-laid-out viewport can never propagate an
// invalid size.
type CellFit struct{}

// Fit implements FitCalculator.
func (CellFit) Fit(widthPx, heightPx int, metrics FontMetrics) (Size, error) {
	if widthPx <= 0 || heightPx <= 0 {
		return Size{}, fmt.Errorf("fit %dx%d px: %w", widthPx, heightPx, ErrFitUnavailable)
	}
	if metrics.CellWidthPx <= 0 || metrics.CellHeightPx <= 0 {
		return Size{}, fmt.Errorf("fit with cell %gx%g px: %w", metrics.CellWidthPx, metrics.CellHeightPx, ErrFitUnavailable)
	}
	// The small tolerance keeps an exact multiple of the cell size
	// from flooring down a cell when the division lands just under an
	// integer (840 / 8.4 evaluates below 100 in float64).
	const tolerance = 1e-6
	size := Size{
		Columns: int(float64(widthPx)/metrics.CellWidthPx + tolerance),
		Rows:    int(float64(heightPx)/metrics.CellHeightPx + tolerance),
	}
	if size.Columns < 1 || size.Rows < 1 {
		return Size{}, fmt.Errorf("viewport %dx%d px fits no cells: %w", widthPx, heightPx, ErrFitUnavailable)
	}
	return size, nil
}
