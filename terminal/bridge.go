// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed reports an operation on a bridge after Close. Teardown
// disposes the engine, so late callbacks (a size observation that was
// already in flight, a final output pull) must land on this guard
// instead of a dead engine handle.
var ErrClosed = errors.New("terminal bridge is closed")

// ColorMode selects the rendering palette.
type ColorMode string

const (
	ColorModeDark  ColorMode = "dark"
	ColorModeLight ColorMode = "light"
)

// CursorStyle selects the cursor shape.
type CursorStyle string

const (
	CursorBlock     CursorStyle = "block"
	CursorUnderline CursorStyle = "underline"
	CursorBar       CursorStyle = "bar"
)

// Options configures a Bridge. Use DefaultOptions as the base; zero
// values for the numeric fields are replaced with the documented
// defaults at construction time.
//
// Callbacks are invoked synchronously from the bridge operation that
// triggers them and must not call back into the bridge.
type Options struct {
	// OnInput receives user input verbatim: printable characters and
	// raw control bytes alike (\r, \x7f backspace, \x03 interrupt).
	// The consumer owns echo and line-editing semantics. Never invoked
	// when ReadOnly is set.
	OnInput func(data string)

	// OnResize is advisory notification of a successful fit, typically
	// forwarded to the remote PTY. At most one call per size
	// observation; failed fits emit nothing.
	OnResize func(columns, rows int)

	// OnReady is invoked once construction has fully completed.
	OnReady func(engine Engine)

	// AutoFocus focuses the bridge at construction. DefaultOptions
	// sets it true.
	AutoFocus bool

	// ReadOnly disables the input path entirely at construction time.
	// There is no way to enable input afterwards.
	ReadOnly bool

	FontSizePx           int       // default 14
	LineHeightMultiplier float64   // default 1.2
	Mode                 ColorMode // default dark

	// FontFamily is advisory: the emulation engine is headless and the
	// host terminal draws the glyphs, so the family is retained (see
	// FontFamily()) for hosts that render glyphs themselves but never
	// affects emulation. Default monospace stack.
	FontFamily string

	// ScrollbackLines bounds how much history survives off-screen.
	// vt10x keeps no scrollback buffer of its own, so the bound is
	// applied to the retained process output instead: RetainLimit()
	// converts it to a byte budget the host trims its accumulated
	// output to. Default 10000.
	ScrollbackLines int

	// CursorBlink and CursorStyle shape the cursor cell in the
	// engine's rendered output. DefaultOptions sets a blinking block.
	CursorBlink bool
	CursorStyle CursorStyle // default block

	// InitialSize is the grid used to construct the engine before the
	// first successful fit. Default 80x24.
	InitialSize Size

	// Engine overrides the vt10x-backed default, for hosts (and tests)
	// that supply their own emulator.
	Engine Engine

	// Fit overrides the default CellFit calculator.
	Fit FitCalculator

	// MeasuredMetrics overrides the cell geometry synthesized from
	// FontSizePx and LineHeightMultiplier with values measured from
	// the host (terminal pixel reporting). A later SetFontSize
	// discards the override and returns to synthesized metrics.
	MeasuredMetrics *FontMetrics
}

// DefaultOptions returns Options with every documented default filled
// in.
func DefaultOptions() Options {
	return Options{
		AutoFocus:            true,
		FontSizePx:           14,
		FontFamily:           `"SF Mono", "Cascadia Mono", "JetBrains Mono", monospace`,
		LineHeightMultiplier: 1.2,
		Mode:                 ColorModeDark,
		ScrollbackLines:      10000,
		CursorBlink:          true,
		CursorStyle:          CursorBlock,
		InitialSize:          Size{Columns: 80, Rows: 24},
	}
}

// Bridge binds one process's append-only output stream to one
// emulation engine. It owns the engine for its lifetime: created by
// New, disposed by Close, mutated in place for option changes in
// between (reconstruction would destroy screen state).
//
// All methods are safe for concurrent use; internally every operation
// is a single synchronous step under one mutex, so the offset
// bookkeeping in Sync is atomic with the process-change detection.
type Bridge struct {
	mutex sync.Mutex

	engine    Engine
	fit       FitCalculator
	announcer *Announcer

	onInput  func(string) // nil when read-only
	onResize func(columns, rows int)

	// processID identifies the bound process; bound distinguishes "no
	// process yet" from a process whose identifier is empty.
	processID string
	bound     bool

	// offset is the length of output already flushed into the engine.
	// Monotone while the same process is bound; reset to zero exactly
	// when the process changes.
	offset int

	size       Size
	metrics    FontMetrics
	fontSize   int
	lineMult   float64
	fontFamily string
	scrollback int
	mode       ColorMode

	// Last observed viewport dimensions, kept so a font-size change
	// can re-run the fit without a new observation.
	observedWidthPx  int
	observedHeightPx int
	observed         bool

	readOnly bool
	focused  bool
	closed   bool
}

// New constructs a bridge: builds the engine (unless injected),
// performs the initial fit-free sizing, announces readiness, applies
// auto-focus, emits the initial OnResize with the constructed size,
// and finally invokes OnReady.
func New(options Options) (*Bridge, error) {
	if options.FontSizePx <= 0 {
		options.FontSizePx = 14
	}
	if options.LineHeightMultiplier <= 0 {
		options.LineHeightMultiplier = 1.2
	}
	if options.Mode == "" {
		options.Mode = ColorModeDark
	}
	if options.ScrollbackLines <= 0 {
		options.ScrollbackLines = 10000
	}
	if options.CursorStyle == "" {
		options.CursorStyle = CursorBlock
	}
	if options.InitialSize.Columns <= 0 || options.InitialSize.Rows <= 0 {
		options.InitialSize = Size{Columns: 80, Rows: 24}
	}

	engine := options.Engine
	if engine == nil {
		built, err := NewEmulator(options.InitialSize.Columns, options.InitialSize.Rows)
		if err != nil {
			return nil, fmt.Errorf("construct emulation engine: %w", err)
		}
		engine = built
	}

	fit := options.Fit
	if fit == nil {
		fit = CellFit{}
	}

	bridge := &Bridge{
		engine:     engine,
		fit:        fit,
		announcer:  NewAnnouncer(),
		onResize:   options.OnResize,
		fontSize:   options.FontSizePx,
		lineMult:   options.LineHeightMultiplier,
		fontFamily: options.FontFamily,
		scrollback: options.ScrollbackLines,
		metrics:    bridgeMetrics(options),
		mode:       options.Mode,
		readOnly:   options.ReadOnly,
	}
	if !options.ReadOnly {
		bridge.onInput = options.OnInput
	}
	engine.SetCursorStyle(options.CursorStyle, options.CursorBlink)

	columns, rows := engine.Size()
	bridge.size = Size{Columns: columns, Rows: rows}

	bridge.announcer.Ready(options.ReadOnly)
	if options.AutoFocus {
		bridge.focused = true
		bridge.announcer.Focused()
	}
	if bridge.onResize != nil {
		bridge.onResize(bridge.size.Columns, bridge.size.Rows)
	}
	if options.OnReady != nil {
		options.OnReady(engine)
	}
	return bridge, nil
}

func bridgeMetrics(options Options) FontMetrics {
	if options.MeasuredMetrics != nil &&
		options.MeasuredMetrics.CellWidthPx > 0 && options.MeasuredMetrics.CellHeightPx > 0 {
		return *options.MeasuredMetrics
	}
	return Metrics(options.FontSizePx, options.LineHeightMultiplier)
}

// Sync brings the engine up to date with the process's output so far.
// rawOutput is the full append-only output of the process identified
// by processID; only the suffix beyond the already-flushed offset is
// written.
//
// Process-change detection and the offset reset happen in the same
// atomic step as the write: if processID differs from the bound
// process, or rawOutput is shorter than the flushed offset (history
// reset), the screen is cleared and the offset zeroed before the
// delta is computed. A stale delta can therefore never land after a
// clear.
func (bridge *Bridge) Sync(processID, rawOutput string) error {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	if bridge.closed {
		return ErrClosed
	}

	switch {
	case !bridge.bound:
		bridge.processID = processID
		bridge.bound = true
	case processID != bridge.processID || len(rawOutput) < bridge.offset:
		bridge.engine.Clear()
		bridge.processID = processID
		bridge.offset = 0
	}

	if len(rawOutput) <= bridge.offset {
		return nil
	}
	delta := rawOutput[bridge.offset:]
	written, err := bridge.engine.Write([]byte(delta))
	bridge.offset += written
	if err != nil {
		return fmt.Errorf("write %d output bytes: %w", len(delta), err)
	}
	return nil
}

// ObserveSize reports the viewport's current pixel dimensions,
// typically from the host's size observer. A successful fit resizes
// the engine, announces the new grid, and emits OnResize; a failed fit
// (viewport not laid out yet) changes nothing and emits nothing — it
// self-heals on the next observation.
func (bridge *Bridge) ObserveSize(widthPx, heightPx int) {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	if bridge.closed {
		return
	}

	bridge.observedWidthPx = widthPx
	bridge.observedHeightPx = heightPx
	bridge.observed = true

	bridge.refitLocked()
}

// SetFontSize applies a font-size change to the live engine state:
// cell metrics are re-derived and, if a viewport observation exists,
// the fit is re-run (a different cell size fits a different grid in
// the same pixels).
func (bridge *Bridge) SetFontSize(fontSizePx int) {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	if bridge.closed || fontSizePx <= 0 {
		return
	}
	bridge.fontSize = fontSizePx
	bridge.metrics = Metrics(fontSizePx, bridge.lineMult)
	if bridge.observed {
		bridge.refitLocked()
	}
}

// refitLocked runs the fit calculator against the last observed
// dimensions and applies the result. Caller holds the mutex.
func (bridge *Bridge) refitLocked() {
	size, err := bridge.fit.Fit(bridge.observedWidthPx, bridge.observedHeightPx, bridge.metrics)
	if err != nil {
		// Transient: keep the previous grid, no notification.
		return
	}
	bridge.size = size
	bridge.engine.Resize(size.Columns, size.Rows)
	bridge.announcer.Resized(size)
	if bridge.onResize != nil {
		bridge.onResize(size.Columns, size.Rows)
	}
}

// SetMode applies a palette change to the existing engine in place.
// The bridge never reconstructs the engine for option changes — that
// would destroy the screen and cursor state.
func (bridge *Bridge) SetMode(mode ColorMode) {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	if bridge.closed {
		return
	}
	bridge.mode = mode
}

// SetCursorStyle applies a cursor shape change to the live engine.
func (bridge *Bridge) SetCursorStyle(style CursorStyle, blink bool) {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	if bridge.closed || style == "" {
		return
	}
	bridge.engine.SetCursorStyle(style, blink)
}

// Input forwards user input bytes to the OnInput callback, verbatim
// and uninterpreted. In read-only mode the forwarding path was never
// wired, so input is dropped here regardless of call order.
func (bridge *Bridge) Input(data string) {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	if bridge.closed || bridge.onInput == nil || data == "" {
		return
	}
	bridge.onInput(data)
}

// Write appends text directly to the engine, bypassing the offset
// tracker. This is the imperative escape hatch for caller-driven
// messages ("Terminal cleared!" and the like). Mixing Write with
// prop-driven Sync can desynchronize the flushed offset from the
// visible content; that is the documented trade, not a bug.
func (bridge *Bridge) Write(text string) error {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	if bridge.closed {
		return ErrClosed
	}
	if _, err := bridge.engine.Write([]byte(text)); err != nil {
		return fmt.Errorf("imperative write: %w", err)
	}
	return nil
}

// Clear erases the engine's screen buffer. The flushed offset is
// deliberately left alone: callers mixing Clear with Sync own the
// consistency of what is on screen.
func (bridge *Bridge) Clear() {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	if bridge.closed {
		return
	}
	bridge.engine.Clear()
}

// Focus marks the bridge focused and announces it.
func (bridge *Bridge) Focus() {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	if bridge.closed {
		return
	}
	bridge.focused = true
	bridge.announcer.Focused()
}

// Blur marks the bridge unfocused. No announcement: the state machine
// announces focus-in only.
func (bridge *Bridge) Blur() {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	bridge.focused = false
}

// Focused reports the focus flag.
func (bridge *Bridge) Focused() bool {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	return bridge.focused
}

// ReadOnly reports whether the bridge was constructed read-only.
func (bridge *Bridge) ReadOnly() bool {
	return bridge.readOnly
}

// Mode returns the current color mode.
func (bridge *Bridge) Mode() ColorMode {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	return bridge.mode
}

// FontFamily returns the configured font family. The value never
// affects emulation (see Options.FontFamily); hosts that draw their
// own glyphs read it from here.
func (bridge *Bridge) FontFamily() string {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	return bridge.fontFamily
}

// retainBytesPerLine estimates the byte cost of one scrollback line,
// styling sequences included, for converting ScrollbackLines into a
// retained-output budget.
const retainBytesPerLine = 400

// RetainLimit is the byte budget for the append-only output the host
// accumulates for Sync, derived from ScrollbackLines. When the host
// trims its output to stay under the budget, Sync sees the shrink and
// rebuilds the screen from the retained tail.
func (bridge *Bridge) RetainLimit() int {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	return bridge.scrollback * retainBytesPerLine
}

// Size returns the current grid size.
func (bridge *Bridge) Size() Size {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	return bridge.size
}

// Offset returns the number of output bytes already flushed into the
// engine for the bound process.
func (bridge *Bridge) Offset() int {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	return bridge.offset
}

// ProcessID returns the bound process identifier, empty before the
// first Sync.
func (bridge *Bridge) ProcessID() string {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	return bridge.processID
}

// Render returns the engine's screen as ANSI-styled text for display.
// Returns the empty string after Close.
func (bridge *Bridge) Render() string {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	if bridge.closed {
		return ""
	}
	return bridge.engine.Render()
}

// Screen returns the engine's screen as plain text for assistive
// consumption.
func (bridge *Bridge) Screen() string {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	if bridge.closed {
		return ""
	}
	return bridge.engine.Screen()
}

// Announcement returns the current live-region string.
func (bridge *Bridge) Announcement() string {
	return bridge.announcer.Announcement()
}

// Close tears the bridge down: the engine is disposed and every
// subsequent operation becomes a guarded no-op. Safe to call more than
// once.
func (bridge *Bridge) Close() error {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()
	if bridge.closed {
		return nil
	}
	bridge.closed = true
	if err := bridge.engine.Close(); err != nil {
		return fmt.Errorf("dispose emulation engine: %w", err)
	}
	return nil
}
