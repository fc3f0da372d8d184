// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hinshun/vt10x"
)

// Engine is the emulation-engine boundary: it parses terminal control
// sequences and maintains the visual screen state (buffer, cursor).
// The bridge treats it as an owned, mutable resource — one engine per
// bridge, never shared.
//
// Write feeds raw output bytes (escape sequences and all). Render
// returns the screen as ANSI-styled text for display; Screen returns
// it as plain text for assistive consumption.
type Engine interface {
	Write(data []byte) (int, error)
	Resize(columns, rows int)
	Size() (columns, rows int)
	Render() string
	Screen() string
	Cursor() (column, row int)
	CursorVisible() bool
	SetCursorStyle(style CursorStyle, blink bool)
	Clear()
	Close() error
}

// Emulator is the vt10x-backed Engine implementation. vt10x is a
// headless VT100/xterm emulator: it interprets the byte stream and
// exposes the composed screen cell by cell.
//
// All methods are safe for concurrent use.
type Emulator struct {
	mutex       sync.Mutex
	vt          vt10x.Terminal
	cursorStyle CursorStyle
	cursorBlink bool
}

// NewEmulator creates an emulator with the given screen dimensions.
// The cursor renders as a blinking block until SetCursorStyle says
// otherwise.
func NewEmulator(columns, rows int) (*Emulator, error) {
	if columns < 1 || rows < 1 {
		return nil, fmt.Errorf("emulator size %dx%d: both dimensions must be positive", columns, rows)
	}
	return &Emulator{
		vt:          vt10x.New(vt10x.WithSize(columns, rows)),
		cursorStyle: CursorBlock,
		cursorBlink: true,
	}, nil
}

// Write feeds raw terminal bytes into the emulator.
func (emulator *Emulator) Write(data []byte) (int, error) {
	emulator.mutex.Lock()
	defer emulator.mutex.Unlock()
	return emulator.vt.Write(data)
}

// Resize changes the screen dimensions. Content is reflowed by vt10x;
// the observed process is expected to redraw after the accompanying
// PTY resize reaches it.
func (emulator *Emulator) Resize(columns, rows int) {
	emulator.mutex.Lock()
	defer emulator.mutex.Unlock()
	emulator.vt.Resize(columns, rows)
}

// Size returns the current screen dimensions.
func (emulator *Emulator) Size() (columns, rows int) {
	emulator.mutex.Lock()
	defer emulator.mutex.Unlock()
	return emulator.vt.Size()
}

// Cursor returns the current cursor position (zero-based).
func (emulator *Emulator) Cursor() (column, row int) {
	emulator.mutex.Lock()
	defer emulator.mutex.Unlock()
	cursor := emulator.vt.Cursor()
	return cursor.X, cursor.Y
}

// CursorVisible reports whether the observed application is showing
// the cursor. Full-screen applications commonly hide it while drawing.
func (emulator *Emulator) CursorVisible() bool {
	emulator.mutex.Lock()
	defer emulator.mutex.Unlock()
	return emulator.vt.CursorVisible()
}

// SetCursorStyle changes how Render draws the cursor cell.
func (emulator *Emulator) SetCursorStyle(style CursorStyle, blink bool) {
	emulator.mutex.Lock()
	defer emulator.mutex.Unlock()
	emulator.cursorStyle = style
	emulator.cursorBlink = blink
}

// Clear erases the screen buffer and homes the cursor. Implemented by
// feeding the standard erase-display sequence through the parser so
// the emulator's own state machine stays consistent.
func (emulator *Emulator) Clear() {
	emulator.mutex.Lock()
	defer emulator.mutex.Unlock()
	// ED 2 (erase display) + CUP (cursor home).
	emulator.vt.Write([]byte("\x1b[2J\x1b[H"))
}

// Close releases the emulator. vt10x holds no external resources, so
// this only exists to satisfy the Engine contract; the bridge calls it
// exactly once during teardown.
func (emulator *Emulator) Close() error {
	return nil
}

// Screen returns the composed screen as plain text: what a person
// would see, with trailing blank space trimmed. Escape sequences never
// appear in the result — they were consumed by the parser.
func (emulator *Emulator) Screen() string {
	emulator.mutex.Lock()
	defer emulator.mutex.Unlock()

	columns, rows := emulator.vt.Size()
	lines := make([]string, 0, rows)
	for row := 0; row < rows; row++ {
		var line strings.Builder
		for column := 0; column < columns; column++ {
			cell := emulator.vt.Cell(column, row)
			if cell.Char == 0 {
				line.WriteRune(' ')
			} else {
				line.WriteRune(cell.Char)
			}
		}
		lines = append(lines, strings.TrimRight(line.String(), " "))
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// Render returns the composed screen as ANSI-styled text, one line per
// screen row, with the cursor cell styled per SetCursorStyle when the
// application has it visible. Style runs are re-encoded minimally:
// a reset plus new colors only where the cell style changes.
func (emulator *Emulator) Render() string {
	emulator.mutex.Lock()
	defer emulator.mutex.Unlock()

	columns, rows := emulator.vt.Size()
	if columns <= 0 || rows <= 0 {
		return ""
	}

	cursor := emulator.vt.Cursor()
	showCursor := emulator.vt.CursorVisible()

	lines := make([]string, 0, rows)
	for row := 0; row < rows; row++ {
		var line strings.Builder
		lastForeground, lastBackground := vt10x.DefaultFG, vt10x.DefaultBG
		lastInverse := false

		for column := 0; column < columns; column++ {
			cell := emulator.vt.Cell(column, row)
			isCursor := showCursor && column == cursor.X && row == cursor.Y

			if cell.FG != lastForeground || cell.BG != lastBackground || isCursor != lastInverse {
				line.WriteString("\x1b[0m")
				writeForeground(&line, cell.FG)
				writeBackground(&line, cell.BG)
				if isCursor {
					line.WriteString(emulator.cursorSGR())
				}
				lastForeground, lastBackground = cell.FG, cell.BG
				lastInverse = isCursor
			}

			if cell.Char == 0 {
				line.WriteRune(' ')
			} else {
				line.WriteRune(cell.Char)
			}
		}
		line.WriteString("\x1b[0m")
		lines = append(lines, trimStyledLine(line.String()))
	}
	return strings.Join(lines, "\n")
}

// cursorSGR returns the attribute sequence for the cursor cell. A
// block is inverse video; underline and bar both render as SGR
// underline, since a one-column vertical bar has no cell-level
// attribute. Caller holds the mutex.
func (emulator *Emulator) cursorSGR() string {
	sgr := "\x1b[7m"
	if emulator.cursorStyle == CursorUnderline || emulator.cursorStyle == CursorBar {
		sgr = "\x1b[4m"
	}
	if emulator.cursorBlink {
		sgr += "\x1b[5m"
	}
	return sgr
}

// writeForeground emits the SGR sequence selecting a vt10x foreground
// color: 16-color ANSI, 256-color palette, or 24-bit truecolor
// (vt10x packs truecolor as r<<16 | g<<8 | b).
func writeForeground(line *strings.Builder, color vt10x.Color) {
	switch {
	case color == vt10x.DefaultFG:
	case color.ANSI() && color < 8:
		fmt.Fprintf(line, "\x1b[%dm", 30+color)
	case color.ANSI():
		fmt.Fprintf(line, "\x1b[%dm", 90+color-8)
	case color > 255:
		fmt.Fprintf(line, "\x1b[38;2;%d;%d;%dm", (color>>16)&0xFF, (color>>8)&0xFF, color&0xFF)
	default:
		fmt.Fprintf(line, "\x1b[38;5;%dm", color)
	}
}

// writeBackground is the background counterpart of writeForeground.
func writeBackground(line *strings.Builder, color vt10x.Color) {
	switch {
	case color == vt10x.DefaultBG:
	case color.ANSI() && color < 8:
		fmt.Fprintf(line, "\x1b[%dm", 40+color)
	case color.ANSI():
		fmt.Fprintf(line, "\x1b[%dm", 100+color-8)
	case color > 255:
		fmt.Fprintf(line, "\x1b[48;2;%d;%d;%dm", (color>>16)&0xFF, (color>>8)&0xFF, color&0xFF)
	default:
		fmt.Fprintf(line, "\x1b[48;5;%dm", color)
	}
}

// trimStyledLine removes trailing spaces from a rendered line while
// keeping the final reset sequence in place.
func trimStyledLine(line string) string {
	const reset = "\x1b[0m"
	if !strings.HasSuffix(line, reset) {
		return strings.TrimRight(line, " ")
	}
	body := strings.TrimRight(line[:len(line)-len(reset)], " ")
	return body + reset
}
