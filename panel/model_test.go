// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package panel

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/console/stream"
	"github.com/bureau-foundation/console/terminal"
)

// fakeSource is an in-memory Source fed directly by the tests.
type fakeSource struct {
	id      string
	ring    *stream.RingBuffer
	updates chan struct{}
	done    chan struct{}

	inputs  [][]byte
	resizes [][2]int
	exitErr error
	closed  bool
}

func newFakeSource(id string) *fakeSource {
	return &fakeSource{
		id:      id,
		ring:    stream.NewRingBuffer(64 * 1024),
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (source *fakeSource) emit(output string) {
	source.ring.Write([]byte(output))
	select {
	case source.updates <- struct{}{}:
	default:
	}
}

func (source *fakeSource) ProcessID() string        { return source.id }
func (source *fakeSource) ReadFrom(o uint64) []byte { return source.ring.ReadFrom(o) }
func (source *fakeSource) ReadSince(o uint64) ([]byte, uint64) {
	return source.ring.ReadSince(o)
}
func (source *fakeSource) CurrentOffset() uint64     { return source.ring.CurrentOffset() }
func (source *fakeSource) Updates() <-chan struct{}  { return source.updates }
func (source *fakeSource) Done() <-chan struct{}     { return source.done }
func (source *fakeSource) Running() bool             { return !source.closed }
func (source *fakeSource) Err() error                { return source.exitErr }
func (source *fakeSource) Close() error              { source.closed = true; return nil }
func (source *fakeSource) Input(data []byte) error {
	source.inputs = append(source.inputs, append([]byte(nil), data...))
	return nil
}
func (source *fakeSource) Resize(columns, rows int) error {
	source.resizes = append(source.resizes, [2]int{columns, rows})
	return nil
}

var _ stream.Source = (*fakeSource)(nil)

func testOptions() Options {
	return Options{
		Connect: func() (stream.Source, error) { return newFakeSource("test-1"), nil },
		Theme:   DarkTheme,
		Logger:  slog.New(slog.DiscardHandler),
	}
}

// step runs one Update and unwraps the returned model.
func step(t *testing.T, model Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := model.Update(msg)
	next, ok := updated.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", updated)
	}
	return next, cmd
}

func mountFake(t *testing.T, options Options, source *fakeSource) Model {
	t.Helper()
	model := New(options)
	model, _ = step(t, model, sourceReadyMsg{source: source})
	if model.State() != StateActive {
		t.Fatalf("state after mount = %d, want StateActive", model.State())
	}
	return model
}

func TestPanelStartsLoading(t *testing.T) {
	t.Parallel()

	model := New(testOptions())
	if model.State() != StateLoading {
		t.Errorf("state = %d, want StateLoading", model.State())
	}
	if model.Init() == nil {
		t.Error("Init() = nil, want connect command")
	}
}

func TestPanelWithoutConnectorIsIdle(t *testing.T) {
	t.Parallel()

	options := testOptions()
	options.Connect = nil
	model := New(options)
	if model.State() != StateNoProcess {
		t.Errorf("state = %d, want StateNoProcess", model.State())
	}
	if model.Init() != nil {
		t.Error("Init() returned a command with nothing to connect")
	}
}

func TestMountFailureShowsError(t *testing.T) {
	t.Parallel()

	model := New(testOptions())
	model, _ = step(t, model, sourceFailedMsg{err: errors.New("socket refused")})
	if model.State() != StateError {
		t.Fatalf("state = %d, want StateError", model.State())
	}

	model, _ = step(t, model, tea.WindowSizeMsg{Width: 60, Height: 20})
	view := model.View()
	if !strings.Contains(view, "socket refused") {
		t.Errorf("view does not show the error:\n%s", view)
	}
	if !strings.Contains(view, "retry") {
		t.Errorf("view does not offer a retry:\n%s", view)
	}
}

func TestRetryRemountsFreshBridge(t *testing.T) {
	t.Parallel()

	model := New(testOptions())
	model, _ = step(t, model, sourceFailedMsg{err: errors.New("first attempt")})

	model, cmd := step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if model.State() != StateLoading {
		t.Fatalf("state after retry = %d, want StateLoading", model.State())
	}
	if cmd == nil {
		t.Fatal("retry produced no connect command")
	}

	source := newFakeSource("test-2")
	model, _ = step(t, model, sourceReadyMsg{source: source})
	if model.State() != StateActive {
		t.Fatalf("state = %d, want StateActive", model.State())
	}
	if model.Bridge() == nil {
		t.Fatal("no bridge after remount")
	}
	if model.Bridge().ProcessID() != "" && model.Bridge().ProcessID() != "test-2" {
		t.Errorf("fresh bridge bound to %q", model.Bridge().ProcessID())
	}
}

func TestOutputFlowsToBridge(t *testing.T) {
	t.Parallel()

	source := newFakeSource("test-1")
	model := mountFake(t, testOptions(), source)

	source.emit("hello")
	model, cmd := step(t, model, outputMsg{})
	if cmd == nil {
		t.Error("output handling did not rearm the source watch")
	}
	if offset := model.Bridge().Offset(); offset != 5 {
		t.Errorf("bridge offset = %d, want 5", offset)
	}
	if screen := model.Bridge().Screen(); !strings.Contains(screen, "hello") {
		t.Errorf("screen does not show the output:\n%s", screen)
	}

	// A second notification with no new bytes must not rewrite.
	model, _ = step(t, model, outputMsg{})
	if offset := model.Bridge().Offset(); offset != 5 {
		t.Errorf("bridge offset after idle wake = %d, want 5", offset)
	}
}

func TestKeystrokesReachTheProcess(t *testing.T) {
	t.Parallel()

	source := newFakeSource("test-1")
	model := mountFake(t, testOptions(), source)

	model, _ = step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("ls")})
	model, _ = step(t, model, tea.KeyMsg{Type: tea.KeyEnter})

	if len(source.inputs) != 2 {
		t.Fatalf("process received %d writes, want 2", len(source.inputs))
	}
	if string(source.inputs[0]) != "ls" {
		t.Errorf("first write = %q, want %q", source.inputs[0], "ls")
	}
	if string(source.inputs[1]) != "\r" {
		t.Errorf("second write = %q, want CR", source.inputs[1])
	}
	_ = model
}

func TestReadOnlyPanelSuppressesKeystrokes(t *testing.T) {
	t.Parallel()

	options := testOptions()
	options.ReadOnly = true
	source := newFakeSource("test-1")
	model := mountFake(t, options, source)

	model, _ = step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("rm -rf")})
	if len(source.inputs) != 0 {
		t.Errorf("read-only panel forwarded %d writes", len(source.inputs))
	}
	_ = model
}

func TestWindowSizeDrivesProcessResize(t *testing.T) {
	t.Parallel()

	source := newFakeSource("test-1")
	model := mountFake(t, testOptions(), source)

	// 102x23 panel cells leave a 100x20 content area inside the
	// border and status line.
	model, _ = step(t, model, tea.WindowSizeMsg{Width: 102, Height: 23})

	if len(source.resizes) == 0 {
		t.Fatal("no resize reached the process")
	}
	last := source.resizes[len(source.resizes)-1]
	if last != [2]int{100, 20} {
		t.Errorf("process resized to %dx%d, want 100x20", last[0], last[1])
	}
	if size := model.Bridge().Size(); size.Columns != 100 || size.Rows != 20 {
		t.Errorf("bridge size = %s, want 100x20", size)
	}
}

func TestCleanSessionEndGoesIdle(t *testing.T) {
	t.Parallel()

	source := newFakeSource("test-1")
	model := mountFake(t, testOptions(), source)

	model, _ = step(t, model, sourceClosedMsg{})
	if model.State() != StateNoProcess {
		t.Errorf("state = %d, want StateNoProcess", model.State())
	}
	if !source.closed {
		t.Error("source not closed after session end")
	}
	if model.Bridge() != nil {
		t.Error("bridge survived session end")
	}
}

func TestFailedSessionEndShowsError(t *testing.T) {
	t.Parallel()

	source := newFakeSource("test-1")
	model := mountFake(t, testOptions(), source)
	source.exitErr = errors.New("exited: signal: killed")

	model, _ = step(t, model, sourceClosedMsg{})
	if model.State() != StateError {
		t.Fatalf("state = %d, want StateError", model.State())
	}
	model, _ = step(t, model, tea.WindowSizeMsg{Width: 60, Height: 20})
	if view := model.View(); !strings.Contains(view, "killed") {
		t.Errorf("view does not show the exit error:\n%s", view)
	}
}

func TestFinalOutputDrainedBeforeTeardown(t *testing.T) {
	t.Parallel()

	source := newFakeSource("test-1")
	model := mountFake(t, testOptions(), source)

	source.emit("goodbye")
	// The done signal can arrive before the pending output
	// notification is handled; the drain must still pick it up.
	model, _ = step(t, model, sourceClosedMsg{})
	if model.State() != StateNoProcess {
		t.Errorf("state = %d, want StateNoProcess", model.State())
	}
}

func TestCtrlQQuits(t *testing.T) {
	t.Parallel()

	source := newFakeSource("test-1")
	model := mountFake(t, testOptions(), source)

	_, cmd := step(t, model, tea.KeyMsg{Type: tea.KeyCtrlQ})
	if cmd == nil {
		t.Fatal("ctrl+q produced no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("ctrl+q command = %T, want tea.QuitMsg", cmd())
	}
}

func TestStatusLineShowsAnnouncement(t *testing.T) {
	t.Parallel()

	source := newFakeSource("test-1")
	model := mountFake(t, testOptions(), source)
	model, _ = step(t, model, tea.WindowSizeMsg{Width: 102, Height: 23})

	view := model.View()
	if !strings.Contains(view, "test-1") {
		t.Errorf("status line missing the process identity:\n%s", view)
	}
	if !strings.Contains(view, model.Bridge().Announcement()) {
		t.Errorf("status line missing the announcement %q", model.Bridge().Announcement())
	}
}

func TestFocusAndBlurTrackTheBridge(t *testing.T) {
	t.Parallel()

	source := newFakeSource("test-1")
	model := mountFake(t, testOptions(), source)

	model, _ = step(t, model, tea.BlurMsg{})
	if model.Bridge().Focused() {
		t.Error("bridge focused after blur")
	}
	model, _ = step(t, model, tea.FocusMsg{})
	if !model.Bridge().Focused() {
		t.Error("bridge not focused after focus")
	}
}

func TestErrorStateAnnouncesFailure(t *testing.T) {
	t.Parallel()

	model := New(testOptions())
	model, _ = step(t, model, sourceFailedMsg{err: errors.New("socket refused")})
	model, _ = step(t, model, tea.WindowSizeMsg{Width: 80, Height: 20})

	if view := model.View(); !strings.Contains(view, "Terminal error: socket refused") {
		t.Errorf("status line missing the error announcement:\n%s", view)
	}

	// A failed session end announces its exit error the same way.
	source := newFakeSource("test-1")
	ended := mountFake(t, testOptions(), source)
	source.exitErr = errors.New("exited: signal: killed")
	ended, _ = step(t, ended, sourceClosedMsg{})
	ended, _ = step(t, ended, tea.WindowSizeMsg{Width: 80, Height: 20})
	if view := ended.View(); !strings.Contains(view, "Terminal error: exited: signal: killed") {
		t.Errorf("status line missing the exit announcement:\n%s", view)
	}

	// Retry returns the announcement to the loading state.
	ended, _ = step(t, ended, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if got := ended.announcer.Announcement(); !strings.Contains(got, "loading") {
		t.Errorf("announcement after retry = %q, want loading", got)
	}
}

func TestOutputTrimLandsOnLineBoundary(t *testing.T) {
	t.Parallel()

	options := testOptions()
	options.ScrollbackLines = 1
	source := newFakeSource("test-1")
	model := mountFake(t, options, source)

	// Sixty 11-byte lines overflow the one-line retention budget.
	line := "0123456789\n"
	source.emit(strings.Repeat(line, 60))
	model, _ = step(t, model, outputMsg{})

	if len(model.raw) >= 60*len(line) {
		t.Fatalf("raw not trimmed: %d bytes", len(model.raw))
	}
	if len(model.raw)%len(line) != 0 || !strings.HasPrefix(string(model.raw), line) {
		t.Errorf("trim cut mid-line: raw starts %q", model.raw[:min(len(model.raw), 16)])
	}
	if got, want := model.Bridge().Offset(), len(model.raw); got != want {
		t.Errorf("bridge offset after rebuild = %d, want %d", got, want)
	}
}

func TestTerminalOptionsReachBridge(t *testing.T) {
	t.Parallel()

	options := testOptions()
	options.ScrollbackLines = 50
	options.CursorStyle = terminal.CursorUnderline
	blink := false
	options.CursorBlink = &blink
	model := mountFake(t, options, newFakeSource("test-1"))

	defaulted := mountFake(t, testOptions(), newFakeSource("test-2"))
	if got, def := model.Bridge().RetainLimit(), defaulted.Bridge().RetainLimit(); got*200 != def {
		t.Errorf("RetainLimit = %d for 50 lines, default (10000 lines) = %d", got, def)
	}

	// The cursor style flows through to the rendered cursor cell.
	source := newFakeSource("test-3")
	styled := mountFake(t, options, source)
	styled, _ = step(t, styled, tea.WindowSizeMsg{Width: 42, Height: 13})
	source.emit("x")
	styled, _ = step(t, styled, outputMsg{})
	rendered := styled.Bridge().Render()
	if !strings.Contains(rendered, "\x1b[4m") {
		t.Errorf("rendered cursor not underlined:\n%q", rendered)
	}
	if strings.Contains(rendered, "\x1b[5m") {
		t.Errorf("rendered cursor blinks with blink disabled:\n%q", rendered)
	}
}
