// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package panel

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/console/stream"
	"github.com/bureau-foundation/console/terminal"
)

// State is the panel's lifecycle state. The states are mutually
// exclusive: exactly one view renders at any time.
type State int

const (
	// StateLoading means the source is being mounted.
	StateLoading State = iota
	// StateError means mounting or the session itself failed; the
	// view shows the message and offers a retry that mounts a fresh
	// bridge.
	StateError
	// StateNoProcess means there is nothing to show: no connector
	// configured, or the process ended cleanly.
	StateNoProcess
	// StateActive means a live session is rendering.
	StateActive
)

// Options configures a panel.
type Options struct {
	// Connect mounts the process source. Called once at startup and
	// again on retry after an error. Nil means the panel starts in the
	// no-process state.
	Connect func() (stream.Source, error)

	// ReadOnly suppresses all input to the process.
	ReadOnly bool

	// Theme is the color palette. Zero value means DetectTheme().
	Theme Theme

	// FontSizePx and LineHeightMultiplier define the cell geometry
	// used to convert the panel's cell area into the pixel viewport
	// the bridge fits against. Defaults 14 and 1.2.
	FontSizePx           int
	LineHeightMultiplier float64

	// MeasuredMetrics overrides the synthesized cell geometry with
	// values measured from the host terminal's pixel reporting. The
	// same metrics are handed to the bridge so its fit inverts
	// exactly the conversion the panel applies.
	MeasuredMetrics *terminal.FontMetrics

	// ScrollbackLines bounds retained output (see
	// terminal.Options.ScrollbackLines). Zero means the bridge
	// default.
	ScrollbackLines int

	// CursorStyle and CursorBlink shape the rendered cursor. Empty
	// style and nil blink mean the bridge defaults (blinking block).
	CursorStyle terminal.CursorStyle
	CursorBlink *bool

	// Title is shown in the status line next to the process identity.
	Title string

	// Logger receives structured events. Nil means slog.Default().
	Logger *slog.Logger
}

// Model is the bubbletea model for one terminal panel.
type Model struct {
	options Options
	theme   Theme
	logger  *slog.Logger

	state      State
	errMessage string
	spinner    spinner.Model
	focused    bool

	// announcer carries the live-region string for the states that
	// have no bridge: loading and error. The active state reads the
	// bridge's own announcer instead.
	announcer *terminal.Announcer

	source stream.Source
	bridge *terminal.Bridge

	// raw accumulates process output; readOffset is the source offset
	// just past the last accumulated byte.
	raw        []byte
	readOffset uint64

	// width and height are the panel's cell dimensions from the last
	// window size message.
	width   int
	height  int
	metrics terminal.FontMetrics
}

// Messages delivered through the bubbletea loop.
type (
	sourceReadyMsg  struct{ source stream.Source }
	sourceFailedMsg struct{ err error }
	outputMsg       struct{}
	sourceClosedMsg struct{}
)

// New creates a panel model. The source is mounted asynchronously by
// Init.
func New(options Options) Model {
	if options.FontSizePx <= 0 {
		options.FontSizePx = 14
	}
	if options.LineHeightMultiplier <= 0 {
		options.LineHeightMultiplier = 1.2
	}
	if options.Theme == (Theme{}) {
		options.Theme = DetectTheme()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	loadingSpinner := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(options.Theme.Accent)),
	)

	state := StateLoading
	if options.Connect == nil {
		state = StateNoProcess
	}
	return Model{
		options:   options,
		theme:     options.Theme,
		logger:    options.Logger,
		state:     state,
		spinner:   loadingSpinner,
		focused:   true,
		announcer: terminal.NewAnnouncer(),
		metrics:   panelMetrics(options),
	}
}

func panelMetrics(options Options) terminal.FontMetrics {
	if options.MeasuredMetrics != nil &&
		options.MeasuredMetrics.CellWidthPx > 0 && options.MeasuredMetrics.CellHeightPx > 0 {
		return *options.MeasuredMetrics
	}
	return terminal.Metrics(options.FontSizePx, options.LineHeightMultiplier)
}

// State returns the current lifecycle state.
func (model Model) State() State { return model.state }

// Bridge returns the active bridge, nil outside StateActive.
func (model Model) Bridge() *terminal.Bridge { return model.bridge }

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	if model.state != StateLoading {
		return nil
	}
	return tea.Batch(model.spinner.Tick, model.connectCmd())
}

// connectCmd mounts the source off the UI goroutine.
func (model Model) connectCmd() tea.Cmd {
	connect := model.options.Connect
	return func() tea.Msg {
		source, err := connect()
		if err != nil {
			return sourceFailedMsg{err: err}
		}
		return sourceReadyMsg{source: source}
	}
}

// watchSource waits for the next source event.
func watchSource(source stream.Source) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-source.Updates():
			return outputMsg{}
		case <-source.Done():
			return sourceClosedMsg{}
		}
	}
}

// Update implements tea.Model.
func (model Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		model.width = msg.Width
		model.height = msg.Height
		model.observeViewport()
		return model, nil

	case tea.FocusMsg:
		model.focused = true
		if model.bridge != nil {
			model.bridge.Focus()
		}
		return model, nil

	case tea.BlurMsg:
		model.focused = false
		if model.bridge != nil {
			model.bridge.Blur()
		}
		return model, nil

	case spinner.TickMsg:
		if model.state != StateLoading {
			return model, nil
		}
		var cmd tea.Cmd
		model.spinner, cmd = model.spinner.Update(msg)
		return model, cmd

	case sourceReadyMsg:
		return model.mountSource(msg.source)

	case sourceFailedMsg:
		model.state = StateError
		model.errMessage = msg.err.Error()
		model.announcer.Errored(model.errMessage)
		model.logger.Warn("panel mount failed", "error", msg.err)
		return model, nil

	case outputMsg:
		if model.source == nil {
			return model, nil
		}
		model.pullOutput()
		return model, watchSource(model.source)

	case sourceClosedMsg:
		return model.sourceEnded()

	case tea.KeyMsg:
		return model.handleKey(msg)
	}
	return model, nil
}

// mountSource builds a fresh bridge around a newly connected source
// and enters the active state.
func (model Model) mountSource(source stream.Source) (tea.Model, tea.Cmd) {
	bridgeOptions := terminal.DefaultOptions()
	bridgeOptions.ReadOnly = model.options.ReadOnly
	bridgeOptions.FontSizePx = model.options.FontSizePx
	bridgeOptions.LineHeightMultiplier = model.options.LineHeightMultiplier
	bridgeOptions.MeasuredMetrics = model.options.MeasuredMetrics
	bridgeOptions.Mode = model.theme.Mode
	if model.options.ScrollbackLines > 0 {
		bridgeOptions.ScrollbackLines = model.options.ScrollbackLines
	}
	if model.options.CursorStyle != "" {
		bridgeOptions.CursorStyle = model.options.CursorStyle
	}
	if model.options.CursorBlink != nil {
		bridgeOptions.CursorBlink = *model.options.CursorBlink
	}
	bridgeOptions.OnInput = func(data string) {
		if err := source.Input([]byte(data)); err != nil {
			model.logger.Warn("input rejected", "process", source.ProcessID(), "error", err)
		}
	}
	bridgeOptions.OnResize = func(columns, rows int) {
		// A failed propagation leaves the process at its old size;
		// the next successful fit resynchronizes it.
		if err := source.Resize(columns, rows); err != nil {
			model.logger.Warn("resize rejected", "process", source.ProcessID(), "error", err)
		}
	}

	bridge, err := terminal.New(bridgeOptions)
	if err != nil {
		_ = source.Close()
		model.state = StateError
		model.errMessage = err.Error()
		model.announcer.Errored(model.errMessage)
		return model, nil
	}

	model.source = source
	model.bridge = bridge
	model.state = StateActive
	model.raw = nil
	model.readOffset = 0
	model.errMessage = ""

	model.observeViewport()
	model.pullOutput()
	model.logger.Info("panel active", "process", source.ProcessID())
	return model, watchSource(source)
}

// sourceEnded drains the final output and leaves the active state.
func (model Model) sourceEnded() (tea.Model, tea.Cmd) {
	if model.source == nil {
		return model, nil
	}
	model.pullOutput()
	err := model.source.Err()
	_ = model.source.Close()
	if model.bridge != nil {
		_ = model.bridge.Close()
		model.bridge = nil
	}
	model.source = nil

	if err != nil {
		model.state = StateError
		model.errMessage = err.Error()
		model.announcer.Errored(model.errMessage)
	} else {
		model.state = StateNoProcess
	}
	return model, nil
}

// pullOutput moves new source bytes into the accumulated raw string
// and synchronizes the bridge against it.
func (model *Model) pullOutput() {
	if model.source == nil || model.bridge == nil {
		return
	}
	data, next := model.source.ReadSince(model.readOffset)
	if len(data) == 0 {
		return
	}
	model.raw = append(model.raw, data...)
	model.readOffset = next
	if limit := model.bridge.RetainLimit(); len(model.raw) > limit {
		// Drop the oldest half; the bridge sees the shrink and
		// rebuilds its screen from the retained tail. The cut lands
		// just past the next newline so the rebuild never starts
		// mid-escape-sequence.
		cut := len(model.raw) - limit/2
		if index := bytes.IndexByte(model.raw[cut:], '\n'); index >= 0 {
			cut += index + 1
		}
		model.raw = model.raw[cut:]
	}
	if err := model.bridge.Sync(model.source.ProcessID(), string(model.raw)); err != nil {
		model.logger.Warn("sync failed", "process", model.source.ProcessID(), "error", err)
	}
}

// observeViewport reports the pixel dimensions of the terminal content
// area to the bridge. The content area is the panel minus its border
// and status line.
func (model *Model) observeViewport() {
	if model.bridge == nil || model.width <= 0 || model.height <= 0 {
		return
	}
	columns := model.width - 2
	rows := model.height - 3
	if columns <= 0 || rows <= 0 {
		return
	}
	// Round so the bridge's fit recovers exactly the cell counts.
	widthPx := int(float64(columns)*model.metrics.CellWidthPx + 0.5)
	heightPx := int(float64(rows)*model.metrics.CellHeightPx + 0.5)
	model.bridge.ObserveSize(widthPx, heightPx)
}

// handleKey routes a key press by state.
func (model Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	pressed := msg.String()

	switch model.state {
	case StateActive:
		if pressed == "ctrl+q" {
			return model, tea.Quit
		}
		if model.bridge == nil {
			return model, nil
		}
		if data := keyBytes(msg); len(data) > 0 {
			model.bridge.Input(string(data))
		}
		return model, nil

	case StateError:
		switch pressed {
		case "r":
			if model.options.Connect == nil {
				return model, nil
			}
			model.state = StateLoading
			model.errMessage = ""
			model.announcer.Loading()
			return model, tea.Batch(model.spinner.Tick, model.connectCmd())
		case "q", "esc", "ctrl+q", "ctrl+c":
			return model, tea.Quit
		}
		return model, nil

	default:
		switch pressed {
		case "q", "esc", "ctrl+q", "ctrl+c":
			return model, tea.Quit
		}
		return model, nil
	}
}

// View implements tea.Model.
func (model Model) View() string {
	if model.width <= 0 || model.height <= 0 {
		return ""
	}

	contentWidth := model.width - 2
	contentHeight := model.height - 3

	var content string
	switch model.state {
	case StateLoading:
		content = model.centered(contentWidth, contentHeight,
			model.spinner.View()+" starting terminal")
	case StateError:
		message := lipgloss.NewStyle().Foreground(model.theme.ErrorText).Render(model.errMessage)
		hint := lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("press r to retry, q to quit")
		content = model.centered(contentWidth, contentHeight, message+"\n"+hint)
	case StateNoProcess:
		content = model.centered(contentWidth, contentHeight,
			lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("no process attached"))
	case StateActive:
		content = lipgloss.NewStyle().
			Width(contentWidth).
			Height(contentHeight).
			MaxWidth(contentWidth).
			MaxHeight(contentHeight).
			Render(model.bridge.Render())
	}

	framed := model.theme.borderStyle(model.focused).Render(content)
	return framed + "\n" + model.statusLine()
}

// centered lays out a short message in the middle of the content area.
func (model Model) centered(width, height int, message string) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, message)
}

// statusLine renders the bottom bar: title, process identity, and the
// current live-region announcement (the bridge's while active, the
// panel's own in the error state).
func (model Model) statusLine() string {
	var parts []string
	if model.options.Title != "" {
		parts = append(parts, model.options.Title)
	}
	switch model.state {
	case StateActive:
		parts = append(parts, model.source.ProcessID())
		if announcement := model.bridge.Announcement(); announcement != "" {
			parts = append(parts, announcement)
		}
	case StateLoading:
		parts = append(parts, "connecting")
	case StateError:
		parts = append(parts, model.announcer.Announcement())
	case StateNoProcess:
		parts = append(parts, "idle")
	}

	text := " " + strings.Join(parts, "  ")
	text = ansi.Truncate(text, model.width, "…")
	return model.theme.statusStyle().Width(model.width).Render(text)
}
