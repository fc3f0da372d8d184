// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package panel

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/console/terminal"
)

// Theme defines the panel's color palette. All colors use lipgloss
// ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Mode is the matching bridge color mode, forwarded to the
	// emulation engine's default foreground and background.
	Mode terminal.ColorMode

	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color
	ErrorText  lipgloss.Color

	// Border colors; the focused panel is visually distinct so the
	// user always knows where keystrokes go.
	Border        lipgloss.Color
	FocusedBorder lipgloss.Color

	// Status line at the bottom of the panel.
	StatusForeground lipgloss.Color
	StatusBackground lipgloss.Color

	// Accent is used for the loading spinner and the retry hint.
	Accent lipgloss.Color
}

// DarkTheme is the palette for dark terminal backgrounds (the common
// case for development environments and tmux sessions).
var DarkTheme = Theme{
	Mode:             terminal.ColorModeDark,
	NormalText:       lipgloss.Color("252"),
	FaintText:        lipgloss.Color("245"),
	ErrorText:        lipgloss.Color("196"),
	Border:           lipgloss.Color("240"),
	FocusedBorder:    lipgloss.Color("75"),
	StatusForeground: lipgloss.Color("250"),
	StatusBackground: lipgloss.Color("236"),
	Accent:           lipgloss.Color("75"),
}

// LightTheme is the palette for light terminal backgrounds.
var LightTheme = Theme{
	Mode:             terminal.ColorModeLight,
	NormalText:       lipgloss.Color("235"),
	FaintText:        lipgloss.Color("243"),
	ErrorText:        lipgloss.Color("124"),
	Border:           lipgloss.Color("250"),
	FocusedBorder:    lipgloss.Color("26"),
	StatusForeground: lipgloss.Color("238"),
	StatusBackground: lipgloss.Color("253"),
	Accent:           lipgloss.Color("26"),
}

// DetectTheme picks the palette matching the host terminal's
// background color.
func DetectTheme() Theme {
	if termenv.HasDarkBackground() {
		return DarkTheme
	}
	return LightTheme
}

// borderStyle returns the frame around the terminal content.
func (theme Theme) borderStyle(focused bool) lipgloss.Style {
	color := theme.Border
	if focused {
		color = theme.FocusedBorder
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color)
}

// statusStyle returns the style for the status line.
func (theme Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(theme.StatusForeground).
		Background(theme.StatusBackground)
}
