// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// Announcer produces the live-region string for assistive output: a
// short description of the most recent state transition. Announcements
// are write-only and history-free — each new one replaces the prior,
// mirroring an aria-live region with replacement semantics.
//
// Announced text is stripped of control sequences so a screen reader
// never receives raw escape bytes.
type Announcer struct {
	mutex   sync.Mutex
	current string
}

// NewAnnouncer returns an announcer in the loading state.
func NewAnnouncer() *Announcer {
	announcer := &Announcer{}
	announcer.Loading()
	return announcer
}

// Announcement returns the current live-region string.
func (announcer *Announcer) Announcement() string {
	announcer.mutex.Lock()
	defer announcer.mutex.Unlock()
	return announcer.current
}

// Loading announces that no engine exists yet (or no process is bound).
func (announcer *Announcer) Loading() {
	announcer.set("Terminal loading")
}

// Ready announces a successful engine construction. Read-only mode is
// stated once here rather than on every subsequent transition.
func (announcer *Announcer) Ready(readOnly bool) {
	if readOnly {
		announcer.set("Terminal ready, read-only")
		return
	}
	announcer.set("Terminal ready")
}

// Focused announces focus-in.
func (announcer *Announcer) Focused() {
	announcer.set("Terminal focused")
}

// Resized announces a successful fit.
func (announcer *Announcer) Resized(size Size) {
	announcer.set(fmt.Sprintf("Terminal resized to %d columns by %d rows", size.Columns, size.Rows))
}

// Errored announces a failure surfaced by the host (the bridge itself
// never announces its transient fit failures).
func (announcer *Announcer) Errored(message string) {
	announcer.set("Terminal error: " + message)
}

func (announcer *Announcer) set(text string) {
	announcer.mutex.Lock()
	defer announcer.mutex.Unlock()
	announcer.current = ansi.Strip(text)
}
