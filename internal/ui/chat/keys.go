// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines the editor's global bindings. Every other key goes to the
// editor or, with the preview open, to the preview viewport.
type KeyMap struct {
	Send          key.Binding
	NewChat       key.Binding
	NextChat      key.Binding
	PrevChat      key.Binding
	SaveAs        key.Binding
	Delete        key.Binding
	CycleModel    key.Binding
	TogglePreview key.Binding
	Help          key.Binding
	Quit          key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Send: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("C-s", "send/stop"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new chat"),
		),
		NextChat: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("C-o", "next chat"),
		),
		PrevChat: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("C-p", "prev chat"),
		),
		SaveAs: key.NewBinding(
			key.WithKeys("ctrl+w"),
			key.WithHelp("C-w", "save as"),
		),
		Delete: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("C-x", "delete chat"),
		),
		CycleModel: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("C-l", "next model"),
		),
		TogglePreview: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("Tab", "preview"),
		),
		Help: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("C-g", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("C-c", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the collapsed help line.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.NewChat, k.SaveAs, k.TogglePreview, k.Help, k.Quit}
}

// FullHelp returns all bindings, grouped in columns.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.CycleModel, k.TogglePreview},
		{k.NewChat, k.NextChat, k.PrevChat},
		{k.SaveAs, k.Delete},
		{k.Help, k.Quit},
	}
}

// allowedWhileStreaming reports whether msg may run during an answer. Chat
// list changes would point the answer at the wrong chat.
func (k KeyMap) allowedWhileStreaming(msg tea.KeyMsg) bool {
	return key.Matches(msg, k.Send, k.CycleModel, k.TogglePreview, k.Help, k.Quit)
}
