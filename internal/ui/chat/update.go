// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ochat/internal/generation"
	"github.com/jeranaias/ochat/internal/session"
)

// Layout rows outside the editor: header, prompt line, status bar, help.
const (
	headerHeight = 1
	promptHeight = 1
	statusHeight = 1
	helpHeight   = 1
)

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventsMsg:
		return m.handleEvents(msg)

	case WorkerClosedMsg:
		m.streaming = false
		m.editor.Focus()
		return m, nil

	case ConfigChangedMsg:
		return m.handleConfigChange(msg)

	case session.TickMsg:
		if m.previewStale && m.showPreview {
			m.refreshPreview(true)
		}
		if m.streaming {
			// Snapshots would catch a half-written answer.
			return m, session.TickCmd()
		}
		return m, m.mgr.HandleTick()

	case session.AutosaveMsg:
		if msg.Err != nil {
			m.setError(msg.Err)
		}
		return m, nil
	}

	return m.forward(msg)
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(m.width, m.height)
	m.help.Width = m.width

	bodyHeight := m.height - headerHeight - promptHeight - statusHeight - helpHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	// The editor and preview carry a one-column border and one of padding.
	bodyWidth := m.width - 2
	if bodyWidth < 1 {
		bodyWidth = 1
	}

	m.editor.SetWidth(bodyWidth)
	m.editor.SetHeight(bodyHeight)
	m.preview.Width = bodyWidth
	m.preview.Height = bodyHeight
	m.nameInput.Width = m.width / 2

	// Word wrap depends on the width.
	m.renderer = nil
	m.refreshPreview(true)
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeSaveAs:
		return m.handleSaveAsKey(msg)
	case modeConfirmDelete:
		return m.handleDeleteKey(msg)
	}

	if m.streaming && !m.keys.allowedWhileStreaming(msg) {
		if isCommandKey(m.keys, msg) {
			m.setError(errBusy)
		}
		// The editor is read-only while streaming, the preview still scrolls.
		if m.showPreview {
			return m.forward(msg)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.streaming {
			m.worker.Cancel()
		}
		m.syncBuffer()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Send):
		m.send()
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.TogglePreview):
		m.showPreview = !m.showPreview
		if m.showPreview {
			m.refreshPreview(true)
		}
		return m, nil

	case key.Matches(msg, m.keys.CycleModel):
		m.cycleModel()
		return m, nil

	case key.Matches(msg, m.keys.NewChat):
		m.syncBuffer()
		name, err := m.mgr.New()
		if err != nil {
			m.setError(err)
			return m, nil
		}
		m.afterSwitch()
		m.setStatus("new chat " + name)
		return m, nil

	case key.Matches(msg, m.keys.NextChat):
		m.syncBuffer()
		if err := m.mgr.Next(); err != nil {
			m.setError(err)
			return m, nil
		}
		m.afterSwitch()
		return m, nil

	case key.Matches(msg, m.keys.PrevChat):
		m.syncBuffer()
		if err := m.mgr.Prev(); err != nil {
			m.setError(err)
			return m, nil
		}
		m.afterSwitch()
		return m, nil

	case key.Matches(msg, m.keys.SaveAs):
		m.mode = modeSaveAs
		name := ""
		if status := m.mgr.GetStatus(); status.Saved {
			name = status.Chat
		}
		m.nameInput.SetValue(name)
		m.nameInput.CursorEnd()
		m.editor.Blur()
		cmd := m.nameInput.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Delete):
		m.mode = modeConfirmDelete
		m.editor.Blur()
		return m, nil
	}

	return m.forward(msg)
}

// forward hands msg to the visible pane.
func (m Model) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.showPreview {
		m.preview, cmd = m.preview.Update(msg)
		return m, cmd
	}
	if m.streaming {
		return m, nil
	}

	m.editor, cmd = m.editor.Update(msg)
	if _, ok := msg.(tea.KeyMsg); ok {
		m.syncBuffer()
		m.previewStale = true
	}
	return m, cmd
}

// =============================================================================
// PROMPT LINE
// =============================================================================

func (m Model) handleSaveAsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.leavePrompt()
		m.clearStatus()
		return m, nil

	case tea.KeyEnter:
		requested := strings.TrimSpace(m.nameInput.Value())
		m.leavePrompt()
		m.syncBuffer()
		name, err := m.mgr.Save(requested)
		if err != nil {
			m.setError(err)
			return m, nil
		}
		m.setStatus("saved " + name)
		return m, nil
	}

	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m Model) handleDeleteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.leavePrompt()
	if msg.String() != "y" && msg.String() != "Y" {
		m.clearStatus()
		return m, nil
	}

	name, _ := m.mgr.Current()
	if _, err := m.mgr.Delete(); err != nil {
		m.setError(err)
		return m, nil
	}
	m.afterSwitch()
	m.setStatus("deleted " + name)
	return m, nil
}

func (m *Model) leavePrompt() {
	m.mode = modeEdit
	m.nameInput.Blur()
	m.nameInput.SetValue("")
	m.editor.Focus()
}

// =============================================================================
// HELPERS
// =============================================================================

// afterSwitch shows the chat the manager just opened.
func (m *Model) afterSwitch() {
	m.lastState = generation.StateIdle
	m.clearStatus()
	m.loadBuffer()
	m.preview.GotoTop()
}

// cycleModel selects the next available model.
func (m *Model) cycleModel() {
	if len(m.models) == 0 {
		m.setError(ErrNoModel)
		return
	}
	next := (slices.Index(m.models, m.model) + 1) % len(m.models)
	m.model = m.models[next]
	m.setStatus("model " + m.model)
}

// isCommandKey reports whether msg is one of the chat list bindings.
func isCommandKey(k KeyMap, msg tea.KeyMsg) bool {
	return key.Matches(msg, k.NewChat, k.NextChat, k.PrevChat, k.SaveAs, k.Delete)
}
