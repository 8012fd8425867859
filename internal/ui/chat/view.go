// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/ochat/internal/generation"
	"github.com/jeranaias/ochat/internal/ui/styles"
	"github.com/jeranaias/ochat/internal/util"
)

// View renders the editor.
func (m Model) View() string {
	body := m.theme.Editor.Render(m.editor.View())
	if m.showPreview {
		body = m.theme.Preview.Render(m.preview.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderPromptLine(),
		m.renderStatusBar(),
		m.help.View(m.keys),
	)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	status := m.mgr.GetStatus()

	chat := status.Chat
	if status.Dirty {
		chat += styles.StatusIndicators.Dirty
	}
	left := m.theme.HeaderBrand.Render("ochat") + "  " +
		m.theme.HeaderChat.Render(chat) + " " +
		m.theme.HeaderMeta.Render(fmt.Sprintf("(%d/%d)", status.Index+1, status.Chats))

	pane := "edit"
	if m.showPreview {
		pane = "preview"
	}
	right := m.theme.HeaderMeta.Render(pane)

	return m.theme.Header.Width(m.width).Render(spread(left, right, m.width-2))
}

// =============================================================================
// PROMPT LINE
// =============================================================================

func (m Model) renderPromptLine() string {
	switch m.mode {
	case modeSaveAs:
		return m.theme.PromptLabel.Render("save as: ") + m.nameInput.View() +
			m.theme.PromptHint.Render("  (enter to save, esc to cancel)")
	case modeConfirmDelete:
		name, _ := m.mgr.Current()
		return m.theme.PromptLabel.Render(fmt.Sprintf("delete %q? ", name)) +
			m.theme.PromptHint.Render("(y/N)")
	}

	if m.status == "" {
		return ""
	}
	if m.statusErr {
		return m.theme.StatusError.Render(util.FirstLine(m.status))
	}
	return m.theme.StatusMessage.Render(m.status)
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) renderStatusBar() string {
	model := m.model
	if model == "" {
		model = "no model"
	}
	left := m.theme.StatusModel.Render(model) + "  " + m.renderState()

	d := m.mgr.Delimiters()
	right := m.theme.ShortcutDesc.Render(strings.Join([]string{d.User, d.Assistant, d.System}, "/"))

	return m.theme.StatusBar.Width(m.width).Render(spread(left, right, m.width-2))
}

func (m Model) renderState() string {
	switch {
	case m.streaming:
		return m.theme.StatusStreaming.Render(styles.StatusIndicators.Streaming + " streaming")
	case m.lastState == generation.StateFailed:
		return m.theme.StatusError.Render(styles.StatusIndicators.Error + " failed")
	default:
		return m.theme.StatusIdle.Render(styles.StatusIndicators.Idle + " ready")
	}
}

// spread places left and right at the ends of a line width cells wide.
func spread(left, right string, width int) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return left
	}
	return left + strings.Repeat(" ", gap) + right
}
