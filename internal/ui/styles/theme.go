// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/ochat/internal/transcript"
)

// Theme holds the styled components of the editor.
type Theme struct {
	Name         string
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER
	// ==========================================================================

	Header      lipgloss.Style
	HeaderBrand lipgloss.Style
	HeaderChat  lipgloss.Style
	HeaderMeta  lipgloss.Style

	// ==========================================================================
	// TRANSCRIPT
	// ==========================================================================

	UserMarker      lipgloss.Style
	AssistantMarker lipgloss.Style
	SystemMarker    lipgloss.Style
	Editor          lipgloss.Style
	Preview         lipgloss.Style

	// ==========================================================================
	// PROMPT LINE
	// ==========================================================================

	PromptLabel lipgloss.Style
	PromptHint  lipgloss.Style

	// ==========================================================================
	// STATUS BAR
	// ==========================================================================

	StatusBar       lipgloss.Style
	StatusModel     lipgloss.Style
	StatusIdle      lipgloss.Style
	StatusStreaming lipgloss.Style
	StatusError     lipgloss.Style
	StatusMessage   lipgloss.Style
	ShortcutKey     lipgloss.Style
	ShortcutDesc    lipgloss.Style
}

// NewTheme creates the named theme. Anything but "light" is dark.
func NewTheme(name string) *Theme {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != "light" {
		name = "dark"
	}

	t := &Theme{
		Name:         name,
		IsDark:       name == "dark",
		ColorProfile: termenv.ColorProfile(),
	}
	lipgloss.SetHasDarkBackground(t.IsDark)

	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	// Header
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderBrand = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.HeaderChat = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary)

	t.HeaderMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Role markers
	t.UserMarker = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.AssistantMarker = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.SystemMarker = lipgloss.NewStyle().
		Bold(true).
		Foreground(Amber)

	t.Editor = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(Overlay).
		PaddingLeft(1)

	t.Preview = t.Editor.Copy().
		BorderForeground(Purple)

	// Prompt line (save as, delete confirmation)
	t.PromptLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Amber)

	t.PromptHint = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	// Status bar
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.StatusModel = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.StatusIdle = lipgloss.NewStyle().
		Foreground(Emerald)

	t.StatusStreaming = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	t.StatusError = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)

	t.StatusMessage = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)
}

// SetSize updates the theme dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GlamourStyle names the glamour standard style matching the theme.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}

// Marker returns the style for a role's marker.
func (t *Theme) Marker(role transcript.Role) lipgloss.Style {
	switch role {
	case transcript.RoleAssistant:
		return t.AssistantMarker
	case transcript.RoleSystem:
		return t.SystemMarker
	default:
		return t.UserMarker
	}
}

// HighlightMarkers colours every role marker in buffer. The text itself is
// left as written.
func (t *Theme) HighlightMarkers(buffer string, codec *transcript.Codec) string {
	sections := codec.Sections(buffer)
	if len(sections) == 0 {
		return buffer
	}

	var b strings.Builder
	b.WriteString(buffer[:sections[0].Start])
	for _, s := range sections {
		b.WriteString(t.Marker(s.Role).Render(s.Marker))
		b.WriteString(buffer[s.ContentStart:s.End])
	}
	return b.String()
}
