// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/ochat/internal/transcript"
)

// =============================================================================
// PREVIEW RENDERING
// =============================================================================

// refreshPreview re-renders the preview pane. Unforced renders are rate
// limited; a skipped render is picked up by the next tick.
func (m *Model) refreshPreview(force bool) {
	if !m.showPreview {
		m.previewStale = true
		return
	}
	if !force && !m.renderLimit.Allow() {
		m.previewStale = true
		return
	}

	m.preview.SetContent(m.renderTranscript(m.mgr.Buffer()))
	if m.streaming {
		m.preview.GotoBottom()
	}
	m.previewStale = false
}

// renderTranscript renders buffer for the preview. With markdown on, each
// section's content goes through glamour under its styled marker; otherwise
// only the markers are coloured.
func (m *Model) renderTranscript(buffer string) string {
	codec := transcript.NewCodec(m.mgr.Delimiters())
	if !m.cfg.UI.Markdown {
		return m.theme.HighlightMarkers(buffer, codec)
	}

	r := m.markdownRenderer()
	if r == nil {
		return m.theme.HighlightMarkers(buffer, codec)
	}

	sections := codec.Sections(buffer)
	if len(sections) == 0 {
		return m.renderMarkdown(r, buffer)
	}

	var b strings.Builder
	if lead := strings.TrimSpace(buffer[:sections[0].Start]); lead != "" {
		b.WriteString(m.renderMarkdown(r, lead))
	}
	for _, s := range sections {
		b.WriteString(m.theme.Marker(s.Role).Render(s.Marker))
		b.WriteString("\n")
		if content := strings.TrimSpace(s.Content); content != "" {
			b.WriteString(m.renderMarkdown(r, content))
		} else {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *Model) renderMarkdown(r *glamour.TermRenderer, text string) string {
	out, err := r.Render(text)
	if err != nil {
		m.logger.Debug("markdown render failed", "err", err)
		return text + "\n"
	}
	return out
}

// markdownRenderer returns the glamour renderer for the current theme and
// width, building it on first use.
func (m *Model) markdownRenderer() *glamour.TermRenderer {
	if m.renderer != nil {
		return m.renderer
	}

	wrap := m.width - 4
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.theme.GlamourStyle()),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.logger.Warn("markdown renderer unavailable", "err", err)
		return nil
	}
	m.renderer = r
	return r
}
