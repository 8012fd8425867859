// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ochat/internal/config"
	"github.com/jeranaias/ochat/internal/ui/styles"
)

// ConfigChangedMsg carries a reloaded config file.
type ConfigChangedMsg struct {
	Change config.Change
}

// waitForChange blocks for the next config change. Nil without a watcher.
func waitForChange(w *config.Watcher) tea.Cmd {
	if w == nil {
		return nil
	}
	return func() tea.Msg {
		change, ok := <-w.Changes()
		if !ok {
			return nil
		}
		return ConfigChangedMsg{Change: change}
	}
}

func (m Model) handleConfigChange(msg ConfigChangedMsg) (tea.Model, tea.Cmd) {
	if m.streaming {
		// The answer is written with the delimiters it started with.
		if m.pending == nil {
			change := msg.Change
			m.pending = &change
		} else {
			m.pending.New = msg.Change.New
		}
	} else {
		m.applyConfig(msg.Change)
	}
	return m, waitForChange(m.watcher)
}

// applyConfig brings the editor in line with a new configuration. A part
// that cannot be applied keeps its old value and is reported; the rest still
// takes effect.
func (m *Model) applyConfig(change config.Change) {
	old, next := change.Old, change.New
	m.syncBuffer()

	var notes []string
	var failed []string

	if d := next.DelimiterSet(); !d.Equal(m.mgr.Delimiters()) {
		n, err := m.mgr.ApplyDelimiters(d)
		if err != nil {
			m.logger.Error("delimiter change rejected", "err", err)
			failed = append(failed, "delimiters: "+err.Error())
		} else if n > 0 {
			notes = append(notes, fmt.Sprintf("markers rewritten in %d chats", n))
		}
	}

	if res, err := m.mgr.ApplyPrompt(next.PromptState()); err != nil {
		m.logger.Error("system prompt change rejected", "err", err)
		failed = append(failed, err.Error())
	} else if res.Changed {
		notes = append(notes, "system prompt "+res.Transition.String())
	}

	if next.UI.Theme != old.UI.Theme {
		m.theme = styles.NewTheme(next.UI.Theme)
		m.theme.SetSize(m.width, m.height)
		m.renderer = nil
	}
	if next.UI.ShowRaw != old.UI.ShowRaw {
		m.showPreview = !next.UI.ShowRaw
	}

	if fixed := next.Model.Fixed; fixed != "" && fixed != old.Model.Fixed && slices.Contains(m.models, fixed) {
		m.model = fixed
		notes = append(notes, "model "+fixed)
	}

	if next.Provider != old.Provider {
		notes = append(notes, "provider change applies after restart")
	}

	m.cfg = next
	m.loadBuffer()

	switch {
	case len(failed) > 0:
		m.setError(fmt.Errorf("config: %s", strings.Join(failed, "; ")))
	case len(notes) > 0:
		m.setStatus("config: " + strings.Join(notes, ", "))
	}
}
