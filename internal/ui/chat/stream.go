// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ochat/internal/generation"
	"github.com/jeranaias/ochat/internal/transcript"
)

// maxBatch bounds how many queued events one redraw absorbs.
const maxBatch = 256

// =============================================================================
// MESSAGES
// =============================================================================

// EventsMsg carries generation events in the order they were emitted.
type EventsMsg struct {
	Events []generation.Event
}

// WorkerClosedMsg is sent once the worker's event channel closes.
type WorkerClosedMsg struct{}

// waitForEvents blocks for the next event and returns it together with
// whatever else is already queued.
func waitForEvents(events <-chan generation.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return WorkerClosedMsg{}
		}
		batch := []generation.Event{ev}
		for len(batch) < maxBatch {
			select {
			case ev, ok := <-events:
				if !ok {
					// The close is seen by the next wait.
					return EventsMsg{Events: batch}
				}
				batch = append(batch, ev)
			default:
				return EventsMsg{Events: batch}
			}
		}
		return EventsMsg{Events: batch}
	}
}

// =============================================================================
// SEND / STOP
// =============================================================================

// send submits the buffer, or stops the running answer.
func (m *Model) send() {
	if !m.streaming && m.model == "" {
		m.setError(ErrNoModel)
		return
	}

	m.syncBuffer()
	delims := m.mgr.Delimiters()
	outcome, err := m.worker.Submit(generation.Request{
		Model:  m.model,
		Buffer: m.mgr.Buffer(),
		Delims: delims,
		Prompt: m.mgr.Prompt(),
	})
	if err != nil {
		m.setError(err)
		return
	}

	switch outcome {
	case generation.OutcomeStarted:
		m.streaming = true
		m.codec = transcript.NewCodec(delims)
		m.editor.Blur()
		m.remember(m.model)
		m.setStatus("")
	case generation.OutcomeCancelled:
		// EventDone{Cancelled} is already queued.
		m.setStatus("stopping")
	default:
		m.setStatus("nothing to send")
	}
}

// handleEvents applies a batch of events to the buffer.
func (m Model) handleEvents(msg EventsMsg) (tea.Model, tea.Cmd) {
	codec := m.codec
	if codec == nil {
		codec = transcript.NewCodec(m.mgr.Delimiters())
	}

	buffer := m.mgr.Buffer()
	var done *generation.EventDone
	for _, ev := range msg.Events {
		buffer = generation.Apply(codec, buffer, ev)
		if d, ok := ev.(generation.EventDone); ok {
			done = &d
		}
	}
	if buffer != m.mgr.Buffer() {
		m.mgr.SetBuffer(buffer)
		m.editor.SetValue(buffer)
	}

	if done != nil {
		m.finish(*done)
		m.refreshPreview(true)
	} else {
		m.refreshPreview(false)
	}
	return m, waitForEvents(m.worker.Events())
}

// finish ends the streaming state and applies a config change that arrived
// during the answer.
func (m *Model) finish(done generation.EventDone) {
	m.streaming = false
	m.codec = nil
	m.lastState = done.State
	m.editor.Focus()

	switch done.State {
	case generation.StateCompleted:
		m.clearStatus()
	default:
		m.setStatus(done.State.String())
	}
	m.logger.Debug("answer finished", "id", done.ID, "state", done.State, "chunks", done.Stats.Chunks)

	if m.pending != nil {
		change := *m.pending
		m.pending = nil
		m.applyConfig(change)
	}
}
