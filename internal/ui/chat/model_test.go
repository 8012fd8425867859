// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ochat/internal/config"
	"github.com/jeranaias/ochat/internal/generation"
	"github.com/jeranaias/ochat/internal/history"
	"github.com/jeranaias/ochat/internal/provider"
	"github.com/jeranaias/ochat/internal/session"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeProvider struct {
	chunks []string
	block  bool // after the chunks, wait for cancellation
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) ListModels(context.Context) ([]string, error) {
	return []string{"fake-model"}, nil
}

func (p *fakeProvider) StreamChat(ctx context.Context, model string, messages []provider.Message) (provider.Stream, error) {
	return &fakeStream{ctx: ctx, p: p}, nil
}

type fakeStream struct {
	ctx context.Context
	p   *fakeProvider
	i   int
}

func (s *fakeStream) Recv() (string, error) {
	if s.i < len(s.p.chunks) {
		s.i++
		return s.p.chunks[s.i-1], nil
	}
	if s.p.block {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error { return nil }

// =============================================================================
// HARNESS
// =============================================================================

type harness struct {
	store      *history.Store
	mgr        *session.Manager
	worker     *generation.Worker
	remembered []string
}

func newHarness(t *testing.T, p *fakeProvider, buffer string) (*harness, Model) {
	t.Helper()

	store, err := history.NewStore(t.TempDir(), "test-session")
	require.NoError(t, err)

	cfg := config.Default()
	mgr, err := session.NewManager(store, session.Config{Delims: cfg.DelimiterSet()})
	require.NoError(t, err)
	if buffer != "" {
		mgr.SetBuffer(buffer)
	}

	w := generation.NewWorker(p)
	t.Cleanup(w.Close)

	h := &harness{store: store, mgr: mgr, worker: w}
	m := New(Options{
		Config:   cfg,
		Manager:  mgr,
		Worker:   w,
		Model:    "fake-model",
		Models:   []string{"fake-model", "other-model"},
		Remember: func(model string) { h.remembered = append(h.remembered, model) },
	})
	return h, m
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func press(t *testing.T, m Model, keyType tea.KeyType) Model {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: keyType})
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

// drain feeds worker events to the model until the answer ends.
func drain(t *testing.T, m Model, w *generation.Worker) Model {
	t.Helper()
	return pump(t, m, w, func(m Model) bool { return !m.Streaming() })
}

// pump feeds worker events to the model until done reports true.
func pump(t *testing.T, m Model, w *generation.Worker, done func(Model) bool) Model {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for !done(m) {
		select {
		case ev := <-w.Events():
			m = update(t, m, EventsMsg{Events: []generation.Event{ev}})
		case <-timeout:
			t.Fatal("answer did not finish")
		}
	}
	return m
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestNew_ShowsOpenChat(t *testing.T) {
	_, m := newHarness(t, &fakeProvider{}, "user: hi")
	assert.Equal(t, "user: hi", m.Buffer())
	assert.Equal(t, "fake-model", m.SelectedModel())
	assert.False(t, m.Streaming())
}

func TestSend_StreamsAnswer(t *testing.T) {
	h, m := newHarness(t, &fakeProvider{chunks: []string{"hel", "lo"}}, "user: hi")

	m = press(t, m, tea.KeyCtrlS)
	require.True(t, m.Streaming())
	m = drain(t, m, h.worker)

	want := "user: hi\n\nassistant: hello\n\nuser: "
	assert.Equal(t, want, m.Buffer())
	assert.Equal(t, want, h.mgr.Buffer())
	assert.Equal(t, generation.StateCompleted, m.lastState)
	assert.Equal(t, []string{"fake-model"}, h.remembered)
}

func TestSend_Regenerates(t *testing.T) {
	h, m := newHarness(t, &fakeProvider{chunks: []string{"again"}}, "user: hi\n\nassistant: ")

	m = press(t, m, tea.KeyCtrlS)
	m = drain(t, m, h.worker)

	assert.Equal(t, "user: hi\n\nassistant: again\n\nuser: ", m.Buffer())
}

func TestSend_NoModel(t *testing.T) {
	_, m := newHarness(t, &fakeProvider{}, "user: hi")
	m.model = ""

	m = press(t, m, tea.KeyCtrlS)
	assert.False(t, m.Streaming())
	assert.True(t, m.statusErr)
	assert.Equal(t, ErrNoModel.Error(), m.status)
}

func TestSend_NothingToSend(t *testing.T) {
	h, m := newHarness(t, &fakeProvider{}, "user: ")

	m = press(t, m, tea.KeyCtrlS)
	assert.False(t, m.Streaming())
	assert.Equal(t, "nothing to send", m.status)
	assert.Empty(t, h.remembered)
}

func TestSend_SecondPressStops(t *testing.T) {
	h, m := newHarness(t, &fakeProvider{chunks: []string{"partial"}, block: true}, "user: hi")

	m = press(t, m, tea.KeyCtrlS)
	require.True(t, m.Streaming())
	m = press(t, m, tea.KeyCtrlS)
	m = drain(t, m, h.worker)

	assert.Equal(t, generation.StateCancelled, m.lastState)
	assert.False(t, strings.HasSuffix(m.Buffer(), "user: "), "a cancelled answer does not open a user turn")
	assert.Equal(t, "cancelled", m.status)
}

func TestStreaming_RefusesChatListChanges(t *testing.T) {
	h, m := newHarness(t, &fakeProvider{block: true}, "user: hi")

	m = press(t, m, tea.KeyCtrlS)
	require.True(t, m.Streaming())

	m = press(t, m, tea.KeyCtrlN)
	assert.Len(t, h.mgr.Names(), 1, "no chat created mid-answer")
	assert.Equal(t, errBusy.Error(), m.status)

	m = typeText(t, m, "x")
	assert.NotContains(t, m.Buffer(), "x", "editor is read-only while streaming")

	m = press(t, m, tea.KeyCtrlS)
	drain(t, m, h.worker)
}

// =============================================================================
// CHAT LIST TESTS
// =============================================================================

func TestNewChatAndSwitch(t *testing.T) {
	h, m := newHarness(t, &fakeProvider{}, "user: first")

	m = press(t, m, tea.KeyCtrlN)
	require.Len(t, h.mgr.Names(), 2)
	assert.Equal(t, "user: ", m.Buffer())

	m = press(t, m, tea.KeyCtrlO)
	assert.Equal(t, "user: first", m.Buffer(), "the first chat was snapshotted")
}

func TestSaveAs(t *testing.T) {
	h, m := newHarness(t, &fakeProvider{}, "user: hi")

	m = press(t, m, tea.KeyCtrlW)
	require.Equal(t, modeSaveAs, m.mode)
	m = typeText(t, m, "notes")
	m = press(t, m, tea.KeyEnter)

	assert.Equal(t, modeEdit, m.mode)
	assert.Equal(t, "saved notes", m.status)
	assert.True(t, h.store.Exists("notes"))

	saved, err := h.store.LoadNamed("notes")
	require.NoError(t, err)
	assert.Equal(t, "user: hi", saved)
}

func TestSaveAs_EscCancels(t *testing.T) {
	h, m := newHarness(t, &fakeProvider{}, "user: hi")

	m = press(t, m, tea.KeyCtrlW)
	m = typeText(t, m, "notes")
	m = press(t, m, tea.KeyEsc)

	assert.Equal(t, modeEdit, m.mode)
	assert.False(t, h.store.Exists("notes"))
}

func TestDelete_NeedsConfirmation(t *testing.T) {
	h, m := newHarness(t, &fakeProvider{}, "user: hi")
	_, err := h.mgr.Save("keep")
	require.NoError(t, err)

	m = press(t, m, tea.KeyCtrlX)
	m = typeText(t, m, "n")
	assert.True(t, h.store.Exists("keep"))

	m = press(t, m, tea.KeyCtrlX)
	m = typeText(t, m, "y")
	assert.False(t, h.store.Exists("keep"))
	assert.Equal(t, `deleted keep`, m.status)
}

func TestCycleModel(t *testing.T) {
	_, m := newHarness(t, &fakeProvider{}, "")

	m = press(t, m, tea.KeyCtrlL)
	assert.Equal(t, "other-model", m.SelectedModel())
	m = press(t, m, tea.KeyCtrlL)
	assert.Equal(t, "fake-model", m.SelectedModel())
}

// =============================================================================
// CONFIG RELOAD TESTS
// =============================================================================

func TestConfigChange_RewritesMarkers(t *testing.T) {
	_, m := newHarness(t, &fakeProvider{}, "user: hi\n\nassistant: hello")

	old := config.Default()
	next := old.Clone()
	next.Delimiters.User = "me"
	next.Delimiters.Assistant = "bot"

	m = update(t, m, ConfigChangedMsg{Change: config.Change{Old: old, New: next}})
	assert.Equal(t, "me: hi\n\nbot: hello", m.Buffer())
	assert.False(t, m.statusErr)
}

func TestConfigChange_InvalidDelimitersKeepOld(t *testing.T) {
	h, m := newHarness(t, &fakeProvider{}, "user: hi")

	old := config.Default()
	next := old.Clone()
	next.Delimiters.Assistant = next.Delimiters.User

	m = update(t, m, ConfigChangedMsg{Change: config.Change{Old: old, New: next}})
	assert.Equal(t, "user: hi", m.Buffer())
	assert.Equal(t, "assistant", h.mgr.Delimiters().Assistant)
	assert.True(t, m.statusErr)
}

func TestConfigChange_PromptEnabled(t *testing.T) {
	_, m := newHarness(t, &fakeProvider{}, "user: hi")

	old := config.Default()
	next := old.Clone()
	next.SystemPrompt.Enabled = true
	next.SystemPrompt.Content = "be brief"

	m = update(t, m, ConfigChangedMsg{Change: config.Change{Old: old, New: next}})
	assert.Equal(t, "system: be brief\n\nuser: hi", m.Buffer())
}

func TestConfigChange_WaitsForAnswer(t *testing.T) {
	h, m := newHarness(t, &fakeProvider{chunks: []string{"hello"}, block: true}, "user: hi")

	m = press(t, m, tea.KeyCtrlS)
	m = pump(t, m, h.worker, func(m Model) bool { return strings.HasSuffix(m.Buffer(), "hello") })

	old := config.Default()
	next := old.Clone()
	next.Delimiters.Assistant = "bot"
	m = update(t, m, ConfigChangedMsg{Change: config.Change{Old: old, New: next}})
	assert.Equal(t, "assistant", h.mgr.Delimiters().Assistant, "applied only after the answer")

	m = press(t, m, tea.KeyCtrlS)
	m = drain(t, m, h.worker)

	assert.Equal(t, "bot", h.mgr.Delimiters().Assistant)
	assert.Equal(t, "user: hi\n\nbot: hello", m.Buffer())
}

func TestConfigChange_ProviderNeedsRestart(t *testing.T) {
	_, m := newHarness(t, &fakeProvider{}, "user: hi")

	old := config.Default()
	next := old.Clone()
	next.Provider.Name = provider.NameOpenAI

	m = update(t, m, ConfigChangedMsg{Change: config.Change{Old: old, New: next}})
	assert.Contains(t, m.status, "restart")
}

// =============================================================================
// VIEW TESTS
// =============================================================================

func TestView(t *testing.T) {
	_, m := newHarness(t, &fakeProvider{}, "user: hi")
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	view := m.View()
	assert.Contains(t, view, "ochat")
	assert.Contains(t, view, "fake-model")
	assert.Contains(t, view, "ready")

	m = press(t, m, tea.KeyCtrlX)
	assert.Contains(t, m.View(), "(y/N)")
}

func TestPreview_RendersSections(t *testing.T) {
	_, m := newHarness(t, &fakeProvider{}, "user: hi\n\nassistant: **bold**")
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m = press(t, m, tea.KeyTab)
	require.True(t, m.showPreview)

	out := m.renderTranscript(m.Buffer())
	assert.Contains(t, out, "user:")
	assert.Contains(t, out, "assistant:")
	assert.Contains(t, out, "bold")
	assert.NotContains(t, out, "**bold**", "markdown is rendered")

	m.cfg.UI.Markdown = false
	assert.Contains(t, m.renderTranscript(m.Buffer()), "**bold**")
}
