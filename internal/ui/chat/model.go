// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/jeranaias/ochat/internal/config"
	"github.com/jeranaias/ochat/internal/generation"
	"github.com/jeranaias/ochat/internal/logging"
	"github.com/jeranaias/ochat/internal/session"
	"github.com/jeranaias/ochat/internal/transcript"
	"github.com/jeranaias/ochat/internal/ui/styles"
)

// previewInterval caps preview re-renders while an answer streams.
const previewInterval = 100 * time.Millisecond

// ErrNoModel blocks a send when no model is selected.
var ErrNoModel = errors.New("no model selected (C-l cycles models)")

// errBusy refuses chat list changes while an answer streams.
var errBusy = errors.New("stop the answer first (C-s)")

// =============================================================================
// STATE TYPES
// =============================================================================

// inputMode selects what the bottom prompt line is asking for.
type inputMode int

const (
	modeEdit inputMode = iota
	modeSaveAs
	modeConfirmDelete
)

// Options wires the editor to the rest of the application.
type Options struct {
	Config  *config.Config
	Manager *session.Manager
	Worker  *generation.Worker

	// Watcher delivers config file changes. Nil disables live reload.
	Watcher *config.Watcher

	// Model is the selected model; Models the ones C-l cycles through.
	Model  string
	Models []string

	// Remember is called with the model of each started answer.
	Remember func(model string)
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the transcript editor.
type Model struct {
	cfg      *config.Config
	mgr      *session.Manager
	worker   *generation.Worker
	watcher  *config.Watcher
	remember func(string)
	logger   *log.Logger

	// UI components
	theme     *styles.Theme
	keys      KeyMap
	help      help.Model
	editor    textarea.Model
	preview   viewport.Model
	nameInput textinput.Model
	renderer  *glamour.TermRenderer

	// Model selection
	model  string
	models []string

	// Streaming state
	streaming bool
	codec     *transcript.Codec
	lastState generation.State
	pending   *config.Change

	// Preview state
	showPreview  bool
	previewStale bool
	renderLimit  *rate.Limiter

	mode      inputMode
	status    string
	statusErr bool

	width  int
	height int
}

// New creates the editor showing the manager's open chat.
func New(opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	editor := textarea.New()
	editor.CharLimit = 0
	editor.MaxHeight = 0
	editor.ShowLineNumbers = false
	editor.Prompt = ""
	editor.Placeholder = "user: ask something, then C-s"
	editor.Focus()

	name := textinput.New()
	name.Prompt = ""
	name.CharLimit = 128

	remember := opts.Remember
	if remember == nil {
		remember = func(string) {}
	}

	m := Model{
		cfg:         cfg,
		mgr:         opts.Manager,
		worker:      opts.Worker,
		watcher:     opts.Watcher,
		remember:    remember,
		logger:      logging.With("tui"),
		theme:       styles.NewTheme(cfg.UI.Theme),
		keys:        DefaultKeyMap(),
		help:        help.New(),
		editor:      editor,
		preview:     viewport.New(80, 20),
		nameInput:   name,
		model:       opts.Model,
		models:      opts.Models,
		showPreview: !cfg.UI.ShowRaw,
		renderLimit: rate.NewLimiter(rate.Every(previewInterval), 1),
		width:       80,
		height:      24,
	}
	m.loadBuffer()
	return m
}

// Init starts the blink, autosave and event loops.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textarea.Blink,
		session.TickCmd(),
		waitForEvents(m.worker.Events()),
	}
	if cmd := waitForChange(m.watcher); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

// Buffer returns the text in the editor.
func (m Model) Buffer() string {
	return m.editor.Value()
}

// Streaming reports whether an answer is running.
func (m Model) Streaming() bool {
	return m.streaming
}

// SelectedModel returns the model the next send uses.
func (m Model) SelectedModel() string {
	return m.model
}

// =============================================================================
// HELPERS
// =============================================================================

// loadBuffer copies the manager's buffer into the editor.
func (m *Model) loadBuffer() {
	m.editor.SetValue(m.mgr.Buffer())
	m.refreshPreview(true)
}

// syncBuffer copies the editor into the manager.
func (m *Model) syncBuffer() {
	m.mgr.SetBuffer(m.editor.Value())
}

func (m *Model) setStatus(msg string) {
	m.status = msg
	m.statusErr = false
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.statusErr = true
	m.logger.Warn("tui", "err", err)
}

func (m *Model) clearStatus() {
	m.status = ""
	m.statusErr = false
}
