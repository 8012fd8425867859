// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jeranaias/ochat/internal/history"
	"github.com/jeranaias/ochat/internal/logging"
	"github.com/jeranaias/ochat/internal/sysprompt"
	"github.com/jeranaias/ochat/internal/transcript"
)

// NewID returns a fresh session id. It keys the temp directory of this
// process.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Config holds configuration for the session manager.
type Config struct {
	Delims transcript.DelimiterSet
	Prompt sysprompt.State

	// AutosaveInterval is how often a dirty buffer is snapshotted (0 disables)
	AutosaveInterval time.Duration
}

// Manager tracks the chat list and the open chat. It is safe for concurrent
// use.
type Manager struct {
	mu     sync.Mutex
	store  *history.Store
	logger *log.Logger

	delims transcript.DelimiterSet
	prompt sysprompt.State

	// names is the chat list as shown; unsaved new chats sit at the front
	names   []string
	current int
	buffer  string

	dirty            bool
	autosaveInterval time.Duration
	lastSave         time.Time
}

// NewManager lists the saved chats and opens the first one, or a new chat
// when there are none.
func NewManager(store *history.Store, cfg Config) (*Manager, error) {
	names, err := store.ListNames()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:            store,
		logger:           logging.With("session"),
		delims:           cfg.Delims,
		prompt:           cfg.Prompt,
		names:            names,
		autosaveInterval: cfg.AutosaveInterval,
		lastSave:         time.Now(),
	}
	if m.delims == (transcript.DelimiterSet{}) {
		m.delims = transcript.DefaultDelimiters()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.names) == 0 {
		m.newChatLocked(false)
		return m, nil
	}
	if err := m.openLocked(0); err != nil {
		return nil, err
	}
	return m, nil
}

// SessionID returns the id of this process's temp directory.
func (m *Manager) SessionID() string {
	return m.store.Session()
}

// Names returns the chat list in display order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.names)
}

// Current returns the open chat's name and position in Names.
func (m *Manager) Current() (string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.names[m.current], m.current
}

// Buffer returns the open chat's text.
func (m *Manager) Buffer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffer
}

// SetBuffer replaces the open chat's text.
func (m *Manager) SetBuffer(buffer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if buffer != m.buffer {
		m.buffer = buffer
		m.dirty = true
	}
}

// Delimiters returns the delimiters buffers are written with.
func (m *Manager) Delimiters() transcript.DelimiterSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delims
}

// Prompt returns the system prompt in force.
func (m *Manager) Prompt() sysprompt.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompt
}

// =============================================================================
// CHAT LIST OPERATIONS
// =============================================================================

// New snapshots the open chat and opens a fresh one at the top of the list.
func (m *Manager) New() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.snapshotLocked(); err != nil {
		return "", err
	}
	m.newChatLocked(true)
	return m.names[0], nil
}

// Switch snapshots the open chat and opens the chat at index.
func (m *Manager) Switch(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.names) {
		return fmt.Errorf("chat index %d out of range", index)
	}
	if index == m.current {
		return nil
	}
	if err := m.snapshotLocked(); err != nil {
		return err
	}
	return m.openLocked(index)
}

// SwitchTo opens the chat called name.
func (m *Manager) SwitchTo(name string) error {
	m.mu.Lock()
	index := slices.Index(m.names, name)
	m.mu.Unlock()

	if index < 0 {
		return fmt.Errorf("%w: %q", history.ErrNotFound, name)
	}
	return m.Switch(index)
}

// Next opens the chat after the current one, wrapping around. Prev goes the
// other way.
func (m *Manager) Next() error { return m.step(1) }

// Prev opens the chat before the current one, wrapping around.
func (m *Manager) Prev() error { return m.step(-1) }

func (m *Manager) step(delta int) error {
	m.mu.Lock()
	n := len(m.names)
	index := ((m.current+delta)%n + n) % n
	m.mu.Unlock()
	return m.Switch(index)
}

// Save writes the open chat under requested, which is sanitized and made
// unique first. It returns the name used.
func (m *Manager) Save(requested string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.names[m.current]
	name, err := m.store.Rename(old, requested, m.names)
	if err != nil {
		return "", err
	}

	onDisk := sysprompt.WithHiddenPrompt(m.buffer, m.prompt, m.delims)
	if err := m.store.SaveNamed(name, onDisk); err != nil {
		return "", err
	}
	if err := m.store.SaveTemp(name, onDisk); err != nil {
		return "", err
	}

	m.names[m.current] = name
	m.dirty = false
	m.lastSave = time.Now()
	m.logger.Info("chat saved", "name", name)
	return name, nil
}

// Delete removes the open chat and opens its neighbour. Deleting the last
// chat opens a new one.
func (m *Manager) Delete() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := m.names[m.current]
	if err := m.store.DeleteNamed(name); err != nil {
		return "", err
	}
	if err := m.store.DeleteTemp(name); err != nil {
		return "", err
	}

	index := m.current
	m.names = slices.Delete(m.names, index, index+1)
	m.logger.Info("chat deleted", "name", name)

	if len(m.names) == 0 {
		m.newChatLocked(false)
		return m.names[0], nil
	}
	if index == len(m.names) {
		index--
	}
	// Open directly: the deleted chat must not be snapshotted back.
	m.current = index
	if err := m.openLocked(index); err != nil {
		return "", err
	}
	return m.names[index], nil
}

// =============================================================================
// CONFIGURATION CHANGES
// =============================================================================

// ApplyPrompt reconciles the open buffer with a new system prompt. Showing or
// hiding the prompt drops every temp snapshot, since they were written under
// the old visibility. On error the prompt and buffer are left as they were.
func (m *Manager) ApplyPrompt(next sysprompt.State) (sysprompt.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := sysprompt.Reconcile(m.prompt, next, m.buffer, m.delims)
	if err != nil {
		return res, err
	}

	if res.Transition.VisibilityChanged() {
		if err := m.store.ClearSession(); err != nil {
			return sysprompt.Result{Buffer: m.buffer, Transition: res.Transition}, err
		}
	}

	m.prompt = next
	if res.Changed {
		m.buffer = res.Buffer
		m.dirty = true
	}
	return res, nil
}

// ApplyDelimiters rewrites every stored chat and the open buffer to use next.
// If the stored chats cannot all be rewritten nothing changes and the old
// delimiters stay in force.
func (m *Manager) ApplyDelimiters(next transcript.DelimiterSet) (int, error) {
	if err := next.Validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	changes := transcript.Changes(m.delims, next)
	if len(changes) == 0 {
		m.delims = next
		return 0, nil
	}

	n, err := m.store.RewriteMarkers(changes)
	if err != nil {
		return 0, err
	}

	m.buffer = transcript.ReplaceMarkers(m.buffer, changes)
	m.delims = next
	m.dirty = true
	return n, nil
}

// =============================================================================
// AUTOSAVE
// =============================================================================

// AutosaveDue reports whether a dirty buffer has waited out the interval.
func (m *Manager) AutosaveDue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autosaveInterval > 0 && m.dirty && time.Since(m.lastSave) >= m.autosaveInterval
}

// Autosave snapshots the open chat to the temp directory if it changed.
func (m *Manager) Autosave() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}
	return m.snapshotLocked()
}

// Close drops this process's temp snapshots. Unsaved chats are lost.
func (m *Manager) Close() error {
	return m.store.ClearSession()
}

// TickMsg is sent periodically to check for a due autosave.
type TickMsg struct {
	Time time.Time
}

// AutosaveMsg reports the outcome of an autosave.
type AutosaveMsg struct {
	Err error
}

// TickCmd returns a command that ticks once a second.
func TickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// HandleTick autosaves when due and schedules the next tick.
func (m *Manager) HandleTick() tea.Cmd {
	if !m.AutosaveDue() {
		return TickCmd()
	}
	return tea.Batch(func() tea.Msg {
		return AutosaveMsg{Err: m.Autosave()}
	}, TickCmd())
}

// =============================================================================
// HELPERS
// =============================================================================

// snapshotLocked writes the open buffer to the temp directory.
func (m *Manager) snapshotLocked() error {
	name := m.names[m.current]
	onDisk := sysprompt.WithHiddenPrompt(m.buffer, m.prompt, m.delims)
	if err := m.store.SaveTemp(name, onDisk); err != nil {
		return err
	}
	m.dirty = false
	m.lastSave = time.Now()
	return nil
}

// openLocked loads the chat at index, preferring this session's snapshot.
// A chat with neither file gets the opening buffer.
func (m *Manager) openLocked(index int) error {
	name := m.names[index]

	text, err := m.store.LoadTemp(name)
	if errors.Is(err, history.ErrNotFound) {
		text, err = m.store.LoadNamed(name)
	}
	switch {
	case errors.Is(err, history.ErrNotFound):
		text = sysprompt.Opening(m.prompt, m.delims)
	case err != nil:
		return err
	default:
		text = sysprompt.StripHiddenPrompt(text, m.prompt, m.delims)
	}

	m.current = index
	m.buffer = text
	m.dirty = false
	m.logger.Debug("chat opened", "name", name)
	return nil
}

// newChatLocked inserts a fresh chat at the top of the list and opens it.
func (m *Manager) newChatLocked(markDirty bool) {
	name := history.NewChatName(m.names)
	m.names = slices.Insert(m.names, 0, name)
	m.current = 0
	m.buffer = sysprompt.Opening(m.prompt, m.delims)
	m.dirty = markDirty
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status is a snapshot of the manager for display.
type Status struct {
	SessionID string
	Chat      string
	Index     int
	Chats     int
	Saved     bool
	Dirty     bool
	LastSave  time.Time
}

// GetStatus returns the current status.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := m.names[m.current]
	return Status{
		SessionID: m.store.Session(),
		Chat:      name,
		Index:     m.current,
		Chats:     len(m.names),
		Saved:     m.store.Exists(name),
		Dirty:     m.dirty,
		LastSave:  m.lastSave,
	}
}

// FormatDuration returns a short human-readable duration such as "45s" or
// "2m 5s".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return strconv.Itoa(mins) + "m"
	}
	return strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
}
