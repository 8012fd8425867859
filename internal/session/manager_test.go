// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jeranaias/ochat/internal/history"
	"github.com/jeranaias/ochat/internal/sysprompt"
	"github.com/jeranaias/ochat/internal/transcript"
)

func newStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.NewStore(t.TempDir(), NewID())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func newManager(t *testing.T, store *history.Store, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(store, cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

// =============================================================================
// MANAGER CREATION TESTS
// =============================================================================

func TestNewManager_EmptyStoreOpensNewChat(t *testing.T) {
	m := newManager(t, newStore(t), Config{})

	name, index := m.Current()
	if name != "new chat" || index != 0 {
		t.Errorf("Current() = %q, %d, want %q, 0", name, index, "new chat")
	}
	if got := m.Buffer(); got != "user: " {
		t.Errorf("Buffer() = %q, want %q", got, "user: ")
	}
}

func TestNewManager_OpensFirstSavedChat(t *testing.T) {
	store := newStore(t)
	if err := store.SaveNamed("b", "user: second"); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveNamed("a", "user: first"); err != nil {
		t.Fatal(err)
	}

	m := newManager(t, store, Config{})
	if name, _ := m.Current(); name != "a" {
		t.Errorf("Current() = %q, want %q", name, "a")
	}
	if got := m.Buffer(); got != "user: first" {
		t.Errorf("Buffer() = %q, want %q", got, "user: first")
	}
}

func TestNewManager_VisiblePromptOpening(t *testing.T) {
	prompt := sysprompt.State{Enabled: true, Content: "be brief"}
	m := newManager(t, newStore(t), Config{Prompt: prompt})

	if got := m.Buffer(); got != "system: be brief\n\nuser: " {
		t.Errorf("Buffer() = %q", got)
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == "" || a == b {
		t.Errorf("NewID() gave %q and %q", a, b)
	}
}

// =============================================================================
// CHAT LIST TESTS
// =============================================================================

func TestManager_NewSnapshotsCurrent(t *testing.T) {
	store := newStore(t)
	m := newManager(t, store, Config{})

	m.SetBuffer("user: draft")
	name, err := m.New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if name != "new chat 1" {
		t.Errorf("New() = %q, want %q", name, "new chat 1")
	}

	got, err := store.LoadTemp("new chat")
	if err != nil || got != "user: draft" {
		t.Errorf("temp snapshot = %q, %v", got, err)
	}

	if err := m.SwitchTo("new chat"); err != nil {
		t.Fatalf("SwitchTo() error = %v", err)
	}
	if got := m.Buffer(); got != "user: draft" {
		t.Errorf("Buffer() after switch back = %q", got)
	}
}

func TestManager_SwitchPrefersTemp(t *testing.T) {
	store := newStore(t)
	for _, name := range []string{"a", "b"} {
		if err := store.SaveNamed(name, "user: saved "+name); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.SaveTemp("b", "user: edited b"); err != nil {
		t.Fatal(err)
	}

	m := newManager(t, store, Config{})
	if err := m.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if got := m.Buffer(); got != "user: edited b" {
		t.Errorf("Buffer() = %q, want temp content", got)
	}

	if err := m.Next(); err != nil {
		t.Fatal(err)
	}
	if name, _ := m.Current(); name != "a" {
		t.Errorf("Next() should wrap to %q, got %q", "a", name)
	}
	if err := m.Prev(); err != nil {
		t.Fatal(err)
	}
	if name, _ := m.Current(); name != "b" {
		t.Errorf("Prev() should wrap to %q, got %q", "b", name)
	}
}

func TestManager_SwitchOutOfRange(t *testing.T) {
	m := newManager(t, newStore(t), Config{})
	if err := m.Switch(5); err == nil {
		t.Error("expected error")
	}
	if err := m.SwitchTo("missing"); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("SwitchTo(missing) = %v, want ErrNotFound", err)
	}
}

func TestManager_Save(t *testing.T) {
	store := newStore(t)
	if err := store.SaveNamed("notes", "user: other"); err != nil {
		t.Fatal(err)
	}
	m := newManager(t, store, Config{})
	if _, err := m.New(); err != nil {
		t.Fatal(err)
	}

	m.SetBuffer("user: hi")
	name, err := m.Save("notes")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if name != "notes (1)" {
		t.Errorf("Save() = %q, want %q", name, "notes (1)")
	}

	got, err := store.LoadNamed("notes (1)")
	if err != nil || got != "user: hi" {
		t.Errorf("saved = %q, %v", got, err)
	}
	if st := m.GetStatus(); !st.Saved || st.Dirty || st.Chat != "notes (1)" {
		t.Errorf("GetStatus() = %+v", st)
	}
}

func TestManager_SaveWritesHiddenPrompt(t *testing.T) {
	store := newStore(t)
	prompt := sysprompt.State{Enabled: true, Hidden: true, Content: "be brief"}
	m := newManager(t, store, Config{Prompt: prompt})

	m.SetBuffer("user: hi")
	if _, err := m.Save("chat"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.LoadNamed("chat")
	if got != "system: be brief\n\nuser: hi" {
		t.Errorf("on disk = %q", got)
	}

	// Reopening strips it again.
	m2 := newManager(t, store, Config{Prompt: prompt})
	if err := m2.SwitchTo("chat"); err != nil {
		t.Fatal(err)
	}
	if got := m2.Buffer(); got != "user: hi" {
		t.Errorf("Buffer() = %q, want hidden prompt stripped", got)
	}
}

func TestManager_Delete(t *testing.T) {
	store := newStore(t)
	for _, name := range []string{"a", "b", "c"} {
		if err := store.SaveNamed(name, "user: "+name); err != nil {
			t.Fatal(err)
		}
	}
	m := newManager(t, store, Config{})
	if err := m.Switch(2); err != nil {
		t.Fatal(err)
	}

	next, err := m.Delete()
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if next != "b" {
		t.Errorf("Delete() of last opened %q, want %q", next, "b")
	}
	if store.Exists("c") {
		t.Error("c still on disk")
	}

	if err := m.Switch(0); err != nil {
		t.Fatal(err)
	}
	next, _ = m.Delete()
	if next != "b" {
		t.Errorf("Delete() of first opened %q, want %q", next, "b")
	}

	next, _ = m.Delete()
	if next != "new chat" {
		t.Errorf("Delete() of only chat opened %q, want %q", next, "new chat")
	}
	if got := m.Names(); len(got) != 1 {
		t.Errorf("Names() = %v", got)
	}
}

// =============================================================================
// CONFIGURATION CHANGE TESTS
// =============================================================================

func TestManager_ApplyPrompt(t *testing.T) {
	store := newStore(t)
	m := newManager(t, store, Config{})
	m.SetBuffer("user: hi")

	visible := sysprompt.State{Enabled: true, Content: "be brief"}
	res, err := m.ApplyPrompt(visible)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed || m.Buffer() != "system: be brief\n\nuser: hi" {
		t.Errorf("buffer = %q", m.Buffer())
	}

	if err := m.Autosave(); err != nil {
		t.Fatal(err)
	}
	hidden := sysprompt.State{Enabled: true, Hidden: true, Content: "be brief"}
	if _, err := m.ApplyPrompt(hidden); err != nil {
		t.Fatal(err)
	}
	if m.Buffer() != "user: hi" {
		t.Errorf("buffer after hide = %q", m.Buffer())
	}
	if _, err := store.LoadTemp("new chat"); !errors.Is(err, history.ErrNotFound) {
		t.Error("hiding the prompt should clear temp snapshots")
	}
	if m.Prompt() != hidden {
		t.Error("Prompt() not updated")
	}
}

func TestManager_ApplyPromptClearFailureChangesNothing(t *testing.T) {
	store := newStore(t)
	visible := sysprompt.State{Enabled: true, Content: "be brief"}
	m := newManager(t, store, Config{Prompt: visible})
	m.SetBuffer("system: be brief\n\nuser: hi")

	// A file where the history directory was makes the temp directory
	// impossible to remove.
	root := store.Root()
	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(root, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	hidden := sysprompt.State{Enabled: true, Hidden: true, Content: "be brief"}
	res, err := m.ApplyPrompt(hidden)
	if err == nil {
		t.Fatal("ApplyPrompt() error = nil, want error")
	}
	if res.Changed {
		t.Error("Changed = true, want false")
	}
	if m.Prompt() != visible {
		t.Errorf("Prompt() = %+v, want %+v", m.Prompt(), visible)
	}
	if got := m.Buffer(); got != "system: be brief\n\nuser: hi" {
		t.Errorf("Buffer() = %q, want it unchanged", got)
	}
}

func TestManager_ApplyDelimiters(t *testing.T) {
	store := newStore(t)
	if err := store.SaveNamed("a", "user: hi\n\nassistant: hello"); err != nil {
		t.Fatal(err)
	}
	m := newManager(t, store, Config{})

	next := transcript.DelimiterSet{User: "me", Assistant: "bot", System: "system"}
	n, err := m.ApplyDelimiters(next)
	if err != nil {
		t.Fatalf("ApplyDelimiters() error = %v", err)
	}
	if n != 1 {
		t.Errorf("rewrote %d files, want 1", n)
	}
	if got := m.Buffer(); got != "me: hi\n\nbot: hello" {
		t.Errorf("Buffer() = %q", got)
	}
	if m.Delimiters() != next {
		t.Error("Delimiters() not updated")
	}

	bad := transcript.DelimiterSet{User: "x", Assistant: "x", System: "y"}
	if _, err := m.ApplyDelimiters(bad); err == nil {
		t.Error("invalid delimiters accepted")
	}
	if m.Delimiters() != next {
		t.Error("invalid delimiters replaced the valid ones")
	}
}

// =============================================================================
// AUTOSAVE TESTS
// =============================================================================

func TestManager_Autosave(t *testing.T) {
	store := newStore(t)
	m := newManager(t, store, Config{AutosaveInterval: 10 * time.Millisecond})

	if m.AutosaveDue() {
		t.Error("clean buffer should not be due")
	}

	m.SetBuffer("user: typing")
	time.Sleep(20 * time.Millisecond)
	if !m.AutosaveDue() {
		t.Fatal("dirty buffer should be due")
	}
	if err := m.Autosave(); err != nil {
		t.Fatal(err)
	}
	if m.AutosaveDue() {
		t.Error("still due after autosave")
	}

	got, err := store.LoadTemp("new chat")
	if err != nil || got != "user: typing" {
		t.Errorf("snapshot = %q, %v", got, err)
	}
}

func TestManager_HandleTick(t *testing.T) {
	m := newManager(t, newStore(t), Config{})
	if cmd := m.HandleTick(); cmd == nil {
		t.Error("HandleTick() should always schedule the next tick")
	}
}

func TestManager_CloseClearsSnapshots(t *testing.T) {
	store := newStore(t)
	m := newManager(t, store, Config{})
	m.SetBuffer("user: x")
	if err := m.Autosave(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := store.LoadTemp("new chat"); !errors.Is(err, history.ErrNotFound) {
		t.Error("Close() left a snapshot")
	}
}

// =============================================================================
// HELPER TESTS
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{time.Minute, "1m"},
		{125 * time.Second, "2m 5s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
