// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ochat/internal/config"
	"github.com/jeranaias/ochat/internal/generation"
	"github.com/jeranaias/ochat/internal/history"
	"github.com/jeranaias/ochat/internal/ollama"
	"github.com/jeranaias/ochat/internal/provider"
	"github.com/jeranaias/ochat/internal/sysprompt"
	"github.com/jeranaias/ochat/internal/transcript"
)

// =============================================================================
// EXIT CODE TESTS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", &UsageError{Message: "bad"}, ExitUsageError},
		{"wrapped usage", fmt.Errorf("x: %w", &UsageError{Message: "bad"}), ExitUsageError},
		{"invalid config", config.ValidateErrors{{Field: "theme", Message: "unknown"}}, ExitConfigError},
		{"provider config", &provider.ConfigError{Provider: "openai", Message: "no key"}, ExitConfigError},
		{"ollama down", ollama.ErrNotRunning, ExitNetworkError},
		{"timeout", ollama.ErrTimeout, ExitNetworkError},
		{"missing chat", fmt.Errorf("show: %w", history.ErrNotFound), ExitNotFoundError},
		{"missing image", &generation.MissingImagesError{Paths: []string{"/x.png"}}, ExitNotFoundError},
		{"other", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUsageArgs(t *testing.T) {
	check := usageArgs(cobra.ExactArgs(1))

	if err := check(&cobra.Command{}, []string{"a"}); err != nil {
		t.Errorf("usageArgs() = %v, want nil", err)
	}

	err := check(&cobra.Command{}, nil)
	var usageErr *UsageError
	if !errors.As(err, &usageErr) {
		t.Errorf("usageArgs() = %T, want *UsageError", err)
	}
}

func TestCommandError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewCommandError("send", "write", "out.txt", cause)

	assert.Contains(t, err.Error(), "send")
	assert.Contains(t, err.Error(), "out.txt")
	assert.ErrorIs(t, err, cause)
}

// =============================================================================
// REPL TESTS
// =============================================================================

func TestReplChat_AddUserTurn(t *testing.T) {
	delims := transcript.DefaultDelimiters()

	tests := []struct {
		name   string
		buffer string
		want   string
	}{
		{"fills empty user section", "user: ", "user: hello"},
		{"after an answer", "user: hi\n\nassistant: yo", "user: hi\n\nassistant: yo\n\nuser: hello"},
		{"after an answered turn", "user: hi\n\nassistant: yo\n\nuser: ", "user: hi\n\nassistant: yo\n\nuser: hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &replChat{buffer: tt.buffer, delims: delims}
			c.addUserTurn("hello")
			assert.Equal(t, tt.want, c.buffer)
		})
	}
}

func TestOpenReplChat(t *testing.T) {
	store, err := history.NewStore(t.TempDir(), "test")
	require.NoError(t, err)
	delims := transcript.DefaultDelimiters()
	hidden := sysprompt.State{Enabled: true, Hidden: true, Content: "be brief"}

	c, err := openReplChat(store, "", delims, hidden)
	require.NoError(t, err)
	assert.Equal(t, "user: ", c.buffer)
	assert.NotEmpty(t, c.name)

	c.addUserTurn("hi")
	require.NoError(t, c.save())

	onDisk, err := store.LoadNamed(c.name)
	require.NoError(t, err)
	assert.Equal(t, "system: be brief\n\nuser: hi", onDisk, "hidden prompt is written to disk")

	again, err := openReplChat(store, c.name, delims, hidden)
	require.NoError(t, err)
	assert.Equal(t, "user: hi", again.buffer, "and stripped on load")
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

type fakeProvider struct {
	chunks []string
	block  bool
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

func TestStreamAnswer(t *testing.T) {
	w := generation.NewWorker(&fakeProvider{chunks: []string{"hel", "lo"}})
	defer w.Close()

	var out bytes.Buffer
	req := generation.Request{Model: "fake-model", Buffer: "user: hi", Delims: transcript.DefaultDelimiters()}
	buffer, done, err := streamAnswer(context.Background(), w, req, &out)

	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, generation.StateCompleted, done.State)
	assert.Equal(t, "hello", out.String())
	assert.Equal(t, "user: hi\n\nassistant: hello\n\nuser: ", buffer)
}

func TestStreamAnswer_NothingToSend(t *testing.T) {
	w := generation.NewWorker(&fakeProvider{})
	defer w.Close()

	req := generation.Request{Model: "fake-model", Buffer: "user: ", Delims: transcript.DefaultDelimiters()}
	buffer, done, err := streamAnswer(context.Background(), w, req, io.Discard)

	require.NoError(t, err)
	assert.Nil(t, done)
	assert.Equal(t, "user: ", buffer)
}

func TestStreamAnswer_ContextCancels(t *testing.T) {
	w := generation.NewWorker(&fakeProvider{block: true})
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := generation.Request{Model: "fake-model", Buffer: "user: hi", Delims: transcript.DefaultDelimiters()}
	buffer, done, err := streamAnswer(ctx, w, req, io.Discard)

	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, generation.StateCancelled, done.State)
	assert.False(t, strings.HasSuffix(buffer, "user: "))
}

// =============================================================================
// HISTORY HELPERS
// =============================================================================

func TestSummarize(t *testing.T) {
	s := summarize("notes", "system: x\n\nuser: first line\nsecond\n\nassistant: yo", transcript.DefaultDelimiters())
	assert.Equal(t, "notes", s.Name)
	assert.Equal(t, 3, s.Turns)
	assert.Equal(t, "first line", s.Preview)
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

// setupHome points the config directory at a temp dir and resets the
// package-level flag values a previous run may have set.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("OCHAT_HOME", home)
	config.ResetGlobalForTesting()

	flagModel, flagProvider, flagLogLevel = "", "", ""
	historyJSON, exportStdout = false, false
	exportFormat, exportDir = history.FormatMarkdown, "."
	configInitForce = false
	return home
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func saveChat(t *testing.T, home, name, text string) {
	t.Helper()
	store, err := history.NewStore(filepath.Join(home, "history"), "test")
	require.NoError(t, err)
	require.NoError(t, store.SaveNamed(name, text))
}

func TestHistoryCommands(t *testing.T) {
	home := setupHome(t)
	saveChat(t, home, "notes", "user: what is go\n\nassistant: a language")

	out, err := runCommand(t, "history", "list", "--json")
	require.NoError(t, err)
	var rows []chatSummary
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, chatSummary{Name: "notes", Turns: 2, Preview: "what is go"}, rows[0])

	out, err = runCommand(t, "history", "show", "notes")
	require.NoError(t, err)
	assert.Contains(t, out, "assistant: a language")

	out, err = runCommand(t, "history", "rename", "notes", "go notes")
	require.NoError(t, err)
	assert.Equal(t, "go notes\n", out)

	_, err = runCommand(t, "history", "show", "notes")
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))

	_, err = runCommand(t, "history", "delete", "go notes")
	require.NoError(t, err)
	_, err = runCommand(t, "history", "delete", "go notes")
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestHistoryExport_Stdout(t *testing.T) {
	home := setupHome(t)
	saveChat(t, home, "notes", "user: hi\n\nassistant: hello")

	out, err := runCommand(t, "history", "export", "notes", "--format", "json", "--stdout")
	require.NoError(t, err)
	assert.Contains(t, out, `"hello"`)

	_, err = runCommand(t, "history", "export", "notes", "--format", "docx", "--stdout")
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestConfigInit(t *testing.T) {
	home := setupHome(t)

	_, err := runCommand(t, "config", "init")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, "config.toml"))

	_, err = runCommand(t, "config", "init")
	assert.Equal(t, ExitUsageError, GetExitCode(err), "existing file needs --force")

	_, err = runCommand(t, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestConfigDelims(t *testing.T) {
	home := setupHome(t)
	saveChat(t, home, "notes", "user: hi\n\nassistant: hello")

	_, err := runCommand(t, "config", "delims", "me", "bot", "sys")
	require.NoError(t, err)

	cfg, err := config.LoadFromPath(filepath.Join(home, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "bot", cfg.Delimiters.Assistant)

	out, err := runCommand(t, "history", "show", "notes")
	require.NoError(t, err)
	assert.Equal(t, "me: hi\n\nbot: hello\n", out)

	_, err = runCommand(t, "config", "delims", "same", "same", "sys")
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestChangeDelimiters_RollsBackWhenConfigFails(t *testing.T) {
	home := setupHome(t)
	// A directory where the config file belongs makes the update fail.
	require.NoError(t, os.Mkdir(filepath.Join(home, "config.toml"), 0o755))

	old := transcript.DefaultDelimiters()
	next := transcript.DelimiterSet{User: "me", Assistant: "bot", System: "sys"}

	var calls [][]transcript.MarkerChange
	rewrite := func(changes []transcript.MarkerChange) (int, error) {
		calls = append(calls, changes)
		return 1, nil
	}

	_, err := changeDelimiters(old, next, rewrite)
	require.Error(t, err)
	require.Len(t, calls, 2, "rewritten, then restored")
	assert.Equal(t, transcript.Changes(next, old), calls[1])
}

func TestChangeDelimiters_NoChange(t *testing.T) {
	d := transcript.DefaultDelimiters()
	n, err := changeDelimiters(d, d, func([]transcript.MarkerChange) (int, error) {
		t.Fatal("nothing to rewrite")
		return 0, nil
	})
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestSendCommand_WriteNeedsFile(t *testing.T) {
	setupHome(t)
	sendWrite = false

	_, err := runCommand(t, "send", "--write")
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}
