// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/ochat/internal/config"
	"github.com/jeranaias/ochat/internal/generation"
	"github.com/jeranaias/ochat/internal/history"
	"github.com/jeranaias/ochat/internal/sysprompt"
	"github.com/jeranaias/ochat/internal/transcript"
)

var replCmd = &cobra.Command{
	Use:   "repl [chat]",
	Short: "Chat line by line in a saved chat",
	Long: `Start a line-by-line chat. Every line you enter becomes a user turn of the
named chat, the answer streams below it and the chat is saved after each
answer, so it can be opened in the editor later.

Without a name a new chat is created ("new chat", "new chat 1", ...).

Commands:
  /show          Print the whole transcript
  /model [name]  Show or switch the model
  /quit          Exit (Ctrl+D also exits)
  Ctrl+C         Stop the answer being streamed`,
	Args: usageArgs(cobra.MaximumNArgs(1)),
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for the repl.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads the saved input history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(dir, "repl_history"),
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
	return c
}

// ReadInput reads a line with the given prompt. Non-empty lines are added
// to the history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes the input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// replChat is the chat a repl session appends to.
type replChat struct {
	store  *history.Store
	name   string
	buffer string
	delims transcript.DelimiterSet
	prompt sysprompt.State
}

// openReplChat loads name, or starts it with the opening buffer. An empty
// name picks the next free "new chat" name.
func openReplChat(store *history.Store, name string, delims transcript.DelimiterSet, prompt sysprompt.State) (*replChat, error) {
	if name == "" {
		names, err := store.ListNames()
		if err != nil {
			return nil, err
		}
		name = history.NewChatName(names)
	}
	name = history.SanitizeName(name)

	c := &replChat{store: store, name: name, delims: delims, prompt: prompt}
	text, err := store.LoadNamed(name)
	switch {
	case errors.Is(err, history.ErrNotFound):
		c.buffer = sysprompt.Opening(prompt, delims)
	case err != nil:
		return nil, err
	default:
		c.buffer = sysprompt.StripHiddenPrompt(text, prompt, delims)
	}
	return c, nil
}

// addUserTurn writes line as the next user turn, filling an empty trailing
// user section instead of opening another.
func (c *replChat) addUserTurn(line string) {
	codec := transcript.NewCodec(c.delims)
	sections := codec.Sections(c.buffer)
	if n := len(sections); n > 0 {
		last := sections[n-1]
		if last.Role == transcript.RoleUser && strings.TrimSpace(last.Content) == "" {
			c.buffer = c.buffer[:last.Start] + codec.Section(transcript.RoleUser, line)
			return
		}
	}
	c.buffer = codec.AppendMarker(c.buffer, transcript.RoleUser) + line
}

func (c *replChat) save() error {
	return c.store.SaveNamed(c.name, sysprompt.WithHiddenPrompt(c.buffer, c.prompt, c.delims))
}

func runREPL(cmd *cobra.Command, args []string) error {
	if !IsTTY() {
		return &UsageError{Message: "repl needs an interactive terminal; use send for pipes"}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	var name string
	if len(args) == 1 {
		name = args[0]
	}
	chat, err := openReplChat(store, name, cfg.DelimiterSet(), cfg.PromptState())
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	model, available, err := a.resolveModel(cmd.Context(), flagModel)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, TitleStyle.Render("ochat repl"))
	fmt.Fprintln(out, RenderField("Chat", chat.name))
	fmt.Fprintln(out, RenderField("Model", model))
	fmt.Fprintln(out, DimStyle.Render("/quit or Ctrl+D to exit, Ctrl+C stops an answer"))
	fmt.Fprintln(out)

	input := NewChatCLI()
	defer input.Close()

	for {
		line, err := input.ReadInput(PromptStyle.Render(chat.name + "> "))
		if err != nil {
			// Ctrl+C at the prompt and Ctrl+D both end the session.
			fmt.Fprintln(out)
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := replCommand(out, line, chat, &model, available)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if quit {
				return nil
			}
			continue
		}

		chat.addUserTurn(line)
		if err := replAnswer(cmd.Context(), a, chat, model, out); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}
}

// replAnswer streams one answer, with Ctrl+C cancelling it, and saves the
// chat.
func replAnswer(ctx context.Context, a *app, chat *replChat, model string, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := generation.Request{
		Model:  model,
		Buffer: chat.buffer,
		Delims: chat.delims,
		Prompt: chat.prompt,
	}
	buffer, done, err := streamAnswer(ctx, a.worker, req, out)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	if done == nil {
		return nil
	}
	if done.State == generation.StateCancelled {
		fmt.Fprintln(out, WarningStyle.Render("[Cancelled]"))
	}
	fmt.Fprintln(out)

	chat.buffer = buffer
	a.rememberModel(model)
	return chat.save()
}

// replCommand handles a slash command. It reports whether the repl should
// exit.
func replCommand(out io.Writer, line string, chat *replChat, model *string, available []string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/q", "/exit":
		return true, nil
	case "/show":
		fmt.Fprintln(out, chat.buffer)
	case "/model":
		if len(fields) == 1 {
			fmt.Fprintln(out, RenderField("Model", *model))
			return false, nil
		}
		next := fields[1]
		if available != nil && !slices.Contains(available, next) {
			return false, fmt.Errorf("unknown model %q", next)
		}
		*model = next
		fmt.Fprintln(out, RenderField("Model", next))
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}
