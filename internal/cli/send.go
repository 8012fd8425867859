// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ochat/internal/generation"
	"github.com/jeranaias/ochat/internal/transcript"
	"github.com/jeranaias/ochat/internal/util"
)

var sendWrite bool

var sendCmd = &cobra.Command{
	Use:   "send [file]",
	Short: "Stream an answer for a transcript",
	Long: `Send a transcript to the model and stream the answer to stdout.

The transcript is read from file, or from stdin when no file is given. It uses
the same markers as the editor; an empty trailing assistant turn asks for the
previous answer to be regenerated. With --write the answered transcript,
ending in a fresh user marker, replaces the file.

Examples:
  ochat send chat.txt
  ochat send chat.txt --write
  printf 'user: what is a monad?' | ochat send -m llama3.2`,
	Args: usageArgs(cobra.MaximumNArgs(1)),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVarP(&sendWrite, "write", "w", false, "Write the answered transcript back to the file")
}

func runSend(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	}
	if sendWrite && path == "" {
		return &UsageError{Message: "--write needs a file argument"}
	}
	if path == "" && IsTTY() {
		return &UsageError{Message: "no transcript: pass a file or pipe one on stdin"}
	}

	buffer, err := readTranscript(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	model, _, err := a.resolveModel(ctx, flagModel)
	if err != nil {
		return err
	}

	req := generation.Request{
		Model:  model,
		Buffer: buffer,
		Delims: cfg.DelimiterSet(),
		Prompt: cfg.PromptState(),
	}
	out, done, err := streamAnswer(ctx, a.worker, req, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if done == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), DimStyle.Render("nothing to send"))
		return nil
	}
	a.rememberModel(model)

	fmt.Fprintln(cmd.OutOrStdout())
	if done.State != generation.StateCompleted {
		fmt.Fprintln(cmd.ErrOrStderr(), RenderStatus(done.State.String()))
	}

	if sendWrite {
		if err := util.AtomicWriteFile(path, []byte(out), 0o644); err != nil {
			return NewCommandError("send", "write", path, err)
		}
	}
	return nil
}

func readTranscript(stdin io.Reader, path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", NewCommandError("send", "read", "stdin", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", NewCommandError("send", "read", path, err)
	}
	return string(data), nil
}

// =============================================================================
// STREAMING
// =============================================================================

// streamAnswer submits req and applies every event to the buffer until the
// session ends, writing answer text to w as it arrives. Cancelling ctx
// cancels the generation. A nil EventDone means there was nothing to send.
func streamAnswer(ctx context.Context, w *generation.Worker, req generation.Request, out io.Writer) (string, *generation.EventDone, error) {
	outcome, err := w.Submit(req)
	if err != nil {
		return req.Buffer, nil, err
	}
	if outcome != generation.OutcomeStarted {
		return req.Buffer, nil, nil
	}

	codec := transcript.NewCodec(req.Delims)
	buffer := req.Buffer
	cancelled := ctx.Done()
	for {
		select {
		case <-cancelled:
			w.Cancel()
			cancelled = nil
		case ev, ok := <-w.Events():
			if !ok {
				return buffer, nil, generation.ErrClosed
			}
			buffer = generation.Apply(codec, buffer, ev)
			switch ev := ev.(type) {
			case generation.EventChunk:
				fmt.Fprint(out, ev.Text)
			case generation.EventDone:
				return buffer, &ev, nil
			}
		}
	}
}
