// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ochat/internal/config"
	"github.com/jeranaias/ochat/internal/history"
	"github.com/jeranaias/ochat/internal/transcript"
	"github.com/jeranaias/ochat/internal/util"
)

var (
	historyJSON  bool
	exportFormat string
	exportDir    string
	exportStdout bool
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"h"},
	Short:   "Manage saved chats",
	Long: `List, show, rename, delete and export saved chats.

Saved chats are plain text files in the history directory
(storage.data_dir, default ~/.ochat/history).

Examples:
  ochat history list
  ochat history show "project ideas"
  ochat history rename "new chat" "project ideas"
  ochat history export "project ideas" --format json --dir ./out`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved chats",
	Args:  usageArgs(cobra.NoArgs),
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <chat>",
	Short: "Print a saved chat",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE:  runHistoryShow,
}

var historyRenameCmd = &cobra.Command{
	Use:   "rename <chat> <new name>",
	Short: "Rename a saved chat",
	Long: `Rename a saved chat. A name that is empty or contains ":", "\" or "/"
becomes "default name"; a name already in use gets a " (n)" suffix. The
final name is printed.`,
	Args: usageArgs(cobra.ExactArgs(2)),
	RunE: runHistoryRename,
}

var historyDeleteCmd = &cobra.Command{
	Use:     "delete <chat>",
	Aliases: []string{"rm"},
	Short:   "Delete a saved chat",
	Args:    usageArgs(cobra.ExactArgs(1)),
	RunE:    runHistoryDelete,
}

var historyExportCmd = &cobra.Command{
	Use:   "export <chat>",
	Short: "Export a saved chat",
	Long: `Export a saved chat as markdown, json, jsonl, yaml or txt. The file is
written to --dir as chat_<name>_<timestamp>.<ext> unless --stdout is given.`,
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: runHistoryExport,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyRenameCmd, historyDeleteCmd, historyExportCmd)

	historyListCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
	historyExportCmd.Flags().StringVarP(&exportFormat, "format", "f", history.FormatMarkdown, "Format: "+strings.Join(history.Formats(), ", "))
	historyExportCmd.Flags().StringVarP(&exportDir, "dir", "d", ".", "Output directory")
	historyExportCmd.Flags().BoolVar(&exportStdout, "stdout", false, "Write to stdout instead of a file")
}

// historyContext opens the configuration and the store for a history
// subcommand.
func historyContext() (*config.Config, *history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// chatSummary is one row of "history list".
type chatSummary struct {
	Name    string `json:"name"`
	Turns   int    `json:"turns"`
	Preview string `json:"preview"`
}

func summarize(name, buffer string, delims transcript.DelimiterSet) chatSummary {
	codec := transcript.NewCodec(delims)
	codec.Exists = func(string) bool { return true }
	parsed := codec.Parse(buffer)

	s := chatSummary{Name: name, Turns: len(parsed.Turns)}
	for _, t := range parsed.Turns {
		if t.Role == transcript.RoleUser {
			s.Preview = util.FirstLine(t.Content)
			break
		}
	}
	return s
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	cfg, store, err := historyContext()
	if err != nil {
		return err
	}
	names, err := store.ListNames()
	if err != nil {
		return NewCommandError("history", "list", store.Root(), err)
	}

	rows := make([]chatSummary, 0, len(names))
	for _, name := range names {
		text, err := store.LoadNamed(name)
		if err != nil {
			return NewCommandError("history", "list", name, err)
		}
		rows = append(rows, summarize(name, text, cfg.DelimiterSet()))
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, DimStyle.Render("No saved chats in "+store.Root()))
		return nil
	}

	nameWidth := 0
	for _, r := range rows {
		nameWidth = max(nameWidth, util.StringWidth(r.Name))
	}
	nameWidth = min(nameWidth, 32)
	previewWidth := max(GetTerminalWidth()-nameWidth-12, 10)

	for _, r := range rows {
		name := util.PadRight(util.TruncateWidth(r.Name, nameWidth), nameWidth)
		turns := fmt.Sprintf("%4d", r.Turns)
		fmt.Fprintf(out, "%s  %s  %s\n", ValueStyle.Render(name), DimStyle.Render(turns), util.TruncateWidth(r.Preview, previewWidth))
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	_, store, err := historyContext()
	if err != nil {
		return err
	}
	text, err := store.LoadNamed(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func runHistoryRename(cmd *cobra.Command, args []string) error {
	_, store, err := historyContext()
	if err != nil {
		return err
	}
	if !store.Exists(args[0]) {
		return fmt.Errorf("rename %q: %w", args[0], history.ErrNotFound)
	}
	names, err := store.ListNames()
	if err != nil {
		return err
	}

	final, err := store.Rename(args[0], args[1], names)
	if err != nil {
		return NewCommandError("history", "rename", args[0], err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), final)
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	_, store, err := historyContext()
	if err != nil {
		return err
	}
	if !store.Exists(args[0]) {
		return fmt.Errorf("delete %q: %w", args[0], history.ErrNotFound)
	}
	if err := store.DeleteNamed(args[0]); err != nil {
		return NewCommandError("history", "delete", args[0], err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Deleted "+args[0]))
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	cfg, store, err := historyContext()
	if err != nil {
		return err
	}
	exporter, err := history.ExporterFor(exportFormat, cfg.DelimiterSet())
	if err != nil {
		return &UsageError{Message: err.Error()}
	}

	text, err := store.LoadNamed(args[0])
	if err != nil {
		return err
	}
	conv := history.NewConversation(args[0], text, cfg.DelimiterSet())

	if exportStdout {
		data, err := exporter.Export(conv)
		if err != nil {
			return NewCommandError("history", "export", args[0], err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	path, err := history.ExportToFile(conv, exporter, exportDir)
	if err != nil {
		return NewCommandError("history", "export", args[0], err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
