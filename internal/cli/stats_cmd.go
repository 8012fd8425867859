// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ochat/internal/session"
	"github.com/jeranaias/ochat/internal/stats"
	"github.com/jeranaias/ochat/internal/util"
)

var (
	statsLimit int
	statsPrune time.Duration
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show recent generations and per-model totals",
	Long: `Show the local generation log: the most recent generations and, per model,
how many ran, how many were cancelled or failed, time to first token and
output rate. The log lives in ~/.ochat/stats.db and never leaves the machine.

Examples:
  ochat stats
  ochat stats --limit 50
  ochat stats --prune 720h     # drop entries older than 30 days`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntVarP(&statsLimit, "limit", "n", 20, "Number of recent generations to show")
	statsCmd.Flags().DurationVar(&statsPrune, "prune", 0, "Delete entries older than this before showing")
}

func runStats(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	st, err := openStats()
	if err != nil {
		return NewCommandError("stats", "open", "generation log", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if statsPrune > 0 {
		n, err := st.Prune(ctx, time.Now().Add(-statsPrune))
		if err != nil {
			return NewCommandError("stats", "prune", "generation log", err)
		}
		fmt.Fprintln(out, DimStyle.Render(fmt.Sprintf("Pruned %d entries", n)))
	}

	summary, err := st.Summary(ctx)
	if err != nil {
		return NewCommandError("stats", "summary", "generation log", err)
	}
	recent, err := st.Recent(ctx, statsLimit)
	if err != nil {
		return NewCommandError("stats", "recent", "generation log", err)
	}

	if len(recent) == 0 {
		fmt.Fprintln(out, DimStyle.Render("No generations logged yet."))
		return nil
	}
	printSummary(out, summary)
	printRecent(out, recent)
	return nil
}

func printSummary(out io.Writer, summary []stats.ModelSummary) {
	fmt.Fprintln(out, TitleStyle.Render("Models"))
	for _, m := range summary {
		fmt.Fprintln(out, SectionStyle.Render(m.Model))
		fmt.Fprintln(out, RenderField("  Generations", fmt.Sprintf("%d (%d cancelled, %d failed)", m.Generations, m.Cancelled, m.Failed)))
		fmt.Fprintln(out, RenderField("  Tokens out", fmt.Sprintf("%d", m.CompletionTokens)))
		fmt.Fprintln(out, RenderField("  Avg first token", formatMillis(m.AvgTTFT)))
		fmt.Fprintln(out, RenderField("  Avg duration", session.FormatDuration(m.AvgElapsed)))
		if tps := m.TokensPerSecond(); tps > 0 {
			fmt.Fprintln(out, RenderField("  Tokens/sec", fmt.Sprintf("%.1f", tps)))
		}
	}
	fmt.Fprintln(out)
}

func printRecent(out io.Writer, recent []stats.Entry) {
	fmt.Fprintln(out, TitleStyle.Render("Recent"))
	fmt.Fprintln(out, RenderSeparator(GetTerminalWidth()-4))
	for _, e := range recent {
		model := util.PadRight(util.TruncateWidth(e.Model, 24), 24)
		state := util.PadRight(e.State, 10)
		line := fmt.Sprintf("%s  %s  %s  %6s  %5d tok",
			DimStyle.Render(e.Started.Local().Format("01-02 15:04")),
			model,
			RenderStatus(state),
			formatMillis(e.Elapsed),
			e.CompletionTokens)
		if e.Regenerate {
			line += DimStyle.Render("  regen")
		}
		fmt.Fprintln(out, line)
		if e.Err != "" {
			fmt.Fprintln(out, "  "+ErrorStyle.Render(util.TruncateWidth(e.Err, GetTerminalWidth()-4)))
		}
	}
}

func formatMillis(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
