// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ochat/internal/config"
	"github.com/jeranaias/ochat/internal/transcript"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the configuration",
	Long: `Inspect and edit ~/.ochat/config.toml (OCHAT_HOME moves the directory).

A running editor picks up changes to the file while it runs.

Examples:
  ochat config show
  ochat config init
  ochat config delims me bot sys`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (API keys redacted)",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	Args:  usageArgs(cobra.NoArgs),
	RunE:  runConfigInit,
}

var configDelimsCmd = &cobra.Command{
	Use:   "delims <user> <assistant> <system>",
	Short: "Change the role markers everywhere",
	Long: `Change the three role tokens. Tokens are lower-cased, must be non-empty,
must not contain ":" and must differ from each other.

Every saved chat is rewritten to the new markers. If any file cannot be
rewritten, the files already changed are restored and the old tokens stay
in force.`,
	Args: usageArgs(cobra.ExactArgs(3)),
	RunE: runConfigDelims,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configPathCmd, configInitCmd, configDelimsCmd)
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return &UsageError{Message: path + " already exists (use --force to overwrite)"}
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := config.SaveTOML(config.Default(), path); err != nil {
		return NewCommandError("config", "init", path, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Wrote "+path))
	return nil
}

func runConfigDelims(cmd *cobra.Command, args []string) error {
	next, err := transcript.NewDelimiterSet(args[0], args[1], args[2])
	if err != nil {
		return &UsageError{Message: err.Error()}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	changed, err := changeDelimiters(cfg.DelimiterSet(), next, store.RewriteMarkers)
	if err != nil {
		return NewCommandError("config", "delims", "chats left unchanged", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s / %s / %s (%d chats rewritten)\n",
		SuccessStyle.Render("Markers:"),
		next.Marker(transcript.RoleUser),
		next.Marker(transcript.RoleAssistant),
		next.Marker(transcript.RoleSystem),
		changed)
	return nil
}

// changeDelimiters rewrites the history to next and then records next in
// the config file. The config is only updated once every file is rewritten.
func changeDelimiters(old, next transcript.DelimiterSet, rewrite func([]transcript.MarkerChange) (int, error)) (int, error) {
	changes := transcript.Changes(old, next)
	if len(changes) == 0 {
		return 0, nil
	}

	n, err := rewrite(changes)
	if err != nil {
		return 0, err
	}

	err = config.Update(func(cfg *config.Config) error {
		cfg.SetDelimiters(next)
		return nil
	})
	if err != nil {
		// Put the files back so they match the tokens still configured.
		if _, rerr := rewrite(transcript.Changes(next, old)); rerr != nil {
			return n, errors.Join(err, rerr)
		}
		return 0, err
	}
	return n, nil
}
