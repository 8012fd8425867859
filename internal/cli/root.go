// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ochat/internal/config"
	"github.com/jeranaias/ochat/internal/logging"
)

// Build information, set by main.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	flagModel    string
	flagProvider string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ochat",
	Short: "Chat with a model in a plain text buffer",
	Long: `ochat keeps a whole conversation in one editable text buffer. Role markers
such as "user:" and "assistant:" separate the turns; edit anything, then send
to have the model answer the last turn.

Examples:
  ochat                                  # open the chat editor
  ochat send notes.txt --write           # answer a transcript file in place
  echo "user: hi" | ochat send           # stream an answer to stdout
  ochat repl "project ideas"             # line-by-line chat
  ochat config delims me bot sys         # change the role markers`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
	RunE: runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "Model to use (default: resolved from config)")
	rootCmd.PersistentFlags().StringVarP(&flagProvider, "provider", "p", "", "Provider: ollama, anthropic, openai, gemini")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Message: err.Error()}
	})
}

// usageArgs wraps a cobra argument check so its failures exit with
// ExitUsageError.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &UsageError{Message: err.Error()}
		}
		return nil
	}
}

// Execute runs the command tree and exits with a code matching the error.
func Execute() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("ochat {{.Version}} (commit %s, built %s)\n", GitCommit, BuildDate))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
		os.Exit(GetExitCode(err))
	}
}

// loadConfig loads the configuration, applies the global flags and routes
// logging to the log file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagProvider != "" {
		cfg.Provider.Name = flagProvider
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logPath, err := cfg.LogPath()
	if err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.Logging.Level, logPath); err != nil {
		return nil, err
	}
	config.SetGlobal(cfg)
	return cfg, nil
}
