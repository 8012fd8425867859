// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the provider's models",
	Long: `List the models the configured provider offers. The model ochat would
select at startup is marked with "*": the --model flag if available, then
model.fixed, then the previously used model, then the first by name.

Examples:
  ochat models
  ochat models --provider anthropic
  ochat models --json`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
}

type modelsOutput struct {
	Provider string   `json:"provider"`
	Selected string   `json:"selected"`
	Models   []string `json:"models"`
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := newProvider(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	a := &app{cfg: cfg, provider: p}

	available, err := a.models(cmd.Context())
	if err != nil {
		return NewCommandError("models", "list", p.Name(), err)
	}
	selected := cfg.ResolveModel(available, flagModel)

	out := cmd.OutOrStdout()
	if modelsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(modelsOutput{Provider: p.Name(), Selected: selected, Models: available})
	}

	if len(available) == 0 {
		fmt.Fprintln(out, DimStyle.Render("No models available."))
		return nil
	}
	fmt.Fprintln(out, TitleStyle.Render("Models ("+p.Name()+")"))
	for _, name := range available {
		if name == selected {
			fmt.Fprintln(out, SuccessStyle.Render("* "+name))
			continue
		}
		fmt.Fprintln(out, "  "+name)
	}
	return nil
}
