// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/ochat/internal/config"
	"github.com/jeranaias/ochat/internal/logging"
	"github.com/jeranaias/ochat/internal/session"
	"github.com/jeranaias/ochat/internal/ui/chat"
)

// runTUI opens the full-screen transcript editor.
func runTUI(cmd *cobra.Command, args []string) error {
	if !IsTTY() || !IsStdoutTTY() {
		return &UsageError{Message: "the editor needs a terminal; use 'ochat send' for pipes"}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	log := logging.With("cli")

	// Only the editor purges: a send or repl run could otherwise delete a
	// running editor's snapshots.
	if err := store.PurgeTemp(); err != nil {
		log.Warn("purge temp snapshots", "err", err)
	}

	mgr, err := session.NewManager(store, session.Config{
		Delims:           cfg.DelimiterSet(),
		Prompt:           cfg.PromptState(),
		AutosaveInterval: time.Duration(cfg.Storage.AutosaveSecs) * time.Second,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn("clear session snapshots", "err", err)
		}
	}()

	a, err := openApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// The editor still opens without a model; sending says why it cannot.
	model, available, err := a.resolveModel(cmd.Context(), flagModel)
	if err != nil {
		log.Warn("no model selected", "err", err)
	}

	watcher := startWatcher(cfg)
	if watcher != nil {
		defer watcher.Close()
	}

	m := chat.New(chat.Options{
		Config:   cfg,
		Manager:  mgr,
		Worker:   a.worker,
		Watcher:  watcher,
		Model:    model,
		Models:   available,
		Remember: a.rememberModel,
	})

	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	return err
}

// startWatcher watches the config file for live changes. Nil when the
// directory cannot be watched.
func startWatcher(cfg *config.Config) *config.Watcher {
	log := logging.With("cli")
	dir, err := config.ConfigDir()
	if err == nil {
		err = os.MkdirAll(dir, 0o755)
	}
	var path string
	if err == nil {
		path, err = config.ConfigPath()
	}
	if err != nil {
		log.Warn("config reload disabled", "err", err)
		return nil
	}

	w, err := config.NewWatcher(path, cfg, config.DefaultDebounce)
	if err != nil {
		log.Warn("config reload disabled", "path", path, "err", err)
		return nil
	}
	return w
}
