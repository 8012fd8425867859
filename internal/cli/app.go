// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/ochat/internal/config"
	"github.com/jeranaias/ochat/internal/generation"
	"github.com/jeranaias/ochat/internal/history"
	"github.com/jeranaias/ochat/internal/logging"
	"github.com/jeranaias/ochat/internal/provider"
	"github.com/jeranaias/ochat/internal/session"
	"github.com/jeranaias/ochat/internal/stats"
)

// startTimeout bounds provider setup, including an Ollama auto-start.
const startTimeout = 30 * time.Second

// ErrNoModels is returned when the provider offers nothing to talk to.
var ErrNoModels = errors.New("no models available (pull one with: ollama pull llama3.2)")

// =============================================================================
// APP
// =============================================================================

// app bundles what the commands that talk to a model share.
type app struct {
	cfg      *config.Config
	provider provider.Provider
	worker   *generation.Worker
	stats    *stats.Store
	logger   *log.Logger
}

// openApp builds the provider and the generation worker. With stats enabled
// every finished generation is logged to the stats database; a database that
// cannot be opened only costs the log.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	p, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, p), nil
}

func newApp(cfg *config.Config, p provider.Provider) *app {
	a := &app{
		cfg:      cfg,
		provider: p,
		logger:   logging.With("cli"),
	}

	var opts []generation.WorkerOption
	if cfg.Storage.Stats {
		if st, err := openStats(); err != nil {
			a.logger.Warn("generation log disabled", "err", err)
		} else {
			a.stats = st
			opts = append(opts, generation.WithCompletionHook(st.Hook()))
		}
	}
	a.worker = generation.NewWorker(p, opts...)
	return a
}

// newProvider builds the configured provider, starting a local Ollama
// server first when auto-start is on.
func newProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	ctx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	p, err := provider.New(ctx, cfg.ProviderOptions())
	if err != nil {
		return nil, err
	}

	if o, ok := p.(*provider.Ollama); ok && cfg.Provider.AutoStart {
		if err := o.Client().EnsureRunning(ctx); err != nil {
			logging.With("cli").Warn("ollama auto-start failed", "url", o.Client().BaseURL(), "err", err)
		}
	}
	return p, nil
}

func openStats() (*stats.Store, error) {
	path, err := config.StatsPath()
	if err != nil {
		return nil, err
	}
	return stats.Open(path)
}

// Close stops the worker and closes the stats database.
func (a *app) Close() {
	a.worker.Close()
	if a.stats != nil {
		if err := a.stats.Close(); err != nil {
			a.logger.Warn("close stats", "err", err)
		}
	}
}

// models lists the provider's models.
func (a *app) models(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	return a.provider.ListModels(ctx)
}

// resolveModel picks the model for this run. An explicit --model is used
// as given when the provider cannot list its models.
func (a *app) resolveModel(ctx context.Context, requested string) (string, []string, error) {
	available, err := a.models(ctx)
	if err != nil {
		if requested != "" {
			a.logger.Warn("cannot list models, using --model as given", "model", requested, "err", err)
			return requested, nil, nil
		}
		return "", nil, fmt.Errorf("list models: %w", err)
	}

	model := a.cfg.ResolveModel(available, requested)
	if model == "" {
		return "", available, ErrNoModels
	}
	if requested != "" && model != requested {
		a.logger.Warn("requested model not available", "model", requested, "using", model)
	}
	return model, available, nil
}

// rememberModel records model as the previous model in the config file.
func (a *app) rememberModel(model string) {
	if model == "" || a.cfg.Model.Previous == model {
		return
	}
	a.cfg.Model.Previous = model
	err := config.Update(func(cfg *config.Config) error {
		cfg.Model.Previous = model
		return nil
	})
	if err != nil {
		a.logger.Warn("could not record model", "model", model, "err", err)
	}
}

// =============================================================================
// HISTORY
// =============================================================================

// openStore opens the history directory under a fresh session id.
func openStore(cfg *config.Config) (*history.Store, error) {
	dir, err := cfg.HistoryDir()
	if err != nil {
		return nil, err
	}
	return history.NewStore(dir, session.NewID())
}
