// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/ochat/internal/logging"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Change is a successfully reloaded configuration.
type Change struct {
	Old *Config
	New *Config
}

// =============================================================================
// FSNOTIFY WATCHER
// =============================================================================

// Watcher reloads the config file when it changes on disk. Reloads that fail
// to parse or validate are logged and dropped; the last good config stays
// current.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *log.Logger
	changes  chan Change

	mu      sync.Mutex
	current *Config
	timer   *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher watches path, starting from current.
func NewWatcher(path string, current *Config, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Editors often replace the file instead of writing it, which drops a
	// watch on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     filepath.Clean(path),
		watcher:  fw,
		debounce: debounce,
		logger:   logging.With("config"),
		changes:  make(chan Change, 1),
		current:  current,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.processEvents()
	return w, nil
}

// Changes delivers reloaded configurations.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Current returns the last good configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Close stops watching. Pending reloads are dropped.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) processEvents() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "err", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	if w.ctx.Err() != nil {
		return
	}

	next, err := LoadFromPath(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	old := w.current
	if reflect.DeepEqual(old, next) {
		w.mu.Unlock()
		return
	}
	w.current = next
	w.mu.Unlock()

	w.logger.Info("config reloaded", "path", w.path)
	select {
	case w.changes <- Change{Old: old, New: next}:
	case <-w.ctx.Done():
	}
}
