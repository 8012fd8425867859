// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the structured logger shared by every package.
//
// The TUI owns stdout, so once Setup has run, log lines go to a file. Until
// then the default logger writes warnings and errors to stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures a logger.
type Options struct {
	Level  string    // debug, info, warn, error (default: info)
	Output io.Writer // default: os.Stderr
	Prefix string
	JSON   bool
}

var (
	mu      sync.RWMutex
	current = log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel})
	file    *os.File
)

// New creates a logger from opts. An unknown level falls back to info.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level, err := log.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = log.InfoLevel
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           level,
		Prefix:          opts.Prefix,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	if opts.JSON {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger
}

// Setup points the default logger at path (created with its parent
// directory) at the given level. An empty path discards all output.
// The previous log file, if any, is closed.
func Setup(level, path string) error {
	var out io.Writer = io.Discard
	var f *os.File

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	logger := New(Options{Level: level, Output: out})

	mu.Lock()
	old := file
	current, file = logger, f
	mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// Close flushes and closes the log file opened by Setup.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	current = log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel})
	return err
}

// Default returns the process-wide logger.
func Default() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetDefault replaces the process-wide logger. Used by tests.
func SetDefault(logger *log.Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = logger
}

// With returns a sub-logger tagged with the component name.
func With(component string) *log.Logger {
	return Default().With("component", component)
}
