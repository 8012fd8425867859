// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "warn", Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "key=value") {
		t.Errorf("output = %q, want warn line with key=value", out)
	}
}

func TestNewUnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "chatty", Output: &buf})

	logger.Debug("debug")
	logger.Info("info")

	if strings.Contains(buf.String(), "debug") {
		t.Errorf("debug written with unknown level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "info") {
		t.Errorf("info missing: %q", buf.String())
	}
}

func TestWithAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(New(Options{Level: "debug", Output: &buf}))
	defer SetDefault(prev)

	With("worker").Info("started")

	if !strings.Contains(buf.String(), "component=worker") {
		t.Errorf("output = %q, want component=worker", buf.String())
	}
}

func TestSetupWritesFile(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	path := filepath.Join(t.TempDir(), "logs", "ochat.log")
	if err := Setup("info", path); err != nil {
		t.Fatalf("Setup error: %v", err)
	}
	With("test").Info("to file")
	if err := Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file = %q", data)
	}
}
