// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.txt")
	data := []byte("user: hi")

	if err := AtomicWriteFile(path, data, 0o644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("content = %q, want %q", content, data)
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp1234", "chat.txt")

	if err := AtomicWriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.txt")

	if err := os.WriteFile(path, []byte("user: a much longer original body"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWriteFile(path, []byte("user: short"), 0o644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "user: short" {
		t.Errorf("content = %q, want %q", content, "user: short")
	}
}

func TestAtomicWriteFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		if err := AtomicWriteFile(filepath.Join(dir, "chat.txt"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries, want 1", len(entries))
	}
}

func TestAtomicWriteFile_MissingDirFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	// A regular file where a directory is needed.
	if err := AtomicWriteFile(filepath.Join(blocker, "chat.txt"), []byte("x"), 0o644); err == nil {
		t.Error("expected error writing below a regular file")
	}
}

func TestAtomicWriteFileWithDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "private", "log.txt")

	if err := AtomicWriteFileWithDir(path, []byte("x"), 0o600, 0o700); err != nil {
		t.Fatalf("AtomicWriteFileWithDir failed: %v", err)
	}

	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Error("parent is not a directory")
	}
}

// =============================================================================
// WIDTH TESTS
// =============================================================================

func TestStringWidth(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"hello", 5},
		{"日本", 4},
		{"a日b", 4},
	}
	for _, tt := range tests {
		if got := StringWidth(tt.in); got != tt.want {
			t.Errorf("StringWidth(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"日本語テキスト", 7, "日本..."},
	}
	for _, tt := range tests {
		if got := TruncateWidth(tt.in, tt.width); got != tt.want {
			t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestPadRight(t *testing.T) {
	if got := PadRight("ab", 4); got != "ab  " {
		t.Errorf("PadRight = %q, want %q", got, "ab  ")
	}
	if got := PadRight("日", 3); got != "日 " {
		t.Errorf("PadRight = %q, want %q", got, "日 ")
	}
	if got := StringWidth(PadRight("a long chat name", 6)); got != 6 {
		t.Errorf("padded width = %d, want 6", got)
	}
}

func TestFirstLine(t *testing.T) {
	if got := FirstLine("\n\n  user: hi \nmore"); got != "user: hi" {
		t.Errorf("FirstLine = %q, want %q", got, "user: hi")
	}
	if got := FirstLine(" \n "); got != "" {
		t.Errorf("FirstLine of blank = %q, want empty", got)
	}
}
