// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const (
	// DefaultName replaces a chat name that cannot be used as a file name.
	DefaultName = "default name"

	// NewChatBase is the name given to fresh chats.
	NewChatBase = "new chat"
)

// ValidName reports whether name can be used as a file name as is.
func ValidName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return ErrInvalidName
	case name == "." || name == "..":
		return ErrInvalidName
	case strings.ContainsAny(name, `:\/`):
		return ErrInvalidName
	}
	return nil
}

// SanitizeName returns name trimmed, or DefaultName if it is not usable.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if ValidName(name) != nil {
		return DefaultName
	}
	return name
}

// Dedupe returns name, or "name (i)" with the smallest i >= 1 that is not in
// taken.
func Dedupe(name string, taken []string) string {
	used := make(map[string]bool, len(taken))
	for _, t := range taken {
		used[t] = true
	}
	if !used[name] {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)", name, i)
		if !used[candidate] {
			return candidate
		}
	}
}

// NewChatName returns the first of "new chat", "new chat 1", "new chat 2"...
// not in taken.
func NewChatName(taken []string) string {
	used := make(map[string]bool, len(taken))
	for _, t := range taken {
		used[t] = true
	}
	if !used[NewChatBase] {
		return NewChatBase
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s %d", NewChatBase, i)
		if !used[candidate] {
			return candidate
		}
	}
}

// Rename gives chat old the name requested, sanitized and deduplicated
// against names, and moves its named and temp files. It returns the name
// actually used.
func (s *Store) Rename(old, requested string, names []string) (string, error) {
	if err := ValidName(old); err != nil {
		return "", invalidName("rename", old)
	}

	name := SanitizeName(requested)
	if name == old {
		return old, nil
	}

	others := make([]string, 0, len(names))
	for _, n := range names {
		if n != old {
			others = append(others, n)
		}
	}
	name = Dedupe(name, others)
	if name == old {
		return old, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := moveIfExists(s.namedPath(old), s.namedPath(name)); err != nil {
		return "", &HistoryError{Op: "rename", Name: old, Message: "move chat file", Err: err}
	}
	if err := moveIfExists(s.tempPath(old), s.tempPath(name)); err != nil {
		return "", &HistoryError{Op: "rename", Name: old, Message: "move temp file", Err: err}
	}

	s.logger.Debug("renamed chat", "from", old, "to", name)
	return name, nil
}

func moveIfExists(from, to string) error {
	err := os.Rename(from, to)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
