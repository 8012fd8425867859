// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"fmt"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

// Sentinel errors. Use errors.Is to check for them.
var (
	ErrNotFound    = &HistoryError{Message: "chat not found"}
	ErrInvalidName = &HistoryError{Message: "invalid chat name"}
)

// HistoryError reports a failed store operation.
type HistoryError struct {
	Op      string
	Name    string
	Message string
	Err     error
}

func (e *HistoryError) Error() string {
	var b strings.Builder
	b.WriteString("history")
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.Name != "" {
		b.WriteString(fmt.Sprintf(" %q", e.Name))
	}
	b.WriteString(": " + e.Message)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *HistoryError) Unwrap() error {
	return e.Err
}

// Is matches errors carrying the same message, so a HistoryError with
// context still compares equal to its sentinel.
func (e *HistoryError) Is(target error) bool {
	t, ok := target.(*HistoryError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

func notFound(op, name string) error {
	return &HistoryError{Op: op, Name: name, Message: ErrNotFound.Message}
}

func invalidName(op, name string) error {
	return &HistoryError{Op: op, Name: name, Message: ErrInvalidName.Message}
}

// RewriteError reports a marker rewrite that failed part way. Files already
// rewritten were restored unless listed in Unrestored.
type RewriteError struct {
	Path       string
	Err        error
	Unrestored []string
}

func (e *RewriteError) Error() string {
	msg := fmt.Sprintf("rewrite markers in %s: %v", e.Path, e.Err)
	if len(e.Unrestored) > 0 {
		msg += fmt.Sprintf(" (could not restore %s)", strings.Join(e.Unrestored, ", "))
	}
	return msg
}

func (e *RewriteError) Unwrap() error {
	return e.Err
}
