// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/ochat/internal/config"
	"github.com/jeranaias/ochat/internal/generation"
	"github.com/jeranaias/ochat/internal/history"
	"github.com/jeranaias/ochat/internal/ollama"
	"github.com/jeranaias/ochat/internal/provider"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates a configuration file or provider setting error
	ExitConfigError = 3
	// ExitNetworkError indicates the model server could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates a chat or file was not found
	ExitNotFoundError = 7
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // e.g. "history"
	Action  string // e.g. "rename"
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{
		Command: command,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// UsageError reports bad arguments. cobra's own argument errors are mapped
// to the same exit code.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode determines the exit code for an error returned by a command.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}

	var validateErrs config.ValidateErrors
	var providerErr *provider.ConfigError
	if errors.As(err, &validateErrs) || errors.As(err, &providerErr) {
		return ExitConfigError
	}

	if ollama.IsNotRunning(err) || ollama.IsTimeout(err) {
		return ExitNetworkError
	}

	var missing *generation.MissingImagesError
	if errors.Is(err, history.ErrNotFound) || errors.As(err, &missing) {
		return ExitNotFoundError
	}

	return ExitGeneralError
}
