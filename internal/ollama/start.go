// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/jeranaias/ochat/internal/logging"
)

// startOllamaProcess launches "ollama serve" detached from this process and
// polls until the server answers or the platform's start timeout expires.
func (c *Client) startOllamaProcess(ctx context.Context) error {
	ollamaPath, err := findOllamaExecutable()
	if err != nil {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: "failed to find Ollama executable",
			Cause:   err,
		}
	}

	cmd := exec.Command(ollamaPath, "serve")
	// GPU-related variables such as OLLAMA_VULKAN must reach the server.
	cmd.Env = os.Environ()
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: fmt.Sprintf("failed to start Ollama (path: %s)", ollamaPath),
			Cause:   err,
		}
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	return c.waitReady(ctx, ollamaPath)
}

func (c *Client) waitReady(ctx context.Context, ollamaPath string) error {
	logger := logging.With("ollama")
	logger.Info("starting Ollama service", "path", ollamaPath)

	start := time.Now()
	deadline := start.Add(startTimeout)
	var lastErr error

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return &ClientError{
				Type:    ErrTypeConnection,
				Message: "Ollama startup cancelled",
				Cause:   err,
			}
		}

		checkCtx, cancel := context.WithTimeout(ctx, pollTimeout)
		lastErr = c.CheckRunning(checkCtx)
		cancel()

		if lastErr == nil {
			logger.Info("Ollama service started", "elapsed", time.Since(start).Round(100*time.Millisecond))
			return nil
		}

		logger.Debug("waiting for Ollama", "elapsed", time.Since(start).Round(100*time.Millisecond))
		time.Sleep(500 * time.Millisecond)
	}

	return &ClientError{
		Type:    ErrTypeConnection,
		Message: fmt.Sprintf("Ollama started but not responding after %s (path: %s)", startTimeout, ollamaPath),
		Cause:   lastErr,
	}
}
