// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows

package ollama

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
)

// Ollama can take a while on first launch under Windows.
const (
	startTimeout = 15 * time.Second
	pollTimeout  = 1 * time.Second
)

// findOllamaExecutable searches for ollama.exe in PATH and the usual install
// locations on Windows.
func findOllamaExecutable() (string, error) {
	for _, name := range []string{"ollama.exe", "ollama"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	var possiblePaths []string
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		possiblePaths = append(possiblePaths, filepath.Join(localAppData, "Programs", "Ollama", "ollama.exe"))
	}
	possiblePaths = append(possiblePaths,
		`C:\Program Files\Ollama\ollama.exe`,
		`C:\Program Files (x86)\Ollama\ollama.exe`,
	)
	if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
		possiblePaths = append(possiblePaths,
			filepath.Join(userProfile, "Ollama", "ollama.exe"),
			filepath.Join(userProfile, ".ollama", "ollama.exe"),
		)
	}

	for _, p := range possiblePaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("ollama.exe not found in PATH or common installation directories " +
		`(checked PATH, %%LOCALAPPDATA%%\Programs\Ollama, C:\Program Files\Ollama)`)
}

// detach starts the server without a console window, detached from ours.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.CREATE_NO_WINDOW | windows.DETACHED_PROCESS,
	}
}
