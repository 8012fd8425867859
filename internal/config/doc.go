// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads, validates and watches the ochat configuration.
//
// The configuration is a single TOML file, ~/.ochat/config.toml. OCHAT_HOME
// moves the whole ~/.ochat directory.
//
// # Configuration Precedence
//
//   - Environment variables (OCHAT_*, and the providers' own *_API_KEY)
//   - ~/.ochat/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	delims := cfg.DelimiterSet()
//	prompt := cfg.PromptState()
//
// A Watcher reloads the file when it changes and reports the old and new
// values, so the caller can reconcile open buffers.
package config
