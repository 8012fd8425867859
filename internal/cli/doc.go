// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the ochat command tree.
//
// Running ochat with no arguments opens the chat editor. The subcommands
// work on the same history and configuration without a full-screen UI, so
// they can be scripted.
//
// # Commands
//
//   - send [file]: stream an answer for a transcript file (or stdin)
//   - repl [chat]: line-by-line chat appended to a saved chat
//   - models: list the provider's models
//   - history list|show|rename|delete|export: manage saved chats
//   - config show|path|init|delims: inspect and edit the configuration
//   - stats: recent generations and per-model totals
//
// # Usage
//
//	func main() {
//	    cli.Execute()
//	}
package cli
