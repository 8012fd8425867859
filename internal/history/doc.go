// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history persists chat transcripts as plain text files.
//
// Layout under the store root:
//
//	<root>/<name>.txt                  named chats
//	<root>/temp<session>/<name>.txt    unsaved edits of this process
//
// A file holds the raw transcript buffer exactly as the user sees it (plus a
// hidden system prompt, see package sysprompt). Images are referenced by
// absolute path, never embedded.
//
// Temp directories belong to one process. They are purged at startup and
// cleared at shutdown. Every write goes through util.AtomicWriteFile, and a
// delimiter change rewrites all files as one unit: either every file gets
// the new markers or none does.
//
// # Export
//
// Exporters render a parsed chat as Markdown, JSON, JSON Lines, YAML or the
// raw transcript text.
package history
