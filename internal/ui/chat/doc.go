// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the transcript editor for the ochat TUI.

The whole conversation is one editable buffer. Role markers ("user:",
"assistant:", "system:") at the start of a line separate the turns; there
are no message bubbles to click through.

# Key Components

## Model (model.go)

The Model struct is the Bubble Tea model. It owns the editor, the preview
pane and the prompt line used for naming and deleting chats. Chat state
lives in a session.Manager; the Model only mirrors the open buffer into the
editor.

## Streaming (stream.go)

Answers come from a generation.Worker. A command blocks on the worker's
event channel and returns every event already queued as one message, so a
fast model redraws once per batch instead of once per token. Each event is
applied to the buffer with generation.Apply.

## Configuration (reload.go)

Changes to the config file arrive from a config.Watcher. New delimiters
rewrite every stored chat, and a new system prompt is reconciled with the
open buffer. Changes that land mid-answer wait until the answer ends.

## Preview (preview.go)

The preview renders each section through glamour. Renders during streaming
are rate limited.

# Key Bindings

	Ctrl+S     send, or stop the running answer
	Ctrl+N     new chat
	Ctrl+O/P   next / previous chat
	Ctrl+W     save as
	Ctrl+X     delete chat
	Ctrl+L     next model
	Tab        toggle preview
	Ctrl+G     help
	Ctrl+C     quit
*/
package chat
