// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session manages the list of chats and the one that is open.
//
// The Manager owns the open chat's buffer. Switching away from a chat
// snapshots it into this process's temp directory; switching back prefers
// that snapshot over the saved file, so unsaved edits survive navigation but
// not a restart.
//
// # Key Types
//
//   - Manager: chat list, open buffer, autosave
//   - Status: a snapshot for the status bar
//   - TickMsg, AutosaveMsg: Bubble Tea messages driving autosave
//
// # Usage
//
//	store, _ := history.NewStore(dir, session.NewID())
//	mgr, err := session.NewManager(store, session.Config{
//	    Delims: cfg.DelimiterSet(),
//	    Prompt: cfg.PromptState(),
//	})
//	mgr.SetBuffer(edited)
//	name, err := mgr.Save("notes")
package session
