// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcript implements the flat-text chat format used by ochat.
//
// A conversation is one editable text buffer. Role markers (by default
// "user:", "assistant:" and "system:") delimit the turns:
//
//	system: You are terse.
//
//	user: What is a goroutine?
//
//	assistant: A lightweight thread managed by the Go runtime.
//
//	user:
//
// The package never holds on to a buffer. Every operation takes the buffer
// text and returns either parsed turns or a proposed rewrite, so the UI stays
// the single owner of the text.
//
// # Key Types
//
//   - DelimiterSet: validated, case-insensitive role tokens
//   - Codec: split, parse, join and regenerate detection for a DelimiterSet
//   - Turn: one parsed (role, content, images) unit
//   - Parsed: the result of a parse, including missing images and the
//     regenerate signal
//
// # Usage
//
//	codec := transcript.NewCodec(transcript.DefaultDelimiters())
//	parsed := codec.Parse(buffer)
//	if len(parsed.Missing) > 0 {
//	    // refuse to send
//	}
//	buffer = codec.AppendMarker(buffer, transcript.RoleAssistant)
package transcript
