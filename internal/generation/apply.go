// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import "github.com/jeranaias/ochat/internal/transcript"

// Apply renders ev into buffer the way the editor shows it: a regenerate
// request cuts the emptied answer, the two control events open a new
// section and chunks are appended as they arrive. EventDone leaves the
// buffer alone.
func Apply(codec *transcript.Codec, buffer string, ev Event) string {
	switch ev := ev.(type) {
	case EventRegenerate:
		out, _ := codec.ExciseRegenerate(buffer)
		return out
	case EventAssistantBegin:
		return codec.AppendMarker(buffer, transcript.RoleAssistant)
	case EventChunk:
		return buffer + ev.Text
	case EventUserBegin:
		return codec.AppendMarker(buffer, transcript.RoleUser)
	}
	return buffer
}
