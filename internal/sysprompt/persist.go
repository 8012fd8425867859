// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sysprompt

import "github.com/jeranaias/ochat/internal/transcript"

// WithHiddenPrompt returns the text to write to disk. A hidden prompt is
// stored as a leading system section so the file records what the model saw.
func WithHiddenPrompt(buffer string, state State, delims transcript.DelimiterSet) string {
	content, ok := state.HiddenContent()
	if !ok || buffer == "" {
		return buffer
	}

	codec := transcript.NewCodec(delims)
	sections := codec.Sections(buffer)
	if len(sections) == 0 || sections[0].Role == transcript.RoleSystem {
		return buffer
	}
	return codec.Section(transcript.RoleSystem, content) + "\n\n" + buffer
}

// StripHiddenPrompt undoes WithHiddenPrompt when a file is loaded for display.
// A leading system section is only removed if it still equals the hidden
// prompt; anything else was written by the user and stays.
func StripHiddenPrompt(buffer string, state State, delims transcript.DelimiterSet) string {
	content, ok := state.HiddenContent()
	if !ok {
		return buffer
	}

	lead, found := transcript.NewCodec(delims).LeadingSystem(buffer)
	if !found || !sameContent(lead.Content, content) {
		return buffer
	}
	return buffer[lead.End:]
}

// Opening returns the initial buffer of a new chat.
func Opening(state State, delims transcript.DelimiterSet) string {
	codec := transcript.NewCodec(delims)
	if state.Mode() == ModeVisible && !state.Blank() {
		return codec.Section(transcript.RoleSystem, state.Content) + "\n\n" + codec.Section(transcript.RoleUser, "")
	}
	return codec.Section(transcript.RoleUser, "")
}
