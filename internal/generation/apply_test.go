// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"testing"

	"github.com/jeranaias/ochat/internal/transcript"
)

func TestApply(t *testing.T) {
	codec := transcript.NewCodec(transcript.DefaultDelimiters())

	tests := []struct {
		name   string
		buffer string
		events []Event
		want   string
	}{
		{
			name:   "answer",
			buffer: "user: hi",
			events: []Event{EventAssistantBegin{}, EventChunk{Text: "hel"}, EventChunk{Text: "lo"}, EventUserBegin{}, EventDone{State: StateCompleted}},
			want:   "user: hi\n\nassistant: hello\n\nuser: ",
		},
		{
			name:   "regenerate",
			buffer: "user: hi\n\nassistant: ",
			events: []Event{EventRegenerate{}, EventAssistantBegin{}, EventChunk{Text: "again"}},
			want:   "user: hi\n\nassistant: again",
		},
		{
			name:   "open failure",
			buffer: "user: hi",
			events: []Event{EventAssistantBegin{}, EventChunk{Text: "\n\nerror: refused"}, EventDone{State: StateFailed}},
			want:   "user: hi\n\nassistant: \n\nerror: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.buffer
			for _, ev := range tt.events {
				got = Apply(codec, got, ev)
			}
			if got != tt.want {
				t.Errorf("Apply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApply_OpenFailureKeepsUserTurn(t *testing.T) {
	codec := transcript.NewCodec(transcript.DefaultDelimiters())

	buffer := "user: hi"
	for _, ev := range []Event{
		EventAssistantBegin{},
		EventChunk{Text: "\n\nerror: Ollama is not running"},
		EventDone{State: StateFailed},
	} {
		buffer = Apply(codec, buffer, ev)
	}

	parsed := codec.Parse(buffer)
	if len(parsed.Turns) != 2 {
		t.Fatalf("Parse() turns = %d, want 2 (buffer %q)", len(parsed.Turns), buffer)
	}
	if got := parsed.Turns[0]; got.Role != transcript.RoleUser || got.Content != "hi" {
		t.Errorf("first turn = %v %q, want user %q", got.Role, got.Content, "hi")
	}
	if got := parsed.Turns[1].Role; got != transcript.RoleAssistant {
		t.Errorf("second turn role = %v, want assistant", got)
	}
}
