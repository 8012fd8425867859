// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestCodec(existing ...string) *Codec {
	c := NewCodec(DefaultDelimiters())
	set := make(map[string]bool, len(existing))
	for _, p := range existing {
		set[p] = true
	}
	c.Exists = func(p string) bool { return set[p] }
	return c
}

// =============================================================================
// DELIMITER TESTS
// =============================================================================

func TestNewDelimiterSet_Normalises(t *testing.T) {
	d, err := NewDelimiterSet("User:", "  Bot ", "SYS")
	if err != nil {
		t.Fatalf("NewDelimiterSet() error = %v", err)
	}
	want := DelimiterSet{User: "user", Assistant: "bot", System: "sys"}
	if d != want {
		t.Errorf("NewDelimiterSet() = %+v, want %+v", d, want)
	}
	if got := d.Marker(RoleAssistant); got != "bot:" {
		t.Errorf("Marker(assistant) = %q, want %q", got, "bot:")
	}
}

func TestNewDelimiterSet_Rejects(t *testing.T) {
	tests := []struct {
		name                    string
		user, assistant, system string
	}{
		{"empty user", "", "assistant", "system"},
		{"blank system", "user", "assistant", "   "},
		{"inner colon", "us:er", "assistant", "system"},
		{"duplicate", "me", "ME", "system"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDelimiterSet(tt.user, tt.assistant, tt.system)
			if err == nil {
				t.Fatal("NewDelimiterSet() error = nil, want error")
			}
			var de *DelimiterError
			if !errors.As(err, &de) {
				t.Errorf("error %v is not a *DelimiterError", err)
			}
		})
	}
}

func TestRoleOf_IgnoresCase(t *testing.T) {
	d := DefaultDelimiters()
	if got := d.RoleOf("ASSISTANT:"); got != RoleAssistant {
		t.Errorf("RoleOf(ASSISTANT:) = %v, want assistant", got)
	}
	if got := d.RoleOf("narrator:"); got != RoleUnknown {
		t.Errorf("RoleOf(narrator:) = %v, want unknown", got)
	}
}

func TestChanges(t *testing.T) {
	old := DefaultDelimiters()
	updated := DelimiterSet{User: "me", Assistant: "assistant", System: "sys"}

	got := Changes(old, updated)
	want := []MarkerChange{{Old: "user:", New: "me:"}, {Old: "system:", New: "sys:"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Changes() = %v, want %v", got, want)
	}
}

// =============================================================================
// SPLIT TESTS
// =============================================================================

func TestSplit(t *testing.T) {
	c := newTestCodec()

	tests := []struct {
		name   string
		buffer string
		want   []string
	}{
		{"empty", "", []string{}},
		{"no markers", "just some text", []string{}},
		{
			"drops preamble",
			"notes\nuser: hi",
			[]string{"user:", " hi"},
		},
		{
			"keeps markers",
			"user: hi\n\nassistant: hello",
			[]string{"user:", " hi\n\n", "assistant:", " hello"},
		},
		{
			"case insensitive",
			"USER: hi\n\nAssistant: yo",
			[]string{"USER:", " hi\n\n", "Assistant:", " yo"},
		},
		{
			"trailing marker",
			"user: hi\n\nassistant:",
			[]string{"user:", " hi\n\n", "assistant:", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Split(tt.buffer)
			if len(got) != len(tt.want) {
				t.Fatalf("Split() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Split()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// =============================================================================
// PARSE TESTS
// =============================================================================

func TestParse_TrailingUserIsNotRegenerate(t *testing.T) {
	c := newTestCodec()

	parsed := c.Parse("user: hi\n\nassistant: hello\n\nuser: ")

	want := []Turn{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}
	if !reflect.DeepEqual(parsed.Turns, want) {
		t.Errorf("Turns = %+v, want %+v", parsed.Turns, want)
	}
	if parsed.Regenerate {
		t.Error("Regenerate = true, want false")
	}
}

func TestParse_EmptiedAnswerRegenerates(t *testing.T) {
	c := newTestCodec()

	parsed := c.Parse("user: hi\n\nassistant: \n\nuser: ")

	if !parsed.Regenerate {
		t.Fatal("Regenerate = false, want true")
	}
	want := []Turn{{Role: RoleUser, Content: "hi"}}
	if !reflect.DeepEqual(parsed.Turns, want) {
		t.Errorf("Turns = %+v, want %+v", parsed.Turns, want)
	}
}

func TestParse_RegenerateCases(t *testing.T) {
	c := newTestCodec()

	tests := []struct {
		name   string
		buffer string
		want   bool
	}{
		{"dangling assistant marker", "user: hi\n\nassistant:", true},
		{"multi turn", "user: a\n\nassistant: b\n\nuser: c\n\nassistant:  ", true},
		{"nothing before", "assistant:", false},
		{"answered", "user: hi\n\nassistant: hello", false},
		{"only user", "user: hi", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Parse(tt.buffer).Regenerate; got != tt.want {
				t.Errorf("Regenerate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParse_FewerThanTwoElementsIsEmpty(t *testing.T) {
	c := newTestCodec()
	for _, buffer := range []string{"", "hello there", "user:"} {
		if !c.Parse(buffer).Empty() {
			t.Errorf("Parse(%q).Empty() = false, want true", buffer)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	c := newTestCodec()

	buffers := []string{
		"user: hi",
		"user: hi\n\nassistant: hello",
		"system: be brief\n\nuser: what is go?\n\nassistant: a language",
		"user: line one\nline two\n\nassistant: ok",
	}

	for _, b := range buffers {
		if got := c.Join(c.Parse(b).Turns); got != b {
			t.Errorf("Join(Parse(%q)) = %q", b, got)
		}
	}
}

// =============================================================================
// IMAGE TESTS
// =============================================================================

func TestParse_Images(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "cat.png")
	if err := os.WriteFile(present, []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	absent := filepath.Join(dir, "dog.jpg")

	c := NewCodec(DefaultDelimiters())
	parsed := c.Parse("user: look " + present + " and " + absent + " now")

	if len(parsed.Turns) != 1 {
		t.Fatalf("len(Turns) = %d, want 1", len(parsed.Turns))
	}
	turn := parsed.Turns[0]
	if want := "look [image] and " + absent + " now"; turn.Content != want {
		t.Errorf("Content = %q, want %q", turn.Content, want)
	}
	if !reflect.DeepEqual(turn.Images, []string{present}) {
		t.Errorf("Images = %v, want [%s]", turn.Images, present)
	}
	if !reflect.DeepEqual(parsed.Missing, []string{absent}) {
		t.Errorf("Missing = %v, want [%s]", parsed.Missing, absent)
	}
	if msgs := parsed.MissingMessages(); msgs[0] != "image not found: "+absent {
		t.Errorf("MissingMessages()[0] = %q", msgs[0])
	}
}

func TestFindImagePaths(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{`C:\pics\cat.PNG and /tmp/dog.jpeg`, []string{`C:\pics\cat.PNG`, "/tmp/dog.jpeg"}},
		{"see https://example.com/a.png", nil},
		{"relative/b.webp is ignored", nil},
		{"(/home/me/shot.webp)", []string{"/home/me/shot.webp"}},
		{"the config lives in /etc and the logo is logo.png", nil},
		{"restore /tmp/a.png.bak please", nil},
		{"compare /a/x.png /a/y.jpg.", []string{"/a/x.png", "/a/y.jpg"}},
		{`"/tmp/q.webp", then C:\My Pics\z.jpg!`, []string{"/tmp/q.webp", `C:\My Pics\z.jpg`}},
	}

	for _, tt := range tests {
		got := FindImagePaths(tt.text)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("FindImagePaths(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestParse_ProseIsNotAnImage(t *testing.T) {
	c := newTestCodec()

	for _, buffer := range []string{
		"user: the config lives in /etc and the logo is logo.png",
		"user: restore /tmp/a.png.bak please",
	} {
		parsed := c.Parse(buffer)
		if len(parsed.Missing) != 0 {
			t.Errorf("Parse(%q).Missing = %v, want none", buffer, parsed.Missing)
		}
		if len(parsed.Turns) != 1 || len(parsed.Turns[0].Images) != 0 {
			t.Errorf("Parse(%q).Turns = %+v, want one turn without images", buffer, parsed.Turns)
		}
	}
}

func TestParse_MissingImageDoesNotAbortParse(t *testing.T) {
	c := newTestCodec()
	parsed := c.Parse("user: /nope/a.png\n\nassistant: fine\n\nuser: next")

	if len(parsed.Turns) != 3 {
		t.Errorf("len(Turns) = %d, want 3", len(parsed.Turns))
	}
	if len(parsed.Missing) != 1 {
		t.Errorf("len(Missing) = %d, want 1", len(parsed.Missing))
	}
}

// =============================================================================
// BUFFER QUERY TESTS
// =============================================================================

func TestHasStarted(t *testing.T) {
	c := newTestCodec()
	if c.HasStarted("system: x\n\nuser: hi") {
		t.Error("HasStarted() = true before any answer")
	}
	if !c.HasStarted("user: hi\n\nAssistant: hello") {
		t.Error("HasStarted() = false after an answer")
	}
}

func TestExciseRegenerate(t *testing.T) {
	c := newTestCodec()

	got, ok := c.ExciseRegenerate("user: hi\n\nassistant: \n\nuser: ")
	if !ok {
		t.Fatal("ExciseRegenerate() ok = false, want true")
	}
	if got != "user: hi" {
		t.Errorf("ExciseRegenerate() = %q, want %q", got, "user: hi")
	}

	buffer := "user: hi\n\nassistant: hello\n\nuser: "
	got, ok = c.ExciseRegenerate(buffer)
	if ok || got != buffer {
		t.Errorf("ExciseRegenerate() = (%q, %v), want unchanged", got, ok)
	}
}

func TestAppendMarker(t *testing.T) {
	c := newTestCodec()
	if got := c.AppendMarker("user: hi", RoleAssistant); got != "user: hi\n\nassistant: " {
		t.Errorf("AppendMarker() = %q", got)
	}
	if got := c.AppendMarker("", RoleUser); got != "user: " {
		t.Errorf("AppendMarker(empty) = %q", got)
	}
}

func TestLeadingSystem(t *testing.T) {
	c := newTestCodec()

	s, ok := c.LeadingSystem("  system: be kind\n\nuser: hi")
	if !ok {
		t.Fatal("LeadingSystem() ok = false")
	}
	if s.Content != " be kind\n\n" {
		t.Errorf("Content = %q", s.Content)
	}

	if _, ok := c.LeadingSystem("user: hi\n\nsystem: late"); ok {
		t.Error("LeadingSystem() found a section that is not leading")
	}
}

func TestReplaceMarkers_Swap(t *testing.T) {
	changes := []MarkerChange{
		{Old: "user:", New: "assistant:"},
		{Old: "assistant:", New: "user:"},
	}
	got := ReplaceMarkers("User: a\n\nassistant: b", changes)
	if want := "assistant: a\n\nuser: b"; got != want {
		t.Errorf("ReplaceMarkers() = %q, want %q", got, want)
	}
}
