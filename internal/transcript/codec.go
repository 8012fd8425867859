// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// =============================================================================
// TYPES
// =============================================================================

// Turn is one parsed unit of the conversation. Turns are values and are
// never modified after a parse returns them.
type Turn struct {
	Role    Role
	Content string
	Images  []string
}

// Parsed is the result of turning a split buffer into turns.
type Parsed struct {
	// Turns in buffer order, excluding the dangling tail.
	Turns []Turn

	// Missing lists referenced image paths that do not exist, in order of
	// first appearance.
	Missing []string

	// Errors holds per-turn problems such as an unrecognised marker. The
	// offending turn is dropped; the rest of the parse is unaffected.
	Errors []error

	// Regenerate is set when the buffer ends in an emptied assistant turn.
	Regenerate bool

	// Elements is the length of the split the turns were built from.
	Elements int
}

// MissingMessages renders one "image not found" line per missing path.
func (p Parsed) MissingMessages() []string {
	out := make([]string, 0, len(p.Missing))
	for _, path := range p.Missing {
		out = append(out, "image not found: "+path)
	}
	return out
}

// Empty reports whether there is nothing to send.
func (p Parsed) Empty() bool {
	return p.Elements < 2 || len(p.Turns) == 0
}

// TurnError reports a turn whose marker matched no role.
type TurnError struct {
	Index  int
	Marker string
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn %d: unrecognised marker %q", e.Index, e.Marker)
}

// Section locates one marker and the text that follows it up to the next
// marker. Start and End are byte offsets into the buffer; ContentStart is
// where the text after the marker begins.
type Section struct {
	Role         Role
	Marker       string
	Content      string
	Start        int
	ContentStart int
	End          int
}

// =============================================================================
// CODEC
// =============================================================================

// Codec parses and serialises buffers for one DelimiterSet. It is safe for
// concurrent use.
type Codec struct {
	delims  DelimiterSet
	pattern *regexp.Regexp

	// Exists reports whether an image path is present. Defaults to a stat of
	// the local filesystem.
	Exists func(path string) bool
}

// NewCodec compiles the marker pattern for d. The set is assumed valid; use
// NewDelimiterSet to validate user input first.
func NewCodec(d DelimiterSet) *Codec {
	markers := make([]string, 0, len(Roles))
	for _, role := range Roles {
		markers = append(markers, regexp.QuoteMeta(d.Marker(role)))
	}
	// Longest first so no marker can shadow a longer one it prefixes.
	sort.SliceStable(markers, func(i, j int) bool { return len(markers[i]) > len(markers[j]) })

	return &Codec{
		delims:  d,
		pattern: regexp.MustCompile(`(?i)(` + strings.Join(markers, "|") + `)`),
		Exists:  fileExists,
	}
}

// Delimiters returns the set the codec was built for.
func (c *Codec) Delimiters() DelimiterSet {
	return c.delims
}

// Sections returns every marker in the buffer with the text it governs. Text
// before the first marker belongs to no section.
func (c *Codec) Sections(buffer string) []Section {
	locs := c.pattern.FindAllStringIndex(buffer, -1)
	if len(locs) == 0 {
		return nil
	}

	sections := make([]Section, 0, len(locs))
	for i, loc := range locs {
		end := len(buffer)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		marker := buffer[loc[0]:loc[1]]
		sections = append(sections, Section{
			Role:         c.delims.RoleOf(marker),
			Marker:       marker,
			Content:      buffer[loc[1]:end],
			Start:        loc[0],
			ContentStart: loc[1],
			End:          end,
		})
	}
	return sections
}

// Split breaks the buffer into alternating marker and content elements,
// discarding anything before the first marker. A buffer without markers
// yields an empty slice.
func (c *Codec) Split(buffer string) []string {
	sections := c.Sections(buffer)
	out := make([]string, 0, 2*len(sections))
	for _, s := range sections {
		out = append(out, s.Marker, s.Content)
	}
	return out
}

// ToTurns walks a split two elements at a time and builds turns.
//
// Trailing pairs whose content is blank form the dangling tail: they are not
// turns. If that tail holds an assistant marker and at least one real turn
// precedes it, the user emptied the last answer and Regenerate is set.
func (c *Codec) ToTurns(split []string) Parsed {
	parsed := Parsed{Elements: len(split)}

	type pair struct {
		index   int
		marker  string
		content string
	}
	var pairs []pair
	for i := 0; i+1 < len(split); i += 2 {
		pairs = append(pairs, pair{index: i / 2, marker: split[i], content: split[i+1]})
	}

	tail := len(pairs)
	for tail > 0 && strings.TrimSpace(pairs[tail-1].content) == "" {
		tail--
	}

	seenMissing := make(map[string]bool)
	for _, p := range pairs[:tail] {
		role := c.delims.RoleOf(p.marker)
		if role == RoleUnknown {
			parsed.Errors = append(parsed.Errors, &TurnError{Index: p.index, Marker: p.marker})
			continue
		}

		content, images, missing := c.scanImages(strings.TrimSpace(p.content))
		for _, path := range missing {
			if !seenMissing[path] {
				seenMissing[path] = true
				parsed.Missing = append(parsed.Missing, path)
			}
		}
		parsed.Turns = append(parsed.Turns, Turn{Role: role, Content: content, Images: images})
	}

	if len(parsed.Turns) > 0 {
		for _, p := range pairs[tail:] {
			if c.delims.RoleOf(p.marker) == RoleAssistant {
				parsed.Regenerate = true
				break
			}
		}
	}

	return parsed
}

// Parse is ToTurns(Split(buffer)).
func (c *Codec) Parse(buffer string) Parsed {
	return c.ToTurns(c.Split(buffer))
}

// =============================================================================
// SERIALISATION
// =============================================================================

// Section renders a single "marker content" block.
func (c *Codec) Section(role Role, content string) string {
	return c.delims.Marker(role) + " " + content
}

// Join serialises turns back into a buffer, separating sections with a blank
// line.
func (c *Codec) Join(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(c.Section(t.Role, t.Content))
	}
	return b.String()
}

// AppendMarker opens a new section for role at the end of the buffer.
func (c *Codec) AppendMarker(buffer string, role Role) string {
	if buffer == "" {
		return c.delims.Marker(role) + " "
	}
	return buffer + "\n\n" + c.delims.Marker(role) + " "
}

// =============================================================================
// BUFFER QUERIES
// =============================================================================

// HasStarted reports whether the assistant marker appears in the buffer,
// i.e. the conversation has produced at least one answer.
func (c *Codec) HasStarted(buffer string) bool {
	for _, s := range c.Sections(buffer) {
		if s.Role == RoleAssistant {
			return true
		}
	}
	return false
}

// LeadingSystem returns the system section the buffer opens with, if any.
// Only whitespace may precede it.
func (c *Codec) LeadingSystem(buffer string) (Section, bool) {
	sections := c.Sections(buffer)
	if len(sections) == 0 || sections[0].Role != RoleSystem {
		return Section{}, false
	}
	if strings.TrimSpace(buffer[:sections[0].Start]) != "" {
		return Section{}, false
	}
	return sections[0], true
}

// ExciseRegenerate removes the emptied assistant turn, everything after it
// and the blank line before it. It returns the buffer unchanged and false
// when the buffer does not end in a regenerate request.
func (c *Codec) ExciseRegenerate(buffer string) (string, bool) {
	sections := c.Sections(buffer)

	tail := len(sections)
	for tail > 0 && strings.TrimSpace(sections[tail-1].Content) == "" {
		tail--
	}
	if tail == 0 {
		return buffer, false
	}

	for _, s := range sections[tail:] {
		if s.Role == RoleAssistant {
			return strings.TrimRight(buffer[:s.Start], " \t\r\n"), true
		}
	}
	return buffer, false
}

// =============================================================================
// MARKER REWRITES
// =============================================================================

// ReplaceMarkers applies every change at once, ignoring case on the old
// markers, so swapping two markers is safe.
func ReplaceMarkers(text string, changes []MarkerChange) string {
	if len(changes) == 0 || text == "" {
		return text
	}

	fold := cases.Fold()
	lookup := make(map[string]string, len(changes))
	olds := make([]string, 0, len(changes))
	for _, ch := range changes {
		key := fold.String(ch.Old)
		if _, dup := lookup[key]; dup {
			continue
		}
		lookup[key] = ch.New
		olds = append(olds, regexp.QuoteMeta(ch.Old))
	}
	sort.SliceStable(olds, func(i, j int) bool { return len(olds[i]) > len(olds[j]) })

	re := regexp.MustCompile(`(?i)(` + strings.Join(olds, "|") + `)`)
	return re.ReplaceAllStringFunc(text, func(m string) string {
		if repl, ok := lookup[cases.Fold().String(m)]; ok {
			return repl
		}
		return m
	})
}
