// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sysprompt

import (
	"fmt"

	"github.com/jeranaias/ochat/internal/transcript"
)

// Result is the outcome of a reconciliation.
type Result struct {
	Buffer     string
	Changed    bool
	Transition Transition
}

// ReconcileError reports a configuration change that could not be applied.
// The buffer is left as it was.
type ReconcileError struct {
	Transition Transition
	Err        error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("system prompt %s: %v", e.Transition, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// Reconcile proposes the buffer that results from moving the system prompt
// from old to new. It never modifies anything itself.
func Reconcile(old, new State, buffer string, delims transcript.DelimiterSet) (Result, error) {
	transition := Classify(old, new)
	if err := delims.Validate(); err != nil {
		return Result{Buffer: buffer, Transition: transition}, &ReconcileError{Transition: transition, Err: err}
	}

	e := editor{codec: transcript.NewCodec(delims), buffer: buffer}
	started := e.codec.HasStarted(buffer)

	switch transition {
	case TransitionEnable:
		if !started {
			e.enable(old.Content, new.Content)
		}
	case TransitionDisable:
		if !started {
			e.stripMatching(old.Content)
		}
	case TransitionShow:
		content := new.Content
		if started && !sameContent(old.Content, new.Content) {
			// The conversation was produced under the old prompt.
			content = old.Content
		}
		e.prependIfAbsent(content)
	case TransitionHide:
		e.stripMatching(old.Content)
	case TransitionEdit:
		if !started {
			e.replaceMatching(old.Content, new.Content)
		}
	}

	return Result{
		Buffer:     e.buffer,
		Changed:    e.buffer != buffer,
		Transition: transition,
	}, nil
}

// =============================================================================
// BUFFER EDITS
// =============================================================================

type editor struct {
	codec  *transcript.Codec
	buffer string
}

func (e *editor) section(content string) string {
	return e.codec.Section(transcript.RoleSystem, content) + "\n\n"
}

// enable installs newContent as the leading system section. A section the
// user wrote themselves stays as it is; a chat gets one system turn.
func (e *editor) enable(oldContent, newContent string) {
	lead, ok := e.codec.LeadingSystem(e.buffer)
	if !ok {
		e.prepend(newContent)
		return
	}
	if sameContent(lead.Content, oldContent) && !sameContent(lead.Content, newContent) {
		e.replace(lead, newContent)
	}
}

func (e *editor) stripMatching(content string) {
	lead, ok := e.codec.LeadingSystem(e.buffer)
	if !ok || !sameContent(lead.Content, content) {
		return
	}
	e.buffer = e.buffer[lead.End:]
}

func (e *editor) replaceMatching(oldContent, newContent string) {
	lead, ok := e.codec.LeadingSystem(e.buffer)
	if !ok || !sameContent(lead.Content, oldContent) {
		return
	}
	e.replace(lead, newContent)
}

func (e *editor) prependIfAbsent(content string) {
	if _, ok := e.codec.LeadingSystem(e.buffer); ok {
		return
	}
	e.prepend(content)
}

func (e *editor) prepend(content string) {
	if (State{Content: content}).Blank() {
		return
	}
	e.buffer = e.section(content) + e.buffer
}

func (e *editor) replace(lead transcript.Section, content string) {
	e.buffer = e.buffer[:lead.Start] + e.section(content) + e.buffer[lead.End:]
}
