// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sysprompt keeps the system prompt region of a transcript buffer
// consistent with the configured prompt.
//
// The configured prompt is in one of three modes: off, visible (written into
// the buffer as a leading system section) or hidden (kept out of the buffer
// and injected at send time). Every configuration change is classified as a
// Transition between two modes and each transition has one rewrite rule.
// Buffers that already contain an answer are never rewritten in a way that
// would change what the model saw, except for visibility changes.
package sysprompt

import "strings"

// =============================================================================
// STATE
// =============================================================================

// State is the configured system prompt.
type State struct {
	Enabled bool
	Hidden  bool
	Content string
}

// Mode collapses the two flags into the three states that matter.
type Mode int

const (
	ModeOff Mode = iota
	ModeVisible
	ModeHidden
)

func (m Mode) String() string {
	switch m {
	case ModeVisible:
		return "visible"
	case ModeHidden:
		return "hidden"
	default:
		return "off"
	}
}

// Mode returns the state's mode.
func (s State) Mode() Mode {
	switch {
	case !s.Enabled:
		return ModeOff
	case s.Hidden:
		return ModeHidden
	default:
		return ModeVisible
	}
}

// Blank reports whether the prompt has no content worth sending.
func (s State) Blank() bool {
	return strings.TrimSpace(s.Content) == ""
}

// HiddenContent returns the prompt to inject at send time, if any.
func (s State) HiddenContent() (string, bool) {
	if s.Mode() != ModeHidden || s.Blank() {
		return "", false
	}
	return s.Content, true
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Transition names a change between two states.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionEnable
	TransitionEnableHidden
	TransitionDisable
	TransitionDisableHidden
	TransitionShow
	TransitionHide
	TransitionEdit
	TransitionEditHidden
)

var transitionNames = map[Transition]string{
	TransitionNone:          "none",
	TransitionEnable:        "enable",
	TransitionEnableHidden:  "enable-hidden",
	TransitionDisable:       "disable",
	TransitionDisableHidden: "disable-hidden",
	TransitionShow:          "show",
	TransitionHide:          "hide",
	TransitionEdit:          "edit",
	TransitionEditHidden:    "edit-hidden",
}

func (t Transition) String() string {
	if name, ok := transitionNames[t]; ok {
		return name
	}
	return "unknown"
}

// Classify returns the transition from old to new.
func Classify(old, new State) Transition {
	from, to := old.Mode(), new.Mode()

	if from == to {
		if sameContent(old.Content, new.Content) {
			return TransitionNone
		}
		switch to {
		case ModeVisible:
			return TransitionEdit
		case ModeHidden:
			return TransitionEditHidden
		default:
			return TransitionNone
		}
	}

	switch {
	case from == ModeOff && to == ModeVisible:
		return TransitionEnable
	case from == ModeOff && to == ModeHidden:
		return TransitionEnableHidden
	case from == ModeVisible && to == ModeOff:
		return TransitionDisable
	case from == ModeHidden && to == ModeOff:
		return TransitionDisableHidden
	case from == ModeHidden && to == ModeVisible:
		return TransitionShow
	case from == ModeVisible && to == ModeHidden:
		return TransitionHide
	}
	return TransitionNone
}

// VisibilityChanged reports whether the transition moves the prompt into or
// out of the visible buffer. Temp snapshots are cleared on these.
func (t Transition) VisibilityChanged() bool {
	return t == TransitionShow || t == TransitionHide
}

func sameContent(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
