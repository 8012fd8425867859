// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"time"

	"github.com/jeranaias/ochat/internal/provider"
)

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle position of a generation session.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome reports what Submit did.
type Outcome int

const (
	// OutcomeNoop: the buffer holds nothing to send.
	OutcomeNoop Outcome = iota
	// OutcomeStarted: a new session is streaming.
	OutcomeStarted
	// OutcomeCancelled: the active session was cancelled instead.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "noop"
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// Event is one notification from a session. The concrete types below are the
// only implementations.
type Event interface {
	isEvent()
}

// EventRegenerate asks the caller to excise the emptied assistant turn.
type EventRegenerate struct{}

// EventAssistantBegin marks the start of the answer.
type EventAssistantBegin struct{}

// EventChunk carries model text, or an inline error message.
type EventChunk struct {
	Text string
}

// EventUserBegin marks a clean end of the answer; the next user turn starts.
type EventUserBegin struct{}

// EventDone is the last event of every session.
type EventDone struct {
	ID    string
	State State
	Stats Stats
}

func (EventRegenerate) isEvent()     {}
func (EventAssistantBegin) isEvent() {}
func (EventChunk) isEvent()          {}
func (EventUserBegin) isEvent()      {}
func (EventDone) isEvent()           {}

// =============================================================================
// STATISTICS
// =============================================================================

// Stats describes one session.
type Stats struct {
	Model    string
	Messages int
	Chunks   int
	Chars    int
	Usage    provider.Usage
	Started  time.Time
	TTFT     time.Duration // time to first chunk
	Elapsed  time.Duration
}

// Record is handed to the completion hook when a session ends.
type Record struct {
	ID         string
	Provider   string
	State      State
	Regenerate bool
	Err        string
	Stats      Stats
}
