// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generation turns a transcript buffer into a streamed model answer.
//
// A Controller owns at most one in-flight session. Submitting while a session
// streams cancels it instead of starting another, so one key both starts and
// stops a generation. Each session carries its own context; cancelling it
// stops event emission at once, and the only event that follows is the
// session's EventDone with StateCancelled.
//
// A Worker owns a Controller on a dedicated goroutine. Submit and cancel
// requests are queued and handled in arrival order, and every event reaches
// the caller through a single channel in the order it was produced.
//
// # Events
//
// Every generation is bracketed by two control events that never appear as
// text from the model:
//
//   - EventAssistantBegin: sent once before the first chunk
//   - EventUserBegin: sent once after a clean end of stream
//
// A regenerate request is announced with EventRegenerate before anything
// else so the caller can cut the emptied answer out of its buffer.
//
// # Usage
//
//	w := generation.NewWorker(p)
//	defer w.Close()
//	outcome, err := w.Submit(generation.Request{Model: "llama3.2", Buffer: buf, Delims: d})
//	for ev := range w.Events() {
//	    switch ev := ev.(type) {
//	    case generation.EventChunk:
//	        buf += ev.Text
//	    }
//	}
package generation
