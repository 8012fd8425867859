// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jeranaias/ochat/internal/logging"
	"github.com/jeranaias/ochat/internal/provider"
	"github.com/jeranaias/ochat/internal/sysprompt"
	"github.com/jeranaias/ochat/internal/transcript"
)

// =============================================================================
// REQUEST
// =============================================================================

// Request is one press of the send key.
type Request struct {
	Model  string
	Buffer string
	Delims transcript.DelimiterSet
	Prompt sysprompt.State

	// Exists overrides the image existence check. Nil stats the filesystem.
	Exists func(path string) bool
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns at most one streaming session.
//
// Submit and Cancel are meant to be called from a single goroutine (see
// Worker). Sessions run on their own goroutines and report through the sink.
type Controller struct {
	provider   provider.Provider
	sink       func(Event)
	onComplete func(Record)
	logger     *log.Logger

	mu     sync.Mutex
	active *session
	wg     sync.WaitGroup
}

// NewController creates a controller that delivers events to sink. The sink
// must not block.
func NewController(p provider.Provider, sink func(Event)) *Controller {
	return &Controller{
		provider: p,
		sink:     sink,
		logger:   logging.With("generation"),
	}
}

// OnComplete registers a hook called once per session after its EventDone.
func (c *Controller) OnComplete(fn func(Record)) {
	c.onComplete = fn
}

// Streaming reports whether a session is active.
func (c *Controller) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Submit starts a generation for req, or cancels the active one.
func (c *Controller) Submit(req Request) (Outcome, error) {
	if c.Cancel() {
		return OutcomeCancelled, nil
	}

	codec := transcript.NewCodec(req.Delims)
	if req.Exists != nil {
		codec.Exists = req.Exists
	}
	parsed := codec.Parse(req.Buffer)
	for _, err := range parsed.Errors {
		c.logger.Warn("skipping turn", "err", err)
	}
	if parsed.Empty() {
		return OutcomeNoop, nil
	}
	if len(parsed.Missing) > 0 {
		return OutcomeNoop, &MissingImagesError{Paths: parsed.Missing}
	}

	if parsed.Regenerate {
		c.sink(EventRegenerate{})
	}

	messages := BuildMessages(parsed.Turns, req.Prompt)
	s := c.start(req.Model, len(messages), parsed.Regenerate)

	c.logger.Debug("submit", "id", s.id, "model", req.Model, "messages", len(messages), "regenerate", parsed.Regenerate)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(s, messages)
	}()
	return OutcomeStarted, nil
}

// Cancel stops the active session. It reports whether there was one. Once
// Cancel returns, the session's EventDone has been delivered and it emits
// nothing more.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	s := c.active
	c.active = nil
	c.mu.Unlock()

	if s == nil {
		return false
	}
	if !s.stop() {
		// Finished on its own between the check and the stop.
		return false
	}
	c.logger.Debug("cancelled", "id", s.id)
	return true
}

// Wait blocks until every session goroutine has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) start(model string, messages int, regenerate bool) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:         uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
		sink:       c.sink,
		regenerate: regenerate,
	}
	s.stats.Model = model
	s.stats.Messages = messages

	c.mu.Lock()
	c.active = s
	c.mu.Unlock()
	return s
}

// finish runs on the session goroutine after its last event.
func (c *Controller) finish(s *session) {
	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()

	s.cancel()

	rec := s.record(c.provider.Name())
	c.logger.Info("generation finished",
		"id", rec.ID, "state", rec.State, "model", rec.Stats.Model,
		"chunks", rec.Stats.Chunks, "elapsed", rec.Stats.Elapsed)
	if c.onComplete != nil {
		c.onComplete(rec)
	}
}

// =============================================================================
// MESSAGE BUILDING
// =============================================================================

// BuildMessages converts turns into provider messages, in order. A hidden
// system prompt is prepended unless the turns already open with a system
// turn.
func BuildMessages(turns []transcript.Turn, prompt sysprompt.State) []provider.Message {
	out := make([]provider.Message, 0, len(turns)+1)

	if content, ok := prompt.HiddenContent(); ok {
		if len(turns) == 0 || turns[0].Role != transcript.RoleSystem {
			out = append(out, provider.Message{Role: transcript.RoleSystem, Content: content})
		}
	}

	for _, t := range turns {
		out = append(out, provider.Message{Role: t.Role, Content: t.Content, Images: t.Images})
	}
	return out
}
