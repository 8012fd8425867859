// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/jeranaias/ochat/internal/provider"
)

// session is one generation. Its context is the cancellation token; mu
// serialises emission against stop so nothing slips out after a cancel.
type session struct {
	id         string
	ctx        context.Context
	cancel     context.CancelFunc
	sink       func(Event)
	regenerate bool

	mu    sync.Mutex
	ended bool
	state State
	err   error
	stats Stats
}

// emit delivers ev unless the session has ended.
func (s *session) emit(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	if chunk, ok := ev.(EventChunk); ok {
		if s.stats.Chunks == 0 {
			s.stats.TTFT = time.Since(s.stats.Started)
		}
		s.stats.Chunks++
		s.stats.Chars += len(chunk.Text)
	}
	s.sink(ev)
	return true
}

// end emits trailing, then the final event, with no gap a stop could fall
// into. The first caller wins.
func (s *session) end(state State, err error, trailing ...Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	for _, ev := range trailing {
		s.sink(ev)
	}
	s.ended = true
	s.state = state
	s.err = err
	s.stats.Elapsed = time.Since(s.stats.Started)
	s.sink(EventDone{ID: s.id, State: state, Stats: s.stats})
	return true
}

// stop cancels the token and ends the session as cancelled. It reports false
// if the session had already ended.
func (s *session) stop() bool {
	ok := s.end(StateCancelled, nil)
	s.cancel()
	return ok
}

func (s *session) setUsage(u provider.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Usage = u
}

func (s *session) record(providerName string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := Record{
		ID:         s.id,
		Provider:   providerName,
		State:      s.state,
		Regenerate: s.regenerate,
		Stats:      s.stats,
	}
	if s.err != nil {
		rec.Err = s.err.Error()
	}
	return rec
}

// run streams one answer. It never blocks on the sink.
func (c *Controller) run(s *session, messages []provider.Message) {
	defer c.finish(s)

	s.mu.Lock()
	s.stats.Started = time.Now()
	s.mu.Unlock()

	stream, err := c.provider.StreamChat(s.ctx, s.stats.Model, messages)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		c.logger.Warn("open stream failed", "id", s.id, "err", err)
		// The error goes under an assistant marker so it never joins the
		// user's turn.
		s.end(StateFailed, err, EventAssistantBegin{}, EventChunk{Text: errorChunk(err)})
		return
	}
	defer stream.Close()

	if !s.emit(EventAssistantBegin{}) {
		return
	}

	for {
		text, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			c.logger.Warn("stream interrupted", "id", s.id, "err", err)
			s.end(StateCompleted, err, EventChunk{Text: errorChunk(err)})
			return
		}
		if !s.emit(EventChunk{Text: text}) {
			return
		}
	}

	if u, ok := stream.(provider.UsageReporter); ok {
		s.setUsage(u.Usage())
	}
	s.end(StateCompleted, nil, EventUserBegin{})
}
