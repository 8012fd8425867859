// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of streaming responses.
type StreamReader struct {
	reader *bufio.Reader
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	tokenCount  int
	model       string
	done        bool
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Next returns the next chunk. It returns io.EOF once the final chunk has
// been delivered or the body ends.
func (s *StreamReader) Next() (StreamChunk, error) {
	for {
		if s.done {
			return StreamChunk{}, io.EOF
		}
		chunk, err := s.readChunk()
		if err != nil {
			return StreamChunk{}, err
		}
		if chunk == nil {
			continue
		}
		if chunk.Done {
			s.done = true
		}
		return *chunk, nil
	}
}

// Process reads the stream and calls the callback for each chunk.
// Blocks until the stream is complete or the context is cancelled.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		callback(chunk)
	}
}

// readChunk reads and parses a single line from the stream. A nil chunk
// with a nil error means the line carried nothing and should be skipped.
func (s *StreamReader) readChunk() (*StreamChunk, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}

	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}

	var response ChatResponse
	if err := json.Unmarshal(line, &response); err != nil {
		// Skip malformed lines
		return nil, nil
	}

	if response.Error != "" {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: response.Error}
	}

	if response.Model != "" {
		s.model = response.Model
	}

	content := response.Message.Content
	if content != "" {
		s.accumulator.WriteString(content)
		s.tokenCount++
	}

	chunk := &StreamChunk{
		Content:    content,
		Done:       response.Done,
		DoneReason: response.DoneReason,
		Model:      s.model,
	}

	if response.Done {
		chunk.TotalDuration = time.Duration(response.TotalDuration)
		chunk.LoadDuration = time.Duration(response.LoadDuration)
		chunk.PromptEvalDuration = time.Duration(response.PromptEvalDuration)
		chunk.EvalDuration = time.Duration(response.EvalDuration)
		chunk.PromptTokens = response.PromptEvalCount
		chunk.CompletionTokens = response.EvalCount
	}

	return chunk, nil
}

// GetAccumulated returns all accumulated content.
func (s *StreamReader) GetAccumulated() string {
	return s.accumulator.String()
}

// GetTokenCount returns the number of content chunks received.
func (s *StreamReader) GetTokenCount() int {
	return s.tokenCount
}

// =============================================================================
// CHAT STREAM
// =============================================================================

// ChatStream is an open /api/chat response.
type ChatStream struct {
	body   io.ReadCloser
	reader *StreamReader
	stats  *StreamStats

	closeOnce sync.Once
	closeErr  error
}

func newChatStream(body io.ReadCloser) *ChatStream {
	return &ChatStream{
		body:   body,
		reader: NewStreamReader(body),
		stats:  NewStreamStats(),
	}
}

// Next returns the next chunk, or io.EOF when the model has finished.
func (cs *ChatStream) Next() (StreamChunk, error) {
	chunk, err := cs.reader.Next()
	if err != nil {
		if !errors.Is(err, io.EOF) && !IsCancelled(err) {
			var clientErr *ClientError
			if !errors.As(err, &clientErr) {
				err = &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err}
			}
		}
		return StreamChunk{}, err
	}

	if chunk.Content != "" {
		cs.stats.RecordFirstToken()
	}
	if chunk.Done {
		cs.stats.Finalize(chunk)
	}
	return chunk, nil
}

// Stats returns what has been measured so far. Durations reported by the
// server are only set after the final chunk.
func (cs *ChatStream) Stats() StreamStats {
	return *cs.stats
}

// Close releases the response body. It is safe to call more than once.
func (cs *ChatStream) Close() error {
	cs.closeOnce.Do(func() {
		cs.closeErr = cs.body.Close()
	})
	return cs.closeErr
}

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// StreamStats holds statistics collected during streaming.
type StreamStats struct {
	// Timing
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	// Durations (from Ollama response)
	TotalDuration      time.Duration
	LoadDuration       time.Duration
	PromptEvalDuration time.Duration
	EvalDuration       time.Duration

	// Token counts
	PromptTokens     int
	CompletionTokens int

	// Computed
	TTFT            time.Duration // Time to first token
	TokensPerSecond float64
}

// NewStreamStats creates a new StreamStats with start time set.
func NewStreamStats() *StreamStats {
	return &StreamStats{
		StartTime: time.Now(),
	}
}

// RecordFirstToken marks the time of first token arrival.
func (s *StreamStats) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize computes final statistics from the last chunk.
func (s *StreamStats) Finalize(chunk StreamChunk) {
	s.EndTime = time.Now()
	s.TotalDuration = chunk.TotalDuration
	s.LoadDuration = chunk.LoadDuration
	s.PromptEvalDuration = chunk.PromptEvalDuration
	s.EvalDuration = chunk.EvalDuration
	s.PromptTokens = chunk.PromptTokens
	s.CompletionTokens = chunk.CompletionTokens

	if s.EvalDuration > 0 {
		s.TokensPerSecond = float64(s.CompletionTokens) / s.EvalDuration.Seconds()
	}
}

// Format returns a one-line summary, e.g. "1.2s | 42 tokens | 35.0 tok/s | TTFT 180ms".
func (s *StreamStats) Format() string {
	total := s.TotalDuration
	if total == 0 && !s.EndTime.IsZero() {
		total = s.EndTime.Sub(s.StartTime)
	}

	var elapsed string
	if total < time.Second {
		elapsed = fmt.Sprintf("%dms", total.Milliseconds())
	} else {
		elapsed = fmt.Sprintf("%.1fs", total.Seconds())
	}

	return fmt.Sprintf("%s | %d tokens | %.1f tok/s | TTFT %dms",
		elapsed, s.CompletionTokens, s.TokensPerSecond, s.TTFT.Milliseconds())
}
