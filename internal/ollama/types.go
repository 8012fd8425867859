// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"fmt"
	"time"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message represents a chat message in the conversation.
type Message struct {
	Role    string   `json:"role"`             // "user", "assistant", "system"
	Content string   `json:"content"`          // The message content
	Images  []string `json:"images,omitempty"` // Base64-encoded image data
}

// ChatRequest is the request body for /api/chat endpoint.
type ChatRequest struct {
	Model     string    `json:"model"`                // Model name (e.g., "llama3.2")
	Messages  []Message `json:"messages"`             // Conversation history
	Stream    bool      `json:"stream"`               // Enable streaming
	Options   *Options  `json:"options,omitempty"`    // Model parameters
	KeepAlive string    `json:"keep_alive,omitempty"` // How long to keep the model loaded
}

// Options contains model parameters for inference.
type Options struct {
	Temperature float64  `json:"temperature,omitempty"`
	NumCtx      int      `json:"num_ctx,omitempty"`     // Context window size
	NumPredict  int      `json:"num_predict,omitempty"` // Max tokens to generate, -1 for unlimited
	Stop        []string `json:"stop,omitempty"`
	Seed        int      `json:"seed,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResponse is one line of the /api/chat stream.
type ChatResponse struct {
	Model              string    `json:"model"`
	CreatedAt          time.Time `json:"created_at"`
	Message            Message   `json:"message"`
	Done               bool      `json:"done"`
	DoneReason         string    `json:"done_reason,omitempty"`
	TotalDuration      int64     `json:"total_duration,omitempty"`       // nanoseconds
	LoadDuration       int64     `json:"load_duration,omitempty"`        // nanoseconds
	PromptEvalCount    int       `json:"prompt_eval_count,omitempty"`    // number of tokens in prompt
	PromptEvalDuration int64     `json:"prompt_eval_duration,omitempty"` // nanoseconds
	EvalCount          int       `json:"eval_count,omitempty"`           // number of tokens generated
	EvalDuration       int64     `json:"eval_duration,omitempty"`        // nanoseconds
	Error              string    `json:"error,omitempty"`                // set when the model fails mid-stream
}

// TokensPerSecond calculates the generation speed from a response.
func (r *ChatResponse) TokensPerSecond() float64 {
	if r.EvalDuration == 0 {
		return 0
	}
	seconds := float64(r.EvalDuration) / 1e9
	return float64(r.EvalCount) / seconds
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelInfo contains information about a model.
type ModelInfo struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details,omitempty"`
}

// ModelDetails contains detailed information about a model.
type ModelDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// ListModelsResponse is the response from /api/tags endpoint.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// FormatSize formats the model size in human-readable form.
func (m *ModelInfo) FormatSize() string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case m.Size >= GB:
		return fmt.Sprintf("%.1f GB", float64(m.Size)/GB)
	case m.Size >= MB:
		return fmt.Sprintf("%.1f MB", float64(m.Size)/MB)
	case m.Size >= KB:
		return fmt.Sprintf("%.1f KB", float64(m.Size)/KB)
	default:
		return fmt.Sprintf("%d B", m.Size)
	}
}

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk represents a single chunk from streaming response.
type StreamChunk struct {
	// Content from this chunk
	Content string

	// Timing information (only populated on final chunk)
	Done               bool
	DoneReason         string
	TotalDuration      time.Duration
	LoadDuration       time.Duration
	PromptEvalDuration time.Duration
	EvalDuration       time.Duration

	// Token counts (only populated on final chunk)
	PromptTokens     int
	CompletionTokens int

	Model string
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// OllamaError represents an error from the Ollama API.
type OllamaError struct {
	Error string `json:"error"`
}

// =============================================================================
// HELPER METHODS
// =============================================================================

// NewUserMessage creates a new user message.
func NewUserMessage(content string, images ...string) Message {
	return Message{Role: "user", Content: content, Images: images}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}
