// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider adapts chat model backends to one streaming interface.
//
// A Provider turns an ordered list of Messages into a Stream of text
// fragments. Adapters exist for a local Ollama server and for the Anthropic,
// OpenAI and Gemini APIs. Image paths on a Message are read and encoded by
// the adapter at send time.
package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jeranaias/ochat/internal/transcript"
)

// =============================================================================
// TYPES
// =============================================================================

// Message is one provider-agnostic chat message.
type Message struct {
	Role    transcript.Role
	Content string
	Images  []string // absolute paths, read at send time
}

// Usage reports token counts, when the backend provides them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Stream yields the text of one model turn.
type Stream interface {
	// Recv returns the next fragment, or io.EOF when the turn is complete.
	Recv() (string, error)
	// Close releases the connection. Safe to call more than once.
	Close() error
}

// UsageReporter is implemented by streams that learn token counts.
type UsageReporter interface {
	Usage() Usage
}

// Provider opens streams against one backend.
type Provider interface {
	// Name identifies the backend ("ollama", "anthropic", ...).
	Name() string
	// StreamChat starts a completion. Cancelling ctx aborts it.
	StreamChat(ctx context.Context, model string, messages []Message) (Stream, error)
	// ListModels returns model names, sorted.
	ListModels(ctx context.Context) ([]string, error)
}

// =============================================================================
// FACTORY
// =============================================================================

// Provider names accepted by New.
const (
	NameOllama    = "ollama"
	NameAnthropic = "anthropic"
	NameOpenAI    = "openai"
	NameGemini    = "gemini"
)

// Names lists every supported backend.
var Names = []string{NameOllama, NameAnthropic, NameOpenAI, NameGemini}

// DefaultMaxTokens caps a completion when the backend requires a limit.
const DefaultMaxTokens = 4096

// Options selects and configures a backend.
type Options struct {
	Name         string
	OllamaURL    string
	KeepAlive    string
	AnthropicKey string
	OpenAIKey    string
	GeminiKey    string
	MaxTokens    int
}

// ConfigError reports options New cannot build a provider from.
type ConfigError struct {
	Provider string
	Message  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// New builds the provider named in opts.
func New(ctx context.Context, opts Options) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(opts.Name))
	if name == "" {
		name = NameOllama
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	switch name {
	case NameOllama:
		return NewOllama(opts.OllamaURL, opts.KeepAlive), nil
	case NameAnthropic:
		if opts.AnthropicKey == "" {
			return nil, &ConfigError{Provider: name, Message: "API key not set (ANTHROPIC_API_KEY)"}
		}
		return NewAnthropic(opts.AnthropicKey, opts.MaxTokens), nil
	case NameOpenAI:
		if opts.OpenAIKey == "" {
			return nil, &ConfigError{Provider: name, Message: "API key not set (OPENAI_API_KEY)"}
		}
		return NewOpenAI(opts.OpenAIKey, opts.MaxTokens), nil
	case NameGemini:
		if opts.GeminiKey == "" {
			return nil, &ConfigError{Provider: name, Message: "API key not set (GEMINI_API_KEY)"}
		}
		return NewGemini(ctx, opts.GeminiKey, opts.MaxTokens)
	default:
		return nil, &ConfigError{Provider: name, Message: "unknown provider (want one of " + strings.Join(Names, ", ") + ")"}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// splitSystem separates system messages, joined by blank lines, from the
// rest. Backends that take the system prompt as a parameter use this.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == transcript.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

func sortedNames(names []string) []string {
	sort.Strings(names)
	return names
}
