// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"
	"io"

	"github.com/jeranaias/ochat/internal/ollama"
)

// Ollama talks to a local Ollama server.
type Ollama struct {
	client *ollama.Client
}

// NewOllama creates an Ollama provider. An empty baseURL uses the default.
func NewOllama(baseURL, keepAlive string) *Ollama {
	cfg := ollama.DefaultConfig()
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.KeepAlive = keepAlive
	return &Ollama{client: ollama.NewClientWithConfig(cfg)}
}

// Client exposes the underlying client for health checks and auto-start.
func (p *Ollama) Client() *ollama.Client {
	return p.client
}

func (p *Ollama) Name() string { return NameOllama }

func (p *Ollama) ListModels(ctx context.Context) ([]string, error) {
	models, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.Name)
	}
	return sortedNames(names), nil
}

func (p *Ollama) StreamChat(ctx context.Context, model string, messages []Message) (Stream, error) {
	msgs, err := ollamaMessages(messages)
	if err != nil {
		return nil, err
	}

	stream, err := p.client.OpenChat(ctx, model, msgs)
	if err != nil {
		return nil, err
	}
	return &ollamaStream{stream: stream}, nil
}

func ollamaMessages(messages []Message) ([]ollama.Message, error) {
	out := make([]ollama.Message, 0, len(messages))
	for _, m := range messages {
		images, err := LoadImages(m.Images)
		if err != nil {
			return nil, err
		}
		msg := ollama.Message{Role: m.Role.String(), Content: m.Content}
		for _, img := range images {
			msg.Images = append(msg.Images, img.Base64())
		}
		out = append(out, msg)
	}
	return out, nil
}

type ollamaStream struct {
	stream *ollama.ChatStream
}

// Recv skips chunks without content, such as the final statistics line.
func (s *ollamaStream) Recv() (string, error) {
	for {
		chunk, err := s.stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", err
		}
		if chunk.Content != "" {
			return chunk.Content, nil
		}
	}
}

func (s *ollamaStream) Close() error {
	return s.stream.Close()
}

func (s *ollamaStream) Usage() Usage {
	stats := s.stream.Stats()
	return Usage{PromptTokens: stats.PromptTokens, CompletionTokens: stats.CompletionTokens}
}
