// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/jeranaias/ochat/internal/transcript"
)

// Anthropic uses the Messages API.
type Anthropic struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropic creates an Anthropic provider. Extra request options, such as
// a base URL for tests, may be appended.
func NewAnthropic(apiKey string, maxTokens int, opts ...option.RequestOption) *Anthropic {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		maxTokens: int64(maxTokens),
	}
}

func (p *Anthropic) Name() string { return NameAnthropic }

func (p *Anthropic) ListModels(ctx context.Context) ([]string, error) {
	page, err := p.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	names := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		names = append(names, m.ID)
	}
	return sortedNames(names), nil
}

func (p *Anthropic) StreamChat(ctx context.Context, model string, messages []Message) (Stream, error) {
	system, msgs, err := anthropicMessages(messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	return &anthropicStream{stream: p.client.Messages.NewStreaming(ctx, params)}, nil
}

// anthropicMessages pulls system messages into the system parameter and
// merges consecutive same-role messages, which the API rejects.
func anthropicMessages(messages []Message) (string, []anthropic.MessageParam, error) {
	system, rest := splitSystem(messages)

	var (
		out    []anthropic.MessageParam
		blocks []anthropic.ContentBlockParamUnion
		role   transcript.Role
	)
	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == transcript.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}

	for _, m := range rest {
		if m.Role != role {
			flush()
			role = m.Role
		}
		images, err := LoadImages(m.Images)
		if err != nil {
			return "", nil, err
		}
		for _, img := range images {
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfImage: &anthropic.ImageBlockParam{
					Source: anthropic.ImageBlockParamSourceUnion{
						OfBase64: &anthropic.Base64ImageSourceParam{
							Data:      img.Base64(),
							MediaType: anthropic.Base64ImageSourceMediaType(img.MIMEType),
						},
					},
				},
			})
		}
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
	}
	flush()

	return system, out, nil
}

type anthropicStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	usage  Usage

	closeOnce sync.Once
	closeErr  error
}

func (s *anthropicStream) Recv() (string, error) {
	for s.stream.Next() {
		switch event := s.stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			s.usage.PromptTokens = int(event.Message.Usage.InputTokens)
		case anthropic.MessageDeltaEvent:
			s.usage.CompletionTokens = int(event.Usage.OutputTokens)
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := event.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				return delta.Text, nil
			}
		}
	}
	if err := s.stream.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *anthropicStream) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.stream.Close() })
	return s.closeErr
}

func (s *anthropicStream) Usage() Usage {
	return s.usage
}
