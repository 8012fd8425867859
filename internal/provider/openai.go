// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/jeranaias/ochat/internal/transcript"
)

// OpenAI uses the Chat Completions API.
type OpenAI struct {
	client    openai.Client
	maxTokens int64
}

// NewOpenAI creates an OpenAI provider. Extra request options, such as a
// base URL for compatible servers, may be appended.
func NewOpenAI(apiKey string, maxTokens int, opts ...option.RequestOption) *OpenAI {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAI{
		client:    openai.NewClient(opts...),
		maxTokens: int64(maxTokens),
	}
}

func (p *OpenAI) Name() string { return NameOpenAI }

func (p *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	names := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		names = append(names, m.ID)
	}
	return sortedNames(names), nil
}

func (p *OpenAI) StreamChat(ctx context.Context, model string, messages []Message) (Stream, error) {
	msgs, err := openaiMessages(messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(p.maxTokens)
	}

	return &openaiStream{stream: p.client.Chat.Completions.NewStreaming(ctx, params)}, nil
}

func openaiMessages(messages []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case transcript.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case transcript.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			if len(m.Images) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			images, err := LoadImages(m.Images)
			if err != nil {
				return nil, err
			}
			parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(m.Content)}
			for _, img := range images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: img.DataURL(),
				}))
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out, nil
}

type openaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	usage  Usage

	closeOnce sync.Once
	closeErr  error
}

func (s *openaiStream) Recv() (string, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if chunk.Usage.CompletionTokens > 0 {
			s.usage = Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
			}
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return chunk.Choices[0].Delta.Content, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *openaiStream) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.stream.Close() })
	return s.closeErr
}

func (s *openaiStream) Usage() Usage {
	return s.usage
}
