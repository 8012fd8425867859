// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/jeranaias/ochat/internal/transcript"
)

// Gemini uses the Gemini API through the genai SDK.
type Gemini struct {
	client    *genai.Client
	maxTokens int32
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, apiKey string, maxTokens int) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, maxTokens: int32(maxTokens)}, nil
}

func (p *Gemini) Name() string { return NameGemini }

func (p *Gemini) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("failed to list models: %w", err)
		}
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return sortedNames(names), nil
}

func (p *Gemini) StreamChat(ctx context.Context, model string, messages []Message) (Stream, error) {
	system, contents, err := geminiContents(messages)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{}
	if p.maxTokens > 0 {
		config.MaxOutputTokens = p.maxTokens
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	next, stop := iter.Pull2(p.client.Models.GenerateContentStream(ctx, model, contents, config))
	return &geminiStream{next: next, stop: stop}, nil
}

func geminiContents(messages []Message) (string, []*genai.Content, error) {
	system, rest := splitSystem(messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := string(genai.RoleUser)
		if m.Role == transcript.RoleAssistant {
			role = string(genai.RoleModel)
		}

		images, err := LoadImages(m.Images)
		if err != nil {
			return "", nil, err
		}
		parts := make([]*genai.Part, 0, len(images)+1)
		for _, img := range images {
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}})
		}
		if m.Content != "" {
			parts = append(parts, &genai.Part{Text: m.Content})
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return system, contents, nil
}

type geminiStream struct {
	next  func() (*genai.GenerateContentResponse, error, bool)
	stop  func()
	usage Usage

	closeOnce sync.Once
}

func (s *geminiStream) Recv() (string, error) {
	for {
		resp, err, ok := s.next()
		if !ok {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if resp.UsageMetadata != nil {
			s.usage = Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			}
		}
		if text := resp.Text(); text != "" {
			return text, nil
		}
	}
}

func (s *geminiStream) Close() error {
	s.closeOnce.Do(s.stop)
	return nil
}

func (s *geminiStream) Usage() Usage {
	return s.usage
}
