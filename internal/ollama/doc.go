// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with the Ollama API.
//
// Only the parts of the API a chat transcript needs are covered: a health
// check, starting a local server, listing models and streaming /api/chat.
//
// # Key Types
//
//   - Client: HTTP client for Ollama API communication
//   - Message: Chat message with role, content and base64 images
//   - ChatStream: An open /api/chat response read one chunk at a time
//   - StreamStats: Timing and token counts from the final chunk
//
// # Usage
//
//	client := ollama.NewClient()
//	stream, err := client.OpenChat(ctx, "llama3.2", []ollama.Message{
//	    ollama.NewUserMessage("Hello"),
//	})
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for {
//	    chunk, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    fmt.Print(chunk.Content)
//	}
//
// Streaming requests carry no client-side timeout. Cancel the context to
// stop one.
package ollama
