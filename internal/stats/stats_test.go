// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ochat/internal/generation"
	"github.com/jeranaias/ochat/internal/provider"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id, model string, state generation.State, started time.Time) generation.Record {
	return generation.Record{
		ID:       id,
		Provider: provider.NameOllama,
		State:    state,
		Stats: generation.Stats{
			Model:    model,
			Messages: 2,
			Chunks:   10,
			Chars:    40,
			Usage:    provider.Usage{PromptTokens: 12, CompletionTokens: 20},
			Started:  started,
			TTFT:     200 * time.Millisecond,
			Elapsed:  2 * time.Second,
		},
	}
}

func TestAddAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Add(ctx, record("a", "llama3.2", generation.StateCompleted, base)))
	rec := record("b", "qwen", generation.StateFailed, base.Add(time.Minute))
	rec.Err = "connection refused"
	require.NoError(t, s.Add(ctx, rec))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "b", entries[0].ID, "newest first")
	assert.Equal(t, "failed", entries[0].State)
	assert.Equal(t, "connection refused", entries[0].Err)

	a := entries[1]
	assert.Equal(t, "llama3.2", a.Model)
	assert.Equal(t, 20, a.CompletionTokens)
	assert.Equal(t, 200*time.Millisecond, a.TTFT)
	assert.Equal(t, 2*time.Second, a.Elapsed)
	assert.Empty(t, a.Err)
	assert.True(t, a.Started.Equal(base))
}

func TestAdd_DuplicateIgnored(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Add(ctx, record("same", "m", generation.StateCompleted, now)))
	require.NoError(t, s.Add(ctx, record("same", "m", generation.StateCancelled, now)))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "completed", entries[0].State)
}

func TestRecent_Limit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Add(ctx, record(id, "m", generation.StateCompleted, base.Add(time.Duration(i)*time.Second))))
	}

	entries, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
}

func TestSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Add(ctx, record("1", "llama3.2", generation.StateCompleted, now)))
	require.NoError(t, s.Add(ctx, record("2", "llama3.2", generation.StateCancelled, now)))
	require.NoError(t, s.Add(ctx, record("3", "qwen", generation.StateCompleted, now)))

	summary, err := s.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	top := summary[0]
	assert.Equal(t, "llama3.2", top.Model)
	assert.Equal(t, 2, top.Generations)
	assert.Equal(t, 1, top.Cancelled)
	assert.Equal(t, 40, top.CompletionTokens)
	assert.Equal(t, 2*time.Second, top.AvgElapsed)
	assert.InDelta(t, 10.0, top.TokensPerSecond(), 0.001)
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Add(ctx, record("old", "m", generation.StateCompleted, now.Add(-48*time.Hour))))
	require.NoError(t, s.Add(ctx, record("new", "m", generation.StateCompleted, now)))

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].ID)
}

func TestHook(t *testing.T) {
	s := openTestStore(t)

	s.Hook()(record("hooked", "m", generation.StateCompleted, time.Now()))

	entries, err := s.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hooked", entries[0].ID)
}
