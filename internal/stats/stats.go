// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stats keeps a local log of generations in SQLite: which model
// answered, how long it took and how many tokens it used. Nothing leaves the
// machine.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/ochat/internal/generation"
	"github.com/jeranaias/ochat/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS generations (
    id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    state TEXT NOT NULL,
    regenerate BOOLEAN NOT NULL DEFAULT FALSE,
    messages INTEGER NOT NULL DEFAULT 0,
    chunks INTEGER NOT NULL DEFAULT 0,
    chars INTEGER NOT NULL DEFAULT 0,
    prompt_tokens INTEGER NOT NULL DEFAULT 0,
    completion_tokens INTEGER NOT NULL DEFAULT 0,
    ttft_ms INTEGER NOT NULL DEFAULT 0,
    elapsed_ms INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    started_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_generations_started_at ON generations(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_generations_model ON generations(model);
`

// hookTimeout bounds one insert from the completion hook.
const hookTimeout = 5 * time.Second

// =============================================================================
// STORE
// =============================================================================

// Store is the generation log. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Entry is one logged generation.
type Entry struct {
	ID               string
	Provider         string
	Model            string
	State            string
	Regenerate       bool
	Messages         int
	Chunks           int
	Chars            int
	PromptTokens     int
	CompletionTokens int
	TTFT             time.Duration
	Elapsed          time.Duration
	Err              string
	Started          time.Time
}

// ModelSummary aggregates the log per model.
type ModelSummary struct {
	Model            string
	Generations      int
	Cancelled        int
	Failed           int
	CompletionTokens int
	AvgTTFT          time.Duration
	AvgElapsed       time.Duration
}

// TokensPerSecond returns the average output rate, or 0 if unknown.
func (m ModelSummary) TokensPerSecond() float64 {
	total := m.AvgElapsed * time.Duration(m.Generations)
	if total <= 0 || m.CompletionTokens == 0 {
		return 0
	}
	return float64(m.CompletionTokens) / total.Seconds()
}

// Open opens (creating if needed) the log at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create stats directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open stats database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize stats schema: %w", err)
	}

	return &Store{db: db, logger: logging.With("stats")}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add logs one finished generation. Adding the same id twice keeps the
// first.
func (s *Store) Add(ctx context.Context, rec generation.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO generations (
			id, provider, model, state, regenerate, messages, chunks, chars,
			prompt_tokens, completion_tokens, ttft_ms, elapsed_ms, error, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Provider, rec.Stats.Model, rec.State.String(), rec.Regenerate,
		rec.Stats.Messages, rec.Stats.Chunks, rec.Stats.Chars,
		rec.Stats.Usage.PromptTokens, rec.Stats.Usage.CompletionTokens,
		rec.Stats.TTFT.Milliseconds(), rec.Stats.Elapsed.Milliseconds(),
		nullString(rec.Err), rec.Stats.Started.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// Hook returns a completion hook for generation.WithCompletionHook. Write
// failures are logged; they never reach the chat.
func (s *Store) Hook() func(generation.Record) {
	return func(rec generation.Record) {
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		if err := s.Add(ctx, rec); err != nil {
			s.logger.Warn("could not log generation", "id", rec.ID, "err", err)
		}
	}
}

// Recent returns the newest entries first, at most limit of them.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider, model, state, regenerate, messages, chunks, chars,
		       prompt_tokens, completion_tokens, ttft_ms, elapsed_ms,
		       COALESCE(error, ''), started_at
		FROM generations
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e             Entry
			ttft, elapsed int64
		)
		if err := rows.Scan(&e.ID, &e.Provider, &e.Model, &e.State, &e.Regenerate,
			&e.Messages, &e.Chunks, &e.Chars, &e.PromptTokens, &e.CompletionTokens,
			&ttft, &elapsed, &e.Err, &e.Started); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		e.TTFT = time.Duration(ttft) * time.Millisecond
		e.Elapsed = time.Duration(elapsed) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summary aggregates the whole log per model, most used first.
func (s *Store) Summary(ctx context.Context) ([]ModelSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model,
		       COUNT(*),
		       SUM(CASE WHEN state = 'cancelled' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END),
		       SUM(completion_tokens),
		       CAST(AVG(ttft_ms) AS INTEGER),
		       CAST(AVG(elapsed_ms) AS INTEGER)
		FROM generations
		GROUP BY model
		ORDER BY COUNT(*) DESC, model`)
	if err != nil {
		return nil, fmt.Errorf("summarize generations: %w", err)
	}
	defer rows.Close()

	var out []ModelSummary
	for rows.Next() {
		var (
			m             ModelSummary
			ttft, elapsed int64
		)
		if err := rows.Scan(&m.Model, &m.Generations, &m.Cancelled, &m.Failed,
			&m.CompletionTokens, &ttft, &elapsed); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		m.AvgTTFT = time.Duration(ttft) * time.Millisecond
		m.AvgElapsed = time.Duration(elapsed) * time.Millisecond
		out = append(out, m)
	}
	return out, rows.Err()
}

// Prune deletes entries started before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM generations WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune generations: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
