// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/ochat/internal/transcript"
)

// pendingRewrite is one file whose new content has been computed but not
// yet written.
type pendingRewrite struct {
	path     string
	original []byte
	updated  []byte
	perm     os.FileMode
}

// RewriteMarkers replaces old markers with new ones in every named chat and
// in this session's temp snapshots. All new contents are computed before
// anything is written. If a write fails, files already rewritten are put
// back and a *RewriteError is returned. It returns the number of files that
// changed.
func (s *Store) RewriteMarkers(changes []transcript.MarkerChange) (int, error) {
	if len(changes) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := s.chatFiles()
	if err != nil {
		return 0, &HistoryError{Op: "rewrite", Message: "list chat files", Err: err}
	}

	var pending []pendingRewrite
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return 0, &RewriteError{Path: path, Err: err}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, &RewriteError{Path: path, Err: err}
		}
		updated := transcript.ReplaceMarkers(string(data), changes)
		if updated == string(data) {
			continue
		}
		pending = append(pending, pendingRewrite{
			path:     path,
			original: data,
			updated:  []byte(updated),
			perm:     info.Mode().Perm(),
		})
	}

	for i, p := range pending {
		if err := s.writeFile(p.path, p.updated, p.perm); err != nil {
			rerr := &RewriteError{Path: p.path, Err: err}
			for _, done := range pending[:i] {
				if restoreErr := s.writeFile(done.path, done.original, done.perm); restoreErr != nil {
					rerr.Unrestored = append(rerr.Unrestored, done.path)
				}
			}
			s.logger.Error("marker rewrite failed", "path", p.path, "err", err, "restored", i-len(rerr.Unrestored))
			return 0, rerr
		}
	}

	s.logger.Info("rewrote markers", "files", len(pending), "changes", len(changes))
	return len(pending), nil
}

// chatFiles lists the named chats and this session's temp snapshots.
func (s *Store) chatFiles() ([]string, error) {
	var paths []string
	for _, dir := range []string{s.root, s.TempDir()} {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}
