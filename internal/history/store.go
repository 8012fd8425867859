// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/ochat/internal/logging"
	"github.com/jeranaias/ochat/internal/util"
)

const (
	fileExt    = ".txt"
	tempPrefix = "temp"
	filePerm   = 0o644
	dirPerm    = 0o755
)

// =============================================================================
// STORE
// =============================================================================

// Store reads and writes chat files under one root directory. It is safe for
// concurrent use.
type Store struct {
	root    string
	session string
	logger  *log.Logger

	mu sync.Mutex

	// writeFile replaces a file's content. Tests swap it to inject failures.
	writeFile func(path string, data []byte, perm os.FileMode) error
}

// NewStore opens (creating if needed) a store rooted at root. session keys
// this process's temp directory.
func NewStore(root, session string) (*Store, error) {
	if session == "" {
		return nil, errors.New("history: empty session id")
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &Store{
		root:      root,
		session:   session,
		logger:    logging.With("history"),
		writeFile: util.AtomicWriteFile,
	}, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Session returns the id keying this process's temp directory.
func (s *Store) Session() string {
	return s.session
}

// TempDir returns this process's temp directory.
func (s *Store) TempDir() string {
	return filepath.Join(s.root, tempPrefix+s.session)
}

func (s *Store) namedPath(name string) string {
	return filepath.Join(s.root, name+fileExt)
}

func (s *Store) tempPath(name string) string {
	return filepath.Join(s.TempDir(), name+fileExt)
}

// =============================================================================
// NAMED CHATS
// =============================================================================

// LoadNamed returns the saved buffer of a chat.
func (s *Store) LoadNamed(name string) (string, error) {
	return s.load("load", name, s.namedPath)
}

// SaveNamed writes the buffer of a chat.
func (s *Store) SaveNamed(name, buffer string) error {
	return s.save("save", name, buffer, s.namedPath)
}

// DeleteNamed removes a saved chat. Deleting a missing chat is not an error.
func (s *Store) DeleteNamed(name string) error {
	return s.remove("delete", name, s.namedPath)
}

// Exists reports whether a named chat is saved.
func (s *Store) Exists(name string) bool {
	if ValidName(name) != nil {
		return false
	}
	info, err := os.Stat(s.namedPath(name))
	return err == nil && !info.IsDir()
}

// ListNames returns the names of all saved chats, sorted.
func (s *Store) ListNames() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &HistoryError{Op: "list", Message: "read history directory", Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), fileExt))
	}
	sort.Strings(names)
	return names, nil
}

// =============================================================================
// TEMP SNAPSHOTS
// =============================================================================

// LoadTemp returns this session's unsaved snapshot of a chat.
func (s *Store) LoadTemp(name string) (string, error) {
	return s.load("load temp", name, s.tempPath)
}

// SaveTemp snapshots a chat for this session.
func (s *Store) SaveTemp(name, buffer string) error {
	return s.save("save temp", name, buffer, s.tempPath)
}

// DeleteTemp removes this session's snapshot of a chat.
func (s *Store) DeleteTemp(name string) error {
	return s.remove("delete temp", name, s.tempPath)
}

// ClearSession empties this session's temp directory.
func (s *Store) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.TempDir()); err != nil {
		return &HistoryError{Op: "clear session", Message: "remove temp directory", Err: err}
	}
	return nil
}

// PurgeTemp removes every temp directory, including ones left behind by
// processes that did not shut down cleanly.
func (s *Store) PurgeTemp() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return &HistoryError{Op: "purge", Message: "read history directory", Err: err}
	}

	var errs []error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("purged temp directory", "dir", e.Name())
	}
	if len(errs) > 0 {
		return &HistoryError{Op: "purge", Message: "remove temp directories", Err: errors.Join(errs...)}
	}
	return nil
}

// =============================================================================
// FILE HELPERS
// =============================================================================

func (s *Store) load(op, name string, path func(string) string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", invalidName(op, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", notFound(op, name)
	}
	if err != nil {
		return "", &HistoryError{Op: op, Name: name, Message: "read failed", Err: err}
	}
	return string(data), nil
}

func (s *Store) save(op, name, buffer string, path func(string) string) error {
	if err := ValidName(name); err != nil {
		return invalidName(op, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeFile(path(name), []byte(buffer), filePerm); err != nil {
		return &HistoryError{Op: op, Name: name, Message: "write failed", Err: err}
	}
	return nil
}

func (s *Store) remove(op, name string, path func(string) string) error {
	if err := ValidName(name); err != nil {
		return invalidName(op, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &HistoryError{Op: op, Name: name, Message: "remove failed", Err: err}
	}
	return nil
}
