package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"vidforge/core/logger"
	"log/slog"
)

// FileStore keeps every session in one JSON document on disk. The whole
// document is rewritten on each Put; user IDs are encoded as decimal
// strings so the file stays readable and diffable.
type FileStore struct {
	mu       sync.RWMutex
	path     string
	sessions map[int64]UserSession
}

// OpenFileStore loads the JSON document at path, creating an empty store
// when the file does not exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path:     path,
		sessions: make(map[int64]UserSession),
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.SESS.Info("store opened",
				slog.String("event", "store.open"),
				slog.String("driver", "file"),
				slog.String("path", path),
				slog.Int("count", 0),
			)
			return fs, nil
		}
		return nil, fmt.Errorf("session: read %s: %w", path, err)
	}
	raw := make(map[string]UserSession)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("session: parse %s: %w", path, err)
	}
	for key, s := range raw {
		id, convErr := strconv.ParseInt(key, 10, 64)
		if convErr != nil {
			logger.SESS.Warn("skipping malformed user id",
				slog.String("event", "store.open"),
				slog.String("path", path),
				slog.String("payload", key),
			)
			continue
		}
		if s.Keys == nil {
			s.Keys = make(map[Kind]string)
		}
		fs.sessions[id] = s
	}
	logger.SESS.Info("store opened",
		slog.String("event", "store.open"),
		slog.String("driver", "file"),
		slog.String("path", path),
		slog.Int("count", len(fs.sessions)),
	)
	return fs, nil
}

// Get returns a copy of the stored session.
func (f *FileStore) Get(id int64) (UserSession, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.sessions[id]
	if !ok {
		return UserSession{}, false
	}
	return s.Clone(), true
}

// Put replaces the session for id and flushes the document to disk.
func (f *FileStore) Put(id int64, s UserSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id] = s.Clone()
	return f.flushLocked()
}

// Count returns the number of known users.
func (f *FileStore) Count() (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sessions), nil
}

// flushLocked writes the whole document atomically via a temp file rename.
func (f *FileStore) flushLocked() error {
	raw := make(map[string]UserSession, len(f.sessions))
	for id, s := range f.sessions {
		raw[strconv.FormatInt(id, 10)] = s
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("session: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("session: write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("session: close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("session: rename to %s: %w", f.path, err)
	}
	return nil
}
