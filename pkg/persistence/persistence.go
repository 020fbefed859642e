// Package persistence is the on-disk blob store backing proxy configs,
// mocks, request history, and settings. Every key is one JSON file under a
// root directory; writes are atomic (serialize, write temp, fsync, rename)
// so a crash mid-write never corrupts the previous snapshot. Malformed
// blobs found on read are quarantined rather than treated as fatal: the
// in-memory state proceeds as if the key were empty.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const schemaVersion = "1"

// Store is the process-wide persistence root. One Store instance is shared
// across every proxy; callers serialize composite operations themselves in
// the fixed Mock → Persistence lock order.
type Store struct {
	mu     sync.Mutex
	dir    string
	logger *slog.Logger

	coalesceWindow time.Duration
	pending        map[string]*pendingWrite
}

type pendingWrite struct {
	timer *time.Timer
	data  any
}

// New creates a Store rooted at dir, creating it if necessary. Failure to
// create or stat the root directory is the only fatal persistence error.
func New(dir string, coalesceWindow time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create root %s: %w", dir, err)
	}
	return &Store{
		dir:            dir,
		logger:         slog.Default().With("component", "persistence"),
		coalesceWindow: coalesceWindow,
		pending:        make(map[string]*pendingWrite),
	}, nil
}

// keyPath maps a namespaced key ("proxies/normal/configs") to its file
// path and schema sidecar path.
func (s *Store) keyPath(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key)+".json")
}

func (s *Store) schemaPath(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key)+".schema")
}

// Save serializes v as pretty-printed JSON and writes it atomically under
// key: write to a sibling temp file, fsync, then rename over the target.
// The schema sidecar is written the same way.
func (s *Store) Save(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(key, v)
}

func (s *Store) saveLocked(key string, v any) error {
	path := s.keyPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("persistence: create dir for %s: %w", key, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal %s: %w", key, err)
	}

	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("persistence: write %s: %w", key, err)
	}
	if err := atomicWrite(s.schemaPath(key), []byte(schemaVersion)); err != nil {
		s.logger.Warn("schema sidecar write failed", "key", key, "error", err)
	}
	return nil
}

// atomicWrite implements serialize-already-done → write temp → fsync →
// rename. The temp file lives beside the target so the rename stays within
// one filesystem.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Load reads key into v. A missing key returns ErrNotFound. A blob that
// fails to unmarshal is quarantined (renamed with a .corrupt.<ts> suffix)
// and ErrNotFound is returned, matching the best-effort read contract.
func (s *Store) Load(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.keyPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("persistence: read %s: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.quarantine(path, err)
		return ErrNotFound
	}
	return nil
}

func (s *Store) quarantine(path string, cause error) {
	dest := fmt.Sprintf("%s.corrupt.%d", path, time.Now().UnixNano())
	if err := os.Rename(path, dest); err != nil {
		s.logger.Error("failed to quarantine malformed blob", "path", path, "error", err)
		return
	}
	s.logger.Warn("quarantined malformed blob", "path", path, "quarantined_to", dest, "cause", cause)
}

// Delete removes key's blob and schema sidecar, if present.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.keyPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("persistence: delete %s: %w", key, err)
	}
	os.Remove(s.schemaPath(key))
	return nil
}

// Exists reports whether key has a blob on disk.
func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.keyPath(key))
	return err == nil
}

// SaveCoalesced schedules key to be written after the Store's coalesce
// window elapses, replacing any pending write for the same key. Consecutive
// calls within the window collapse into a single write, matching the
// request-history coalescing requirement.
func (s *Store) SaveCoalesced(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pw, ok := s.pending[key]; ok {
		pw.data = v
		pw.timer.Reset(s.coalesceWindow)
		return
	}

	pw := &pendingWrite{data: v}
	pw.timer = time.AfterFunc(s.coalesceWindow, func() {
		s.mu.Lock()
		data := pw.data
		delete(s.pending, key)
		s.mu.Unlock()

		if err := s.saveLocked(key, data); err != nil {
			s.logger.Error("coalesced write failed", "key", key, "error", err)
		}
	})
	s.pending[key] = pw
}

// Flush forces any pending coalesced write for key to run immediately.
func (s *Store) Flush(key string) {
	s.mu.Lock()
	pw, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	pw.timer.Stop()
	if err := s.saveLocked(key, pw.data); err != nil {
		s.logger.Error("flush write failed", "key", key, "error", err)
	}
}

// ListKeysWithPrefix returns namespaced keys (without the .json suffix)
// whose path begins with prefix, e.g. "proxies/normal/" to enumerate every
// persisted port under that kind.
func (s *Store) ListKeysWithPrefix(prefix string) ([]string, error) {
	root := filepath.Join(s.dir, filepath.FromSlash(prefix))
	base := filepath.Dir(root)

	var keys []string
	err := filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".json") {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return nil
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return keys, nil
}
