// Package artifact manages the lifetime of temporary on-disk audio files.
//
// Every file the utterance pipeline produces — the capture WAV handed to the
// transcriber and the synthesized clip handed to playback — is created
// through a [Scope]. A scope tracks each file it creates and removes every
// still-tracked file in [Scope.ReleaseAll], which callers run in a defer so
// artifacts are reclaimed regardless of where a pipeline aborted. A file
// whose ownership moves elsewhere (a clip handed to the playback arbiter)
// is detached from its scope and released individually once playback ends.
package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store creates and removes temp audio files under a single base directory.
// All methods are safe for concurrent use.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating the directory if needed.
// An empty dir places artifacts under the system temp directory.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "kalliope")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("artifact: create dir %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the base directory artifacts are created in.
func (s *Store) Dir() string { return s.dir }

// Remove deletes a single artifact file. Missing files are not an error;
// a release racing a ReleaseAll must not log spurious failures.
func (s *Store) Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("artifact: remove failed", "path", path, "err", err)
	}
}

// NewScope returns an empty scope backed by this store.
func (s *Store) NewScope() *Scope {
	return &Scope{store: s}
}

// Scope tracks the artifact files created for one pipeline run.
// All methods are safe for concurrent use.
type Scope struct {
	store *Store

	mu    sync.Mutex
	paths []string
}

// Create creates a new artifact file named after pattern (in the
// [os.CreateTemp] sense) and tracks it for release. The caller owns the
// returned handle and must close it.
func (sc *Scope) Create(pattern string) (*os.File, error) {
	f, err := os.CreateTemp(sc.store.dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("artifact: create %q: %w", pattern, err)
	}
	sc.track(f.Name())
	return f, nil
}

// CreatePath reserves a new artifact path without leaving a handle open.
// Useful when the payload is written in one call (WAV encode + write).
func (sc *Scope) CreatePath(pattern string) (string, error) {
	f, err := sc.Create(pattern)
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("artifact: close %q: %w", path, err)
	}
	return path, nil
}

// Detach removes path from the scope without deleting the file, handing
// ownership to the caller. Detaching an untracked path is a no-op.
func (sc *Scope) Detach(path string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for i, p := range sc.paths {
		if p == path {
			sc.paths = append(sc.paths[:i], sc.paths[i+1:]...)
			return
		}
	}
}

// Release deletes a single tracked artifact immediately and stops
// tracking it.
func (sc *Scope) Release(path string) {
	sc.Detach(path)
	sc.store.Remove(path)
}

// ReleaseAll deletes every artifact still tracked by the scope. It is safe
// to call more than once and is intended for use in a defer.
func (sc *Scope) ReleaseAll() {
	sc.mu.Lock()
	paths := sc.paths
	sc.paths = nil
	sc.mu.Unlock()

	for _, p := range paths {
		sc.store.Remove(p)
	}
}

// Len reports how many artifacts the scope currently tracks.
func (sc *Scope) Len() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.paths)
}

func (sc *Scope) track(path string) {
	sc.mu.Lock()
	sc.paths = append(sc.paths, path)
	sc.mu.Unlock()
}
