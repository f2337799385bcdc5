// internal/state/file.go
package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileKV is a file-backed key/value store. Each key is stored in its own
// file at store/<key> under the root directory.
type FileKV struct {
	root string
	mu   sync.RWMutex
}

// NewFileKV creates a new FileKV rooted at the given directory.
func NewFileKV(root string) *FileKV {
	return &FileKV{root: root}
}

func (s *FileKV) storeDir() string {
	return filepath.Join(s.root, "store")
}

func (s *FileKV) keyPath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.storeDir(), key), nil
}

// Get returns the value stored under key.
func (s *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return "", false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read key %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes value under key atomically.
func (s *FileKV) Set(_ context.Context, key, value string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.storeDir(), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write temp value: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp value: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *FileKV) Delete(_ context.Context, key string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete key %s: %w", key, err)
	}
	return nil
}

func (s *FileKV) Close() error { return nil }
