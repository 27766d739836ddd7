package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

// lockTimeout bounds how long NewFileStore waits for another process to
// release the data directory.
const lockTimeout = 2 * time.Second

// FileStore stores each key as a separate file on disk.
//
// Layout:
//
//	data_dir/
//	  .lock         # held for the lifetime of the store
//	  notes.json    # value stored under "notes"
//	  tasks.json    # value stored under "tasks"
//
// Values are replaced atomically so a crash mid-write leaves the previous
// snapshot in place.
type FileStore struct {
	mu   sync.RWMutex
	dir  string
	lock *flock.Flock
}

// NewFileStore opens dir, creating it if needed, and takes an exclusive lock
// on it. A second FileStore on the same directory fails until Close.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, ".lock"))
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("data directory %s is in use by another process", dir)
	}
	return &FileStore{dir: dir, lock: lock}, nil
}

// Close releases the directory lock.
func (s *FileStore) Close() error {
	return s.lock.Unlock()
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Get(key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

func (s *FileStore) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return atomic.WriteFile(s.path(key), bytes.NewReader([]byte(value)))
}
