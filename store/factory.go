package store

import (
	"fmt"
	"io"
	"path/filepath"
)

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"   - one JSON file per key in dataDir (default)
//	"sqlite" - SQLite database at dataDir/blobs.db
//	"memory" - In-memory (ephemeral, for testing)
//
// The returned closer releases files and locks held by the backend; it is
// never nil.
func New(backend, dataDir string) (Store, io.Closer, error) {
	switch backend {
	case "json", "":
		s, err := NewFileStore(dataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "sqlite":
		s, err := NewSqliteStore(filepath.Join(dataDir, "blobs.db"))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "memory":
		return NewMemoryStore(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, memory)", backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
