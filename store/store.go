// Package store defines the backing blob store interface and implementations.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrValueTooLarge is returned by Set when a value exceeds the store's limit.
	ErrValueTooLarge = errors.New("value exceeds maximum size")

	// ErrInvalidKey is returned when a key is empty or contains characters
	// that are not safe to use as a file or row name.
	ErrInvalidKey = errors.New("invalid key")
)

// Store is the interface that all backing stores must implement.
// It holds one opaque text value per short key and knows nothing about the
// documents encoded inside.
type Store interface {
	// Get returns the value stored under key. ok is false if nothing was
	// ever stored there.
	Get(key string) (value string, ok bool, err error)

	// Set replaces the value stored under key.
	Set(key, value string) error
}

// ValidateKey reports whether key is usable by every backend.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '-', c == '.':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, c)
		}
	}
	if key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
