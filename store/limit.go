package store

import "fmt"

// limited rejects values longer than max bytes, the way a host blob store
// with a fixed value size would.
type limited struct {
	Store
	max int
}

// Limit wraps s so that Set fails with ErrValueTooLarge when value is longer
// than max bytes. max <= 0 returns s unchanged.
func Limit(s Store, max int) Store {
	if max <= 0 {
		return s
	}
	return &limited{Store: s, max: max}
}

func (l *limited) Set(key, value string) error {
	if len(value) > l.max {
		return fmt.Errorf("%w: %d bytes for key %q (limit %d)", ErrValueTooLarge, len(value), key, l.max)
	}
	return l.Store.Set(key, value)
}
