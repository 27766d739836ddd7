package collection

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stevemurr/blobdoc/store"
)

// bridge moves whole snapshots between a Collection and one key of a blob
// store. The snapshot is a JSON array of [id, document] pairs in collection
// order; there is no other persisted form.
type bridge struct {
	key   string
	store store.Store
}

// snapshotEntry is a decoded [id, document] pair and its position in the
// snapshot.
type snapshotEntry struct {
	Index int
	Record
}

// entryError describes a snapshot entry that could not be decoded.
type entryError struct {
	Index int
	ID    string
	Err   error
}

// load fetches the stored snapshot. ok is false when nothing was stored yet.
func (b *bridge) load() (text string, ok bool, err error) {
	text, ok, err = b.store.Get(b.key)
	if err != nil {
		return "", false, fmt.Errorf("%w: key %q: %w", ErrStorageRead, b.key, err)
	}
	return text, ok, nil
}

// save writes the full snapshot of e.
func (b *bridge) save(e *entries) error {
	text, err := encodeSnapshot(e)
	if err != nil {
		return err
	}
	if err := b.store.Set(b.key, text); err != nil {
		return fmt.Errorf("%w: key %q: %w", ErrStorageWrite, b.key, err)
	}
	return nil
}

// keyFor derives the default blob key of a collection. ASCII letters, digits
// and '-' are kept; every other byte becomes '_' followed by two hex digits,
// so distinct names never share a key.
func keyFor(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}

func encodeSnapshot(e *entries) (string, error) {
	pairs := make([][2]any, 0, e.len())
	for id, doc := range e.all() {
		pairs = append(pairs, [2]any{id, doc})
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return string(data), nil
}

// decodeSnapshot parses snapshot text. A top-level syntax error fails the
// whole snapshot; entries that are not [string, object] pairs are returned
// separately so the caller can report and skip them.
func decodeSnapshot(text string) ([]snapshotEntry, []entryError, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	recs := make([]snapshotEntry, 0, len(raw))
	var bad []entryError
	for i, msg := range raw {
		var pair []json.RawMessage
		if err := json.Unmarshal(msg, &pair); err != nil || len(pair) != 2 {
			bad = append(bad, entryError{Index: i, Err: fmt.Errorf("%w: entry %d is not an [id, document] pair", ErrSerialization, i)})
			continue
		}
		var id string
		if err := json.Unmarshal(pair[0], &id); err != nil {
			bad = append(bad, entryError{Index: i, Err: fmt.Errorf("%w: entry %d: identifier is not a string", ErrSerialization, i)})
			continue
		}
		if !ValidID(id) {
			bad = append(bad, entryError{Index: i, ID: id, Err: fmt.Errorf("%w: entry %d: malformed identifier %q", ErrSerialization, i, id)})
			continue
		}
		doc, err := decodeDocument(pair[1])
		if err != nil || doc == nil {
			bad = append(bad, entryError{Index: i, ID: id, Err: fmt.Errorf("%w: entry %d: document is not an object", ErrSerialization, i)})
			continue
		}
		recs = append(recs, snapshotEntry{Index: i, Record: Record{ID: id, Data: doc}})
	}
	return recs, bad, nil
}
