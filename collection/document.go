package collection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"slices"
)

// Document is one stored record. Stored documents hold only JSON values: nil,
// bool, json.Number, string, []any and map[string]any. Documents passed in
// may hold any value encoding/json can marshal; they are stored in the form
// they read back from a snapshot.
type Document map[string]any

// Record pairs a document with its identifier.
type Record struct {
	ID   string
	Data Document
}

// normalize returns doc as it would be decoded from a snapshot, so that
// in-memory and persisted documents agree. Values that cannot be encoded fail
// with ErrSerialization.
func normalize(doc Document) (Document, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	out, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = Document{}
	}
	return out, nil
}

// decodeDocument decodes one JSON object, keeping numbers as json.Number so
// integers beyond 2^53 survive. A JSON null decodes to a nil Document.
func decodeDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrSerialization)
	}
	return doc, nil
}

// cloneDocument returns a deep copy of doc. A nil doc clones to an empty one.
func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return cloneDocument(t)
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// entries is the ordered id -> document mapping. Iteration follows insertion
// order; replacing an existing id keeps its position.
type entries struct {
	order []string
	docs  map[string]Document
}

func newEntries() *entries {
	return &entries{docs: make(map[string]Document)}
}

func (e *entries) len() int { return len(e.order) }

func (e *entries) has(id string) bool {
	_, ok := e.docs[id]
	return ok
}

func (e *entries) get(id string) (Document, bool) {
	d, ok := e.docs[id]
	return d, ok
}

func (e *entries) set(id string, doc Document) {
	if _, ok := e.docs[id]; !ok {
		e.order = append(e.order, id)
	}
	e.docs[id] = doc
}

// remove deletes id and returns its former position and document, or -1.
func (e *entries) remove(id string) (int, Document) {
	doc, ok := e.docs[id]
	if !ok {
		return -1, nil
	}
	i := slices.Index(e.order, id)
	e.order = slices.Delete(e.order, i, i+1)
	delete(e.docs, id)
	return i, doc
}

// insertAt puts id back at position i. Used to undo remove.
func (e *entries) insertAt(i int, id string, doc Document) {
	if i < 0 || i > len(e.order) {
		i = len(e.order)
	}
	e.order = slices.Insert(e.order, i, id)
	e.docs[id] = doc
}

func (e *entries) all() iter.Seq2[string, Document] {
	return func(yield func(string, Document) bool) {
		for _, id := range e.order {
			if !yield(id, e.docs[id]) {
				return
			}
		}
	}
}
