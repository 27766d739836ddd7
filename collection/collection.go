// Package collection implements a named, ordered document collection kept in
// memory and persisted as a single snapshot under one key of a blob store.
//
// Every mutation validates, applies the change in memory, then rewrites the
// whole snapshot. When the write fails the in-memory change is undone, so the
// collection never holds state the store has not accepted. Reads never touch
// the store.
//
// A Collection is not safe for concurrent use, and one key of a store should
// be owned by a single Collection.
package collection

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"github.com/stevemurr/blobdoc/store"
)

// MaxNameLength is the longest accepted collection name, in characters.
const MaxNameLength = 16

// Collection is an ordered id -> Document mapping synchronized with a blob store.
type Collection struct {
	name       string
	bridge     bridge
	validators ValidatorMap
	check      func(Document) error
	reporter   Reporter
	ids        *idGenerator
	strict     bool
	docs       *entries
}

// Option configures a Collection.
type Option func(*options)

type options struct {
	validators ValidatorMap
	check      func(Document) error
	reporter   Reporter
	rnd        *rand.Rand
	key        string
	strict     bool
}

// WithValidators sets the per-field predicates applied to every stored document.
func WithValidators(v ValidatorMap) Option {
	return func(o *options) { o.validators = v }
}

// WithDocumentValidator sets a check applied to whole documents after the
// per-field predicates, for rules that span fields. An error it returns is
// wrapped with ErrValidationFailed.
func WithDocumentValidator(check func(Document) error) Option {
	return func(o *options) { o.check = check }
}

// WithReporter sets the sink for diagnostic events.
func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithRand sets the random source for identifiers.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rnd = r }
}

// WithKey stores the snapshot under key. By default the key is derived from
// the collection name, with bytes that are not letters, digits or '-' escaped.
func WithKey(key string) Option {
	return func(o *options) { o.key = key }
}

// WithStrictLoad makes New fail with ErrInitializationFailed when the stored
// snapshot cannot be read or decoded, leaving it untouched. By default such a
// snapshot is replaced with an empty one.
func WithStrictLoad() Option {
	return func(o *options) { o.strict = true }
}

// New returns the collection called name, loading its snapshot from s.
func New(name string, s store.Store, opts ...Option) (*Collection, error) {
	if n := utf8.RuneCountInString(name); n < 1 || n > MaxNameLength {
		return nil, fmt.Errorf("%w: %q has %d characters, want 1 to %d", ErrInvalidCollectionName, name, n, MaxNameLength)
	}
	o := options{reporter: NopReporter{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.key == "" {
		o.key = keyFor(name)
	}
	if err := store.ValidateKey(o.key); err != nil {
		return nil, fmt.Errorf("collection %q: %w", name, err)
	}
	if o.reporter == nil {
		o.reporter = NopReporter{}
	}
	c := &Collection{
		name:       name,
		bridge:     bridge{key: o.key, store: s},
		validators: o.validators,
		check:      o.check,
		reporter:   o.reporter,
		ids:        newIDGenerator(o.rnd),
		strict:     o.strict,
		docs:       newEntries(),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Len returns the number of documents.
func (c *Collection) Len() int { return c.docs.len() }

func (c *Collection) report(kind EventKind, id string, err error) {
	c.reporter.Report(Event{Kind: kind, Collection: c.name, ID: id, Err: err})
}

func (c *Collection) load() error {
	text, ok, err := c.bridge.load()
	if err == nil && !ok {
		// Nothing stored yet: start empty and persist that. A failed write is
		// reported by save and is not fatal.
		_ = c.save()
		return nil
	}
	var recs []snapshotEntry
	var bad []entryError
	if err == nil {
		recs, bad, err = decodeSnapshot(text)
	}
	if err != nil {
		if c.strict {
			return fmt.Errorf("%w: collection %q: %w", ErrInitializationFailed, c.name, err)
		}
		c.report(EventRecovered, "", err)
		c.docs = newEntries()
		// A failed write is already reported by save; the collection stays usable.
		_ = c.save()
		return nil
	}
	for _, b := range bad {
		c.report(EventInvalidEntry, b.ID, b.Err)
	}
	for _, r := range recs {
		if err := c.admit(c.docs, r.Record); err != nil {
			kind := EventInvalidEntry
			if errors.Is(err, ErrDuplicateID) {
				kind = EventDuplicateID
			}
			c.report(kind, r.ID, err)
		}
	}
	return nil
}

// admit adds r to e if its id is new to e and it validates.
func (c *Collection) admit(e *entries, r Record) error {
	if e.has(r.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
	}
	if err := c.validate(r.Data); err != nil {
		return err
	}
	e.set(r.ID, r.Data)
	return nil
}

// save persists the full collection. Failures are reported before being
// returned so that callers rolling back need not report them again.
func (c *Collection) save() error {
	if err := c.bridge.save(c.docs); err != nil {
		c.report(EventSaveFailed, "", err)
		return err
	}
	return nil
}

// validate runs the field predicates, then the document check.
func (c *Collection) validate(doc Document) error {
	if err := c.validators.validate(doc); err != nil {
		return err
	}
	if c.check != nil {
		if err := c.check(doc); err != nil {
			return fmt.Errorf("%w: %w", ErrValidationFailed, err)
		}
	}
	return nil
}

// Create validates doc, stores a copy under a new identifier and returns it.
// The copy is normalized to its snapshot form first, so numbers are stored as
// json.Number; a value that cannot be encoded fails with ErrSerialization.
func (c *Collection) Create(doc Document) (string, error) {
	doc, err := normalize(doc)
	if err != nil {
		return "", err
	}
	if err := c.validate(doc); err != nil {
		return "", err
	}
	id := c.ids.next(c.docs.has)
	c.docs.set(id, doc)
	if err := c.save(); err != nil {
		c.docs.remove(id)
		return "", err
	}
	return id, nil
}

// Update overlays patch on the document stored under id. It returns false
// without error when id does not exist. The merged document is validated as a
// whole; on validation or write failure the stored document is unchanged.
func (c *Collection) Update(id string, patch Document) (bool, error) {
	prev, ok := c.docs.get(id)
	if !ok {
		return false, nil
	}
	patch, err := normalize(patch)
	if err != nil {
		return false, err
	}
	merged := make(Document, len(prev)+len(patch))
	for k, v := range prev {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	if err := c.validate(merged); err != nil {
		return false, err
	}
	c.docs.set(id, merged)
	if err := c.save(); err != nil {
		c.docs.set(id, prev)
		return false, err
	}
	return true, nil
}

// Delete removes the document stored under id. It returns false without error
// when id does not exist. If the write fails the document is put back in its
// original position.
func (c *Collection) Delete(id string) (bool, error) {
	i, prev := c.docs.remove(id)
	if i < 0 {
		return false, nil
	}
	if err := c.save(); err != nil {
		c.docs.insertAt(i, id, prev)
		return false, err
	}
	return true, nil
}

// Clear removes every document and persists the empty snapshot.
func (c *Collection) Clear() error {
	prev := c.docs
	c.docs = newEntries()
	if err := c.save(); err != nil {
		c.docs = prev
		return err
	}
	return nil
}

// CreateResult is the outcome of one CreateMany item.
type CreateResult struct {
	ID  string
	Err error
}

// Patch is one UpdateMany item.
type Patch struct {
	ID     string
	Fields Document
}

// WriteResult is the outcome of one UpdateMany or DeleteMany item. OK is false
// with a nil Err when the identifier did not exist.
type WriteResult struct {
	OK  bool
	Err error
}

// CreateMany calls Create for each document in order. A failed item does not
// stop the rest.
func (c *Collection) CreateMany(docs []Document) []CreateResult {
	out := make([]CreateResult, len(docs))
	for i, d := range docs {
		out[i].ID, out[i].Err = c.Create(d)
	}
	return out
}

// UpdateMany calls Update for each patch in order.
func (c *Collection) UpdateMany(patches []Patch) []WriteResult {
	out := make([]WriteResult, len(patches))
	for i, p := range patches {
		out[i].OK, out[i].Err = c.Update(p.ID, p.Fields)
	}
	return out
}

// DeleteMany calls Delete for each identifier in order.
func (c *Collection) DeleteMany(ids []string) []WriteResult {
	out := make([]WriteResult, len(ids))
	for i, id := range ids {
		out[i].OK, out[i].Err = c.Delete(id)
	}
	return out
}

func record(id string, doc Document) Record {
	return Record{ID: id, Data: cloneDocument(doc)}
}

// FindByID returns a copy of the document stored under id.
func (c *Collection) FindByID(id string) (Record, bool) {
	doc, ok := c.docs.get(id)
	if !ok {
		return Record{}, false
	}
	return record(id, doc), true
}

// FindOne returns the first record, in collection order, accepted by pred.
func (c *Collection) FindOne(pred func(Record) bool) (Record, bool) {
	for id, doc := range c.docs.all() {
		if r := record(id, doc); pred(r) {
			return r, true
		}
	}
	return Record{}, false
}

// FindMany returns every record accepted by pred in collection order. A nil
// pred accepts everything.
func (c *Collection) FindMany(pred func(Record) bool) []Record {
	out := make([]Record, 0)
	for id, doc := range c.docs.all() {
		if r := record(id, doc); pred == nil || pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// FindLike returns the records where any of fields contains term, ignoring
// case. With no fields every field of the document is searched. Arrays and
// objects are searched element by element, so object keys never match.
// Values with no text form never match.
func (c *Collection) FindLike(term string, fields ...string) []Record {
	term = strings.ToLower(term)
	matches := func(v any) bool { return containsText(v, term) }
	out := make([]Record, 0)
	for id, doc := range c.docs.all() {
		found := false
		if len(fields) == 0 {
			for _, v := range doc {
				if matches(v) {
					found = true
					break
				}
			}
		} else {
			for _, f := range fields {
				if matches(doc[f]) {
					found = true
					break
				}
			}
		}
		if found {
			out = append(out, record(id, doc))
		}
	}
	return out
}

func checkConditions(conds []Condition) error {
	for _, cond := range conds {
		if !cond.Operator.Valid() {
			return fmt.Errorf("%w: %q on field %q", ErrUnknownOperator, cond.Operator, cond.Field)
		}
	}
	return nil
}

// Query returns the records satisfying every condition, ordered by sort and
// cut to the first limit results. No conditions match everything; limit <= 0
// means no limit.
func (c *Collection) Query(conds []Condition, sort SortSpec, limit int) ([]Record, error) {
	if err := checkConditions(conds); err != nil {
		return nil, err
	}
	if err := sort.validate(); err != nil {
		return nil, err
	}
	out := make([]Record, 0)
	for id, doc := range c.docs.all() {
		if matchAll(doc, conds) {
			out = append(out, Record{ID: id, Data: doc})
		}
	}
	sortRecords(out, sort)
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	for i := range out {
		out[i].Data = cloneDocument(out[i].Data)
	}
	return out, nil
}

// Count returns the number of documents.
func (c *Collection) Count() int { return c.docs.len() }

// CountWhere returns the number of documents satisfying cond.
func (c *Collection) CountWhere(cond Condition) (int, error) {
	if err := checkConditions([]Condition{cond}); err != nil {
		return 0, err
	}
	n := 0
	for _, doc := range c.docs.all() {
		if cond.Matches(doc) {
			n++
		}
	}
	return n, nil
}

// Export returns the snapshot text of the collection, the same format that
// is persisted and that Import accepts.
func (c *Collection) Export() (string, error) {
	text, err := encodeSnapshot(c.docs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExport, err)
	}
	return text, nil
}

// Rejection is an imported entry that was dropped.
type Rejection struct {
	Index int
	ID    string
	Err   error
}

// ImportReport summarizes an Import.
type ImportReport struct {
	Imported int
	Rejected []Rejection
}

// Import replaces the whole collection with the entries of a snapshot.
// Entries that are malformed, duplicated or fail validation are dropped and
// listed in the report. Malformed text or a failed write leaves the collection
// as it was.
func (c *Collection) Import(text string) (ImportReport, error) {
	recs, bad, err := decodeSnapshot(text)
	if err != nil {
		return ImportReport{}, fmt.Errorf("%w: %w", ErrImport, err)
	}
	var rep ImportReport
	for _, b := range bad {
		rep.Rejected = append(rep.Rejected, Rejection(b))
	}
	next := newEntries()
	for _, r := range recs {
		if err := c.admit(next, r.Record); err != nil {
			rep.Rejected = append(rep.Rejected, Rejection{Index: r.Index, ID: r.ID, Err: err})
		}
	}
	for _, r := range rep.Rejected {
		c.report(EventImportRejected, r.ID, r.Err)
	}
	prev := c.docs
	c.docs = next
	if err := c.save(); err != nil {
		c.docs = prev
		return rep, fmt.Errorf("%w: %w", ErrImport, err)
	}
	rep.Imported = next.len()
	return rep, nil
}
