package collection_test

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/stevemurr/blobdoc/collection"
	"github.com/stevemurr/blobdoc/store"
)

// flakyStore wraps a MemoryStore and fails on demand.
type flakyStore struct {
	*store.MemoryStore
	failSet bool
	getErr  error
	sets    int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: store.NewMemoryStore()}
}

func (f *flakyStore) Get(key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.MemoryStore.Get(key)
}

func (f *flakyStore) Set(key, value string) error {
	if f.failSet {
		return store.ErrValueTooLarge
	}
	f.sets++
	return f.MemoryStore.Set(key, value)
}

func (f *flakyStore) stored(t *testing.T, key string) string {
	t.Helper()
	v, _, err := f.MemoryStore.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

// events collects reported diagnostics.
type events []collection.Event

func (e *events) Report(ev collection.Event) { *e = append(*e, ev) }

func (e events) kinds() []collection.EventKind {
	var out []collection.EventKind
	for _, ev := range e {
		out = append(out, ev.Kind)
	}
	return out
}

func seeded() collection.Option {
	return collection.WithRand(rand.New(rand.NewPCG(1, 2)))
}

func newCollection(t *testing.T, s store.Store, opts ...collection.Option) *collection.Collection {
	t.Helper()
	c, err := collection.New("people", s, append([]collection.Option{seeded()}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// people returns a collection holding Ann(20), Ben(30), Cid(20) in that order.
func people(t *testing.T) (*collection.Collection, map[string]string) {
	t.Helper()
	c := newCollection(t, store.NewMemoryStore())
	ids := map[string]string{}
	for _, d := range []collection.Document{
		{"name": "Ann", "age": 20},
		{"name": "Ben", "age": 30},
		{"name": "Cid", "age": 20},
	} {
		id, err := c.Create(d)
		if err != nil {
			t.Fatal(err)
		}
		ids[d["name"].(string)] = id
	}
	return c, ids
}

func names(recs []collection.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Data["name"].(string))
	}
	return out
}

func TestNewNameLength(t *testing.T) {
	s := store.NewMemoryStore()
	for _, name := range []string{"", "abcdefghijklmnopq"} {
		if _, err := collection.New(name, s); !errors.Is(err, collection.ErrInvalidCollectionName) {
			t.Fatalf("New(%q): expected ErrInvalidCollectionName, got %v", name, err)
		}
	}
	for _, name := range []string{"a", "abcdefghijklmnop"} {
		if _, err := collection.New(name, s); err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
	}
}

func TestNewDerivesKeyFromName(t *testing.T) {
	s := store.NewMemoryStore()
	keys := map[string]string{
		"people":   "people",
		"my notes": "my_20notes",
		"café":     "caf_c3_a9",
		"a/b":      "a_2fb",
		"..":       "_2e_2e",
		"a b":      "a_20b",
		"a_20b":    "a_5f20b",
	}
	for name, key := range keys {
		c, err := collection.New(name, s)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if c.Name() != name {
			t.Fatalf("unexpected name %q", c.Name())
		}
		if _, err := c.Create(collection.Document{"from": name}); err != nil {
			t.Fatal(err)
		}
		v, ok, err := s.Get(key)
		if err != nil || !ok {
			t.Fatalf("New(%q): nothing stored under %q (err=%v)", name, key, err)
		}
		if !strings.Contains(v, name) {
			t.Fatalf("key %q holds %s", key, v)
		}
	}

	c, err := collection.New("my notes", s, collection.WithKey("notes"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get("notes"); !ok || c.Len() != 0 {
		t.Fatal("WithKey did not select a fresh key")
	}
	if _, err := collection.New("my notes", s, collection.WithKey("bad key")); !errors.Is(err, store.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestNewPersistsEmptySnapshot(t *testing.T) {
	s := store.NewMemoryStore()
	var ev events
	c := newCollection(t, s, collection.WithReporter(&ev))
	if c.Len() != 0 {
		t.Fatalf("expected empty collection, got %d", c.Len())
	}
	v, ok, err := s.Get("people")
	if err != nil || !ok || v != "[]" {
		t.Fatalf("expected persisted empty snapshot, got (%q, %v, %v)", v, ok, err)
	}
	if len(ev) != 0 {
		t.Fatalf("unexpected events %+v", ev)
	}
}

func TestNewEmptySnapshotWriteFailureIsNotFatal(t *testing.T) {
	s := newFlakyStore()
	s.failSet = true
	var ev events
	c := newCollection(t, s, collection.WithReporter(&ev))
	if c.Len() != 0 {
		t.Fatal("expected empty collection")
	}
	if diff := cmp.Diff([]collection.EventKind{collection.EventSaveFailed}, ev.kinds()); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestCreateFindByID(t *testing.T) {
	s := store.NewMemoryStore()
	c := newCollection(t, s)
	doc := collection.Document{
		"name": "Ann",
		"age":  20,
		"tags": []any{"a", "b"},
		"meta": map[string]any{"x": 1.5},
	}
	id, err := c.Create(doc)
	if err != nil {
		t.Fatal(err)
	}
	if !collection.ValidID(id) {
		t.Fatalf("malformed id %q", id)
	}
	got, ok := c.FindByID(id)
	if !ok {
		t.Fatal("created document not found")
	}
	want := collection.Document{
		"name": "Ann",
		"age":  json.Number("20"),
		"tags": []any{"a", "b"},
		"meta": map[string]any{"x": json.Number("1.5")},
	}
	if diff := cmp.Diff(want, got.Data); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
	if got.ID != id {
		t.Fatalf("expected id %s, got %s", id, got.ID)
	}

	// The stored form is the persisted form.
	reopened := newCollection(t, s)
	again, _ := reopened.FindByID(id)
	if diff := cmp.Diff(got.Data, again.Data); diff != "" {
		t.Fatalf("reloaded document (-want +got):\n%s", diff)
	}
}

func TestLargeIntegersSurviveReload(t *testing.T) {
	s := store.NewMemoryStore()
	c := newCollection(t, s)
	id, err := c.Create(collection.Document{"big": int64(9007199254740993)})
	if err != nil {
		t.Fatal(err)
	}
	before := c.FindMany(nil)
	if before[0].Data["big"] != json.Number("9007199254740993") {
		t.Fatalf("stored %v", before[0].Data["big"])
	}

	reopened := newCollection(t, s)
	if diff := cmp.Diff(before, reopened.FindMany(nil)); diff != "" {
		t.Fatalf("reloaded (-want +got):\n%s", diff)
	}
	for _, tt := range []struct {
		value any
		want  int
	}{
		{int64(9007199254740993), 1},
		{json.Number("9007199254740993"), 1},
		{int64(9007199254740992), 0},
		{float64(9007199254740992), 0},
	} {
		got, err := reopened.Query([]collection.Condition{{Field: "big", Operator: collection.OpEq, Value: tt.value}}, nil, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != tt.want {
			t.Fatalf("big == %v: expected %d matches, got %d", tt.value, tt.want, len(got))
		}
	}
	if _, ok := reopened.FindByID(id); !ok {
		t.Fatal("document missing after reload")
	}
}

func TestCreateRejectsUnencodableValues(t *testing.T) {
	s := newFlakyStore()
	c := newCollection(t, s)
	s.sets = 0
	for _, doc := range []collection.Document{
		{"fn": func() {}},
		{"ch": make(chan int)},
		{"nested": map[string]any{"bad": func() {}}},
	} {
		if _, err := c.Create(doc); !errors.Is(err, collection.ErrSerialization) {
			t.Fatalf("expected ErrSerialization, got %v", err)
		}
	}
	if c.Len() != 0 || s.sets != 0 {
		t.Fatalf("rejected documents must not be stored (len=%d sets=%d)", c.Len(), s.sets)
	}

	id, err := c.Create(collection.Document{"n": 1})
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := c.Update(id, collection.Document{"fn": func() {}}); ok || !errors.Is(err, collection.ErrSerialization) {
		t.Fatalf("expected (false, ErrSerialization), got (%v, %v)", ok, err)
	}
	got, _ := c.FindByID(id)
	if diff := cmp.Diff(collection.Document{"n": json.Number("1")}, got.Data); diff != "" {
		t.Fatalf("rejected update changed the document (-want +got):\n%s", diff)
	}
}

func TestCreateCopiesInput(t *testing.T) {
	c := newCollection(t, store.NewMemoryStore())
	tags := []any{"a"}
	doc := collection.Document{"tags": tags}
	id, err := c.Create(doc)
	if err != nil {
		t.Fatal(err)
	}
	tags[0] = "changed"
	doc["extra"] = true

	got, _ := c.FindByID(id)
	got.Data["tags"].([]any)[0] = "mutated"

	again, _ := c.FindByID(id)
	if diff := cmp.Diff(collection.Document{"tags": []any{"a"}}, again.Data); diff != "" {
		t.Fatalf("stored document changed through aliases (-want +got):\n%s", diff)
	}
}

func TestCreatePersists(t *testing.T) {
	s := store.NewMemoryStore()
	c := newCollection(t, s)
	id, err := c.Create(collection.Document{"name": "Ann"})
	if err != nil {
		t.Fatal(err)
	}
	reopened := newCollection(t, s)
	got, ok := reopened.FindByID(id)
	if !ok {
		t.Fatal("document not persisted")
	}
	if got.Data["name"] != "Ann" {
		t.Fatalf("unexpected document %v", got.Data)
	}
}

type collidingSource struct {
	vals []uint64
	i    int
}

func (s *collidingSource) Uint64() uint64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func TestIdentifierRetriesOnCollision(t *testing.T) {
	var vals []uint64
	for _, v := range []uint64{0, 0, 1} {
		for range collection.IDLength {
			vals = append(vals, v)
		}
	}
	c := newCollection(t, store.NewMemoryStore(), collection.WithRand(rand.New(&collidingSource{vals: vals})))
	first, err := c.Create(collection.Document{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Create(collection.Document{})
	if err != nil {
		t.Fatal(err)
	}
	if first != strings.Repeat("0", 16) {
		t.Fatalf("unexpected first id %s", first)
	}
	if second != strings.Repeat("1", 16) {
		t.Fatalf("expected the colliding id to be redrawn, got %s", second)
	}
}

func TestIdentifiersUnique(t *testing.T) {
	c := newCollection(t, store.NewMemoryStore())
	seen := map[string]bool{}
	for i := range 500 {
		id, err := c.Create(collection.Document{"n": i})
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if c.Len() != 500 {
		t.Fatalf("expected 500 documents, got %d", c.Len())
	}
}

func TestIdentifiersDeterministicWithSeed(t *testing.T) {
	a := newCollection(t, store.NewMemoryStore())
	b := newCollection(t, store.NewMemoryStore())
	for range 10 {
		x, _ := a.Create(collection.Document{})
		y, _ := b.Create(collection.Document{})
		if x != y {
			t.Fatalf("same seed produced %s and %s", x, y)
		}
	}
}

func positiveAge() collection.ValidatorMap {
	return collection.ValidatorMap{
		"age": func(v any) bool {
			n, ok := v.(json.Number)
			if !ok {
				return false
			}
			f, err := n.Float64()
			return err == nil && f > 0
		},
	}
}

func TestCreateValidation(t *testing.T) {
	s := newFlakyStore()
	c := newCollection(t, s, collection.WithValidators(positiveAge()))
	s.sets = 0
	_, err := c.Create(collection.Document{"age": -1})
	if !errors.Is(err, collection.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	var verr *collection.ValidationError
	if !errors.As(err, &verr) || verr.Field != "age" {
		t.Fatalf("expected ValidationError for age, got %v", err)
	}
	// Absent fields are validated as nil.
	if _, err := c.Create(collection.Document{"name": "no age"}); !errors.Is(err, collection.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for missing field, got %v", err)
	}
	if c.Len() != 0 || s.sets != 0 {
		t.Fatalf("rejected documents must not be stored (len=%d sets=%d)", c.Len(), s.sets)
	}
}

func TestCreateRollsBackOnWriteFailure(t *testing.T) {
	s := newFlakyStore()
	c := newCollection(t, s)
	if _, err := c.Create(collection.Document{"name": "Ann"}); err != nil {
		t.Fatal(err)
	}
	before := s.stored(t, "people")

	var ev events
	c2 := newCollection(t, s, collection.WithReporter(&ev))
	s.failSet = true
	id, err := c2.Create(collection.Document{"name": "Ben"})
	if !errors.Is(err, collection.ErrStorageWrite) {
		t.Fatalf("expected ErrStorageWrite, got %v", err)
	}
	if !errors.Is(err, store.ErrValueTooLarge) {
		t.Fatalf("expected the store error to be wrapped, got %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty id, got %s", id)
	}
	if c2.Len() != 1 {
		t.Fatalf("failed insert left %d documents in memory", c2.Len())
	}
	if got := s.stored(t, "people"); got != before {
		t.Fatalf("store changed: %s", got)
	}
	if diff := cmp.Diff([]collection.EventKind{collection.EventSaveFailed}, ev.kinds()); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestUpdate(t *testing.T) {
	c, ids := people(t)
	ok, err := c.Update(ids["Ann"], collection.Document{"age": 21, "city": "Oslo"})
	if err != nil || !ok {
		t.Fatalf("Update: ok=%v err=%v", ok, err)
	}
	got, _ := c.FindByID(ids["Ann"])
	want := collection.Document{"name": "Ann", "age": json.Number("21"), "city": "Oslo"}
	if diff := cmp.Diff(want, got.Data); diff != "" {
		t.Fatalf("merged document (-want +got):\n%s", diff)
	}
	// Updating keeps collection order.
	if diff := cmp.Diff([]string{"Ann", "Ben", "Cid"}, names(c.FindMany(nil))); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestUpdateMissing(t *testing.T) {
	s := newFlakyStore()
	c := newCollection(t, s)
	s.sets = 0
	ok, err := c.Update("0123456789abcdef", collection.Document{"x": 1})
	if ok || err != nil {
		t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
	}
	if s.sets != 0 {
		t.Fatalf("update of a missing id wrote to the store %d times", s.sets)
	}
}

func TestUpdateValidatesMergedDocument(t *testing.T) {
	s := newFlakyStore()
	v := collection.ValidatorMap{
		"age":  positiveAge()["age"],
		"name": func(v any) bool { name, ok := v.(string); return ok && name != "" },
	}
	c := newCollection(t, s, collection.WithValidators(v))
	id, err := c.Create(collection.Document{"name": "Ann", "age": 20})
	if err != nil {
		t.Fatal(err)
	}

	// The patch alone lacks "name"; merged with the stored document it is valid.
	if ok, err := c.Update(id, collection.Document{"age": 22}); err != nil || !ok {
		t.Fatalf("valid partial update failed: ok=%v err=%v", ok, err)
	}
	before := s.stored(t, "people")

	ok, err := c.Update(id, collection.Document{"age": 0})
	if ok || !errors.Is(err, collection.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got (%v, %v)", ok, err)
	}
	got, _ := c.FindByID(id)
	if got.Data["age"] != json.Number("22") {
		t.Fatalf("rejected update changed the document: %v", got.Data)
	}
	if s.stored(t, "people") != before {
		t.Fatal("rejected update changed the store")
	}
}

func TestUpdateRollsBackOnWriteFailure(t *testing.T) {
	s := newFlakyStore()
	c := newCollection(t, s)
	id, _ := c.Create(collection.Document{"name": "Ann"})
	s.failSet = true
	ok, err := c.Update(id, collection.Document{"name": "Anna"})
	if ok || !errors.Is(err, collection.ErrStorageWrite) {
		t.Fatalf("expected (false, ErrStorageWrite), got (%v, %v)", ok, err)
	}
	got, _ := c.FindByID(id)
	if got.Data["name"] != "Ann" {
		t.Fatalf("expected rollback to Ann, got %v", got.Data["name"])
	}
}

func TestDelete(t *testing.T) {
	c, ids := people(t)
	ok, err := c.Delete(ids["Ben"])
	if err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	if _, found := c.FindByID(ids["Ben"]); found {
		t.Fatal("deleted document still present")
	}
	ok, err = c.Delete(ids["Ben"])
	if ok || err != nil {
		t.Fatalf("second delete: expected (false, nil), got (%v, %v)", ok, err)
	}
}

func TestDeleteRestoresPositionOnWriteFailure(t *testing.T) {
	s := newFlakyStore()
	c := newCollection(t, s)
	for _, n := range []string{"Ann", "Ben", "Cid"} {
		if _, err := c.Create(collection.Document{"name": n}); err != nil {
			t.Fatal(err)
		}
	}
	ben, _ := c.FindOne(func(r collection.Record) bool { return r.Data["name"] == "Ben" })
	s.failSet = true
	ok, err := c.Delete(ben.ID)
	if ok || !errors.Is(err, collection.ErrStorageWrite) {
		t.Fatalf("expected (false, ErrStorageWrite), got (%v, %v)", ok, err)
	}
	if diff := cmp.Diff([]string{"Ann", "Ben", "Cid"}, names(c.FindMany(nil))); diff != "" {
		t.Fatalf("order after failed delete (-want +got):\n%s", diff)
	}
}

func TestClear(t *testing.T) {
	s := newFlakyStore()
	c := newCollection(t, s)
	for range 3 {
		if _, err := c.Create(collection.Document{"x": 1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if c.Count() != 0 {
		t.Fatalf("expected 0 documents, got %d", c.Count())
	}
	if got := s.stored(t, "people"); got != "[]" {
		t.Fatalf("expected persisted empty snapshot, got %s", got)
	}
}

func TestClearRollsBackOnWriteFailure(t *testing.T) {
	s := newFlakyStore()
	c := newCollection(t, s)
	if _, err := c.Create(collection.Document{"x": 1}); err != nil {
		t.Fatal(err)
	}
	s.failSet = true
	if err := c.Clear(); !errors.Is(err, collection.ErrStorageWrite) {
		t.Fatalf("expected ErrStorageWrite, got %v", err)
	}
	if c.Count() != 1 {
		t.Fatalf("failed clear dropped documents, %d left", c.Count())
	}
}

func TestBulk(t *testing.T) {
	c := newCollection(t, store.NewMemoryStore(), collection.WithValidators(positiveAge()))
	created := c.CreateMany([]collection.Document{
		{"age": 1},
		{"age": -1},
		{"age": 3},
	})
	if len(created) != 3 {
		t.Fatalf("expected 3 results, got %d", len(created))
	}
	if created[0].Err != nil || created[2].Err != nil {
		t.Fatalf("valid items failed: %+v", created)
	}
	if !errors.Is(created[1].Err, collection.ErrValidationFailed) || created[1].ID != "" {
		t.Fatalf("invalid item: %+v", created[1])
	}
	if c.Count() != 2 {
		t.Fatalf("expected 2 documents, got %d", c.Count())
	}

	updated := c.UpdateMany([]collection.Patch{
		{ID: created[0].ID, Fields: collection.Document{"age": 10}},
		{ID: "ffffffffffffffff", Fields: collection.Document{"age": 10}},
		{ID: created[2].ID, Fields: collection.Document{"age": 0}},
	})
	if !updated[0].OK || updated[0].Err != nil {
		t.Fatalf("first update: %+v", updated[0])
	}
	if updated[1].OK || updated[1].Err != nil {
		t.Fatalf("missing id: %+v", updated[1])
	}
	if updated[2].OK || !errors.Is(updated[2].Err, collection.ErrValidationFailed) {
		t.Fatalf("invalid update: %+v", updated[2])
	}

	deleted := c.DeleteMany([]string{created[0].ID, created[0].ID, created[2].ID})
	want := []bool{true, false, true}
	for i, r := range deleted {
		if r.OK != want[i] || r.Err != nil {
			t.Fatalf("delete %d: %+v", i, r)
		}
	}
	if c.Count() != 0 {
		t.Fatalf("expected empty collection, got %d", c.Count())
	}
}

func TestFind(t *testing.T) {
	c, ids := people(t)

	if diff := cmp.Diff([]string{"Ann", "Ben", "Cid"}, names(c.FindMany(nil))); diff != "" {
		t.Fatalf("FindMany(nil) (-want +got):\n%s", diff)
	}
	twenty := func(r collection.Record) bool { return r.Data["age"] == json.Number("20") }
	if diff := cmp.Diff([]string{"Ann", "Cid"}, names(c.FindMany(twenty))); diff != "" {
		t.Fatalf("FindMany (-want +got):\n%s", diff)
	}
	r, ok := c.FindOne(twenty)
	if !ok || r.ID != ids["Ann"] {
		t.Fatalf("FindOne: expected Ann, got %+v", r)
	}
	if _, ok := c.FindOne(func(collection.Record) bool { return false }); ok {
		t.Fatal("FindOne matched nothing but reported found")
	}
	if _, ok := c.FindByID("0000000000000000"); ok {
		t.Fatal("FindByID found a missing id")
	}
	if got := c.FindMany(func(collection.Record) bool { return false }); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestFindLike(t *testing.T) {
	c, _ := people(t)
	if diff := cmp.Diff([]string{"Ann"}, names(c.FindLike("an"))); diff != "" {
		t.Fatalf("FindLike(an) (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Ann", "Cid"}, names(c.FindLike("2", "age"))); diff != "" {
		t.Fatalf("FindLike on age (-want +got):\n%s", diff)
	}
	if got := c.FindLike("an", "age"); len(got) != 0 {
		t.Fatalf("field restriction ignored: %v", names(got))
	}
	if diff := cmp.Diff([]string{"Ann", "Ben", "Cid"}, names(c.FindLike("", "name"))); diff != "" {
		t.Fatalf("empty term (-want +got):\n%s", diff)
	}
}

func TestFindLikeNested(t *testing.T) {
	c := newCollection(t, store.NewMemoryStore())
	for _, d := range []collection.Document{
		{"name": "Eve", "meta": map[string]any{"name": "x", "tags": []any{"Blue"}}},
		{"name": "Fay", "meta": map[string]any{"note": "named after Fay"}},
	} {
		if _, err := c.Create(d); err != nil {
			t.Fatal(err)
		}
	}
	// Nested key names are not searched; nested values are.
	if diff := cmp.Diff([]string{"Fay"}, names(c.FindLike("name", "meta"))); diff != "" {
		t.Fatalf("FindLike(name) (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Eve"}, names(c.FindLike("x", "meta"))); diff != "" {
		t.Fatalf("FindLike(x) (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Eve"}, names(c.FindLike("blue"))); diff != "" {
		t.Fatalf("FindLike(blue) (-want +got):\n%s", diff)
	}
	if got := c.FindLike("tags"); len(got) != 0 {
		t.Fatalf("key name matched: %v", names(got))
	}
}

func TestQuery(t *testing.T) {
	c, _ := people(t)

	got, err := c.Query([]collection.Condition{{Field: "age", Operator: collection.OpEq, Value: 20}}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Ann", "Cid"}, names(got)); diff != "" {
		t.Fatalf("age == 20 (-want +got):\n%s", diff)
	}

	sort := collection.SortSpec{{Field: "age", Order: collection.Desc}, {Field: "name", Order: collection.Asc}}
	got, err = c.Query(nil, sort, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Ben", "Ann", "Cid"}, names(got)); diff != "" {
		t.Fatalf("sorted (-want +got):\n%s", diff)
	}

	got, err = c.Query(nil, sort, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Ben", "Ann"}, names(got)); diff != "" {
		t.Fatalf("limited (-want +got):\n%s", diff)
	}

	for _, limit := range []int{-5, 0, 3, 100} {
		got, err = c.Query(nil, nil, limit)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Fatalf("limit %d: expected 3 results, got %d", limit, len(got))
		}
	}

	got, err = c.Query([]collection.Condition{
		{Field: "age", Operator: collection.OpLt, Value: 25},
		{Field: "name", Operator: collection.OpStartsWith, Value: "c"},
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Cid"}, names(got)); diff != "" {
		t.Fatalf("AND (-want +got):\n%s", diff)
	}
}

func TestQueryStableSort(t *testing.T) {
	c, _ := people(t)
	got, err := c.Query(nil, collection.SortSpec{{Field: "age", Order: collection.Asc}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Ann", "Cid", "Ben"}, names(got)); diff != "" {
		t.Fatalf("ties must keep collection order (-want +got):\n%s", diff)
	}
}

func TestQueryErrors(t *testing.T) {
	c, _ := people(t)
	if _, err := c.Query([]collection.Condition{{Field: "age", Operator: "~"}}, nil, 0); !errors.Is(err, collection.ErrUnknownOperator) {
		t.Fatalf("expected ErrUnknownOperator, got %v", err)
	}
	if _, err := c.Query(nil, collection.SortSpec{{Field: "age", Order: "up"}}, 0); !errors.Is(err, collection.ErrInvalidSort) {
		t.Fatalf("expected ErrInvalidSort, got %v", err)
	}
	if _, err := c.CountWhere(collection.Condition{Field: "age", Operator: "=~"}); !errors.Is(err, collection.ErrUnknownOperator) {
		t.Fatalf("expected ErrUnknownOperator, got %v", err)
	}
}

func TestCount(t *testing.T) {
	c, _ := people(t)
	if c.Count() != len(c.FindMany(func(collection.Record) bool { return true })) {
		t.Fatal("Count disagrees with FindMany")
	}
	for _, cond := range []collection.Condition{
		{Field: "age", Operator: collection.OpEq, Value: 20},
		{Field: "age", Operator: collection.OpGte, Value: 30},
		{Field: "name", Operator: collection.OpContains, Value: "I"},
		{Field: "missing", Operator: collection.OpNe, Value: nil},
	} {
		n, err := c.CountWhere(cond)
		if err != nil {
			t.Fatal(err)
		}
		got, err := c.Query([]collection.Condition{cond}, nil, 0)
		if err != nil {
			t.Fatal(err)
		}
		if n != len(got) {
			t.Fatalf("%s: CountWhere=%d, Query=%d", cond, n, len(got))
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src, _ := people(t)
	text, err := src.Export()
	if err != nil {
		t.Fatal(err)
	}

	dst, err := collection.New("copy", store.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	rep, err := dst.Import(text)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Imported != 3 || len(rep.Rejected) != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	again, err := dst.Export()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(text, again); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(src.FindMany(nil), dst.FindMany(nil)); diff != "" {
		t.Fatalf("imported documents (-want +got):\n%s", diff)
	}
}

func TestImportDropsInvalidEntries(t *testing.T) {
	var ev events
	s := newFlakyStore()
	c := newCollection(t, s, collection.WithValidators(positiveAge()), collection.WithReporter(&ev))
	if _, err := c.Create(collection.Document{"age": 99}); err != nil {
		t.Fatal(err)
	}
	text := `[
		["aaaaaaaaaaaaaaaa", {"age": 5}],
		["bbbbbbbbbbbbbbbb", {"age": -5}],
		["aaaaaaaaaaaaaaaa", {"age": 6}],
		["not-an-id", {"age": 7}],
		["cccccccccccccccc", 12],
		"junk"
	]`
	rep, err := c.Import(text)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Imported != 1 {
		t.Fatalf("expected 1 imported, got %d", rep.Imported)
	}
	var idx []int
	for _, r := range rep.Rejected {
		idx = append(idx, r.Index)
	}
	// Decode failures are listed before validation failures.
	if diff := cmp.Diff([]int{3, 4, 5, 1, 2}, idx); diff != "" {
		t.Fatalf("rejected indexes (-want +got):\n%s", diff)
	}
	if !errors.Is(rep.Rejected[4].Err, collection.ErrDuplicateID) {
		t.Fatalf("expected duplicate id rejection, got %v", rep.Rejected[4].Err)
	}
	if len(ev) != 5 {
		t.Fatalf("expected 5 reported rejections, got %d", len(ev))
	}
	if c.Count() != 1 {
		t.Fatalf("import must replace the collection, have %d documents", c.Count())
	}
	if _, ok := c.FindByID("aaaaaaaaaaaaaaaa"); !ok {
		t.Fatal("valid entry missing")
	}
}

func TestImportMalformed(t *testing.T) {
	c, _ := people(t)
	_, err := c.Import("{not json")
	if !errors.Is(err, collection.ErrImport) || !errors.Is(err, collection.ErrSerialization) {
		t.Fatalf("expected ErrImport wrapping ErrSerialization, got %v", err)
	}
	if c.Count() != 3 {
		t.Fatalf("malformed import changed the collection: %d documents", c.Count())
	}
}

func TestImportRollsBackOnWriteFailure(t *testing.T) {
	s := newFlakyStore()
	c := newCollection(t, s)
	if _, err := c.Create(collection.Document{"x": 1}); err != nil {
		t.Fatal(err)
	}
	s.failSet = true
	_, err := c.Import(`[["aaaaaaaaaaaaaaaa", {"x": 2}], ["bbbbbbbbbbbbbbbb", {"x": 3}]]`)
	if !errors.Is(err, collection.ErrImport) || !errors.Is(err, collection.ErrStorageWrite) {
		t.Fatalf("expected ErrImport wrapping ErrStorageWrite, got %v", err)
	}
	if c.Count() != 1 {
		t.Fatalf("failed import changed the collection: %d documents", c.Count())
	}
}

func TestLoadDropsInvalidEntries(t *testing.T) {
	s := store.NewMemoryStore()
	snapshot := `[["aaaaaaaaaaaaaaaa",{"age":1}],["bbbbbbbbbbbbbbbb",{"age":"x"}],["aaaaaaaaaaaaaaaa",{"age":2}]]`
	if err := s.Set("people", snapshot); err != nil {
		t.Fatal(err)
	}
	var ev events
	v := collection.ValidatorMap{"age": func(v any) bool { _, ok := v.(json.Number); return ok }}
	c := newCollection(t, s, collection.WithValidators(v), collection.WithReporter(&ev))
	if c.Count() != 1 {
		t.Fatalf("expected 1 document, got %d", c.Count())
	}
	want := []collection.EventKind{collection.EventInvalidEntry, collection.EventDuplicateID}
	if diff := cmp.Diff(want, ev.kinds()); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	got, _ := c.FindByID("aaaaaaaaaaaaaaaa")
	if got.Data["age"] != json.Number("1") {
		t.Fatalf("first occurrence should win, got %v", got.Data)
	}
}

func TestLoadRecoversFromCorruptSnapshot(t *testing.T) {
	s := newFlakyStore()
	if err := s.MemoryStore.Set("people", "{corrupt"); err != nil {
		t.Fatal(err)
	}
	var ev events
	c := newCollection(t, s, collection.WithReporter(&ev))
	if c.Count() != 0 {
		t.Fatalf("expected empty collection, got %d", c.Count())
	}
	if got := s.stored(t, "people"); got != "[]" {
		t.Fatalf("expected corrupt snapshot to be overwritten, got %q", got)
	}
	if len(ev) != 1 || ev[0].Kind != collection.EventRecovered || !errors.Is(ev[0].Err, collection.ErrSerialization) {
		t.Fatalf("unexpected events %+v", ev)
	}
}

func TestLoadRecoversFromReadFault(t *testing.T) {
	s := newFlakyStore()
	s.getErr = errors.New("disk on fire")
	var ev events
	c := newCollection(t, s, collection.WithReporter(&ev))
	if c.Count() != 0 {
		t.Fatalf("expected empty collection, got %d", c.Count())
	}
	if len(ev) != 1 || !errors.Is(ev[0].Err, collection.ErrStorageRead) {
		t.Fatalf("unexpected events %+v", ev)
	}
	if s.sets != 1 {
		t.Fatalf("expected the empty snapshot to be written once, got %d writes", s.sets)
	}
	if _, err := c.Create(collection.Document{"ok": true}); err != nil {
		t.Fatalf("recovered collection unusable: %v", err)
	}
}

func TestLoadRecoveryWriteFailureIsNotFatal(t *testing.T) {
	s := newFlakyStore()
	s.getErr = errors.New("unreadable")
	s.failSet = true
	var ev events
	c := newCollection(t, s, collection.WithReporter(&ev))
	if c.Count() != 0 {
		t.Fatal("expected empty collection")
	}
	want := []collection.EventKind{collection.EventRecovered, collection.EventSaveFailed}
	if diff := cmp.Diff(want, ev.kinds()); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestStrictLoad(t *testing.T) {
	s := newFlakyStore()
	if err := s.MemoryStore.Set("people", "{corrupt"); err != nil {
		t.Fatal(err)
	}
	_, err := collection.New("people", s, collection.WithStrictLoad())
	if !errors.Is(err, collection.ErrInitializationFailed) || !errors.Is(err, collection.ErrSerialization) {
		t.Fatalf("expected ErrInitializationFailed, got %v", err)
	}
	if got := s.stored(t, "people"); got != "{corrupt" {
		t.Fatalf("strict load must leave the snapshot intact, got %q", got)
	}
}

func TestSizeLimitedStore(t *testing.T) {
	s := store.Limit(store.NewMemoryStore(), 64)
	c := newCollection(t, s)
	if _, err := c.Create(collection.Document{"n": 1}); err != nil {
		t.Fatal(err)
	}
	_, err := c.Create(collection.Document{"text": strings.Repeat("x", 64)})
	if !errors.Is(err, store.ErrValueTooLarge) {
		t.Fatalf("expected ErrValueTooLarge, got %v", err)
	}
	if c.Count() != 1 {
		t.Fatalf("oversized snapshot left %d documents in memory", c.Count())
	}
}

func TestSlogReporter(t *testing.T) {
	// A nil logger falls back to slog.Default and must not panic.
	collection.SlogReporter{}.Report(collection.Event{Kind: collection.EventRecovered, Collection: "x"})
}
