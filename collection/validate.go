package collection

import (
	"maps"
	"slices"
)

// Predicate reports whether a field value is acceptable. Absent fields are
// passed as nil.
type Predicate func(value any) bool

// ValidatorMap maps field names to predicates. Fields without an entry are
// always valid.
type ValidatorMap map[string]Predicate

// validate checks every registered field of a complete document. Fields are
// visited in name order so the reported field is deterministic.
func (v ValidatorMap) validate(doc Document) error {
	for _, field := range slices.Sorted(maps.Keys(v)) {
		pred := v[field]
		if pred == nil {
			continue
		}
		value := doc[field]
		if !pred(value) {
			return &ValidationError{Field: field, Value: value}
		}
	}
	return nil
}
