package collection

import (
	"fmt"
	"slices"
	"strings"
)

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// SortField orders results by one field.
type SortField struct {
	Field string
	Order Order
}

// SortSpec is evaluated left to right; later fields only break ties left by
// earlier ones.
type SortSpec []SortField

func (s SortSpec) validate() error {
	for _, f := range s {
		if f.Order != Asc && f.Order != Desc {
			return fmt.Errorf("%w: %q for field %q", ErrInvalidSort, f.Order, f.Field)
		}
	}
	return nil
}

// ParseSortField parses "field", "field:asc" or "field:desc".
func ParseSortField(s string) (SortField, error) {
	field, order, found := strings.Cut(strings.TrimSpace(s), ":")
	if field == "" {
		return SortField{}, fmt.Errorf("missing field in sort %q", s)
	}
	f := SortField{Field: field, Order: Asc}
	if found {
		f.Order = Order(strings.ToLower(order))
	}
	if err := (SortSpec{f}).validate(); err != nil {
		return SortField{}, err
	}
	return f, nil
}

// sortRecords orders recs in place. The sort is stable, so records that
// compare equal on every field keep collection order.
func sortRecords(recs []Record, spec SortSpec) {
	if len(spec) == 0 {
		return
	}
	slices.SortStableFunc(recs, func(a, b Record) int {
		for _, f := range spec {
			r := compareValues(a.Data[f.Field], b.Data[f.Field])
			if r == 0 {
				continue
			}
			if f.Order == Desc {
				return -r
			}
			return r
		}
		return 0
	})
}
