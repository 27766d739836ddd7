package collection

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Operator is a comparison used by a Condition.
type Operator string

const (
	OpEq         Operator = "=="
	OpNe         Operator = "!="
	OpGt         Operator = ">"
	OpLt         Operator = "<"
	OpGte        Operator = ">="
	OpLte        Operator = "<="
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
)

// Valid reports whether op is one of the supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpLt, OpGte, OpLte, OpContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

// Condition tests one field of a document against a literal value.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// Orderable is implemented by condition values with their own ordering, for
// example a version type compared against stored strings. CompareTo returns
// ok=false when other is not comparable with the receiver, in which case the
// default order applies.
type Orderable interface {
	CompareTo(other any) (result int, ok bool)
}

// Matches reports whether doc satisfies c. An absent field holds nil.
// Relational operators never match when either side is nil.
func (c Condition) Matches(doc Document) bool {
	actual := doc[c.Field]
	switch c.Operator {
	case OpEq:
		return equalValues(actual, c.Value)
	case OpNe:
		return !equalValues(actual, c.Value)
	case OpGt, OpLt, OpGte, OpLte:
		if actual == nil || c.Value == nil {
			return false
		}
		r := compareValues(actual, c.Value)
		switch c.Operator {
		case OpGt:
			return r > 0
		case OpLt:
			return r < 0
		case OpGte:
			return r >= 0
		default:
			return r <= 0
		}
	case OpContains, OpStartsWith, OpEndsWith:
		a, ok1 := stringify(actual)
		b, ok2 := stringify(c.Value)
		if !ok1 || !ok2 {
			return false
		}
		a, b = strings.ToLower(a), strings.ToLower(b)
		switch c.Operator {
		case OpContains:
			return strings.Contains(a, b)
		case OpStartsWith:
			return strings.HasPrefix(a, b)
		default:
			return strings.HasSuffix(a, b)
		}
	}
	return false
}

func matchAll(doc Document, conds []Condition) bool {
	for _, c := range conds {
		if !c.Matches(doc) {
			return false
		}
	}
	return true
}

// toNumber converts any Go numeric type to float64.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// toInt converts v to int64 when it holds an integer exactly.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case json.Number:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	case float32:
		return toInt(float64(n))
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// compareNumbers orders two numeric values, exactly when both are integers.
func compareNumbers(a, b any) int {
	if x, ok := toInt(a); ok {
		if y, ok := toInt(b); ok {
			return cmp.Compare(x, y)
		}
	}
	x, _ := toNumber(a)
	y, _ := toNumber(b)
	return cmp.Compare(x, y)
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	}
	return nil, false
}

// equalValues compares numbers by value at any depth; other values must match
// exactly.
func equalValues(a, b any) bool {
	if _, ok := toNumber(a); ok {
		if _, ok := toNumber(b); ok {
			return compareNumbers(a, b) == 0
		}
		return false
	}
	if o, ok := a.(Orderable); ok {
		if r, ok := o.CompareTo(b); ok {
			return r == 0
		}
	}
	if o, ok := b.(Orderable); ok {
		if r, ok := o.CompareTo(a); ok {
			return r == 0
		}
	}
	if x, ok := a.([]any); ok {
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equalValues(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	if x, ok := asObject(a); ok {
		y, ok := asObject(b)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, ok := y[k]
			if !ok || !equalValues(v, w) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Values of different kinds order by rank: nil, bool, number, string, then
// everything else.
const (
	rankNil = iota
	rankBool
	rankNumber
	rankString
	rankOther
)

func rank(v any) int {
	if v == nil {
		return rankNil
	}
	if _, ok := v.(bool); ok {
		return rankBool
	}
	if _, ok := toNumber(v); ok {
		return rankNumber
	}
	if _, ok := v.(string); ok {
		return rankString
	}
	return rankOther
}

// compareValues is the total order used by relational operators and sorting.
// Values of equal rank compare naturally: false before true, numerically,
// byte-wise for strings, and by their JSON encoding for everything else.
// Orderable values take precedence when they accept the other operand.
func compareValues(a, b any) int {
	if o, ok := a.(Orderable); ok {
		if r, ok := o.CompareTo(b); ok {
			return r
		}
	}
	if o, ok := b.(Orderable); ok {
		if r, ok := o.CompareTo(a); ok {
			return -r
		}
	}
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankNil:
		return 0
	case rankBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case rankNumber:
		return compareNumbers(a, b)
	case rankString:
		return strings.Compare(a.(string), b.(string))
	}
	sa, _ := stringify(a)
	sb, _ := stringify(b)
	return strings.Compare(sa, sb)
}

// stringify returns the text form of v used by substring matching. nil and
// values that cannot be encoded have no text form.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	case fmt.Stringer:
		return t.String(), true
	}
	if n, ok := toNumber(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64), true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// containsText reports whether lowered term occurs in the text form of v, or
// of any element or object value nested in v.
func containsText(v any, term string) bool {
	if m, ok := asObject(v); ok {
		for _, e := range m {
			if containsText(e, term) {
				return true
			}
		}
		return false
	}
	if a, ok := v.([]any); ok {
		for _, e := range a {
			if containsText(e, term) {
				return true
			}
		}
		return false
	}
	s, ok := stringify(v)
	return ok && strings.Contains(strings.ToLower(s), term)
}

// ParseCondition parses the textual form "field op value", for example
// `age >= 20` or `name startsWith 'an'`. The value is decoded as a JSON
// literal when possible, with numbers kept as json.Number; single-quoted or
// otherwise unparsable values are kept as strings.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	ops := []struct {
		token string
		op    Operator
	}{
		{" contains ", OpContains},
		{" startswith ", OpStartsWith},
		{" endswith ", OpEndsWith},
		{"==", OpEq},
		{"!=", OpNe},
		{">=", OpGte},
		{"<=", OpLte},
		{">", OpGt},
		{"<", OpLt},
	}
	// ASCII-only folding keeps byte offsets aligned with s.
	lower := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
	best, bestLen := -1, 0
	var op Operator
	for _, o := range ops {
		i := strings.Index(lower, o.token)
		if i <= 0 {
			continue
		}
		if best == -1 || i < best || (i == best && len(o.token) > bestLen) {
			best, bestLen, op = i, len(o.token), o.op
		}
	}
	if best == -1 {
		return Condition{}, fmt.Errorf("%w: no operator in %q", ErrUnknownOperator, s)
	}
	field := strings.TrimSpace(s[:best])
	raw := strings.TrimSpace(s[best+bestLen:])
	if field == "" {
		return Condition{}, fmt.Errorf("missing field in condition %q", s)
	}
	return Condition{Field: field, Operator: op, Value: parseLiteral(raw)}, nil
}

func parseLiteral(raw string) any {
	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		return raw[1 : len(raw)-1]
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	if _, err := dec.Token(); err != io.EOF {
		return raw
	}
	return v
}
