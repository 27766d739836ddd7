// Package schema turns JSON Schema documents into collection validators.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/stevemurr/blobdoc/collection"
)

// Load reads a schema file. Comments and trailing commas are allowed.
func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a JSON-with-comments schema.
func Parse(data []byte) (map[string]any, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	var s map[string]any
	if err := json.Unmarshal(std, &s); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("invalid schema: not an object")
	}
	return s, nil
}

// Validators builds one predicate per entry of the schema's "properties".
// Absent and null fields pass unless the field is listed in "required".
// Fields named only in "required" get a presence check. Keywords that span
// fields, such as "additionalProperties", are left to DocumentValidator.
func Validators(s map[string]any) (collection.ValidatorMap, error) {
	if s == nil {
		return nil, nil
	}
	if t, ok := s["type"]; ok && t != "object" {
		return nil, fmt.Errorf("schema: top-level type must be \"object\", got %v", t)
	}

	required := map[string]bool{}
	if req, ok := s["required"].([]any); ok {
		for _, r := range req {
			field, ok := r.(string)
			if !ok {
				return nil, fmt.Errorf("schema: required entry %v is not a string", r)
			}
			required[field] = true
		}
	}

	vm := collection.ValidatorMap{}
	if raw, ok := s["properties"]; ok {
		props, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("schema: properties must be an object")
		}
		for field, p := range props {
			ps, ok := p.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("schema: property %q must be an object", field)
			}
			vm[field] = predicate(field, ps, required[field])
		}
	}
	for field := range required {
		if _, ok := vm[field]; !ok {
			vm[field] = func(v any) bool { return v != nil }
		}
	}
	return vm, nil
}

func predicate(field string, ps map[string]any, required bool) collection.Predicate {
	return func(v any) bool {
		if v == nil {
			return !required
		}
		return validateValue(ps, v, "$."+field) == nil
	}
}

// DocumentValidator returns a whole-document check for
// collection.WithDocumentValidator that applies Validate with s.
func DocumentValidator(s map[string]any) func(collection.Document) error {
	return func(doc collection.Document) error {
		return Validate(s, doc)
	}
}

// Validate checks a whole document against a JSON Schema (draft-07 subset).
// Returns nil if validation passes or the schema is nil.
//
// Supported JSON Schema keywords:
//   - type (string, number, integer, boolean, object, array, null)
//   - properties, required, additionalProperties
//   - items (for arrays)
//   - minimum, maximum, exclusiveMinimum, exclusiveMaximum
//   - minLength, maxLength
//   - minItems, maxItems
//   - enum
func Validate(schema map[string]any, doc map[string]any) error {
	if schema == nil {
		return nil
	}
	return validateValue(schema, doc, "")
}

func validateValue(schema map[string]any, value any, path string) error {
	if path == "" {
		path = "$"
	}

	if t, ok := schema["type"]; ok {
		if ts, ok := t.(string); ok {
			if err := checkType(ts, value, path); err != nil {
				return err
			}
		}
	}

	if enumRaw, ok := schema["enum"]; ok {
		if enumList, ok := enumRaw.([]any); ok {
			if err := checkEnum(enumList, value, path); err != nil {
				return err
			}
		}
	}

	switch v := value.(type) {
	case collection.Document:
		return validateObject(schema, v, path)
	case map[string]any:
		return validateObject(schema, v, path)
	case []any:
		return validateArray(schema, v, path)
	case string:
		return validateString(schema, v, path)
	}
	if n, ok := toFloat(value); ok {
		return validateNumber(schema, n, path)
	}
	return nil
}

func checkType(expected string, value any, path string) error {
	actual := jsonType(value)
	if expected == "integer" {
		// Whole floats count as integers.
		if f, ok := toFloat(value); ok && f == float64(int64(f)) {
			return nil
		}
		if actual != "integer" {
			return fmt.Errorf("%s: expected type %q, got %q", path, expected, actual)
		}
		return nil
	}
	if actual != expected {
		if expected == "number" && actual == "integer" {
			return nil
		}
		return fmt.Errorf("%s: expected type %q, got %q", path, expected, actual)
	}
	return nil
}

func jsonType(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case map[string]any, collection.Document:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, json.Number:
		return "number"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	default:
		return reflect.TypeOf(v).String()
	}
}

func checkEnum(allowed []any, value any, path string) error {
	n, isNum := toFloat(value)
	for _, a := range allowed {
		if isNum {
			if m, ok := toFloat(a); ok && m == n {
				return nil
			}
			continue
		}
		if reflect.DeepEqual(a, value) {
			return nil
		}
	}
	return fmt.Errorf("%s: value not in enum %v", path, allowed)
}

func validateObject(schema map[string]any, obj map[string]any, path string) error {
	if req, ok := schema["required"]; ok {
		if reqList, ok := req.([]any); ok {
			for _, r := range reqList {
				if field, ok := r.(string); ok {
					if _, exists := obj[field]; !exists {
						return fmt.Errorf("%s: missing required field %q", path, field)
					}
				}
			}
		}
	}

	if props, ok := schema["properties"]; ok {
		if propsMap, ok := props.(map[string]any); ok {
			for field, propSchema := range propsMap {
				val, exists := obj[field]
				if !exists {
					continue
				}
				ps, ok := propSchema.(map[string]any)
				if !ok {
					continue
				}
				if err := validateValue(ps, val, path+"."+field); err != nil {
					return err
				}
			}
		}
	}

	if ap, ok := schema["additionalProperties"]; ok {
		if apBool, ok := ap.(bool); ok && !apBool {
			propsMap := map[string]any{}
			if props, ok := schema["properties"]; ok {
				if pm, ok := props.(map[string]any); ok {
					propsMap = pm
				}
			}
			var extra []string
			for field := range obj {
				if _, defined := propsMap[field]; !defined {
					extra = append(extra, field)
				}
			}
			if len(extra) > 0 {
				return fmt.Errorf("%s: additional properties not allowed: %s", path, strings.Join(extra, ", "))
			}
		}
	}

	return nil
}

func validateArray(schema map[string]any, arr []any, path string) error {
	if v, ok := toFloat(schema["minItems"]); ok {
		if float64(len(arr)) < v {
			return fmt.Errorf("%s: array length %d is less than minItems %v", path, len(arr), v)
		}
	}
	if v, ok := toFloat(schema["maxItems"]); ok {
		if float64(len(arr)) > v {
			return fmt.Errorf("%s: array length %d is greater than maxItems %v", path, len(arr), v)
		}
	}
	if items, ok := schema["items"]; ok {
		if itemSchema, ok := items.(map[string]any); ok {
			for i, elem := range arr {
				if err := validateValue(itemSchema, elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// String lengths count runes, as JSON Schema does.
func validateString(schema map[string]any, s string, path string) error {
	n := len([]rune(s))
	if v, ok := toFloat(schema["minLength"]); ok {
		if float64(n) < v {
			return fmt.Errorf("%s: string length %d is less than minLength %v", path, n, v)
		}
	}
	if v, ok := toFloat(schema["maxLength"]); ok {
		if float64(n) > v {
			return fmt.Errorf("%s: string length %d is greater than maxLength %v", path, n, v)
		}
	}
	return nil
}

func validateNumber(schema map[string]any, n float64, path string) error {
	if v, ok := toFloat(schema["minimum"]); ok {
		if n < v {
			return fmt.Errorf("%s: %v is less than minimum %v", path, n, v)
		}
	}
	if v, ok := toFloat(schema["maximum"]); ok {
		if n > v {
			return fmt.Errorf("%s: %v is greater than maximum %v", path, n, v)
		}
	}
	if v, ok := toFloat(schema["exclusiveMinimum"]); ok {
		if n <= v {
			return fmt.Errorf("%s: %v is not greater than exclusiveMinimum %v", path, n, v)
		}
	}
	if v, ok := toFloat(schema["exclusiveMaximum"]); ok {
		if n >= v {
			return fmt.Errorf("%s: %v is not less than exclusiveMaximum %v", path, n, v)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
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
