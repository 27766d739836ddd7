package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stevemurr/blobdoc/collection"
)

type recordOut struct {
	ID   string              `json:"id" yaml:"id"`
	Data collection.Document `json:"data" yaml:"data"`
}

func records(recs []collection.Record) []recordOut {
	out := make([]recordOut, len(recs))
	for i, r := range recs {
		out[i] = recordOut{ID: r.ID, Data: r.Data}
	}
	return out
}

type resultOut struct {
	ID    string `json:"id" yaml:"id"`
	OK    bool   `json:"ok" yaml:"ok"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

type rejectionOut struct {
	Index int    `json:"index" yaml:"index"`
	ID    string `json:"id,omitempty" yaml:"id,omitempty"`
	Error string `json:"error" yaml:"error"`
}

type importOut struct {
	Imported int            `json:"imported" yaml:"imported"`
	Rejected []rejectionOut `json:"rejected" yaml:"rejected"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// write prints v in the selected output format.
func (a *app) write(w io.Writer, v any) error {
	if a.output == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput returns arg, or the contents of the named file when arg starts
// with '@', or standard input when arg is "-".
func readInput(stdin io.Reader, arg string) (string, error) {
	switch {
	case arg == "-":
		b, err := io.ReadAll(stdin)
		return string(b), err
	case len(arg) > 1 && arg[0] == '@':
		b, err := os.ReadFile(arg[1:])
		return string(b), err
	}
	return arg, nil
}

// decodeDocument parses a JSON object.
func decodeDocument(text string) (collection.Document, error) {
	var doc collection.Document
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("invalid document: expected a JSON object")
	}
	return doc, nil
}

// decodeDocuments parses a JSON object or an array of objects.
func decodeDocuments(text string) ([]collection.Document, bool, error) {
	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, false, fmt.Errorf("invalid document: %w", err)
	}
	switch v := raw.(type) {
	case map[string]any:
		return []collection.Document{v}, false, nil
	case []any:
		docs := make([]collection.Document, len(v))
		for i, e := range v {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, true, fmt.Errorf("invalid document at index %d: expected a JSON object", i)
			}
			docs[i] = m
		}
		return docs, true, nil
	}
	return nil, false, fmt.Errorf("invalid document: expected a JSON object or array of objects")
}
