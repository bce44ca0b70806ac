// Package metadata parses and exports the structured metadata returned by
// the language model.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Fields lists the metadata items requested from the model, in prompt order.
var Fields = []string{
	"Title (always required if u can)",
	"Keywords (5–10)",
	"Short Summary (2–3 lines)",
	"Document Category (e.g., Legal, Academic, Finance, Health, etc.)",
	"Language",
	"Sentiment (Positive, Negative, Neutral)",
	"Named Entities (People, Organizations, Locations)",
	"Is this document confidential? (Yes/No)",
	"Important Dates mentioned (if any)",
	"High-level Sections present (e.g., Introduction, Conclusion, etc.)",
	"Author (if found)",
	"Intended Audience",
	"Estimated Reading Time (in minutes)",
	"Presence of Tables/Charts/Images (Eg tables yes , charts , yes )",
	`Topic Tags / Subject Areas (Example: ["Data Science", "Resume", "Hackathons", "Education"])`,
	"Summary Bullet Points",
}

// Metadata is a JSON object that remembers the order in which the model
// emitted its keys.
type Metadata struct {
	keys   []string
	values map[string]any
}

// New returns an empty Metadata.
func New() *Metadata {
	return &Metadata{values: make(map[string]any)}
}

// Set adds or replaces a key. New keys are appended to the key order.
func (m *Metadata) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the raw value stored under key.
func (m *Metadata) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in emission order.
func (m *Metadata) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of top-level keys.
func (m *Metadata) Len() int {
	return len(m.keys)
}

// Lookup finds a value by its normalized key, so "Document Category",
// "document-category" and "document_category" all resolve to the same entry.
func (m *Metadata) Lookup(name string) (any, bool) {
	want := NormalizeKey(name)
	for _, k := range m.keys {
		if NormalizeKey(k) == want {
			return m.values[k], true
		}
	}
	return nil, false
}

// String renders a value for display. Lists are comma separated and nested
// objects fall back to compact JSON.
func (m *Metadata) String(name string) (string, bool) {
	v, ok := m.Lookup(name)
	if !ok || v == nil {
		return "", false
	}
	return FormatValue(v), true
}

// NormalizeKey lower-cases a key and folds spaces and dashes to underscores.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(key)
	for strings.Contains(key, "__") {
		key = strings.ReplaceAll(key, "__", "_")
	}
	return key
}

// FormatValue renders a decoded JSON value as display text.
func FormatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case json.Number:
		return val.String()
	case float64:
		return fmt.Sprintf("%g", val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, FormatValue(item))
		}
		return strings.Join(parts, ", ")
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("metadata must be a JSON object")
	}

	m.keys = nil
	m.values = make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		value, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		m.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after metadata object")
	}
	return nil
}

// decodeValue decodes one JSON value. Objects become *Metadata at any depth
// so nested key order survives a round trip.
func decodeValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	switch trimmed[0] {
	case '{':
		nested := New()
		if err := nested.UnmarshalJSON(trimmed); err != nil {
			return nil, err
		}
		return nested, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		list := make([]any, 0, len(items))
		for _, item := range items {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

// MarshalJSON encodes the object with keys in emission order.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIndent encodes the object with the given indent.
func (m *Metadata) MarshalIndent(indent string) ([]byte, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// ExportJSON returns the download representation (four-space indent).
func (m *Metadata) ExportJSON() ([]byte, error) {
	return m.MarshalIndent("    ")
}

// ExportFilename returns the download filename for an uploaded file.
func ExportFilename(uploadName string) string {
	return fmt.Sprintf("metadata_%s.json", uploadName)
}
