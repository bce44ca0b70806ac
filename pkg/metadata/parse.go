package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var (
	fencedJSON = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)(\{.*\})`)
)

// ErrNoJSON is returned when the model response contains no JSON object.
var ErrNoJSON = errors.New("no JSON found in response")

// ParseError wraps a failure to decode the model output. Raw holds the full
// response so callers can show it for debugging.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse JSON response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExtractJSON returns the JSON object embedded in a model response. A fenced
// code block wins over a bare object; the bare match spans from the first
// opening brace to the last closing brace.
func ExtractJSON(raw string) (string, error) {
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	if m := bareJSON.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	return "", ErrNoJSON
}

// Parse extracts and decodes the metadata object from a model response.
func Parse(raw string) (*Metadata, error) {
	blob, err := ExtractJSON(raw)
	if err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	md := New()
	if err := json.Unmarshal([]byte(blob), md); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	return md, nil
}

// Overview is the headline subset of metadata shown in the UI.
type Overview struct {
	Title        string `json:"title,omitempty"`
	Category     string `json:"document_category,omitempty"`
	Language     string `json:"language,omitempty"`
	Sentiment    string `json:"sentiment,omitempty"`
	Author       string `json:"author,omitempty"`
	ReadingTime  string `json:"estimated_reading_time,omitempty"`
	Confidential string `json:"confidential,omitempty"`
	Summary      string `json:"summary,omitempty"`
}

// Overview pulls the headline fields. Models name keys inconsistently, so a
// few aliases are tried for each field.
func (m *Metadata) Overview() Overview {
	first := func(names ...string) string {
		for _, n := range names {
			if s, ok := m.String(n); ok && s != "" {
				return s
			}
		}
		return ""
	}

	ov := Overview{
		Title:        first("title"),
		Category:     first("document_category", "category"),
		Language:     first("language"),
		Sentiment:    first("sentiment"),
		Author:       first("author"),
		Confidential: first("confidential", "is_confidential", "is_this_document_confidential"),
		Summary:      first("summary", "short_summary"),
	}
	if rt := first("estimated_reading_time", "reading_time", "estimated_reading_time_(in_minutes)"); rt != "" {
		ov.ReadingTime = rt + " min"
	}
	return ov
}
