package document

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Caia-Tech/smartmeta/pkg/metadata"
)

// PreviewLength is the number of characters shown in a text preview.
const PreviewLength = 2000

// Document is an uploaded file together with its extracted text and, once
// generated, its model metadata.
type Document struct {
	ID        string      `json:"id"`
	Source    Source      `json:"source"`
	Content   Content     `json:"content"`
	Report    Report      `json:"report"`
	Generated *Generation `json:"generated,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Source describes the uploaded file
type Source struct {
	Type     string `json:"type"` // extension without dot: pdf, docx, txt, png...
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
}

// Content holds the document's actual data
type Content struct {
	Raw      []byte            `json:"-"`        // uploaded bytes, never serialized
	Text     string            `json:"text"`     // extracted and cleaned text
	Metadata map[string]string `json:"metadata"` // extractor statistics
}

// Report summarizes how the text was obtained.
type Report struct {
	Method   string       `json:"method"` // text, ocr, mixed
	Pages    []PageResult `json:"pages,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
	LowText  bool         `json:"low_text"`
}

// PageResult records the outcome for one PDF page.
type PageResult struct {
	Number int    `json:"number"`
	Method string `json:"method"` // text, ocr, failed
	Chars  int    `json:"chars"`
	Error  string `json:"error,omitempty"`
}

// Generation is the outcome of asking the model for metadata. Raw is kept
// even when parsing fails so it can be shown for debugging.
type Generation struct {
	Metadata    *metadata.Metadata `json:"metadata,omitempty"`
	Raw         string             `json:"raw_response"`
	Error       string             `json:"error,omitempty"`
	Model       string             `json:"model,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Succeeded reports whether the generation produced parsed metadata.
func (g *Generation) Succeeded() bool {
	return g != nil && g.Metadata != nil && g.Error == ""
}

// GetStoragePath returns the document storage path in format: documents/{prefix}/{id}
func (d *Document) GetStoragePath() string {
	if len(d.ID) < 2 {
		return fmt.Sprintf("documents/%s/%s", d.ID, d.ID)
	}
	if len(d.ID) < 4 {
		return fmt.Sprintf("documents/%s/%s", d.ID[:2], d.ID)
	}
	return fmt.Sprintf("documents/%s/%s/%s", d.ID[:2], d.ID[2:4], d.ID)
}

// ArchivePath returns the archive location: metadata/{YYYY/MM}/{id}
func (d *Document) ArchivePath() string {
	date := d.CreatedAt.Format("2006/01")
	return fmt.Sprintf("metadata/%s/%s", date, d.ID)
}

// CharCount returns the number of characters in the extracted text.
func (d *Document) CharCount() int {
	return utf8.RuneCountInString(d.Content.Text)
}

// Preview returns the first n characters of the text, followed by "..." when
// the text was cut.
func (d *Document) Preview(n int) string {
	return Truncate(d.Content.Text, n)
}

// Truncate cuts s to n characters and appends "..." if anything was removed.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count == n {
			break
		}
		b.WriteRune(r)
		count++
	}
	b.WriteString("...")
	return b.String()
}

// Validate checks if the document has required fields
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document ID cannot be empty")
	}
	if d.Source.Type == "" {
		return fmt.Errorf("document source type cannot be empty")
	}
	if d.Source.Filename == "" {
		return fmt.Errorf("document filename cannot be empty")
	}
	return nil
}
