package extractor

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Extractor turns raw file content into text plus extractor statistics.
type Extractor interface {
	Extract(ctx context.Context, content []byte) (string, map[string]string, error)
}

// DetailedExtractor is implemented by extractors that can report per-page
// outcomes.
type DetailedExtractor interface {
	ExtractDetailed(ctx context.Context, content []byte) (*Result, error)
}

// Result is the full outcome of an extraction.
type Result struct {
	Text     string
	Metadata map[string]string
	Method   string // text, ocr, mixed
	Pages    []PageResult
}

// PageResult records how one page was handled.
type PageResult struct {
	Number int
	Method string // text, ocr, failed
	Chars  int
	Err    string
}

// Methods reported in Result.Method and PageResult.Method.
const (
	MethodText   = "text"
	MethodOCR    = "ocr"
	MethodMixed  = "mixed"
	MethodFailed = "failed"
)

// Options configures the extraction engine.
type Options struct {
	OCRMode      OCRMode
	OCRLanguage  string
	PDFMaxPages  int
	PDFDPI       float64
	MinPageChars int
	Preprocess   *PreprocessOptions
}

// DefaultOptions mirrors the defaults of the server configuration.
func DefaultOptions() Options {
	return Options{
		OCRMode:      OCRAuto,
		OCRLanguage:  "eng",
		PDFMaxPages:  1000,
		PDFDPI:       300,
		MinPageChars: 20,
		Preprocess:   DefaultPreprocessOptions(),
	}
}

// Engine picks an extractor by file extension.
type Engine struct {
	extractors map[string]Extractor
	ocr        *OCRExtractor
}

// NewEngine builds the extractor table for the supported file types.
func NewEngine(opts Options) *Engine {
	ocr := NewOCRExtractor()
	if opts.OCRLanguage != "" {
		ocr.Language = opts.OCRLanguage
	}
	ocr.Preprocess = opts.Preprocess

	pdfExtractor := &PDFExtractor{
		OCRMode:      opts.OCRMode,
		MaxPages:     opts.PDFMaxPages,
		DPI:          opts.PDFDPI,
		MinPageChars: opts.MinPageChars,
		OCR:          ocr,
		Renderer:     FitzRenderer{},
	}

	text := &TextExtractor{}
	html := NewImprovedHTMLExtractor()

	return &Engine{
		ocr: ocr,
		extractors: map[string]Extractor{
			"txt":  text,
			"text": text,
			"html": html,
			"htm":  html,
			"pdf":  pdfExtractor,
			"docx": &DOCXExtractor{},
			"png":  ocr,
			"jpg":  ocr,
			"jpeg": ocr,
			"tiff": ocr,
			"tif":  ocr,
			"bmp":  ocr,
			"gif":  ocr,
		},
	}
}

// Register adds or replaces the extractor for an extension.
func (e *Engine) Register(ext string, ex Extractor) {
	e.extractors[normalizeExt(ext)] = ex
}

// Supported reports whether an extension has an extractor.
func (e *Engine) Supported(ext string) bool {
	_, ok := e.extractors[normalizeExt(ext)]
	return ok
}

// SupportedTypes lists the known extensions in sorted order.
func (e *Engine) SupportedTypes() []string {
	types := make([]string, 0, len(e.extractors))
	for ext := range e.extractors {
		types = append(types, ext)
	}
	sort.Strings(types)
	return types
}

// Extract runs the extractor registered for contentType.
func (e *Engine) Extract(ctx context.Context, content []byte, contentType string) (string, map[string]string, error) {
	res, err := e.ExtractResult(ctx, content, contentType)
	if err != nil {
		if res != nil {
			return "", res.Metadata, err
		}
		return "", nil, err
	}
	return res.Text, res.Metadata, nil
}

// ExtractResult runs the extractor registered for contentType and returns the
// detailed result. Unknown types are rejected rather than guessed.
func (e *Engine) ExtractResult(ctx context.Context, content []byte, contentType string) (*Result, error) {
	ext := normalizeExt(contentType)
	ex, ok := e.extractors[ext]
	if !ok {
		return nil, processingErrorf("unsupported file type: %q", contentType)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if d, ok := ex.(DetailedExtractor); ok {
		return d.ExtractDetailed(ctx, content)
	}

	text, metadata, err := ex.Extract(ctx, content)
	method := MethodText
	if ex == Extractor(e.ocr) {
		method = MethodOCR
	}
	return &Result{Text: text, Metadata: metadata, Method: method}, err
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// TextExtractor handles plain text files, which must be UTF-8.
type TextExtractor struct{}

func (t *TextExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type": "text",
		"size": fmt.Sprintf("%d", len(content)),
	}

	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(content) {
		metadata["status"] = "error"
		return "", metadata, processingErrorf("text file is not valid UTF-8")
	}

	text := normalizeNewlines(string(content))
	metadata["characters"] = fmt.Sprintf("%d", utf8.RuneCountInString(text))
	metadata["lines"] = fmt.Sprintf("%d", strings.Count(text, "\n")+1)
	metadata["status"] = "success"
	return text, metadata, nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// countChars counts non-whitespace runes.
func countChars(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' && r != '\f' && r != '\v' {
			n++
		}
	}
	return n
}
