package processing

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Caia-Tech/smartmeta/internal/llm"
	"github.com/Caia-Tech/smartmeta/internal/pipeline"
	"github.com/Caia-Tech/smartmeta/internal/storage"
	"github.com/Caia-Tech/smartmeta/pkg/document"
	"github.com/Caia-Tech/smartmeta/pkg/extractor"
	"github.com/Caia-Tech/smartmeta/pkg/logging"
	"github.com/Caia-Tech/smartmeta/pkg/metadata"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// LowTextPlaceholder replaces the text of documents that yielded almost
	// nothing readable.
	LowTextPlaceholder = "No meaningful text could be extracted from this document."
	// LowTextWarning is shown to the user alongside the placeholder.
	LowTextWarning = "Very little text extracted. Please check if the file is readable or contains text."
)

// TextExtractor is the part of extractor.Engine the processor needs.
type TextExtractor interface {
	ExtractResult(ctx context.Context, content []byte, contentType string) (*extractor.Result, error)
	Supported(ext string) bool
}

// EventPublisher receives pipeline events.
type EventPublisher interface {
	Publish(event *pipeline.DocumentEvent) error
}

// Config configures the processor
type Config struct {
	MaxFileSize     int64         `yaml:"max_file_size"`
	MinTextChars    int           `yaml:"min_text_chars"`
	AllowedTypes    []string      `yaml:"allowed_types,omitempty"` // empty allows every extractor type
	DisabledRules   []string      `yaml:"disabled_rules,omitempty"`
	StrictCleaning  bool          `yaml:"strict_cleaning"`
	ExtractTimeout  time.Duration `yaml:"extract_timeout"`
	GenerateTimeout time.Duration `yaml:"generate_timeout"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		MaxFileSize:     50 << 20,
		MinTextChars:    10,
		ExtractTimeout:  5 * time.Minute,
		GenerateTimeout: 3 * time.Minute,
	}
}

// Stats tracks processing statistics
type Stats struct {
	DocumentsProcessed  int64         `json:"documents_processed"`
	DocumentsFailed     int64         `json:"documents_failed"`
	MetadataGenerated   int64         `json:"metadata_generated"`
	GenerationsFailed   int64         `json:"generations_failed"`
	TotalBytesProcessed int64         `json:"total_bytes_processed"`
	AverageProcessTime  time.Duration `json:"average_process_time"`
	LastProcessed       time.Time     `json:"last_processed"`
	CleaningRules       []string      `json:"cleaning_rules"`
}

// Processor drives a document through extraction, cleaning, storage and
// metadata generation.
type Processor struct {
	config    Config
	engine    TextExtractor
	cleaner   *ContentCleaner
	store     storage.Store
	generator llm.Generator
	events    EventPublisher
	allowed   map[string]bool
	now       func() time.Time

	mu    sync.RWMutex
	stats Stats
}

// NewProcessor creates a processor. generator and events may be nil; without
// a generator Generate always fails.
func NewProcessor(engine TextExtractor, store storage.Store, generator llm.Generator, events EventPublisher, config Config) *Processor {
	defaults := DefaultConfig()
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = defaults.MaxFileSize
	}
	if config.MinTextChars <= 0 {
		config.MinTextChars = defaults.MinTextChars
	}

	cleaner := NewContentCleaner()
	cleaner.SetStrictMode(config.StrictCleaning)
	for _, rule := range config.DisabledRules {
		cleaner.DisableRule(rule)
	}

	var allowed map[string]bool
	if len(config.AllowedTypes) > 0 {
		allowed = make(map[string]bool, len(config.AllowedTypes))
		for _, t := range config.AllowedTypes {
			allowed[strings.ToLower(strings.TrimPrefix(t, "."))] = true
		}
	}

	return &Processor{
		config:    config,
		engine:    engine,
		cleaner:   cleaner,
		store:     store,
		generator: generator,
		events:    events,
		allowed:   allowed,
		now:       time.Now,
	}
}

// FileType returns the lower-case extension of filename without the dot.
func FileType(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// Accepts reports whether a file with this name would be accepted.
func (p *Processor) Accepts(filename string) bool {
	ext := FileType(filename)
	if ext == "" || !p.engine.Supported(ext) {
		return false
	}
	return p.allowed == nil || p.allowed[ext]
}

// Upload extracts and cleans the text of an uploaded file and stores the
// resulting document. Documents with almost no text are stored with a
// placeholder text and a warning.
func (p *Processor) Upload(ctx context.Context, filename string, content []byte) (*document.Document, error) {
	doc, err := p.newDocument(filename, content)
	if err != nil {
		return nil, err
	}
	p.publish(pipeline.NewDocumentEvent(pipeline.EventDocumentUploaded, doc))
	return p.extract(ctx, doc)
}

// Stage validates and stores an upload without extracting it, so batch
// workflows can refer to it by ID. Extract finishes the job.
func (p *Processor) Stage(ctx context.Context, filename string, content []byte) (*document.Document, error) {
	doc, err := p.newDocument(filename, content)
	if err != nil {
		return nil, err
	}
	if err := p.store.Put(ctx, doc); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	p.publish(pipeline.NewDocumentEvent(pipeline.EventDocumentUploaded, doc))
	return doc, nil
}

// Extract runs extraction for a staged document. A document that was
// already extracted is returned unchanged.
func (p *Processor) Extract(ctx context.Context, id string) (*document.Document, error) {
	doc, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Content.Raw == nil {
		return doc, nil
	}
	return p.extract(ctx, doc)
}

func (p *Processor) newDocument(filename string, content []byte) (*document.Document, error) {
	name := filepath.Base(filename)
	ext := FileType(name)

	if !p.Accepts(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if len(content) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(content)) > p.config.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrFileTooLarge, len(content), p.config.MaxFileSize)
	}

	now := p.now()
	return &document.Document{
		ID: uuid.New().String(),
		Source: document.Source{
			Type:     ext,
			Filename: name,
			Size:     int64(len(content)),
			MimeType: mime.TypeByExtension("." + ext),
		},
		Content: document.Content{
			Raw:      content,
			Metadata: map[string]string{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// extract fills in text and report for doc and stores it. The raw bytes are
// dropped once the text exists.
func (p *Processor) extract(ctx context.Context, doc *document.Document) (*document.Document, error) {
	start := p.now()
	name, ext := doc.Source.Filename, doc.Source.Type
	logger := logging.GetDocumentLogger(doc.ID, name)

	extractCtx := ctx
	if p.config.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, p.config.ExtractTimeout)
		defer cancel()
	}

	res, err := p.engine.ExtractResult(extractCtx, doc.Content.Raw, ext)
	if err != nil {
		p.fail(doc, "extract", err)
		logger.Error().Err(err).Str("type", ext).Msg("Text extraction failed")
		return nil, fmt.Errorf("extract text from %s: %w", name, err)
	}

	text, cleaning, err := p.cleaner.Clean(ext, res.Text)
	if err != nil {
		p.fail(doc, "clean", err)
		return nil, err
	}

	for k, v := range res.Metadata {
		doc.Content.Metadata[k] = v
	}
	doc.Content.Metadata["rules_applied"] = strings.Join(cleaning.RulesApplied, ",")
	doc.Report = buildReport(res)
	doc.Report.Warnings = append(doc.Report.Warnings, cleaning.Warnings...)

	if utf8.RuneCountInString(strings.TrimSpace(text)) < p.config.MinTextChars {
		doc.Report.LowText = true
		doc.Report.Warnings = append(doc.Report.Warnings, LowTextWarning)
		text = LowTextPlaceholder
	}
	doc.Content.Text = text
	doc.Content.Raw = nil
	doc.UpdatedAt = p.now()

	if err := p.store.Put(ctx, doc); err != nil {
		p.fail(doc, "store", err)
		return nil, fmt.Errorf("store document: %w", err)
	}

	p.publish(pipeline.NewDocumentEvent(pipeline.EventTextExtracted, doc))
	p.recordProcessed(int(doc.Source.Size), p.now().Sub(start))

	logger.Info().
		Str("method", doc.Report.Method).
		Int("characters", doc.CharCount()).
		Int("pages", len(doc.Report.Pages)).
		Bool("low_text", doc.Report.LowText).
		Dur("duration", p.now().Sub(start)).
		Msg("Document text extracted")

	return doc, nil
}

func buildReport(res *extractor.Result) document.Report {
	report := document.Report{Method: res.Method}
	ocrPages := 0
	for _, page := range res.Pages {
		report.Pages = append(report.Pages, document.PageResult{
			Number: page.Number,
			Method: page.Method,
			Chars:  page.Chars,
			Error:  page.Err,
		})
		switch page.Method {
		case extractor.MethodFailed:
			report.Warnings = append(report.Warnings, fmt.Sprintf("Page %d could not be read: %s", page.Number, page.Err))
		case extractor.MethodOCR:
			ocrPages++
		}
	}
	if ocrPages > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("OCR was used for %d page(s); recognised text may contain errors.", ocrPages))
	}
	return report
}

// Generate asks the model for metadata about a stored document. On a parse
// failure the document is still stored with the raw answer and returned
// together with the *metadata.ParseError.
func (p *Processor) Generate(ctx context.Context, id string) (*document.Document, error) {
	start := p.now()
	doc, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := logging.GetDocumentLogger(doc.ID, doc.Source.Filename)

	if doc.Report.LowText || utf8.RuneCountInString(strings.TrimSpace(doc.Content.Text)) < p.config.MinTextChars {
		return doc, ErrInsufficientText
	}
	if p.generator == nil {
		return doc, llm.ErrMissingAPIKey
	}

	genCtx := ctx
	if p.config.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, p.config.GenerateTimeout)
		defer cancel()
	}

	raw, err := p.generator.Generate(genCtx, doc.Content.Text)
	if err != nil {
		p.recordGeneration(false)
		p.publish(pipeline.NewFailureEvent(doc, "generate", err))
		logger.Error().Err(err).Msg("Metadata generation failed")
		return doc, fmt.Errorf("generate metadata: %w", err)
	}

	gen := &document.Generation{
		Raw:         raw,
		Model:       p.generator.Model(),
		GeneratedAt: p.now(),
	}
	md, parseErr := metadata.Parse(raw)
	if parseErr != nil {
		gen.Error = parseErr.Error()
	} else {
		gen.Metadata = md
	}

	doc.Generated = gen
	doc.UpdatedAt = p.now()
	if err := p.store.Put(ctx, doc); err != nil {
		return doc, fmt.Errorf("store document: %w", err)
	}

	if parseErr != nil {
		p.recordGeneration(false)
		p.publish(pipeline.NewFailureEvent(doc, "parse", parseErr))
		logger.Warn().Err(parseErr).Int("raw_length", len(raw)).Msg("Model response did not contain valid JSON")
		return doc, parseErr
	}

	p.recordGeneration(true)
	event := pipeline.NewDocumentEvent(pipeline.EventMetadataGenerated, doc)
	event.Metadata["fields"] = md.Len()
	event.Metadata["model"] = gen.Model
	p.publish(event)

	logger.Info().
		Int("fields", md.Len()).
		Dur("duration", p.now().Sub(start)).
		Msg("Metadata generated")

	return doc, nil
}

// Get returns a stored document.
func (p *Processor) Get(ctx context.Context, id string) (*document.Document, error) {
	return p.store.Get(ctx, id)
}

// List returns all stored documents, newest first.
func (p *Processor) List(ctx context.Context) ([]*document.Document, error) {
	return p.store.List(ctx)
}

// Delete removes a stored document.
func (p *Processor) Delete(ctx context.Context, id string) error {
	doc, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := p.store.Delete(ctx, id); err != nil {
		return err
	}
	p.publish(pipeline.NewDocumentEvent(pipeline.EventDocumentDeleted, doc))
	return nil
}

// Export returns the download filename and the 4-space indented metadata.
func (p *Processor) Export(ctx context.Context, id string) (string, []byte, error) {
	doc, err := p.store.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if !doc.Generated.Succeeded() {
		return "", nil, ErrNoMetadata
	}
	data, err := doc.Generated.Metadata.ExportJSON()
	if err != nil {
		return "", nil, fmt.Errorf("export metadata: %w", err)
	}
	return metadata.ExportFilename(doc.Source.Filename), data, nil
}

// Health checks the backing store.
func (p *Processor) Health(ctx context.Context) error {
	return p.store.Health(ctx)
}

// GetStats returns current processing statistics
func (p *Processor) GetStats() Stats {
	p.mu.RLock()
	stats := p.stats
	p.mu.RUnlock()

	stats.CleaningRules = p.cleaner.EnabledRules()
	return stats
}

func (p *Processor) publish(event *pipeline.DocumentEvent) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(event); err != nil {
		log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Failed to publish pipeline event")
	}
}

func (p *Processor) fail(doc *document.Document, stage string, err error) {
	p.mu.Lock()
	p.stats.DocumentsFailed++
	p.mu.Unlock()
	p.publish(pipeline.NewFailureEvent(doc, stage, err))
}

func (p *Processor) recordProcessed(bytes int, took time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.DocumentsProcessed++
	p.stats.TotalBytesProcessed += int64(bytes)
	p.stats.LastProcessed = p.now()

	total := p.stats.AverageProcessTime*time.Duration(p.stats.DocumentsProcessed-1) + took
	p.stats.AverageProcessTime = total / time.Duration(p.stats.DocumentsProcessed)
}

func (p *Processor) recordGeneration(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ok {
		p.stats.MetadataGenerated++
	} else {
		p.stats.GenerationsFailed++
	}
}
