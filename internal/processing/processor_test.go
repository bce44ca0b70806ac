package processing

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Caia-Tech/smartmeta/internal/llm"
	"github.com/Caia-Tech/smartmeta/internal/pipeline"
	"github.com/Caia-Tech/smartmeta/internal/storage"
	"github.com/Caia-Tech/smartmeta/pkg/extractor"
	"github.com/Caia-Tech/smartmeta/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	result *extractor.Result
	err    error
}

func (f *fakeEngine) ExtractResult(ctx context.Context, content []byte, contentType string) (*extractor.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &extractor.Result{
		Text:     string(content),
		Method:   extractor.MethodText,
		Metadata: map[string]string{"type": contentType},
	}, nil
}

func (f *fakeEngine) Supported(ext string) bool {
	switch ext {
	case "txt", "pdf", "docx", "png":
		return true
	}
	return false
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

func (m *mockGenerator) Model() string {
	return "test-model"
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*pipeline.DocumentEvent
}

func (r *recordingPublisher) Publish(event *pipeline.DocumentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) types() []pipeline.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pipeline.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestProcessor(engine TextExtractor, gen llm.Generator) (*Processor, *recordingPublisher) {
	events := &recordingPublisher{}
	store := storage.NewMemoryStore(time.Hour, nil)
	return NewProcessor(engine, store, gen, events, DefaultConfig()), events
}

const reportText = "Quarterly report: revenue grew twelve percent year over year."

func TestProcessor_UploadText(t *testing.T) {
	p, events := newTestProcessor(&fakeEngine{}, nil)

	doc, err := p.Upload(context.Background(), "/tmp/uploads/report.TXT", []byte(reportText))
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "txt", doc.Source.Type)
	assert.Equal(t, "report.TXT", doc.Source.Filename)
	assert.Equal(t, int64(len(reportText)), doc.Source.Size)
	assert.Equal(t, reportText, doc.Content.Text)
	assert.False(t, doc.Report.LowText)
	assert.Equal(t, extractor.MethodText, doc.Report.Method)

	stored, err := p.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Content.Text, stored.Content.Text)

	assert.Equal(t, []pipeline.EventType{pipeline.EventDocumentUploaded, pipeline.EventTextExtracted}, events.types())
	assert.Equal(t, int64(1), p.GetStats().DocumentsProcessed)
}

func TestProcessor_UploadValidation(t *testing.T) {
	p, _ := newTestProcessor(&fakeEngine{}, nil)
	ctx := context.Background()

	_, err := p.Upload(ctx, "sheet.xlsx", []byte("data"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = p.Upload(ctx, "noext", []byte("data"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = p.Upload(ctx, "empty.txt", nil)
	assert.ErrorIs(t, err, ErrEmptyFile)

	small := NewProcessor(&fakeEngine{}, storage.NewMemoryStore(time.Hour, nil), nil, nil, Config{MaxFileSize: 4})
	_, err = small.Upload(ctx, "big.txt", []byte("12345"))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestProcessor_AllowedTypes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedTypes = []string{".PDF", "txt"}
	p := NewProcessor(&fakeEngine{}, storage.NewMemoryStore(time.Hour, nil), nil, nil, cfg)

	assert.True(t, p.Accepts("a.pdf"))
	assert.True(t, p.Accepts("a.txt"))
	assert.False(t, p.Accepts("a.png"), "supported by the engine but not allowed")
	assert.False(t, p.Accepts("a.exe"))
}

func TestProcessor_UploadLowText(t *testing.T) {
	p, _ := newTestProcessor(&fakeEngine{}, nil)

	doc, err := p.Upload(context.Background(), "scan.txt", []byte("  hi \n"))
	require.NoError(t, err)

	assert.True(t, doc.Report.LowText)
	assert.Equal(t, LowTextPlaceholder, doc.Content.Text)
	assert.Contains(t, doc.Report.Warnings, LowTextWarning)

	_, err = p.Generate(context.Background(), doc.ID)
	assert.ErrorIs(t, err, ErrInsufficientText)
}

func blankDOCX(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml":          `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`,
		"word/document.xml":            `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p/></w:body></w:document>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestProcessor_UploadBlankDOCX(t *testing.T) {
	engine := extractor.NewEngine(extractor.DefaultOptions())
	p, events := newTestProcessor(engine, nil)

	doc, err := p.Upload(context.Background(), "blank.docx", blankDOCX(t))
	require.NoError(t, err)

	assert.True(t, doc.Report.LowText)
	assert.Equal(t, LowTextPlaceholder, doc.Content.Text)
	assert.Contains(t, doc.Report.Warnings, LowTextWarning)
	assert.Equal(t, "empty", doc.Content.Metadata["status"])
	assert.Equal(t, []pipeline.EventType{pipeline.EventDocumentUploaded, pipeline.EventTextExtracted}, events.types())

	_, err = p.Generate(context.Background(), doc.ID)
	assert.ErrorIs(t, err, ErrInsufficientText)
}

func TestProcessor_UploadExtractionFailure(t *testing.T) {
	engine := &fakeEngine{err: &extractor.ProcessingError{Message: "failed to parse PDF"}}
	p, events := newTestProcessor(engine, nil)

	_, err := p.Upload(context.Background(), "broken.pdf", []byte("%PDF-garbage"))
	require.Error(t, err)

	var perr *extractor.ProcessingError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, []pipeline.EventType{pipeline.EventDocumentUploaded, pipeline.EventProcessingFailed}, events.types())
	assert.Equal(t, int64(1), p.GetStats().DocumentsFailed)

	docs, err := p.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestProcessor_UploadReportsPageOutcomes(t *testing.T) {
	engine := &fakeEngine{result: &extractor.Result{
		Text:   "First page text that is long enough.\n\nScanned second page.",
		Method: extractor.MethodMixed,
		Pages: []extractor.PageResult{
			{Number: 1, Method: extractor.MethodText, Chars: 30},
			{Number: 2, Method: extractor.MethodOCR, Chars: 18},
			{Number: 3, Method: extractor.MethodFailed, Err: "render failed"},
		},
		Metadata: map[string]string{"pages": "3"},
	}}
	p, _ := newTestProcessor(engine, nil)

	doc, err := p.Upload(context.Background(), "mixed.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	require.Len(t, doc.Report.Pages, 3)
	assert.Equal(t, "render failed", doc.Report.Pages[2].Error)
	assert.Equal(t, extractor.MethodMixed, doc.Report.Method)
	assert.Equal(t, "3", doc.Content.Metadata["pages"])
	assert.Contains(t, doc.Report.Warnings, "Page 3 could not be read: render failed")
	assert.Contains(t, strings.Join(doc.Report.Warnings, "\n"), "OCR was used for 1 page(s)")
}

func TestProcessor_GenerateSuccess(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, reportText).
		Return("Here you go:\n```json\n{\"title\": \"Quarterly Report\", \"language\": \"English\"}\n```", nil).
		Once()

	p, events := newTestProcessor(&fakeEngine{}, gen)
	ctx := context.Background()

	doc, err := p.Upload(ctx, "report.txt", []byte(reportText))
	require.NoError(t, err)

	doc, err = p.Generate(ctx, doc.ID)
	require.NoError(t, err)
	gen.AssertExpectations(t)

	require.True(t, doc.Generated.Succeeded())
	assert.Equal(t, "test-model", doc.Generated.Model)
	assert.Equal(t, []string{"title", "language"}, doc.Generated.Metadata.Keys())
	assert.Contains(t, events.types(), pipeline.EventMetadataGenerated)

	name, data, err := p.Export(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "metadata_report.txt.json", name)
	assert.Equal(t, "{\n    \"title\": \"Quarterly Report\",\n    \"language\": \"English\"\n}", string(data))

	assert.Equal(t, int64(1), p.GetStats().MetadataGenerated)
}

func TestProcessor_GenerateParseFailureKeepsRawResponse(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return("Sorry, I cannot help with that.", nil)

	p, events := newTestProcessor(&fakeEngine{}, gen)
	ctx := context.Background()

	doc, err := p.Upload(ctx, "report.txt", []byte(reportText))
	require.NoError(t, err)

	doc, err = p.Generate(ctx, doc.ID)
	require.Error(t, err)

	var perr *metadata.ParseError
	require.True(t, errors.As(err, &perr))
	require.NotNil(t, doc)
	assert.Equal(t, "Sorry, I cannot help with that.", doc.Generated.Raw)
	assert.False(t, doc.Generated.Succeeded())

	stored, err := p.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I cannot help with that.", stored.Generated.Raw)

	_, _, err = p.Export(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNoMetadata)
	assert.Contains(t, events.types(), pipeline.EventProcessingFailed)
	assert.NotContains(t, events.types(), pipeline.EventMetadataGenerated)
}

func TestProcessor_GenerateProviderError(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).
		Return("", &llm.APIError{Provider: "OpenRouter", StatusCode: 401, Body: "invalid key"})

	p, _ := newTestProcessor(&fakeEngine{}, gen)
	ctx := context.Background()

	doc, err := p.Upload(ctx, "report.txt", []byte(reportText))
	require.NoError(t, err)

	_, err = p.Generate(ctx, doc.ID)
	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 401, apiErr.StatusCode)
	assert.Equal(t, int64(1), p.GetStats().GenerationsFailed)
}

func TestProcessor_GenerateWithoutGenerator(t *testing.T) {
	p, _ := newTestProcessor(&fakeEngine{}, nil)
	ctx := context.Background()

	doc, err := p.Upload(ctx, "report.txt", []byte(reportText))
	require.NoError(t, err)

	_, err = p.Generate(ctx, doc.ID)
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
}

func TestProcessor_GetAndDeleteMissing(t *testing.T) {
	p, events := newTestProcessor(&fakeEngine{}, nil)
	ctx := context.Background()

	_, err := p.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = p.Generate(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, p.Delete(ctx, "missing"), storage.ErrNotFound)

	doc, err := p.Upload(ctx, "report.txt", []byte(reportText))
	require.NoError(t, err)
	require.NoError(t, p.Delete(ctx, doc.ID))
	assert.Contains(t, events.types(), pipeline.EventDocumentDeleted)

	_, err = p.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFileType(t *testing.T) {
	assert.Equal(t, "pdf", FileType("Report.PDF"))
	assert.Equal(t, "gz", FileType("archive.tar.gz"))
	assert.Equal(t, "", FileType("README"))
}
