package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal single-font PDF with one text line per page. An
// empty string produces a page with an empty content stream, which is what a
// scanned page looks like to the text extractor.
func buildPDF(pages ...string) []byte {
	var objs []string
	kids := make([]string, 0, len(pages))
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}

	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, text := range pages {
		objs = append(objs, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		stream := ""
		if text != "" {
			stream = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		}
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// fakeRenderer encodes the page index in the width of the rendered image so
// fakeOCR can tell pages apart.
type fakeRenderer struct {
	pages   int
	openErr error
}

func (f fakeRenderer) Open(content []byte) (RenderedDocument, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeRendered{pages: f.pages}, nil
}

type fakeRendered struct {
	pages  int
	closed bool
}

func (f *fakeRendered) NumPage() int { return f.pages }

func (f *fakeRendered) RenderPage(index int, dpi float64) (image.Image, error) {
	if index >= f.pages {
		return nil, fmt.Errorf("no page %d", index)
	}
	return image.NewGray(image.Rect(0, 0, index+1, 1)), nil
}

func (f *fakeRendered) Close() error {
	f.closed = true
	return nil
}

type fakeOCR struct {
	texts map[int]string
	err   error
	calls int
}

func (f *fakeOCR) RecognizeImage(ctx context.Context, img image.Image) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.texts[img.Bounds().Dx()-1], nil
}

func TestExtractTextFromPDF(t *testing.T) {
	tests := []struct {
		name        string
		content     []byte
		expectError bool
	}{
		{
			name:        "empty content",
			content:     []byte{},
			expectError: true,
		},
		{
			name:        "invalid PDF content",
			content:     []byte("This is not a PDF file"),
			expectError: true,
		},
		{
			name:        "nil content",
			content:     nil,
			expectError: true,
		},
		{
			name:    "single text page",
			content: buildPDF("Hello World from page one"),
		},
	}

	extractor := &PDFExtractor{OCRMode: OCRNever}
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, metadata, err := extractor.Extract(ctx, tt.content)

			assert.Equal(t, "pdf", metadata["type"])
			if tt.expectError {
				assert.Error(t, err)
				assert.Empty(t, text)

				var perr *ProcessingError
				assert.True(t, errors.As(err, &perr), "expected ProcessingError, got %T", err)
			} else {
				require.NoError(t, err)
				assert.Contains(t, text, "Hello World")
				assert.Equal(t, "success", metadata["status"])
			}
		})
	}
}

func TestPDFExtractor_ErrorTypes(t *testing.T) {
	err := &ProcessingError{Message: "test PDF processing"}
	assert.Equal(t, "test PDF processing", err.Error())
}

func TestPDFExtractor_AutoModeOCRsOnlyEmptyPages(t *testing.T) {
	ocr := &fakeOCR{texts: map[int]string{1: "Scanned text recovered from page two"}}
	extractor := &PDFExtractor{
		OCRMode:      OCRAuto,
		MinPageChars: 10,
		OCR:          ocr,
		Renderer:     fakeRenderer{pages: 2},
	}

	res, err := extractor.ExtractDetailed(context.Background(), buildPDF("Hello World from page one", ""))
	require.NoError(t, err)

	require.Len(t, res.Pages, 2)
	assert.Equal(t, MethodText, res.Pages[0].Method)
	assert.Equal(t, MethodOCR, res.Pages[1].Method)
	assert.Equal(t, MethodMixed, res.Method)
	assert.Equal(t, 1, ocr.calls)

	assert.Contains(t, res.Text, "Hello World")
	assert.Contains(t, res.Text, "Scanned text recovered")
	assert.Less(t, strings.Index(res.Text, "Hello"), strings.Index(res.Text, "Scanned"))
	assert.Equal(t, "1", res.Metadata["ocr_pages"])
	assert.Equal(t, "0", res.Metadata["failed_pages"])
}

func TestPDFExtractor_NeverModeRecordsFailedPage(t *testing.T) {
	ocr := &fakeOCR{texts: map[int]string{1: "should not be used"}}
	extractor := &PDFExtractor{OCRMode: OCRNever, OCR: ocr, Renderer: fakeRenderer{pages: 2}}

	res, err := extractor.ExtractDetailed(context.Background(), buildPDF("Hello World from page one", ""))
	require.NoError(t, err)

	require.Len(t, res.Pages, 2)
	assert.Equal(t, MethodText, res.Pages[0].Method)
	assert.Equal(t, MethodFailed, res.Pages[1].Method)
	assert.NotEmpty(t, res.Pages[1].Err)
	assert.Equal(t, 0, ocr.calls)
	assert.NotContains(t, res.Text, "should not be used")
	assert.Equal(t, MethodText, res.Method)
}

func TestPDFExtractor_AlwaysModeAppendsOCRSection(t *testing.T) {
	ocr := &fakeOCR{texts: map[int]string{0: "ocr page one", 1: "ocr page two"}}
	extractor := &PDFExtractor{OCRMode: OCRAlways, OCR: ocr, Renderer: fakeRenderer{pages: 2}}

	res, err := extractor.ExtractDetailed(context.Background(), buildPDF("Hello World from page one", ""))
	require.NoError(t, err)

	assert.Equal(t, 2, ocr.calls)
	require.Contains(t, res.Text, strings.TrimSpace(OCRSectionMarker))

	parts := strings.SplitN(res.Text, OCRSectionMarker, 2)
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0], "Hello World")
	assert.Equal(t, "ocr page one\n\nocr page two", parts[1])
}

func TestPDFExtractor_OCRFailureKeepsOtherPages(t *testing.T) {
	ocr := &fakeOCR{err: errors.New("tesseract crashed")}
	extractor := &PDFExtractor{OCRMode: OCRAuto, MinPageChars: 10, OCR: ocr, Renderer: fakeRenderer{pages: 2}}

	res, err := extractor.ExtractDetailed(context.Background(), buildPDF("Hello World from page one", ""))
	require.NoError(t, err)

	assert.Equal(t, MethodText, res.Pages[0].Method)
	assert.Equal(t, MethodFailed, res.Pages[1].Method)
	assert.Contains(t, res.Pages[1].Err, "tesseract crashed")
	assert.Equal(t, "1", res.Metadata["failed_pages"])
}

func TestPDFExtractor_AllPagesFail(t *testing.T) {
	ocr := &fakeOCR{err: errors.New("no engine")}
	extractor := &PDFExtractor{OCRMode: OCRAuto, OCR: ocr, Renderer: fakeRenderer{pages: 1}}

	res, err := extractor.ExtractDetailed(context.Background(), buildPDF(""))
	require.Error(t, err)

	var perr *ProcessingError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, "error", res.Metadata["status"])
	assert.Equal(t, MethodFailed, res.Pages[0].Method)
}

func TestPDFExtractor_UnreadableTextLayerFallsBackToOCR(t *testing.T) {
	ocr := &fakeOCR{texts: map[int]string{0: "first scanned page", 1: "second scanned page"}}
	extractor := &PDFExtractor{OCRMode: OCRAuto, OCR: ocr, Renderer: fakeRenderer{pages: 2}}

	content := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("garbage "), 40)...)
	res, err := extractor.ExtractDetailed(context.Background(), content)
	require.NoError(t, err)

	assert.Equal(t, MethodOCR, res.Method)
	assert.Equal(t, "2", res.Metadata["ocr_pages"])
	assert.NotEmpty(t, res.Metadata["parse_error"])
	assert.Equal(t, "first scanned page\n\nsecond scanned page", res.Text)
}

func TestPDFExtractor_UnreadableWithoutOCR(t *testing.T) {
	extractor := &PDFExtractor{OCRMode: OCRNever}
	content := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("garbage "), 40)...)

	_, _, err := extractor.Extract(context.Background(), content)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse PDF")
}

func TestPDFExtractor_MaxPages(t *testing.T) {
	extractor := &PDFExtractor{OCRMode: OCRNever, MaxPages: 2}

	res, err := extractor.ExtractDetailed(context.Background(), buildPDF("Page one text", "Page two text", "Page three text"))
	require.NoError(t, err)

	assert.Equal(t, "3", res.Metadata["pages"])
	assert.Equal(t, "2", res.Metadata["extracted_pages"])
	assert.Len(t, res.Pages, 2)
	assert.NotContains(t, res.Text, "three")
}

func TestPDFExtractor_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	extractor := &PDFExtractor{OCRMode: OCRNever}
	_, err := extractor.ExtractDetailed(ctx, buildPDF("Hello World from page one"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseOCRMode(t *testing.T) {
	for in, want := range map[string]OCRMode{"": OCRAuto, "AUTO": OCRAuto, "always": OCRAlways, " never ": OCRNever} {
		got, err := ParseOCRMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseOCRMode("sometimes")
	assert.Error(t, err)
}
