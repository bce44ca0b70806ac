package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// OCRMode decides when PDF pages are sent through OCR.
type OCRMode string

const (
	// OCRAuto OCRs only pages whose embedded text is missing or too short.
	OCRAuto OCRMode = "auto"
	// OCRAlways OCRs every page and appends the OCR text after the embedded
	// text under an "[OCR-Extracted Text]" marker.
	OCRAlways OCRMode = "always"
	// OCRNever uses embedded text only.
	OCRNever OCRMode = "never"
)

// OCRSectionMarker separates embedded text from OCR text in OCRAlways mode.
const OCRSectionMarker = "\n\n[OCR-Extracted Text]\n"

// ParseOCRMode validates a mode string; the empty string means auto.
func ParseOCRMode(s string) (OCRMode, error) {
	switch OCRMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", OCRAuto:
		return OCRAuto, nil
	case OCRAlways:
		return OCRAlways, nil
	case OCRNever:
		return OCRNever, nil
	default:
		return "", fmt.Errorf("unknown OCR mode %q (want auto, always or never)", s)
	}
}

// PDFExtractor handles PDF file extraction
type PDFExtractor struct {
	OCRMode      OCRMode
	MaxPages     int
	DPI          float64
	MinPageChars int
	OCR          ImageRecognizer
	Renderer     PageRenderer
}

// Extract extracts text and metadata from PDF content
func (p *PDFExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	res, err := p.ExtractDetailed(ctx, content)
	if err != nil {
		return "", res.Metadata, err
	}
	return res.Text, res.Metadata, nil
}

// ExtractDetailed extracts text page by page. Pages that fail or yield too
// little embedded text fall back to OCR according to OCRMode; a page that
// fails both ways is recorded and skipped. The document only fails when no
// page produced text. The returned Result is never nil.
func (p *PDFExtractor) ExtractDetailed(ctx context.Context, content []byte) (*Result, error) {
	mode := p.OCRMode
	if mode == "" {
		mode = OCRAuto
	}

	res := &Result{
		Metadata: map[string]string{
			"type":     "pdf",
			"size":     fmt.Sprintf("%d", len(content)),
			"ocr_mode": string(mode),
		},
	}

	if len(content) < 4 || string(content[:4]) != "%PDF" {
		return res, processingErrorf("not a valid PDF file - content starts with: %q", string(content[:min(20, len(content))]))
	}

	run := &pdfRun{extractor: p, mode: mode, content: content}
	defer run.close()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		// The text layer is unreadable; a renderer may still cope.
		if mode == OCRNever || !run.canOCR() {
			return res, processingErrorf("failed to parse PDF: %v", err)
		}
		log.Warn().Err(err).Msg("PDF text layer unreadable, falling back to OCR for all pages")
		res.Metadata["parse_error"] = err.Error()
		return p.finish(ctx, res, run, run.renderedPageCount(), nil)
	}

	return p.finish(ctx, res, run, reader.NumPage(), reader)
}

func (p *PDFExtractor) finish(ctx context.Context, res *Result, run *pdfRun, numPages int, reader *pdf.Reader) (*Result, error) {
	limit := numPages
	if p.MaxPages > 0 && limit > p.MaxPages {
		limit = p.MaxPages
	}

	var direct, ocrText strings.Builder
	var textPages, ocrPages, failedPages int

	for i := 1; i <= limit; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page := PageResult{Number: i}
		var pageText string
		var pageErr error
		if reader != nil {
			pageText, pageErr = pageDirectText(reader, i)
		} else {
			pageErr = fmt.Errorf("text layer unavailable")
		}
		pageText = strings.TrimSpace(pageText)
		chars := countChars(pageText)

		switch run.mode {
		case OCRNever:
			if pageErr == nil && chars > 0 {
				page.Method, page.Chars = MethodText, chars
				appendPage(&direct, pageText)
			} else {
				page.Method = MethodFailed
				page.Err = pageErrString(pageErr, "no embedded text")
			}

		case OCRAlways:
			if pageErr == nil && chars > 0 {
				appendPage(&direct, pageText)
				page.Method, page.Chars = MethodText, chars
			}
			recognized, err := run.ocrPage(ctx, i-1)
			switch {
			case err == nil && recognized != "":
				appendPage(&ocrText, recognized)
				page.Method = MethodOCR
				page.Chars = chars + countChars(recognized)
			case page.Method == "":
				page.Method = MethodFailed
				page.Err = pageErrString(err, "OCR produced no text")
			default:
				page.Err = pageErrString(err, "OCR produced no text")
			}

		default: // OCRAuto
			if pageErr == nil && chars >= p.minChars() {
				page.Method, page.Chars = MethodText, chars
				appendPage(&direct, pageText)
				break
			}
			recognized, err := run.ocrPage(ctx, i-1)
			switch {
			case err == nil && countChars(recognized) > chars:
				page.Method, page.Chars = MethodOCR, countChars(recognized)
				appendPage(&direct, recognized)
			case chars > 0:
				// OCR did not beat the short embedded text; keep it.
				page.Method, page.Chars = MethodText, chars
				appendPage(&direct, pageText)
				if err != nil {
					page.Err = err.Error()
				}
			default:
				page.Method = MethodFailed
				if err != nil {
					page.Err = err.Error()
				} else {
					page.Err = pageErrString(pageErr, "page has no text")
				}
			}
		}

		switch page.Method {
		case MethodText:
			textPages++
		case MethodOCR:
			ocrPages++
		case MethodFailed:
			failedPages++
			log.Debug().Int("page", i).Str("error", page.Err).Msg("PDF page produced no text")
		}
		res.Pages = append(res.Pages, page)
	}

	text := strings.TrimSpace(direct.String())
	if recognized := strings.TrimSpace(ocrText.String()); run.mode == OCRAlways && recognized != "" {
		text += OCRSectionMarker + recognized
	}

	res.Text = text
	res.Method = overallMethod(textPages, ocrPages)
	res.Metadata["pages"] = fmt.Sprintf("%d", numPages)
	res.Metadata["extracted_pages"] = fmt.Sprintf("%d", limit)
	res.Metadata["text_pages"] = fmt.Sprintf("%d", textPages)
	res.Metadata["ocr_pages"] = fmt.Sprintf("%d", ocrPages)
	res.Metadata["failed_pages"] = fmt.Sprintf("%d", failedPages)
	res.Metadata["text_length"] = fmt.Sprintf("%d", len(text))

	if limit == 0 {
		res.Metadata["status"] = "error"
		return res, processingErrorf("PDF has no pages")
	}
	if text == "" {
		res.Metadata["status"] = "error"
		return res, processingErrorf("PDF contains no extractable text (%d of %d pages failed)", failedPages, limit)
	}

	res.Metadata["status"] = "success"
	return res, nil
}

func (p *PDFExtractor) minChars() int {
	if p.MinPageChars <= 0 {
		return 1
	}
	return p.MinPageChars
}

func (p *PDFExtractor) dpi() float64 {
	if p.DPI <= 0 {
		return 300
	}
	return p.DPI
}

// pageDirectText reads the embedded text of a 1-based page. The PDF library
// panics on some malformed content streams; that is reported as a page error.
func pageDirectText(reader *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d: %v", n, r)
		}
	}()

	page := reader.Page(n)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d missing", n)
	}
	return page.GetPlainText(nil)
}

func appendPage(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(text)
}

func pageErrString(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}

func overallMethod(textPages, ocrPages int) string {
	switch {
	case ocrPages == 0:
		return MethodText
	case textPages == 0:
		return MethodOCR
	default:
		return MethodMixed
	}
}

// pdfRun holds the lazily opened renderer for one extraction.
type pdfRun struct {
	extractor *PDFExtractor
	mode      OCRMode
	content   []byte
	rendered  RenderedDocument
	openErr   error
	opened    bool
}

func (r *pdfRun) canOCR() bool {
	return r.extractor.OCR != nil && r.extractor.Renderer != nil
}

func (r *pdfRun) open() (RenderedDocument, error) {
	if !r.opened {
		r.opened = true
		if !r.canOCR() {
			r.openErr = fmt.Errorf("OCR not configured")
		} else {
			r.rendered, r.openErr = r.extractor.Renderer.Open(r.content)
		}
	}
	return r.rendered, r.openErr
}

func (r *pdfRun) renderedPageCount() int {
	doc, err := r.open()
	if err != nil {
		return 0
	}
	return doc.NumPage()
}

func (r *pdfRun) ocrPage(ctx context.Context, index int) (string, error) {
	doc, err := r.open()
	if err != nil {
		return "", err
	}
	if index >= doc.NumPage() {
		return "", fmt.Errorf("page %d out of range", index+1)
	}
	img, err := doc.RenderPage(index, r.extractor.dpi())
	if err != nil {
		return "", err
	}
	text, err := r.extractor.OCR.RecognizeImage(ctx, img)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (r *pdfRun) close() {
	if r.rendered != nil {
		if err := r.rendered.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close rendered PDF")
		}
	}
}
