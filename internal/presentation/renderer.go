package presentation

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/Caia-Tech/smartmeta/pkg/document"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{"index", "document", "result"}

// Renderer renders the UI pages
type Renderer struct {
	templates map[string]*template.Template
	printer   *message.Printer
}

// NewRenderer parses the embedded page templates
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[string]*template.Template, len(pages)),
		printer:   message.NewPrinter(language.English),
	}

	for _, page := range pages {
		tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", page, err)
		}
		r.templates[page] = tmpl
	}
	return r, nil
}

// Render writes page with data
func (r *Renderer) Render(w io.Writer, page string, data *ViewData) error {
	tmpl, ok := r.templates[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	if data.Title == "" {
		data.Title = "SmartMeta: AI Metadata Generator"
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}

// Count formats n with thousands separators
func (r *Renderer) Count(n int64) string {
	return r.printer.Sprintf("%d", n)
}

// DocumentView builds the extracted text page for doc
func (r *Renderer) DocumentView(doc *document.Document) *DocumentView {
	return &DocumentView{
		ID:          doc.ID,
		Filename:    doc.Source.Filename,
		Size:        r.Count(doc.Source.Size),
		Characters:  r.Count(int64(doc.CharCount())),
		Method:      doc.Report.Method,
		Warnings:    doc.Report.Warnings,
		Preview:     doc.Preview(document.PreviewLength),
		FullText:    doc.Content.Text,
		Pages:       doc.Report.Pages,
		HasMetadata: doc.Generated.Succeeded(),
	}
}

// ResultView builds the metadata page for doc. Documents whose generation
// failed to parse show the raw response instead.
func (r *Renderer) ResultView(doc *document.Document) (*ResultView, error) {
	view := &ResultView{
		DocumentID: doc.ID,
		Filename:   doc.Source.Filename,
	}
	if doc.Generated == nil {
		return view, nil
	}
	view.Model = doc.Generated.Model

	if !doc.Generated.Succeeded() {
		view.Raw = doc.Generated.Raw
		return view, nil
	}

	md := doc.Generated.Metadata
	pretty, err := md.MarshalIndent("  ")
	if err != nil {
		return nil, fmt.Errorf("failed to format metadata: %w", err)
	}
	view.Pretty = string(pretty)
	view.Succeeded = true

	ov := md.Overview()
	view.Left, view.Right = overviewColumns(ov)
	view.Summary = ov.Summary
	return view, nil
}
