package presentation

import (
	"github.com/Caia-Tech/smartmeta/pkg/document"
	"github.com/Caia-Tech/smartmeta/pkg/metadata"
)

// ViewData is passed to every page template
type ViewData struct {
	Title    string
	Error    string
	Accept   string
	Document *DocumentView
	Result   *ResultView
}

// DocumentView is the extracted text page
type DocumentView struct {
	ID          string
	Filename    string
	Size        string
	Characters  string
	Method      string
	Warnings    []string
	Preview     string
	FullText    string
	Pages       []document.PageResult
	HasMetadata bool
}

// Metric is one headline value on the overview tab
type Metric struct {
	Label string
	Value string
}

// ResultView is the generated metadata page. Raw is set instead of the
// metadata when the model response could not be parsed.
type ResultView struct {
	DocumentID string
	Filename   string
	Model      string
	Left       []Metric
	Right      []Metric
	Summary    string
	Pretty     string
	Raw        string
	Succeeded  bool
}

// overviewColumns splits the headline fields into the two overview columns,
// leaving out fields the model did not return.
func overviewColumns(ov metadata.Overview) (left, right []Metric) {
	add := func(list []Metric, label, value string) []Metric {
		if value == "" {
			return list
		}
		return append(list, Metric{Label: label, Value: value})
	}

	left = add(left, "Title", ov.Title)
	left = add(left, "Category", ov.Category)
	left = add(left, "Language", ov.Language)
	left = add(left, "Sentiment", ov.Sentiment)

	right = add(right, "Author", ov.Author)
	right = add(right, "Reading Time", ov.ReadingTime)
	right = add(right, "Confidential", ov.Confidential)
	return left, right
}
