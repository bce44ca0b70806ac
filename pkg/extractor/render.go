package extractor

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// PageRenderer rasterizes PDF pages so they can be sent through OCR.
type PageRenderer interface {
	Open(content []byte) (RenderedDocument, error)
}

// RenderedDocument is an open PDF that can rasterize its pages. Page indexes
// are zero based.
type RenderedDocument interface {
	NumPage() int
	RenderPage(index int, dpi float64) (image.Image, error)
	Close() error
}

// FitzRenderer renders pages with MuPDF through go-fitz.
type FitzRenderer struct{}

// Open loads the PDF from memory; nothing is written to disk.
func (FitzRenderer) Open(content []byte) (RenderedDocument, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("open pdf for rendering: %w", err)
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (f *fitzDocument) NumPage() int {
	return f.doc.NumPage()
}

func (f *fitzDocument) RenderPage(index int, dpi float64) (image.Image, error) {
	img, err := f.doc.ImageDPI(index, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", index+1, err)
	}
	return img, nil
}

func (f *fitzDocument) Close() error {
	return f.doc.Close()
}
