package extractor

import (
	"context"
	"image"
)

// ImageRecognizer runs OCR on a decoded image.
type ImageRecognizer interface {
	RecognizeImage(ctx context.Context, img image.Image) (string, error)
}

// PageSegAuto is Tesseract's fully automatic page segmentation mode.
const PageSegAuto = 3

// OCRExtractor handles OCR text extraction from images
type OCRExtractor struct {
	Language    string // Tesseract language code (e.g., "eng", "eng+fra")
	PageSegMode int
	Preprocess  *PreprocessOptions // nil sends the grayscale image as-is
}

// NewOCRExtractor creates a new OCR extractor with default settings
func NewOCRExtractor() *OCRExtractor {
	return &OCRExtractor{
		Language:    "eng",
		PageSegMode: PageSegAuto,
		Preprocess:  DefaultPreprocessOptions(),
	}
}
