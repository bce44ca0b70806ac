//go:build !ocr

package extractor

import (
	"context"
	"fmt"
	"image"
)

// OCRAvailable reports whether the binary was built with Tesseract support.
const OCRAvailable = false

const ocrUnavailableMessage = "OCR functionality requires Tesseract. Install it (brew install tesseract, or apt install tesseract-ocr libtesseract-dev) and build with -tags ocr"

// Extract returns an error indicating OCR is not available
func (o *OCRExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type":     "ocr",
		"size":     fmt.Sprintf("%d", len(content)),
		"language": o.Language,
		"engine":   "tesseract_not_available",
		"status":   "error",
	}
	return "", metadata, &ProcessingError{Message: ocrUnavailableMessage}
}

// RecognizeImage always fails without Tesseract.
func (o *OCRExtractor) RecognizeImage(ctx context.Context, img image.Image) (string, error) {
	return "", &ProcessingError{Message: ocrUnavailableMessage}
}
