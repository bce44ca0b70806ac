//go:build ocr

package extractor

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// OCRAvailable reports whether the binary was built with Tesseract support.
const OCRAvailable = true

// Extract decodes the image, preprocesses it and runs Tesseract.
func (o *OCRExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type":     "ocr",
		"size":     fmt.Sprintf("%d", len(content)),
		"language": o.Language,
		"engine":   "tesseract",
	}

	if len(content) == 0 {
		return "", metadata, processingErrorf("no image content provided for OCR")
	}

	img, format, err := DecodeImage(content)
	if err != nil {
		return "", metadata, err
	}
	metadata["format"] = format
	metadata["width"] = fmt.Sprintf("%d", img.Bounds().Dx())
	metadata["height"] = fmt.Sprintf("%d", img.Bounds().Dy())

	text, err := o.RecognizeImage(ctx, img)
	if err != nil {
		return "", metadata, err
	}

	metadata["text_length"] = fmt.Sprintf("%d", len(text))
	metadata["word_count"] = fmt.Sprintf("%d", len(strings.Fields(text)))
	metadata["status"] = "success"
	if text == "" {
		metadata["status"] = "empty"
	}

	return text, metadata, nil
}

// RecognizeImage preprocesses img and returns the recognized text.
func (o *OCRExtractor) RecognizeImage(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := EncodePNG(Preprocess(img, o.Preprocess))
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(o.Language); err != nil {
		return "", processingErrorf("failed to set OCR language '%s': %v", o.Language, err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(o.PageSegMode)); err != nil {
		return "", processingErrorf("failed to set page segmentation mode: %v", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", processingErrorf("failed to set OCR image data: %v", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR text extraction failed: %w", err)
	}

	return strings.TrimSpace(normalizeNewlines(text)), nil
}
