package extractor

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// PreprocessOptions controls the cleanup applied to images before OCR.
type PreprocessOptions struct {
	Scale      float64 // resize factor applied after grayscale conversion
	BlurKernel int     // Gaussian blur kernel size, odd; 0 disables
	BlockSize  int     // adaptive threshold neighbourhood, odd; 0 disables
	C          float64 // constant subtracted from the weighted mean
}

// DefaultPreprocessOptions returns the pipeline used for scanned pages:
// grayscale, 1.5x bilinear upscale, 5x5 Gaussian blur and an adaptive
// Gaussian threshold over 31x31 blocks with C=2.
func DefaultPreprocessOptions() *PreprocessOptions {
	return &PreprocessOptions{
		Scale:      1.5,
		BlurKernel: 5,
		BlockSize:  31,
		C:          2,
	}
}

// DecodeImage decodes PNG, JPEG, GIF, BMP or TIFF content.
func DecodeImage(content []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, "", processingErrorf("image not found or unreadable: %v", err)
	}
	return img, format, nil
}

// EncodePNG encodes an image as PNG for the OCR engine.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// PreparePNG decodes an image, runs Preprocess on it and returns the PNG the
// OCR engine would see.
func PreparePNG(content []byte, opts *PreprocessOptions) ([]byte, error) {
	img, _, err := DecodeImage(content)
	if err != nil {
		return nil, err
	}
	return EncodePNG(Preprocess(img, opts))
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Src)
	return gray
}

func scaledSize(b image.Rectangle, factor float64) (int, int) {
	return int(math.Round(float64(b.Dx()) * factor)), int(math.Round(float64(b.Dy()) * factor))
}
