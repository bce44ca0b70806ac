//go:build ocr

package extractor

import (
	"image"

	"gocv.io/x/gocv"
)

// Preprocess prepares an image for OCR with OpenCV. A nil opts returns the
// grayscale image unchanged otherwise.
func Preprocess(src image.Image, opts *PreprocessOptions) *image.Gray {
	gray := toGray(src)
	if opts == nil {
		return gray
	}

	mat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return gray
	}
	defer mat.Close()

	if opts.Scale > 0 && opts.Scale != 1 {
		if w, h := scaledSize(gray.Bounds(), opts.Scale); w >= 1 && h >= 1 {
			scaled := gocv.NewMat()
			gocv.Resize(mat, &scaled, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
			mat.Close()
			mat = scaled
		}
	}

	if opts.BlurKernel > 1 {
		ksize := opts.BlurKernel | 1
		gocv.GaussianBlur(mat, &mat, image.Pt(ksize, ksize), 0, 0, gocv.BorderDefault)
	}

	if opts.BlockSize > 1 {
		binary := gocv.NewMat()
		gocv.AdaptiveThreshold(mat, &binary, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, opts.BlockSize|1, float32(opts.C))
		mat.Close()
		mat = binary
	}

	out, err := mat.ToImage()
	if err != nil {
		return gray
	}
	if g, ok := out.(*image.Gray); ok {
		return g
	}
	return toGray(out)
}
