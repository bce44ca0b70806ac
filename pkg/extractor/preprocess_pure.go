//go:build !ocr

package extractor

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Preprocess prepares an image for OCR. A nil opts returns the grayscale
// image unchanged otherwise. This build has no OpenCV, so the filters are
// computed in Go with OpenCV's kernels and border rules.
func Preprocess(src image.Image, opts *PreprocessOptions) *image.Gray {
	gray := toGray(src)
	if opts == nil {
		return gray
	}

	if opts.Scale > 0 && opts.Scale != 1 {
		gray = scaleGray(gray, opts.Scale)
	}

	if opts.BlurKernel > 1 {
		plane := gaussianBlur(gray, opts.BlurKernel, reflect101)
		for i, v := range plane {
			gray.Pix[i] = clampByte(v)
		}
	}

	if opts.BlockSize > 1 {
		gray = adaptiveThreshold(gray, opts.BlockSize, opts.C)
	}

	return gray
}

func scaleGray(src *image.Gray, factor float64) *image.Gray {
	w, h := scaledSize(src.Bounds(), factor)
	if w < 1 || h < 1 {
		return src
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// smallGaussianKernels are the fixed kernels OpenCV uses for sizes up to 7
// when sigma is zero.
var smallGaussianKernels = map[int][]float64{
	1: {1},
	3: {0.25, 0.5, 0.25},
	5: {0.0625, 0.25, 0.375, 0.25, 0.0625},
	7: {0.03125, 0.109375, 0.21875, 0.28125, 0.21875, 0.109375, 0.03125},
}

// kernelSigma derives sigma from the kernel size the way OpenCV does when
// sigma is left at zero.
func kernelSigma(ksize int) float64 {
	return 0.3*(float64(ksize-1)*0.5-1) + 0.8
}

// gaussianKernel returns the 1-D kernel OpenCV builds for ksize with sigma 0.
func gaussianKernel(ksize int) []float64 {
	if k, ok := smallGaussianKernels[ksize]; ok {
		return k
	}
	sigma := kernelSigma(ksize)
	k := make([]float64, ksize)
	half := ksize / 2
	sum := 0.0
	for i := range k {
		x := float64(i - half)
		k[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// borderFunc maps an out-of-range index back into [0, n).
type borderFunc func(i, n int) int

// reflect101 mirrors around the edge pixel (dcb|abcd|cba). This is OpenCV's
// BORDER_DEFAULT.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// replicate repeats the edge pixel (aaa|abcd|ddd), OpenCV's BORDER_REPLICATE.
func replicate(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// gaussianBlur applies a separable Gaussian filter and returns the result as
// a float plane with the same stride as src.
func gaussianBlur(src *image.Gray, ksize int, border borderFunc) []float64 {
	if ksize%2 == 0 {
		ksize++
	}
	kernel := gaussianKernel(ksize)
	half := ksize / 2
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x++ {
			acc := 0.0
			for k, wt := range kernel {
				acc += wt * float64(row[border(x+k-half, w)])
			}
			tmp[y*w+x] = acc
		}
	}

	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for k, wt := range kernel {
				acc += wt * tmp[border(y+k-half, h)*w+x]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

// adaptiveThreshold sets a pixel to white when it is brighter than the
// Gaussian-weighted mean of its block minus c, and to black otherwise. The
// mean is rounded to 8 bits and c to a whole step, as in OpenCV.
func adaptiveThreshold(src *image.Gray, blockSize int, c float64) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	mean := gaussianBlur(src, blockSize, replicate)

	delta := int(math.Ceil(c))
	if c < 0 {
		delta = int(math.Floor(c))
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := int(src.Pix[y*src.Stride+x])
			if v > int(clampByte(mean[y*w+x]))-delta {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

func clampByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
