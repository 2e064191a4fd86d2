// Package imgproc implements the classical image operations the detectors
// and text preprocessing rely on: separable Gaussian smoothing, Canny edges,
// border following, polygon approximation, adaptive thresholding and
// integral images. All operations work on zero-origin *image.Gray values.
package imgproc

import (
	"image"
	"math"
)

// Border selects how pixels outside the image are synthesized
type Border int

const (
	// BorderReflect101 mirrors without repeating the edge pixel (gfedcb|abcdefgh|gfedcba)
	BorderReflect101 Border = iota
	// BorderReplicate repeats the edge pixel (aaaaaa|abcdefgh|hhhhhhh)
	BorderReplicate
)

// fixed small kernels used when sigma is derived from the size
var smallKernels = map[int][]float64{
	1: {1},
	3: {0.25, 0.5, 0.25},
	5: {0.0625, 0.25, 0.375, 0.25, 0.0625},
	7: {0.03125, 0.109375, 0.21875, 0.28125, 0.21875, 0.109375, 0.03125},
}

// SigmaForKernel returns the sigma implied by an odd kernel size when no
// explicit sigma is given
func SigmaForKernel(ksize int) float64 {
	return 0.3*(float64(ksize-1)*0.5-1) + 0.8
}

// GaussianKernel returns normalized 1-D Gaussian weights of length ksize.
// A non-positive sigma is derived from ksize.
func GaussianKernel(ksize int, sigma float64) []float64 {
	if ksize < 1 {
		ksize = 1
	}
	if ksize%2 == 0 {
		ksize++
	}
	if sigma <= 0 {
		if k, ok := smallKernels[ksize]; ok {
			out := make([]float64, len(k))
			copy(out, k)
			return out
		}
		sigma = SigmaForKernel(ksize)
	}

	kernel := make([]float64, ksize)
	half := ksize / 2
	scale := -0.5 / (sigma * sigma)
	var sum float64
	for i := range kernel {
		x := float64(i - half)
		kernel[i] = math.Exp(scale * x * x)
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// GaussianBlur smooths g with a ksize x ksize Gaussian kernel
func GaussianBlur(g *image.Gray, ksize int, sigma float64) *image.Gray {
	return SeparableFilter(g, GaussianKernel(ksize, sigma), BorderReflect101)
}

// SeparableFilter convolves g with kernel horizontally then vertically
func SeparableFilter(g *image.Gray, kernel []float64, border Border) *image.Gray {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}
	half := len(kernel) / 2

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		for x := 0; x < w; x++ {
			var acc float64
			for k, wt := range kernel {
				acc += wt * float64(row[borderIndex(x+k-half, w, border)])
			}
			tmp[y*w+x] = acc
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k, wt := range kernel {
				acc += wt * tmp[borderIndex(y+k-half, h, border)*w+x]
			}
			out.Pix[y*out.Stride+x] = saturate(acc)
		}
	}
	return out
}

func borderIndex(i, n int, border Border) int {
	if i >= 0 && i < n {
		return i
	}
	if n == 1 {
		return 0
	}
	switch border {
	case BorderReplicate:
		if i < 0 {
			return 0
		}
		return n - 1
	default:
		for i < 0 || i >= n {
			if i < 0 {
				i = -i
			}
			if i >= n {
				i = 2*(n-1) - i
			}
		}
		return i
	}
}

func saturate(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
