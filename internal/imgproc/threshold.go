package imgproc

import "image"

// AdaptiveThresholdGaussian binarizes g against a Gaussian-weighted local
// mean over a blockSize neighbourhood minus c. With invert false, pixels
// above the threshold become 255; with invert true they become 0.
func AdaptiveThresholdGaussian(g *image.Gray, blockSize int, c float64, invert bool) *image.Gray {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}
	if blockSize < 3 {
		blockSize = 3
	}
	if blockSize%2 == 0 {
		blockSize++
	}

	mean := SeparableFilter(g, GaussianKernel(blockSize, SigmaForKernel(blockSize)), BorderReplicate)
	hi, lo := uint8(255), uint8(0)
	if invert {
		hi, lo = 0, 255
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float64(g.Pix[y*g.Stride+x])
			t := float64(mean.Pix[y*mean.Stride+x]) - c
			if v > t {
				out.Pix[y*out.Stride+x] = hi
			} else {
				out.Pix[y*out.Stride+x] = lo
			}
		}
	}
	return out
}

// Integral holds summed-area tables of pixel values and their squares
type Integral struct {
	W, H   int
	sum    []int64
	sqsum  []int64
	stride int
}

// NewIntegral builds the summed-area tables for g
func NewIntegral(g *image.Gray) *Integral {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	stride := w + 1
	it := &Integral{
		W:      w,
		H:      h,
		sum:    make([]int64, stride*(h+1)),
		sqsum:  make([]int64, stride*(h+1)),
		stride: stride,
	}
	for y := 0; y < h; y++ {
		var rowSum, rowSq int64
		for x := 0; x < w; x++ {
			v := int64(g.Pix[y*g.Stride+x])
			rowSum += v
			rowSq += v * v
			i := (y+1)*stride + x + 1
			it.sum[i] = it.sum[i-stride] + rowSum
			it.sqsum[i] = it.sqsum[i-stride] + rowSq
		}
	}
	return it
}

// Sum returns the pixel total over [x0,x1) x [y0,y1)
func (it *Integral) Sum(x0, y0, x1, y1 int) int64 {
	return it.sum[y1*it.stride+x1] - it.sum[y0*it.stride+x1] - it.sum[y1*it.stride+x0] + it.sum[y0*it.stride+x0]
}

// SqSum returns the total of squared pixels over [x0,x1) x [y0,y1)
func (it *Integral) SqSum(x0, y0, x1, y1 int) int64 {
	return it.sqsum[y1*it.stride+x1] - it.sqsum[y0*it.stride+x1] - it.sqsum[y1*it.stride+x0] + it.sqsum[y0*it.stride+x0]
}

// Mean returns the average pixel value over [x0,x1) x [y0,y1)
func (it *Integral) Mean(x0, y0, x1, y1 int) float64 {
	n := (x1 - x0) * (y1 - y0)
	if n <= 0 {
		return 0
	}
	return float64(it.Sum(x0, y0, x1, y1)) / float64(n)
}
