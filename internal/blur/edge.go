package blur

import (
	"image"
	"math"

	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/policy"
)

const domainTransformIterations = 3

// EdgePreservingTransform smooths flat areas while keeping strong edges.
// It runs a normalized-convolution domain transform and falls back to a
// bilateral filter if that fails; if both fail the input is returned.
type EdgePreservingTransform struct {
	primary  filterFunc
	fallback filterFunc
	logger   *zap.Logger
}

// NewEdgePreserving creates the edge-preserving transform from params
func NewEdgePreserving(params Params, logger *zap.Logger) *EdgePreservingTransform {
	sigmaS, sigmaR := params.EdgeSigmaS, params.EdgeSigmaR
	if sigmaS <= 0 {
		sigmaS = 15
	}
	if sigmaR <= 0 {
		sigmaR = 0.1
	}
	diameter := int(sigmaS)
	return &EdgePreservingTransform{
		primary: func(src *image.RGBA) *image.RGBA {
			return domainTransform(src, sigmaS, sigmaR, domainTransformIterations)
		},
		fallback: func(src *image.RGBA) *image.RGBA {
			return bilateral(src, diameter, params.BilateralSigmaColor, params.BilateralSigmaSpace)
		},
		logger: logger,
	}
}

func (e *EdgePreservingTransform) Name() policy.Method { return policy.EdgePreserving }

func (e *EdgePreservingTransform) Apply(src *image.RGBA) *image.RGBA {
	if empty(src) {
		return src
	}
	if out, ok := tryApply(e.logger, policy.EdgePreserving, e.primary, src); ok {
		return out
	}
	if e.fallback != nil {
		if out, ok := tryApply(e.logger, policy.EdgePreserving, e.fallback, src); ok {
			return out
		}
	}
	return src
}

// domainTransform implements the normalized-convolution variant of the
// Gastal-Oliveira domain transform. sigmaR is in [0,1] intensity units.
func domainTransform(src *image.RGBA, sigmaS, sigmaR float64, iterations int) *image.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	n := w * h

	var chans [3][]float64
	for c := range chans {
		chans[c] = make([]float64, n)
	}
	for y := 0; y < h; y++ {
		row := src.Pix[src.PixOffset(src.Bounds().Min.X, src.Bounds().Min.Y+y):]
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				chans[c][y*w+x] = float64(row[x*4+c]) / 255
			}
		}
	}

	ratio := sigmaS / sigmaR
	ctH := make([]float64, n)
	ctV := make([]float64, n)
	for y := 0; y < h; y++ {
		for x := 1; x < w; x++ {
			i := y*w + x
			var d float64
			for c := 0; c < 3; c++ {
				d += math.Abs(chans[c][i] - chans[c][i-1])
			}
			ctH[i] = ctH[i-1] + 1 + ratio*d
		}
	}
	for x := 0; x < w; x++ {
		for y := 1; y < h; y++ {
			i := y*w + x
			var d float64
			for c := 0; c < 3; c++ {
				d += math.Abs(chans[c][i] - chans[c][i-w])
			}
			ctV[i] = ctV[i-w] + 1 + ratio*d
		}
	}

	denom := math.Sqrt(math.Pow(4, float64(iterations)) - 1)
	for it := 0; it < iterations; it++ {
		sigmaH := sigmaS * math.Sqrt(3) * math.Pow(2, float64(iterations-it-1)) / denom
		radius := sigmaH * math.Sqrt(3)
		for c := 0; c < 3; c++ {
			for y := 0; y < h; y++ {
				boxFilterLine(chans[c], ctH, y*w, 1, w, radius)
			}
			for x := 0; x < w; x++ {
				boxFilterLine(chans[c], ctV, x, w, h, radius)
			}
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			out.Pix[i*4+c] = clampByte(chans[c][i] * 255)
		}
		out.Pix[i*4+3] = 0xff
	}
	return out
}

// boxFilterLine averages, in place, every sample whose transformed coordinate
// lies within radius of the current one. Samples are at start+k*step.
func boxFilterLine(data, ct []float64, start, step, count int, radius float64) {
	prefix := make([]float64, count+1)
	for k := 0; k < count; k++ {
		prefix[k+1] = prefix[k] + data[start+k*step]
	}
	lo, hi := 0, 0
	for k := 0; k < count; k++ {
		t := ct[start+k*step]
		for ct[start+lo*step] < t-radius {
			lo++
		}
		if hi < k {
			hi = k
		}
		for hi+1 < count && ct[start+(hi+1)*step] <= t+radius {
			hi++
		}
		data[start+k*step] = (prefix[hi+1] - prefix[lo]) / float64(hi-lo+1)
	}
}

// bilateral applies a bilateral filter over a circular window of the given
// diameter. Color distance is the L1 distance across channels.
func bilateral(src *image.RGBA, diameter int, sigmaColor, sigmaSpace float64) *image.RGBA {
	if sigmaColor <= 0 {
		sigmaColor = 1
	}
	if sigmaSpace <= 0 {
		sigmaSpace = 1
	}
	radius := diameter / 2
	if diameter <= 0 {
		radius = int(math.Round(sigmaSpace * 1.5))
	}
	if radius < 1 {
		radius = 1
	}

	var colorWeight [3*255 + 1]float64
	gc := -0.5 / (sigmaColor * sigmaColor)
	for i := range colorWeight {
		colorWeight[i] = math.Exp(float64(i*i) * gc)
	}
	type tap struct {
		dx, dy int
		w      float64
	}
	gs := -0.5 / (sigmaSpace * sigmaSpace)
	var taps []tap
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			r := math.Sqrt(float64(dx*dx + dy*dy))
			if r > float64(radius) {
				continue
			}
			taps = append(taps, tap{dx, dy, math.Exp(r * r * gs)})
		}
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	at := func(x, y int) []uint8 {
		o := src.PixOffset(b.Min.X+x, b.Min.Y+y)
		return src.Pix[o : o+3]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := at(x, y)
			var sum [3]float64
			var wsum float64
			for _, t := range taps {
				nx, ny := x+t.dx, y+t.dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				p := at(nx, ny)
				d := absDiff(p[0], center[0]) + absDiff(p[1], center[1]) + absDiff(p[2], center[2])
				wt := t.w * colorWeight[d]
				sum[0] += wt * float64(p[0])
				sum[1] += wt * float64(p[1])
				sum[2] += wt * float64(p[2])
				wsum += wt
			}
			o := y*out.Stride + x*4
			for c := 0; c < 3; c++ {
				out.Pix[o+c] = clampByte(sum[c] / wsum)
			}
			out.Pix[o+3] = 0xff
		}
	}
	return out
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
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
