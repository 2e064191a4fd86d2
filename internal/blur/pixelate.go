package blur

import (
	"image"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/raaihank/frame-sentinel/internal/policy"
)

// PixelateTransform produces a mosaic by downsampling with linear
// interpolation and upsampling with nearest neighbour
type PixelateTransform struct {
	block  int
	logger *zap.Logger
}

// NewPixelate creates a pixelation transform with the given block size
func NewPixelate(block int, logger *zap.Logger) *PixelateTransform {
	if block < 1 {
		block = 1
	}
	return &PixelateTransform{block: block, logger: logger}
}

func (p *PixelateTransform) Name() policy.Method { return policy.Pixelate }

func (p *PixelateTransform) Apply(src *image.RGBA) *image.RGBA {
	return safeApply(p.logger, policy.Pixelate, p.pixelate, src)
}

func (p *PixelateTransform) pixelate(src *image.RGBA) *image.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	sw, sh := max(1, w/p.block), max(1, h/p.block)

	small := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.BiLinear.Scale(small, small.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(out, out.Bounds(), small, small.Bounds(), draw.Src, nil)
	return out
}
