package blur

import (
	"image"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/raaihank/frame-sentinel/internal/imgproc"
	"github.com/raaihank/frame-sentinel/internal/policy"
)

// GaussianTransform applies isotropic Gaussian smoothing
type GaussianTransform struct {
	kernel int
	sigma  float64
	logger *zap.Logger
}

// NewGaussian creates a Gaussian transform. Even kernel sizes are rounded up
// to the next odd size; a non-positive sigma is derived from the kernel size.
func NewGaussian(kernel int, sigma float64, logger *zap.Logger) *GaussianTransform {
	if kernel < 1 {
		kernel = 1
	}
	if kernel%2 == 0 {
		kernel++
	}
	if sigma <= 0 {
		sigma = imgproc.SigmaForKernel(kernel)
	}
	return &GaussianTransform{kernel: kernel, sigma: sigma, logger: logger}
}

func (g *GaussianTransform) Name() policy.Method { return policy.Gaussian }

// Sigma returns the effective standard deviation
func (g *GaussianTransform) Sigma() float64 { return g.sigma }

func (g *GaussianTransform) Apply(src *image.RGBA) *image.RGBA {
	return safeApply(g.logger, policy.Gaussian, g.blur, src)
}

func (g *GaussianTransform) blur(src *image.RGBA) *image.RGBA {
	blurred := imaging.Blur(src, g.sigma)
	out := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	draw.Draw(out, out.Bounds(), blurred, blurred.Bounds().Min, draw.Src)
	return out
}
