// Package blur provides the region obfuscation transforms. Every transform
// returns an image with the same size as its input and never panics:
// failures are logged and the input is returned unchanged.
package blur

import (
	"image"

	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/policy"
)

// Transform obfuscates one region
type Transform interface {
	Name() policy.Method
	Apply(src *image.RGBA) *image.RGBA
}

// Params holds the tunables of every transform
type Params struct {
	GaussianKernel      int     `yaml:"gaussian_kernel" mapstructure:"gaussian_kernel"`
	GaussianSigma       float64 `yaml:"gaussian_sigma" mapstructure:"gaussian_sigma"`
	PixelateBlock       int     `yaml:"pixelate_block" mapstructure:"pixelate_block"`
	EdgeSigmaS          float64 `yaml:"edge_sigma_s" mapstructure:"edge_sigma_s"`
	EdgeSigmaR          float64 `yaml:"edge_sigma_r" mapstructure:"edge_sigma_r"`
	BilateralSigmaColor float64 `yaml:"bilateral_sigma_color" mapstructure:"bilateral_sigma_color"`
	BilateralSigmaSpace float64 `yaml:"bilateral_sigma_space" mapstructure:"bilateral_sigma_space"`
}

// DefaultParams returns the stock transform parameters
func DefaultParams() Params {
	return Params{
		GaussianKernel:      21,
		PixelateBlock:       15,
		EdgeSigmaS:          15,
		EdgeSigmaR:          0.1,
		BilateralSigmaColor: 75,
		BilateralSigmaSpace: 75,
	}
}

// Library maps blur methods to transforms
type Library struct {
	transforms map[policy.Method]Transform
	logger     *zap.Logger
}

// NewLibrary builds the three transforms from params
func NewLibrary(params Params, logger *zap.Logger) *Library {
	return &Library{
		transforms: map[policy.Method]Transform{
			policy.Gaussian:       NewGaussian(params.GaussianKernel, params.GaussianSigma, logger),
			policy.Pixelate:       NewPixelate(params.PixelateBlock, logger),
			policy.EdgePreserving: NewEdgePreserving(params, logger),
		},
		logger: logger,
	}
}

// For returns the transform for m, or nil for none and unknown methods
func (l *Library) For(m policy.Method) Transform {
	return l.transforms[m]
}

// Apply runs the transform for m on src. None and unknown methods return src.
func (l *Library) Apply(m policy.Method, src *image.RGBA) *image.RGBA {
	t := l.For(m)
	if t == nil {
		return src
	}
	return t.Apply(src)
}

type filterFunc func(src *image.RGBA) *image.RGBA

// safeApply runs fn, returning src when the input is empty, fn panics, or
// fn produces an image of a different size
func safeApply(logger *zap.Logger, name policy.Method, fn filterFunc, src *image.RGBA) *image.RGBA {
	if empty(src) {
		return src
	}
	out, ok := tryApply(logger, name, fn, src)
	if !ok {
		return src
	}
	return out
}

func tryApply(logger *zap.Logger, name policy.Method, fn filterFunc, src *image.RGBA) (out *image.RGBA, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Blur transform failed",
				zap.String("method", string(name)),
				zap.Any("panic", r),
				zap.Int("width", src.Bounds().Dx()),
				zap.Int("height", src.Bounds().Dy()),
			)
			out, ok = nil, false
		}
	}()

	res := fn(src)
	if res == nil || res.Bounds().Dx() != src.Bounds().Dx() || res.Bounds().Dy() != src.Bounds().Dy() {
		logger.Warn("Blur transform returned a mismatched image",
			zap.String("method", string(name)))
		return nil, false
	}
	return res, true
}

func empty(img *image.RGBA) bool {
	return img == nil || img.Bounds().Dx() <= 0 || img.Bounds().Dy() <= 0
}
