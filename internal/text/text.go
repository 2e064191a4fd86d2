// Package text extracts words and their boxes from a grayscale frame.
package text

import (
	"errors"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/frame"
	"github.com/raaihank/frame-sentinel/internal/imgproc"
)

// ErrUnavailable is returned when no OCR engine is compiled in
var ErrUnavailable = errors.New("ocr engine unavailable")

const (
	thresholdBlock = 11
	thresholdC     = 2

	// DefaultMinConfidence is the OCR confidence a word must exceed, 0..100
	DefaultMinConfidence = 60
)

// Fragment is one recognized word
type Fragment struct {
	Text       string       `json:"text"`
	Box        frame.Region `json:"box"`
	Confidence float64      `json:"confidence"`
}

// OCREngine recognizes words in a binarized image. Confidence is on a
// 0 to 100 scale.
type OCREngine interface {
	Recognize(img *image.Gray) ([]Fragment, error)
	Close() error
}

// Config holds the OCR settings
type Config struct {
	Enabled       bool    `yaml:"enabled" mapstructure:"enabled"`
	Language      string  `yaml:"language" mapstructure:"language"`
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// Extractor runs OCR on a thresholded frame and filters the result
type Extractor struct {
	engine        OCREngine
	minConfidence float64
	logger        *zap.Logger
}

// NewExtractor creates an extractor. A nil engine makes Extract a no-op.
func NewExtractor(engine OCREngine, minConfidence float64, logger *zap.Logger) *Extractor {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Extractor{engine: engine, minConfidence: minConfidence, logger: logger}
}

// Available reports whether an OCR engine is configured
func (e *Extractor) Available() bool {
	return e.engine != nil
}

// Extract returns the confident, non-blank words in gray with boxes
// clipped to the frame. It never returns nil.
func (e *Extractor) Extract(gray *image.Gray) []Fragment {
	out := []Fragment{}
	if e.engine == nil || gray == nil {
		return out
	}
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w == 0 || h == 0 {
		return out
	}

	raw := e.recognize(imgproc.AdaptiveThresholdGaussian(gray, thresholdBlock, thresholdC, false))
	for _, f := range raw {
		if f.Confidence <= e.minConfidence || strings.TrimSpace(f.Text) == "" {
			continue
		}
		box, ok := f.Box.Clip(w, h)
		if !ok {
			continue
		}
		f.Box = box
		out = append(out, f)
	}
	return out
}

func (e *Extractor) recognize(img *image.Gray) (fragments []Fragment) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("OCR engine panicked", zap.Any("panic", r))
			fragments = nil
		}
	}()

	fragments, err := e.engine.Recognize(img)
	if err != nil {
		e.logger.Warn("OCR failed", zap.Error(err))
		return nil
	}
	return fragments
}

// Close releases the engine
func (e *Extractor) Close() error {
	if e.engine == nil {
		return nil
	}
	return e.engine.Close()
}
