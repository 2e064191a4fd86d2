//go:build !tesseract
// +build !tesseract

package text

import (
	"go.uber.org/zap"
)

// Stub implementation used when the 'tesseract' build tag is not set.
func NewOCREngine(cfg Config, logger *zap.Logger) (OCREngine, error) {
	return nil, ErrUnavailable
}
