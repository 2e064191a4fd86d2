//go:build !onnx
// +build !onnx

package detector

import (
	"go.uber.org/zap"
)

// Stub implementation used when the 'onnx' build tag is not set.
func NewObjectDetector(cfg Config, logger *zap.Logger) (ObjectDetector, error) {
	return nil, ErrUnavailable
}
