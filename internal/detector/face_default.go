//go:build !gocv
// +build !gocv

package detector

import (
	"go.uber.org/zap"
)

// NewFaceDetector returns the built-in cascade. Build with the 'gocv' tag
// to use an OpenCV cascade file instead.
func NewFaceDetector(cfg Config, logger *zap.Logger) FaceDetector {
	return NewCascade(cfg.ScaleFactor, cfg.MinNeighbors, logger)
}
