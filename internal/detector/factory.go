package detector

import (
	"errors"

	"go.uber.org/zap"
)

// NewFromConfig wires the compiled-in backends. A missing object detector
// is logged once and the heuristic path is used for every frame.
func NewFromConfig(cfg Config, logger *zap.Logger) *Detector {
	objects, err := NewObjectDetector(cfg, logger)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			logger.Warn("Object detector unavailable, using heuristic detection", zap.Error(err))
		} else {
			logger.Error("Object detector failed to start, using heuristic detection", zap.Error(err))
		}
		objects = nil
	}
	return New(objects, NewFaceDetector(cfg, logger), logger)
}
