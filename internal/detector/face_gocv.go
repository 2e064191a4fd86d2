//go:build gocv
// +build gocv

package detector

import (
	"image"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/raaihank/frame-sentinel/internal/frame"
)

// OpenCVFaceDetector runs an OpenCV Haar cascade. Requires build tag 'gocv'.
type OpenCVFaceDetector struct {
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	logger       *zap.Logger
	mu           sync.Mutex
}

// NewFaceDetector loads cfg.CascadePath, falling back to the built-in
// cascade when no file is configured or it fails to load
func NewFaceDetector(cfg Config, logger *zap.Logger) FaceDetector {
	fallback := NewCascade(cfg.ScaleFactor, cfg.MinNeighbors, logger)
	if cfg.CascadePath == "" {
		return fallback
	}

	classifier := gocv.NewCascadeClassifier()
	if ok := classifier.Load(cfg.CascadePath); !ok {
		classifier.Close()
		logger.Warn("Failed to load cascade file, using built-in cascade",
			zap.String("path", cfg.CascadePath))
		return fallback
	}

	logger.Info("OpenCV face cascade loaded", zap.String("path", cfg.CascadePath))
	return &OpenCVFaceDetector{
		classifier:   classifier,
		scaleFactor:  fallback.scaleFactor,
		minNeighbors: fallback.minNeighbors,
		logger:       logger,
	}
}

func (o *OpenCVFaceDetector) DetectFaces(gray *image.Gray) []frame.Region {
	mat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		o.logger.Warn("Failed to convert frame for cascade", zap.Error(err))
		return nil
	}
	defer mat.Close()

	o.mu.Lock()
	rects := o.classifier.DetectMultiScaleWithParams(mat, o.scaleFactor, o.minNeighbors, 0, image.Point{}, image.Point{})
	o.mu.Unlock()

	faces := make([]frame.Region, 0, len(rects))
	for _, r := range rects {
		faces = append(faces, frame.FromRect(r))
	}
	return faces
}

// Close releases the classifier
func (o *OpenCVFaceDetector) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.classifier.Close()
}
