// Package detector locates sensitive regions in a frame. A learned object
// detector is used when one is available; otherwise faces come from a
// cascade and documents, cards and screens from contour heuristics. The
// license plate heuristic runs on every frame.
package detector

import (
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/frame"
)

// Detector combines the learned and heuristic sub-detectors
type Detector struct {
	objects ObjectDetector
	faces   FaceDetector
	logger  *zap.Logger
}

// New creates a detector. objects may be nil; faces defaults to the
// built-in cascade.
func New(objects ObjectDetector, faces FaceDetector, logger *zap.Logger) *Detector {
	if faces == nil {
		faces = NewCascade(1.1, 4, logger)
	}
	return &Detector{objects: objects, faces: faces, logger: logger}
}

// HasObjectDetector reports whether the learned detector is active
func (d *Detector) HasObjectDetector() bool {
	return d.objects != nil
}

// Detect returns the regions found in img. gray may be nil, in which case
// it is derived from img. Every category is present in the result and
// every region lies inside the frame.
func (d *Detector) Detect(img *image.RGBA, gray *image.Gray, confidence float64) Result {
	if gray == nil {
		gray = frame.Gray(img)
	}
	res := NewResult()

	primary := false
	if d.objects != nil {
		primary = d.run("objects", res, func(r Result) error {
			return d.detectObjects(img, confidence, r)
		})
	}
	if !primary {
		d.run("faces", res, func(r Result) error {
			for _, f := range d.faces.DetectFaces(gray) {
				r.Add(frame.Face, f)
			}
			return nil
		})
		d.run("shapes", res, func(r Result) error {
			detectShapes(gray, r)
			return nil
		})
	}
	d.run("plates", res, func(r Result) error {
		detectPlates(gray, r)
		return nil
	})

	return clip(res, img.Bounds().Dx(), img.Bounds().Dy())
}

func (d *Detector) detectObjects(img *image.RGBA, confidence float64, res Result) error {
	dets, err := d.objects.Infer(img, confidence)
	if err != nil {
		return err
	}
	for _, det := range dets {
		if det.Confidence < confidence {
			continue
		}
		mapDetection(det, res)
	}
	return nil
}

// run executes one sub-detector into a scratch result and merges it into
// res only if it completes. It reports whether it did.
func (d *Detector) run(name string, res Result, fn func(Result) error) (ok bool) {
	scratch := NewResult()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("Detector stage panicked",
				zap.String("stage", name),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()

	if err := fn(scratch); err != nil {
		d.logger.Warn("Detector stage failed",
			zap.String("stage", name),
			zap.Error(err),
		)
		return false
	}
	res.merge(scratch)
	return true
}

// clip bounds every region to the frame and drops those left with no area
func clip(res Result, w, h int) Result {
	out := NewResult()
	for c, regions := range res {
		for _, r := range regions {
			if cr, ok := r.Clip(w, h); ok {
				out.Add(c, cr)
			}
		}
	}
	return out
}

// Close releases the learned detector
func (d *Detector) Close() error {
	if d.objects == nil {
		return nil
	}
	if err := d.objects.Close(); err != nil {
		return fmt.Errorf("failed to close object detector: %w", err)
	}
	return nil
}
