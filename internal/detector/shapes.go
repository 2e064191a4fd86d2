package detector

import (
	"image"

	"github.com/raaihank/frame-sentinel/internal/frame"
	"github.com/raaihank/frame-sentinel/internal/imgproc"
)

const (
	shapeBlurKernel   = 5
	shapeCannyLow     = 50
	shapeCannyHigh    = 150
	shapeMinSide      = 50
	documentMinSide   = 100
	documentAspectMin = 0.7
	documentAspectMax = 1.4
	screenAspectMax   = 2.5
)

// classifyShape assigns a rectangle to a category by its aspect ratio.
// Bands are tested in order and the first match wins.
func classifyShape(w, h int) (frame.Category, bool) {
	if w < shapeMinSide || h < shapeMinSide {
		return "", false
	}
	a := aspect(w, h)
	switch {
	case a >= cardAspectMin && a <= cardAspectMax:
		return frame.CreditCard, true
	case a >= documentAspectMin && a <= documentAspectMax && w > documentMinSide && h > documentMinSide:
		return frame.Document, true
	case a > cardAspectMax && a <= screenAspectMax:
		return frame.Screen, true
	case a > screenAspectMax:
		return frame.LicensePlate, true
	}
	return "", false
}

// detectShapes finds outer four-sided contours of the smoothed frame and
// sorts them into cards, documents, screens and plates
func detectShapes(gray *image.Gray, res Result) {
	blurred := imgproc.GaussianBlur(gray, shapeBlurKernel, 0)
	edges := imgproc.Canny(blurred, shapeCannyLow, shapeCannyHigh)
	for _, contour := range imgproc.FindContours(edges, imgproc.RetrieveExternal) {
		r, ok := quadrilateral(contour)
		if !ok {
			continue
		}
		if c, ok := classifyShape(r.Dx(), r.Dy()); ok {
			res.Add(c, frame.FromRect(r))
		}
	}
}
