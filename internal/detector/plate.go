package detector

import (
	"image"

	"github.com/raaihank/frame-sentinel/internal/frame"
	"github.com/raaihank/frame-sentinel/internal/imgproc"
)

const (
	plateCannyLow   = 100
	plateCannyHigh  = 200
	plateAspectMin  = 2.0
	plateAspectMax  = 6.0
	plateMinWidth   = 60
	plateMinHeight  = 20
	approxPerimeter = 0.02
)

// quadrilateral reports whether contour approximates to four vertices and
// returns its bounding rectangle
func quadrilateral(contour []image.Point) (image.Rectangle, bool) {
	approx := imgproc.ApproxPolyDP(contour, approxPerimeter*imgproc.ArcLength(contour))
	if len(approx) != 4 {
		return image.Rectangle{}, false
	}
	return imgproc.BoundingRect(contour), true
}

// detectPlates finds wide four-sided edge contours, nested ones included
func detectPlates(gray *image.Gray, res Result) {
	edges := imgproc.Canny(gray, plateCannyLow, plateCannyHigh)
	for _, contour := range imgproc.FindContours(edges, imgproc.RetrieveAll) {
		r, ok := quadrilateral(contour)
		if !ok {
			continue
		}
		w, h := r.Dx(), r.Dy()
		a := aspect(w, h)
		if a >= plateAspectMin && a <= plateAspectMax && w > plateMinWidth && h > plateMinHeight {
			res.Add(frame.LicensePlate, frame.FromRect(r))
		}
	}
}
