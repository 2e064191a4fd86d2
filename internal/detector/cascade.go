package detector

import (
	"image"
	"math"

	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/frame"
	"github.com/raaihank/frame-sentinel/internal/imgproc"
)

const (
	cascadeWindow   = 24
	cascadeGroupEps = 0.2
	cascadeMinSigma = 8.0
)

// gridRect is a feature rectangle in the 24x24 base window, [x0,x1) x [y0,y1)
type gridRect struct{ x0, y0, x1, y1 float64 }

var (
	featForehead = gridRect{4, 1, 20, 5}
	featEyeLeft  = gridRect{3, 6, 10, 11}
	featEyeRight = gridRect{14, 6, 21, 11}
	featBridge   = gridRect{10, 6, 14, 11}
	featCheeks   = gridRect{3, 12, 21, 16}
	featMouth    = gridRect{8, 17, 16, 20}
)

// Cascade is a sliding-window frontal face detector built from a short
// chain of Haar-like rectangle contrasts over integral images. Every
// window is normalized by its own standard deviation, so the stages
// respond to structure and not to absolute brightness.
type Cascade struct {
	scaleFactor  float64
	minNeighbors int
	logger       *zap.Logger
}

// NewCascade creates a cascade detector. Non-positive arguments take the
// defaults 1.1 and 4.
func NewCascade(scaleFactor float64, minNeighbors int, logger *zap.Logger) *Cascade {
	if scaleFactor <= 1 {
		scaleFactor = 1.1
	}
	if minNeighbors <= 0 {
		minNeighbors = 4
	}
	return &Cascade{scaleFactor: scaleFactor, minNeighbors: minNeighbors, logger: logger}
}

// DetectFaces scans gray at growing window sizes and returns grouped hits
func (c *Cascade) DetectFaces(gray *image.Gray) []frame.Region {
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w < cascadeWindow || h < cascadeWindow {
		return nil
	}
	it := imgproc.NewIntegral(gray)

	var hits []image.Rectangle
	for factor := 1.0; ; factor *= c.scaleFactor {
		size := int(math.Round(cascadeWindow * factor))
		if size > w || size > h {
			break
		}
		step := max(1, int(math.Round(factor)))
		if factor <= 2 {
			step = max(1, int(math.Round(2*factor)))
		}
		win := scaleWindow(size)
		for y := 0; y+size <= h; y += step {
			for x := 0; x+size <= w; x += step {
				if win.evaluate(it, x, y) {
					hits = append(hits, image.Rect(x, y, x+size, y+size))
				}
			}
		}
	}

	grouped := groupRectangles(hits, c.minNeighbors, cascadeGroupEps)
	faces := make([]frame.Region, 0, len(grouped))
	for _, r := range grouped {
		faces = append(faces, frame.FromRect(r))
	}
	c.logger.Debug("Cascade scan complete",
		zap.Int("raw_hits", len(hits)),
		zap.Int("faces", len(faces)),
	)
	return faces
}

// scaledRect is a feature rectangle in pixels relative to the window origin
type scaledRect struct {
	x0, y0, x1, y1 int
	area           float64
}

func (r scaledRect) mean(it *imgproc.Integral, x, y int) float64 {
	if r.area <= 0 {
		return 0
	}
	return float64(it.Sum(x+r.x0, y+r.y0, x+r.x1, y+r.y1)) / r.area
}

// scaledWindow holds the feature layout for one window size, computed
// once per scale
type scaledWindow struct {
	size     int
	area     float64
	forehead scaledRect
	eyeL     scaledRect
	eyeR     scaledRect
	bridge   scaledRect
	cheeks   scaledRect
	mouth    scaledRect
}

func scaleWindow(size int) scaledWindow {
	unit := float64(size) / cascadeWindow
	sc := func(r gridRect) scaledRect {
		x0, y0 := int(math.Round(r.x0*unit)), int(math.Round(r.y0*unit))
		x1, y1 := int(math.Round(r.x1*unit)), int(math.Round(r.y1*unit))
		return scaledRect{x0: x0, y0: y0, x1: x1, y1: y1, area: float64((x1 - x0) * (y1 - y0))}
	}
	return scaledWindow{
		size:     size,
		area:     float64(size * size),
		forehead: sc(featForehead),
		eyeL:     sc(featEyeLeft),
		eyeR:     sc(featEyeRight),
		bridge:   sc(featBridge),
		cheeks:   sc(featCheeks),
		mouth:    sc(featMouth),
	}
}

// evaluate runs the stages on the window at (x,y). The sign checks on the
// eye band come first; they reject most windows before the variance is
// needed and never accept a window the normalized stages would reject.
func (w *scaledWindow) evaluate(it *imgproc.Integral, x, y int) bool {
	eyeL, eyeR := w.eyeL.mean(it, x, y), w.eyeR.mean(it, x, y)
	eyes := (eyeL + eyeR) / 2
	cheeks := w.cheeks.mean(it, x, y)
	if cheeks <= eyes {
		return false
	}
	forehead := w.forehead.mean(it, x, y)
	if forehead <= eyes {
		return false
	}

	mean := float64(it.Sum(x, y, x+w.size, y+w.size)) / w.area
	variance := float64(it.SqSum(x, y, x+w.size, y+w.size))/w.area - mean*mean
	if variance <= 0 {
		return false
	}
	sigma := math.Sqrt(variance)
	if sigma < cascadeMinSigma {
		return false
	}

	if (cheeks-eyes)/sigma <= 0.4 {
		return false
	}
	if (forehead-eyes)/sigma <= 0.4 {
		return false
	}
	bridge := w.bridge.mean(it, x, y)
	if bridge-eyeL <= 0.3*sigma || bridge-eyeR <= 0.3*sigma {
		return false
	}
	return (cheeks-w.mouth.mean(it, x, y))/sigma > 0.2
}

// groupRectangles clusters similar rectangles, drops clusters with no more
// than groupThreshold members, averages the rest and removes clusters
// nested inside stronger ones
func groupRectangles(rects []image.Rectangle, groupThreshold int, eps float64) []image.Rectangle {
	if len(rects) == 0 {
		return nil
	}

	labels := make([]int, len(rects))
	for i := range labels {
		labels[i] = i
	}
	find := func(i int) int {
		for labels[i] != i {
			labels[i] = labels[labels[i]]
			i = labels[i]
		}
		return i
	}
	for i := range rects {
		for j := i + 1; j < len(rects); j++ {
			if similarRects(rects[i], rects[j], eps) {
				if a, b := find(i), find(j); a != b {
					labels[b] = a
				}
			}
		}
	}

	type cluster struct {
		sum   [4]int
		count int
	}
	index := map[int]int{}
	var clusters []cluster
	for i, r := range rects {
		root := find(i)
		k, ok := index[root]
		if !ok {
			k = len(clusters)
			index[root] = k
			clusters = append(clusters, cluster{})
		}
		cl := &clusters[k]
		cl.sum[0] += r.Min.X
		cl.sum[1] += r.Min.Y
		cl.sum[2] += r.Dx()
		cl.sum[3] += r.Dy()
		cl.count++
	}

	avg := make([]image.Rectangle, len(clusters))
	for k, cl := range clusters {
		s := 1 / float64(cl.count)
		x := int(math.Round(float64(cl.sum[0]) * s))
		y := int(math.Round(float64(cl.sum[1]) * s))
		avg[k] = image.Rect(x, y,
			x+int(math.Round(float64(cl.sum[2])*s)),
			y+int(math.Round(float64(cl.sum[3])*s)))
	}

	var out []image.Rectangle
	for i, r1 := range avg {
		n1 := clusters[i].count
		if n1 <= groupThreshold {
			continue
		}
		nested := false
		for j, r2 := range avg {
			n2 := clusters[j].count
			if i == j || n2 <= groupThreshold {
				continue
			}
			dx := int(math.Round(float64(r2.Dx()) * eps))
			dy := int(math.Round(float64(r2.Dy()) * eps))
			if r1.Min.X >= r2.Min.X-dx && r1.Min.Y >= r2.Min.Y-dy &&
				r1.Max.X <= r2.Max.X+dx && r1.Max.Y <= r2.Max.Y+dy &&
				(n2 > max(3, n1) || n1 < 3) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, r1)
		}
	}
	return out
}

func similarRects(a, b image.Rectangle, eps float64) bool {
	delta := eps * float64(min(a.Dx(), b.Dx())+min(a.Dy(), b.Dy())) * 0.5
	return math.Abs(float64(a.Min.X-b.Min.X)) <= delta &&
		math.Abs(float64(a.Min.Y-b.Min.Y)) <= delta &&
		math.Abs(float64(a.Max.X-b.Max.X)) <= delta &&
		math.Abs(float64(a.Max.Y-b.Max.Y)) <= delta
}
