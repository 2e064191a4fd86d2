package imgproc

import (
	"image"
	"math"
)

// ArcLength returns the perimeter of a closed curve
func ArcLength(pts []image.Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	var total float64
	for i := range pts {
		total += dist(pts[i], pts[(i+1)%len(pts)])
	}
	return total
}

// ApproxPolyDP simplifies a closed curve with the Douglas-Peucker algorithm.
// Points farther than epsilon from the simplified polygon are kept as vertices.
func ApproxPolyDP(pts []image.Point, epsilon float64) []image.Point {
	n := len(pts)
	if n < 3 {
		out := make([]image.Point, n)
		copy(out, pts)
		return out
	}

	far, best := 0, -1.0
	for i := 1; i < n; i++ {
		if d := dist(pts[0], pts[i]); d > best {
			far, best = i, d
		}
	}
	if far == 0 {
		return []image.Point{pts[0]}
	}

	closed := make([]image.Point, 0, n+1)
	closed = append(closed, pts...)
	closed = append(closed, pts[0])

	left := douglasPeucker(closed[:far+1], epsilon)
	right := douglasPeucker(closed[far:], epsilon)

	out := make([]image.Point, 0, len(left)+len(right))
	out = append(out, left[:len(left)-1]...)
	out = append(out, right[:len(right)-1]...)
	return out
}

func douglasPeucker(chain []image.Point, epsilon float64) []image.Point {
	if len(chain) < 3 {
		out := make([]image.Point, len(chain))
		copy(out, chain)
		return out
	}
	a, b := chain[0], chain[len(chain)-1]
	idx, best := 0, -1.0
	for i := 1; i < len(chain)-1; i++ {
		if d := segmentDistance(chain[i], a, b); d > best {
			idx, best = i, d
		}
	}
	if best <= epsilon {
		return []image.Point{a, b}
	}
	left := douglasPeucker(chain[:idx+1], epsilon)
	right := douglasPeucker(chain[idx:], epsilon)
	return append(left[:len(left)-1], right...)
}

// segmentDistance is the distance from p to the line through a and b
func segmentDistance(p, a, b image.Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	if dx == 0 && dy == 0 {
		return dist(p, a)
	}
	cross := math.Abs(dx*float64(p.Y-a.Y) - dy*float64(p.X-a.X))
	return cross / math.Hypot(dx, dy)
}

// BoundingRect returns the smallest rectangle containing every point.
// Width and height count pixels, so a single point yields a 1x1 rectangle.
func BoundingRect(pts []image.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		if p.X < r.Min.X {
			r.Min.X = p.X
		}
		if p.Y < r.Min.Y {
			r.Min.Y = p.Y
		}
		if p.X > r.Max.X {
			r.Max.X = p.X
		}
		if p.Y > r.Max.Y {
			r.Max.Y = p.Y
		}
	}
	r.Max = r.Max.Add(image.Pt(1, 1))
	return r
}

func dist(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
