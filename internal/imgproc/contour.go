package imgproc

import "image"

// RetrievalMode selects which contours FindContours returns
type RetrievalMode int

const (
	// RetrieveExternal keeps only contours not enclosed by another contour
	RetrieveExternal RetrievalMode = iota
	// RetrieveAll keeps every contour including nested ones
	RetrieveAll
)

// clockwise Moore neighbourhood starting west
var moore = [8]image.Point{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1},
}

// FindContours extracts the outer border of every 8-connected group of
// non-zero pixels in bin. Contours are returned in raster order of their
// first pixel, each as an ordered clockwise point sequence.
func FindContours(bin *image.Gray, mode RetrievalMode) [][]image.Point {
	w, h := bin.Bounds().Dx(), bin.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil
	}
	fg := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && bin.Pix[y*bin.Stride+x] != 0
	}

	labels := make([]int32, w*h)
	var starts []image.Point
	queue := make([]image.Point, 0, 256)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !fg(x, y) || labels[y*w+x] != 0 {
				continue
			}
			label := int32(len(starts) + 1)
			starts = append(starts, image.Pt(x, y))
			labels[y*w+x] = label
			queue = append(queue[:0], image.Pt(x, y))
			for len(queue) > 0 {
				p := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				for _, d := range moore {
					q := p.Add(d)
					if fg(q.X, q.Y) && labels[q.Y*w+q.X] == 0 {
						labels[q.Y*w+q.X] = label
						queue = append(queue, q)
					}
				}
			}
		}
	}
	if len(starts) == 0 {
		return nil
	}

	keep := make([]bool, len(starts))
	if mode == RetrieveAll {
		for i := range keep {
			keep[i] = true
		}
	} else {
		outside := outerBackground(bin, labels, w, h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				l := labels[y*w+x]
				if l == 0 || keep[l-1] {
					continue
				}
				if touchesOutside(outside, x, y, w, h) {
					keep[l-1] = true
				}
			}
		}
	}

	contours := make([][]image.Point, 0, len(starts))
	for i, s := range starts {
		if keep[i] {
			contours = append(contours, traceBorder(labels, int32(i+1), s, w, h))
		}
	}
	return contours
}

// outerBackground marks the zero pixels 4-connected to the image border
func outerBackground(bin *image.Gray, labels []int32, w, h int) []bool {
	outside := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))
	push := func(x, y int) {
		i := y*w + x
		if labels[i] == 0 && !outside[i] {
			outside[i] = true
			queue = append(queue, i)
		}
	}
	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}
	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}
	return outside
}

func touchesOutside(outside []bool, x, y, w, h int) bool {
	if x == 0 || y == 0 || x == w-1 || y == h-1 {
		return true
	}
	return outside[y*w+x-1] || outside[y*w+x+1] || outside[(y-1)*w+x] || outside[(y+1)*w+x]
}

// traceBorder follows the outer boundary of the component with the given
// label using Moore neighbour tracing. start must be the component's first
// pixel in raster order, so its west neighbour is background.
func traceBorder(labels []int32, label int32, start image.Point, w, h int) []image.Point {
	in := func(p image.Point) bool {
		return p.X >= 0 && p.Y >= 0 && p.X < w && p.Y < h && labels[p.Y*w+p.X] == label
	}

	contour := []image.Point{start}
	cur := start
	back := 0 // direction index of the backtrack pixel relative to cur
	var first image.Point
	limit := 4*w*h + 8

	for step := 0; step < limit; step++ {
		next, nextBack, found := image.Point{}, 0, false
		for k := 1; k <= 8; k++ {
			d := (back + k) % 8
			cand := cur.Add(moore[d])
			if in(cand) {
				prev := cur.Add(moore[(back+k-1)%8])
				next, nextBack, found = cand, directionOf(prev.Sub(cand)), true
				break
			}
		}
		if !found {
			return contour
		}
		if step == 0 {
			first = next
		} else if cur == start && next == first {
			contour = contour[:len(contour)-1]
			return contour
		}
		contour = append(contour, next)
		cur, back = next, nextBack
	}
	return contour
}

func directionOf(d image.Point) int {
	for i, m := range moore {
		if m == d {
			return i
		}
	}
	return 0
}
