package detector

import (
	"image"
	"image/color"
	"math"
	"sort"

	"golang.org/x/image/draw"

	"github.com/raaihank/frame-sentinel/internal/frame"
)

// letterboxFill is the padding gray used by YOLOv8 preprocessing
const letterboxFill = 114

// letterbox maps a frame into a square model input, keeping aspect ratio
type letterbox struct {
	size       int
	scale      float64
	padX, padY int
	w, h       int
}

func newLetterbox(w, h, size int) letterbox {
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	return letterbox{
		size:  size,
		scale: scale,
		padX:  (size - nw) / 2,
		padY:  (size - nh) / 2,
		w:     nw,
		h:     nh,
	}
}

// apply resizes img into a padded size x size canvas
func (l letterbox) apply(img *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, l.size, l.size))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.RGBA{letterboxFill, letterboxFill, letterboxFill, 255}}, image.Point{}, draw.Src)
	target := image.Rect(l.padX, l.padY, l.padX+l.w, l.padY+l.h)
	draw.BiLinear.Scale(dst, target, img, img.Bounds(), draw.Src, nil)
	return dst
}

// tensor lays out img as planar RGB float32 normalized to [0,1]
func (l letterbox) tensor(img *image.RGBA) []float32 {
	plane := l.size * l.size
	out := make([]float32, 3*plane)
	for y := 0; y < l.size; y++ {
		for x := 0; x < l.size; x++ {
			o := img.PixOffset(x, y)
			i := y*l.size + x
			out[i] = float32(img.Pix[o]) / 255
			out[plane+i] = float32(img.Pix[o+1]) / 255
			out[2*plane+i] = float32(img.Pix[o+2]) / 255
		}
	}
	return out
}

// unmap converts a center-size box in model space back to frame pixels
func (l letterbox) unmap(cx, cy, bw, bh float64) frame.Region {
	x1 := (cx - bw/2 - float64(l.padX)) / l.scale
	y1 := (cy - bh/2 - float64(l.padY)) / l.scale
	x2 := (cx + bw/2 - float64(l.padX)) / l.scale
	y2 := (cy + bh/2 - float64(l.padY)) / l.scale
	return frame.Region{X1: int(x1), Y1: int(y1), X2: int(x2), Y2: int(y2)}
}

// decodeYOLO reads a [1, 4+classes, boxes] YOLOv8 output. Each box keeps
// its best class if that score reaches confidence.
func decodeYOLO(data []float32, classes, boxes int, confidence float64, lb letterbox) []Detection {
	if len(data) < (4+classes)*boxes {
		return nil
	}
	at := func(row, col int) float64 { return float64(data[row*boxes+col]) }

	var dets []Detection
	for b := 0; b < boxes; b++ {
		best, bestScore := -1, 0.0
		for c := 0; c < classes; c++ {
			if s := at(4+c, b); s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || bestScore < confidence {
			continue
		}
		dets = append(dets, Detection{
			Box:        lb.unmap(at(0, b), at(1, b), at(2, b), at(3, b)),
			ClassID:    best,
			Confidence: bestScore,
		})
	}
	return dets
}

// nonMaxSuppression keeps the highest scoring box among overlapping boxes
// of the same class
func nonMaxSuppression(dets []Detection, threshold float64) []Detection {
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.ClassID == d.ClassID && iou(k.Box, d.Box) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

func iou(a, b frame.Region) float64 {
	ix := min(a.X2, b.X2) - max(a.X1, b.X1)
	iy := min(a.Y2, b.Y2) - max(a.Y1, b.Y1)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := float64(ix * iy)
	union := float64(a.Width()*a.Height()+b.Width()*b.Height()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
