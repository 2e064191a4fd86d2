package source

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	syntheticWidth  = 640
	syntheticHeight = 480
)

// Synthetic renders the animated demo scene: a bouncing face placeholder
// with a document, a credit card and a monitor at fixed positions
type Synthetic struct {
	face, document, card, screen *image.RGBA

	facePos   image.Point
	faceDir   image.Point
	faceSpeed image.Point

	documentPos image.Point
	cardPos     image.Point
	screenPos   image.Point

	frameCount int
}

// NewSynthetic creates the demo scene
func NewSynthetic() *Synthetic {
	return &Synthetic{
		face:        facePlaceholder(),
		document:    documentPlaceholder(),
		card:        cardPlaceholder(),
		screen:      screenPlaceholder(),
		facePos:     image.Pt(50, 100),
		faceDir:     image.Pt(1, 1),
		faceSpeed:   image.Pt(2, 1),
		documentPos: image.Pt(300, 200),
		cardPos:     image.Pt(400, 300),
		screenPos:   image.Pt(100, 300),
	}
}

// Next renders the next frame
func (s *Synthetic) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame := image.NewRGBA(image.Rect(0, 0, syntheticWidth, syntheticHeight))
	draw.Draw(frame, frame.Bounds(), image.NewUniform(gray(240)), image.Point{}, draw.Src)

	s.facePos.X += s.faceSpeed.X * s.faceDir.X
	s.facePos.Y += s.faceSpeed.Y * s.faceDir.Y
	fw, fh := s.face.Bounds().Dx(), s.face.Bounds().Dy()
	if s.facePos.X <= 0 || s.facePos.X >= syntheticWidth-fw {
		s.faceDir.X = -s.faceDir.X
	}
	if s.facePos.Y <= 0 || s.facePos.Y >= syntheticHeight-fh {
		s.faceDir.Y = -s.faceDir.Y
	}

	place(frame, s.face, s.facePos)
	place(frame, s.document, s.documentPos)
	place(frame, s.card, s.cardPos)
	place(frame, s.screen, s.screenPos)

	s.frameCount++
	caption(frame, fmt.Sprintf("Demo Video Frame #%d", s.frameCount), image.Pt(10, 20), color.Black)
	return frame, nil
}

// FaceBounds returns where the face placeholder was drawn in the last frame
func (s *Synthetic) FaceBounds() image.Rectangle {
	return s.face.Bounds().Add(s.facePos)
}

// Close is a no-op
func (s *Synthetic) Close() error { return nil }

// place copies obj onto frame at pos, clipped to the frame
func place(frame, obj *image.RGBA, pos image.Point) {
	r := obj.Bounds().Add(pos).Intersect(frame.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(frame, r, obj, image.Point{}, draw.Src)
}

func facePlaceholder() *image.RGBA {
	img := canvas(100, 100, gray(200))
	fillCircle(img, 50, 50, 40, color.RGBA{255, 0, 0, 255})
	fillCircle(img, 35, 35, 5, color.White)
	fillCircle(img, 65, 35, 5, color.White)
	fillLowerHalfEllipse(img, 50, 65, 20, 10, color.White)
	return img
}

func documentPlaceholder() *image.RGBA {
	img := canvas(220, 150, color.White)
	fillRect(img, image.Rect(0, 0, 220, 31), gray(230))
	caption(img, "CONFIDENTIAL DOCUMENT", image.Pt(10, 20), color.Black)
	for i := 0; i < 6; i++ {
		y := 50 + i*15
		fillRect(img, image.Rect(10, y, 211, y+1), gray(200))
	}
	fillRect(img, image.Rect(0, 120, 220, 150), gray(230))
	caption(img, "SSN: 123-45-6789", image.Pt(10, 135), color.Black)
	return img
}

func cardPlaceholder() *image.RGBA {
	img := canvas(130, 85, gray(230))
	outline(img, image.Rect(0, 0, 130, 85), color.Black)
	fillRect(img, image.Rect(10, 10, 51, 31), color.RGBA{255, 120, 0, 255})
	fillRect(img, image.Rect(10, 40, 31, 51), color.RGBA{0, 215, 255, 255})
	caption(img, "XXXX XXXX XXXX 1234", image.Pt(10, 70), color.Black)
	return img
}

func screenPlaceholder() *image.RGBA {
	img := canvas(160, 120, color.Black)
	fillRect(img, image.Rect(0, 0, 160, 100), gray(120))
	fillRect(img, image.Rect(2, 2, 158, 98), color.RGBA{0, 200, 255, 255})
	caption(img, "PRIVATE", image.Pt(50, 30), color.RGBA{255, 0, 0, 255})
	for i := 0; i < 3; i++ {
		y := 50 + i*15
		fillRect(img, image.Rect(20, y, 141, y+1), color.White)
	}
	fillRect(img, image.Rect(70, 100, 91, 120), gray(80))
	return img
}

func gray(v uint8) color.RGBA { return color.RGBA{v, v, v, 255} }

func canvas(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fillRect(img, img.Bounds(), c)
	return img
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func outline(img *image.RGBA, r image.Rectangle, c color.Color) {
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), c)
	fillRect(img, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), c)
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), c)
	fillRect(img, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), c)
}

func fillCircle(img *image.RGBA, cx, cy, radius int, c color.Color) {
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= radius*radius {
				img.Set(x, y, c)
			}
		}
	}
}

// fillLowerHalfEllipse fills the half of an axis-aligned ellipse below its center
func fillLowerHalfEllipse(img *image.RGBA, cx, cy, rx, ry int, c color.Color) {
	for y := cy; y <= cy+ry; y++ {
		for x := cx - rx; x <= cx+rx; x++ {
			dx, dy := float64(x-cx)/float64(rx), float64(y-cy)/float64(ry)
			if dx*dx+dy*dy <= 1 {
				img.Set(x, y, c)
			}
		}
	}
}

// caption draws text with its baseline at dot
func caption(img *image.RGBA, text string, dot image.Point, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(dot.X, dot.Y),
	}
	d.DrawString(text)
}
