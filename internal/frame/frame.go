package frame

import (
	"image"
	"image/draw"
)

// Category identifies a class of sensitive content
type Category string

const (
	Face         Category = "face"
	Document     Category = "document"
	CreditCard   Category = "credit_card"
	LicensePlate Category = "license_plate"
	Screen       Category = "screen"

	// Text is the virtual category used for sensitive OCR fragments
	Text Category = "text"
)

// SensitiveTextKey is the counts entry reporting sensitive text fragments
const SensitiveTextKey = "sensitive_text"

// Categories lists the visual categories in processing order.
// Later entries win where regions overlap.
var Categories = []Category{Face, Document, CreditCard, LicensePlate, Screen}

// Known reports whether c is one of the visual categories or text
func (c Category) Known() bool {
	if c == Text {
		return true
	}
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Clone copies src into a new RGBA image whose bounds start at (0,0).
// The source is never modified. RGBA sources are copied byte for byte,
// alpha included.
func Clone(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if rgba, ok := src.(*image.RGBA); ok {
		row := b.Dx() * 4
		for y := 0; y < b.Dy(); y++ {
			o := rgba.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+row], rgba.Pix[o:o+row])
		}
		return dst
	}
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Crop returns a copy of the region r of img
func Crop(img *image.RGBA, r Region) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.Width(), r.Height()))
	draw.Draw(dst, dst.Bounds(), img, image.Pt(r.X1, r.Y1), draw.Src)
	return dst
}

// Paste writes patch into img at region r. Pixels of patch outside r are ignored.
func Paste(img *image.RGBA, patch *image.RGBA, r Region) {
	draw.Draw(img, r.Rect(), patch, patch.Bounds().Min, draw.Src)
}

// Gray converts img to 8-bit luma using BT.601 weights
func Gray(img *image.RGBA) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		src := img.Pix[off : off+b.Dx()*4]
		dst := g.Pix[y*g.Stride : y*g.Stride+b.Dx()]
		for x := range dst {
			r := uint32(src[x*4])
			gg := uint32(src[x*4+1])
			bb := uint32(src[x*4+2])
			dst[x] = uint8((19595*r + 38470*gg + 7471*bb + 1<<15) >> 16)
		}
	}
	return g
}
