package frame

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

func TestRegion(t *testing.T) {
	t.Run("ClipInside", func(t *testing.T) {
		r, ok := Region{X1: 10, Y1: 10, X2: 20, Y2: 30}.Clip(100, 100)
		if !ok || r != (Region{10, 10, 20, 30}) {
			t.Fatalf("unexpected clip result %+v ok=%v", r, ok)
		}
	})

	t.Run("ClipOverflow", func(t *testing.T) {
		r, ok := Region{X1: -5, Y1: 90, X2: 50, Y2: 140}.Clip(100, 100)
		if !ok {
			t.Fatal("expected region to survive clipping")
		}
		if r.X1 != 0 || r.Y2 != 100 || r.X2 != 50 || r.Y1 != 90 {
			t.Errorf("unexpected clip result %+v", r)
		}
	})

	t.Run("ClipOutside", func(t *testing.T) {
		if _, ok := (Region{X1: 120, Y1: 0, X2: 140, Y2: 10}).Clip(100, 100); ok {
			t.Error("region outside the frame must be discarded")
		}
		if _, ok := (Region{X1: 10, Y1: 10, X2: 10, Y2: 40}).Clip(100, 100); ok {
			t.Error("zero-width region must be discarded")
		}
	})
}

func TestCloneCropPaste(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 25, 25))
	for y := 5; y < 25; y++ {
		for x := 5; x < 25; x++ {
			src.Set(x, y, color.RGBA{uint8(x), uint8(y), 7, 255})
		}
	}

	t.Run("CloneNormalizesOrigin", func(t *testing.T) {
		c := Clone(src)
		if c.Bounds().Min != (image.Point{}) || c.Bounds().Dx() != 20 {
			t.Fatalf("unexpected bounds %v", c.Bounds())
		}
		if got := c.RGBAAt(0, 0); got.R != 5 || got.G != 5 {
			t.Errorf("unexpected pixel %v", got)
		}
		c.SetRGBA(0, 0, color.RGBA{})
		if src.RGBAAt(5, 5).R != 5 {
			t.Error("clone must not alias the source")
		}
	})

	t.Run("ClonePreservesAlpha", func(t *testing.T) {
		tr := image.NewRGBA(image.Rect(0, 0, 4, 3))
		for i := range tr.Pix {
			tr.Pix[i] = uint8(i * 5)
		}
		tr.SetRGBA(1, 1, color.RGBA{10, 20, 30, 40})
		c := Clone(tr)
		if !bytes.Equal(c.Pix, tr.Pix) {
			t.Errorf("Clone changed pixels:\n got %v\nwant %v", c.Pix, tr.Pix)
		}

		big := image.NewRGBA(image.Rect(0, 0, 20, 20))
		big.SetRGBA(10, 12, color.RGBA{9, 8, 7, 255})
		big.SetRGBA(11, 13, color.RGBA{1, 2, 3, 4})
		sc := Clone(big.SubImage(image.Rect(10, 12, 14, 15)))
		if sc.Bounds() != image.Rect(0, 0, 4, 3) {
			t.Fatalf("unexpected bounds %v", sc.Bounds())
		}
		if got := sc.RGBAAt(1, 1); got != (color.RGBA{1, 2, 3, 4}) {
			t.Errorf("sub-image pixel %v, want the translucent source pixel", got)
		}
		if got := sc.RGBAAt(0, 0); got != (color.RGBA{9, 8, 7, 255}) {
			t.Errorf("sub-image origin %v, want the source pixel at (10,12)", got)
		}
	})

	t.Run("CropAndPaste", func(t *testing.T) {
		c := Clone(src)
		r := Region{X1: 2, Y1: 3, X2: 6, Y2: 8}
		patch := Crop(c, r)
		if patch.Bounds().Dx() != 4 || patch.Bounds().Dy() != 5 {
			t.Fatalf("unexpected patch size %v", patch.Bounds())
		}
		if got := patch.RGBAAt(0, 0); got != c.RGBAAt(2, 3) {
			t.Errorf("patch origin %v != %v", got, c.RGBAAt(2, 3))
		}
		for i := range patch.Pix {
			patch.Pix[i] = 0
		}
		Paste(c, patch, r)
		if c.RGBAAt(2, 3).A != 0 || c.RGBAAt(6, 3).A != 255 {
			t.Error("paste must only touch the region")
		}
	})

	t.Run("Gray", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 2, 1))
		img.SetRGBA(0, 0, color.RGBA{255, 255, 255, 255})
		img.SetRGBA(1, 0, color.RGBA{255, 0, 0, 255})
		g := Gray(img)
		if g.GrayAt(0, 0).Y != 255 {
			t.Errorf("white should map to 255, got %d", g.GrayAt(0, 0).Y)
		}
		if y := g.GrayAt(1, 0).Y; y < 75 || y > 77 {
			t.Errorf("red should map to ~76, got %d", y)
		}
	})
}

func TestCategoryKnown(t *testing.T) {
	for _, c := range Categories {
		if !c.Known() {
			t.Errorf("%s should be known", c)
		}
	}
	if !Text.Known() || Category("car").Known() {
		t.Error("unexpected Known result")
	}
}
