package detector

import (
	"errors"
	"image"
	"testing"

	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/frame"
)

type mockObjects struct {
	dets   []Detection
	err    error
	panics bool
	calls  int
}

func (m *mockObjects) Infer(img *image.RGBA, confidence float64) ([]Detection, error) {
	m.calls++
	if m.panics {
		panic("onnx session crashed")
	}
	return m.dets, m.err
}

func (m *mockObjects) Close() error { return nil }

type mockFaces struct {
	faces []frame.Region
	calls int
}

func (m *mockFaces) DetectFaces(gray *image.Gray) []frame.Region {
	m.calls++
	return m.faces
}

func blank(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	return img
}

func fill(img *image.RGBA, r image.Rectangle, v uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			o := img.PixOffset(x, y)
			img.Pix[o], img.Pix[o+1], img.Pix[o+2] = v, v, v
		}
	}
}

// drawFace paints a 96 pixel frontal face pattern with its top left at o
func drawFace(img *image.RGBA, o image.Point) image.Rectangle {
	face := image.Rect(0, 0, 96, 96).Add(o)
	fill(img, face, 200)
	fill(img, image.Rect(12, 24, 40, 44).Add(o), 40)
	fill(img, image.Rect(56, 24, 84, 44).Add(o), 40)
	fill(img, image.Rect(28, 64, 68, 84).Add(o), 60)
	return face
}

func overlap(a frame.Region, b image.Rectangle) float64 {
	return iou(a, frame.FromRect(b))
}

func bestOverlap(regions []frame.Region, target image.Rectangle) float64 {
	best := 0.0
	for _, r := range regions {
		if v := overlap(r, target); v > best {
			best = v
		}
	}
	return best
}

func TestDetectBlankFrame(t *testing.T) {
	tests := []struct {
		name    string
		objects ObjectDetector
	}{
		{"Degraded", nil},
		{"Primary", &mockObjects{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.objects, nil, zap.NewNop())
			res := d.Detect(blank(320, 240, 128), nil, 0.5)
			for _, c := range frame.Categories {
				regions, ok := res[c]
				if !ok || regions == nil {
					t.Errorf("Category %s missing from result", c)
				}
				if len(regions) != 0 {
					t.Errorf("Expected no %s regions on a blank frame, got %v", c, regions)
				}
			}
		})
	}
}

func TestPrimaryMapping(t *testing.T) {
	objects := &mockObjects{dets: []Detection{
		{Box: frame.Region{X1: 10, Y1: 20, X2: 110, Y2: 320}, ClassID: classPerson, Confidence: 0.9},
		{Box: frame.Region{X1: 300, Y1: 10, X2: 460, Y2: 110}, ClassID: classBook, Confidence: 0.8},
		{Box: frame.Region{X1: 300, Y1: 200, X2: 400, Y2: 300}, ClassID: classCellPhone, Confidence: 0.8},
		{Box: frame.Region{X1: 200, Y1: 350, X2: 300, Y2: 400}, ClassID: classCouch, Confidence: 0.7},
		{Box: frame.Region{X1: 450, Y1: 300, X2: 600, Y2: 400}, ClassID: classTV, Confidence: 0.6},
		{Box: frame.Region{X1: 10, Y1: 400, X2: 100, Y2: 470}, ClassID: classLaptop, Confidence: 0.9},
		{Box: frame.Region{X1: 500, Y1: 20, X2: 600, Y2: 200}, ClassID: classPerson, Confidence: 0.3},
		{Box: frame.Region{X1: 20, Y1: 20, X2: 50, Y2: 50}, ClassID: 2, Confidence: 0.99},
	}}
	faces := &mockFaces{faces: []frame.Region{{X1: 0, Y1: 0, X2: 10, Y2: 10}}}
	d := New(objects, faces, zap.NewNop())
	res := d.Detect(blank(640, 480, 128), nil, 0.5)

	if faces.calls != 0 {
		t.Error("Face fallback must not run when the primary detector succeeds")
	}

	wantFace := frame.Region{X1: 10, Y1: 20, X2: 110, Y2: 120}
	if len(res[frame.Face]) != 1 || res[frame.Face][0] != wantFace {
		t.Errorf("Expected face %+v from the person box, got %v", wantFace, res[frame.Face])
	}
	if len(res[frame.CreditCard]) != 1 || res[frame.CreditCard][0].X1 != 300 {
		t.Errorf("Expected the 1.6 aspect book as a credit card, got %v", res[frame.CreditCard])
	}
	if len(res[frame.Document]) != 2 {
		t.Errorf("Expected phone and couch as documents, got %v", res[frame.Document])
	}
	if len(res[frame.Screen]) != 1 {
		t.Errorf("Expected one screen, got %v", res[frame.Screen])
	}
	if got := res.Total(); got != 5 {
		t.Errorf("Expected 5 regions in total, got %d", got)
	}
}

func TestBoundsSafety(t *testing.T) {
	objects := &mockObjects{dets: []Detection{
		{Box: frame.Region{X1: -20, Y1: -30, X2: 50, Y2: 60}, ClassID: classTV, Confidence: 0.9},
		{Box: frame.Region{X1: 150, Y1: 100, X2: 400, Y2: 300}, ClassID: classTV, Confidence: 0.9},
		{Box: frame.Region{X1: 500, Y1: 500, X2: 600, Y2: 600}, ClassID: classTV, Confidence: 0.9},
		{Box: frame.Region{X1: 100, Y1: 100, X2: 100, Y2: 150}, ClassID: classTV, Confidence: 0.9},
	}}
	d := New(objects, nil, zap.NewNop())
	res := d.Detect(blank(200, 150, 128), nil, 0.5)

	screens := res[frame.Screen]
	if len(screens) != 2 {
		t.Fatalf("Expected 2 clipped screens, got %v", screens)
	}
	if want := (frame.Region{X1: 0, Y1: 0, X2: 50, Y2: 60}); screens[0] != want {
		t.Errorf("Expected %+v, got %+v", want, screens[0])
	}
	if want := (frame.Region{X1: 150, Y1: 100, X2: 200, Y2: 150}); screens[1] != want {
		t.Errorf("Expected %+v, got %+v", want, screens[1])
	}
	for c, regions := range res {
		for _, r := range regions {
			if r.X1 < 0 || r.Y1 < 0 || r.X2 > 200 || r.Y2 > 150 || r.Empty() {
				t.Errorf("%s region %+v outside the frame", c, r)
			}
		}
	}
}

func TestPrimaryFault(t *testing.T) {
	tests := []struct {
		name    string
		objects *mockObjects
	}{
		{"Error", &mockObjects{err: errors.New("inference failed"), dets: []Detection{
			{Box: frame.Region{X1: 0, Y1: 0, X2: 90, Y2: 90}, ClassID: classTV, Confidence: 0.9},
		}}},
		{"Panic", &mockObjects{panics: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			faces := &mockFaces{faces: []frame.Region{{X1: 10, Y1: 10, X2: 60, Y2: 60}}}
			res := New(tt.objects, faces, zap.NewNop()).Detect(blank(200, 200, 128), nil, 0.5)
			if faces.calls != 1 {
				t.Fatalf("Expected the degraded face path, face detector ran %d times", faces.calls)
			}
			if len(res[frame.Face]) != 1 {
				t.Errorf("Expected the fallback face, got %v", res[frame.Face])
			}
			if len(res[frame.Screen]) != 0 {
				t.Errorf("Partial primary output must be discarded, got %v", res[frame.Screen])
			}
		})
	}
}

func TestPlateHeuristic(t *testing.T) {
	img := blank(400, 260, 230)
	plate := image.Rect(100, 100, 300, 160)
	fill(img, plate, 30)

	res := New(&mockObjects{}, nil, zap.NewNop()).Detect(img, nil, 0.5)
	plates := res[frame.LicensePlate]
	if len(plates) == 0 {
		t.Fatal("Expected the wide rectangle to be reported as a plate")
	}
	for _, p := range plates {
		if p.X1 < plate.Min.X-3 || p.Y1 < plate.Min.Y-3 || p.X2 > plate.Max.X+3 || p.Y2 > plate.Max.Y+3 {
			t.Errorf("Plate %+v does not match the drawn rectangle %v", p, plate)
		}
	}
}

func TestDegradedShapes(t *testing.T) {
	tests := []struct {
		name string
		rect image.Rectangle
		want frame.Category
	}{
		{"Card", image.Rect(100, 100, 260, 200), frame.CreditCard},
		{"Document", image.Rect(100, 60, 250, 210), frame.Document},
		{"Screen", image.Rect(80, 100, 260, 200), frame.Screen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := blank(360, 280, 40)
			fill(img, tt.rect, 220)
			res := New(nil, &mockFaces{}, zap.NewNop()).Detect(img, nil, 0.5)
			if got := bestOverlap(res[tt.want], tt.rect); got < 0.8 {
				t.Errorf("Expected a %s region over %v, results %v", tt.want, tt.rect, res)
			}
		})
	}
}

func TestDegradedFace(t *testing.T) {
	img := blank(320, 240, 100)
	face := drawFace(img, image.Pt(112, 72))

	res := New(nil, nil, zap.NewNop()).Detect(img, nil, 0.5)
	if len(res[frame.Face]) == 0 {
		t.Fatal("Expected the cascade to find the face")
	}
	if got := bestOverlap(res[frame.Face], face); got < 0.5 {
		t.Errorf("Face regions %v do not cover %v (best IoU %.2f)", res[frame.Face], face, got)
	}
}

func TestClassifyShape(t *testing.T) {
	tests := []struct {
		w, h int
		want frame.Category
		ok   bool
	}{
		{40, 100, "", false},
		{160, 100, frame.CreditCard, true},
		{140, 100, frame.CreditCard, true},
		{150, 150, frame.Document, true},
		{90, 90, "", false},
		{180, 100, frame.Screen, true},
		{250, 100, frame.Screen, true},
		{300, 100, frame.LicensePlate, true},
		{60, 100, "", false},
	}
	for _, tt := range tests {
		got, ok := classifyShape(tt.w, tt.h)
		if got != tt.want || ok != tt.ok {
			t.Errorf("classifyShape(%d, %d) = %q %v, want %q %v", tt.w, tt.h, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStagePanicIsContained(t *testing.T) {
	d := New(nil, nil, zap.NewNop())
	res := NewResult()
	ok := d.run("faces", res, func(r Result) error {
		r.Add(frame.Face, frame.Region{X1: 0, Y1: 0, X2: 5, Y2: 5})
		panic("index out of range")
	})
	if ok {
		t.Error("Expected the stage to report failure")
	}
	if len(res[frame.Face]) != 0 {
		t.Errorf("Partial output of a panicking stage must be dropped, got %v", res[frame.Face])
	}
}
