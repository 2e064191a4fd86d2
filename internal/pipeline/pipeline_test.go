package pipeline

import (
	"bytes"
	"image"
	"math/rand"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/blur"
	"github.com/raaihank/frame-sentinel/internal/detector"
	"github.com/raaihank/frame-sentinel/internal/events"
	"github.com/raaihank/frame-sentinel/internal/frame"
	"github.com/raaihank/frame-sentinel/internal/policy"
	"github.com/raaihank/frame-sentinel/internal/privacy"
	"github.com/raaihank/frame-sentinel/internal/text"
)

type fixedDetector struct {
	result detector.Result
	panics bool
}

func (f *fixedDetector) Detect(img *image.RGBA, gray *image.Gray, confidence float64) detector.Result {
	if f.panics {
		panic("detector exploded")
	}
	res := detector.NewResult()
	for c, regions := range f.result {
		res[c] = append(res[c], regions...)
	}
	return res
}

type fixedExtractor struct {
	fragments []text.Fragment
	panics    bool
}

func (f *fixedExtractor) Extract(gray *image.Gray) []text.Fragment {
	if f.panics {
		panic("ocr exploded")
	}
	return f.fragments
}

type personDetector struct {
	box frame.Region
}

func (p *personDetector) Infer(img *image.RGBA, confidence float64) ([]detector.Detection, error) {
	return []detector.Detection{{Box: p.box, ClassID: 0, Confidence: 0.95}}, nil
}

func (p *personDetector) Close() error { return nil }

type collector struct {
	mu     sync.Mutex
	events []events.Detection
}

func (c *collector) Emit(e events.Detection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

type panicSink struct{}

func (panicSink) Emit(events.Detection) { panic("sink closed") }

func noiseFrame(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 255
	}
	return img
}

func copyRGBA(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	return out
}

func regionEqual(a, b *image.RGBA, r image.Rectangle) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if a.RGBAAt(x, y) != b.RGBAAt(x, y) {
				return false
			}
		}
	}
	return true
}

func allNone() policy.Rules {
	return policy.Rules{
		Face: policy.None, Document: policy.None, CreditCard: policy.None,
		LicensePlate: policy.None, Screen: policy.None, Text: policy.None,
	}
}

func newClassifier(t *testing.T) *privacy.Classifier {
	t.Helper()
	c, err := privacy.New(nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}
	return c
}

func TestNoneIsIdentity(t *testing.T) {
	src := noiseFrame(120, 90, 1)
	orig := copyRGBA(src)
	det := &fixedDetector{result: detector.Result{
		frame.Face:     {{X1: 10, Y1: 10, X2: 50, Y2: 50}},
		frame.Document: {{X1: 30, Y1: 20, X2: 110, Y2: 80}},
		frame.Screen:   {{X1: -10, Y1: -10, X2: 20, Y2: 20}},
	}}
	ext := &fixedExtractor{fragments: []text.Fragment{
		{Text: "confidential", Box: frame.Region{X1: 0, Y1: 0, X2: 40, Y2: 10}, Confidence: 90},
	}}

	p := New(det, ext, newClassifier(t), blur.NewLibrary(blur.DefaultParams(), zap.NewNop()), zap.NewNop())
	snap := policy.NewSnapshot(0.5, allNone(), policy.DefaultKeywords())
	out, counts := p.Process(snap, src)

	if !bytes.Equal(out.Pix, orig.Pix) {
		t.Error("Rules of none must leave the frame bit-identical")
	}
	if !bytes.Equal(src.Pix, orig.Pix) {
		t.Error("The input frame must not be modified")
	}
	if counts["face"] != 1 || counts["document"] != 1 || counts["screen"] != 1 || counts[frame.SensitiveTextKey] != 1 {
		t.Errorf("Counts must still be reported, got %v", counts)
	}
}

func TestCountsHaveEveryKey(t *testing.T) {
	p := New(&fixedDetector{}, nil, nil, blur.NewLibrary(blur.DefaultParams(), zap.NewNop()), zap.NewNop())
	_, counts := p.Process(policy.DefaultSnapshot(), noiseFrame(20, 20, 2))
	for _, c := range frame.Categories {
		if v, ok := counts[string(c)]; !ok || v != 0 {
			t.Errorf("Expected %s present with 0, got %v %v", c, v, ok)
		}
	}
	if v, ok := counts[frame.SensitiveTextKey]; !ok || v != 0 {
		t.Errorf("Expected sensitive_text present with 0, got %v %v", v, ok)
	}
	if len(counts) != len(frame.Categories)+1 {
		t.Errorf("Unexpected keys in %v", counts)
	}
}

func TestFacePixelatedEndToEnd(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 320, 480))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 128, 128, 128, 255
	}
	faceArea := image.Rect(100, 60, 220, 180)
	for y := faceArea.Min.Y; y < faceArea.Max.Y; y++ {
		for x := faceArea.Min.X; x < faceArea.Max.X; x++ {
			o := src.PixOffset(x, y)
			if ((x/4)+(y/4))%2 == 0 {
				src.Pix[o], src.Pix[o+1], src.Pix[o+2] = 250, 250, 250
			} else {
				src.Pix[o], src.Pix[o+1], src.Pix[o+2] = 5, 5, 5
			}
		}
	}
	orig := copyRGBA(src)

	det := detector.New(&personDetector{box: frame.Region{X1: 100, Y1: 60, X2: 220, Y2: 420}}, nil, zap.NewNop())
	rules := allNone()
	rules.Face = policy.Pixelate
	snap := policy.NewSnapshot(0.5, rules, nil)

	p := New(det, nil, nil, blur.NewLibrary(blur.DefaultParams(), zap.NewNop()), zap.NewNop())
	out, counts := p.Process(snap, src)

	if counts["face"] != 1 {
		t.Fatalf("Expected one face, got counts %v", counts)
	}
	if regionEqual(out, orig, faceArea) {
		t.Error("Face region was not pixelated")
	}
	outside := []image.Rectangle{
		image.Rect(0, 0, 320, 60), image.Rect(0, 180, 320, 480),
		image.Rect(0, 60, 100, 180), image.Rect(220, 60, 320, 180),
	}
	for _, r := range outside {
		if !regionEqual(out, orig, r) {
			t.Errorf("Pixels outside the face changed in %v", r)
		}
	}

	colors := map[[3]uint8]bool{}
	for y := faceArea.Min.Y; y < faceArea.Max.Y; y++ {
		for x := faceArea.Min.X; x < faceArea.Max.X; x++ {
			c := out.RGBAAt(x, y)
			colors[[3]uint8{c.R, c.G, c.B}] = true
		}
	}
	if len(colors) > 64 {
		t.Errorf("Expected at most 64 mosaic blocks, found %d colors", len(colors))
	}
}

func TestOverlapLaterCategoryWins(t *testing.T) {
	src := noiseFrame(240, 240, 3)
	doc := frame.Region{X1: 40, Y1: 40, X2: 150, Y2: 150}
	screen := frame.Region{X1: 100, Y1: 100, X2: 210, Y2: 210}
	det := &fixedDetector{result: detector.Result{
		frame.Document: {doc},
		frame.Screen:   {screen},
	}}

	rules := allNone()
	rules.Document = policy.Gaussian
	rules.Screen = policy.Pixelate
	lib := blur.NewLibrary(blur.DefaultParams(), zap.NewNop())
	out, _ := New(det, nil, nil, lib, zap.NewNop()).Process(policy.NewSnapshot(0.5, rules, nil), src)

	want := copyRGBA(src)
	frame.Paste(want, lib.Apply(policy.Gaussian, frame.Crop(want, doc)), doc)
	frame.Paste(want, lib.Apply(policy.Pixelate, frame.Crop(want, screen)), screen)

	if !bytes.Equal(out.Pix, want.Pix) {
		t.Error("Expected document blur first and screen pixelation on top")
	}

	reversed := copyRGBA(src)
	frame.Paste(reversed, lib.Apply(policy.Pixelate, frame.Crop(reversed, screen)), screen)
	frame.Paste(reversed, lib.Apply(policy.Gaussian, frame.Crop(reversed, doc)), doc)
	if bytes.Equal(out.Pix, reversed.Pix) {
		t.Error("Overlap result should depend on category order")
	}
}

func TestSensitiveText(t *testing.T) {
	src := noiseFrame(200, 100, 4)
	orig := copyRGBA(src)
	secret := frame.Region{X1: 10, Y1: 10, X2: 80, Y2: 30}
	plain := frame.Region{X1: 100, Y1: 50, X2: 180, Y2: 70}
	ext := &fixedExtractor{fragments: []text.Fragment{
		{Text: "SECRET", Box: secret, Confidence: 95},
		{Text: "hello", Box: plain, Confidence: 95},
		{Text: "4111-2222-3333-4444", Box: frame.Region{X1: 150, Y1: 80, X2: 260, Y2: 120}, Confidence: 88},
	}}

	rules := allNone()
	rules.Text = policy.Gaussian
	sink := &collector{}
	p := New(&fixedDetector{}, ext, newClassifier(t), blur.NewLibrary(blur.DefaultParams(), zap.NewNop()), zap.NewNop(), WithSink(sink))
	out, counts := p.Process(policy.NewSnapshot(0.5, rules, policy.DefaultKeywords()), src)

	if counts[frame.SensitiveTextKey] != 2 {
		t.Fatalf("Expected 2 sensitive fragments, got %v", counts)
	}
	if regionEqual(out, orig, secret.Rect()) {
		t.Error("Sensitive fragment was not blurred")
	}
	if !regionEqual(out, orig, plain.Rect()) {
		t.Error("Plain fragment must be left alone")
	}

	if len(sink.events) != 1 {
		t.Fatalf("Expected one event, got %+v", sink.events)
	}
	e := sink.events[0]
	if e.Category != frame.SensitiveTextKey || e.Method != "gaussian" || e.Count != 2 {
		t.Errorf("Unexpected event %+v", e)
	}
}

func TestEvents(t *testing.T) {
	det := &fixedDetector{result: detector.Result{
		frame.Face:         {{X1: 0, Y1: 0, X2: 10, Y2: 10}, {X1: 20, Y1: 20, X2: 30, Y2: 30}},
		frame.LicensePlate: {{X1: 5, Y1: 5, X2: 40, Y2: 15}},
	}}
	sink := &collector{}
	p := New(det, nil, nil, blur.NewLibrary(blur.DefaultParams(), zap.NewNop()), zap.NewNop(), WithSink(sink))
	p.Process(policy.NewSnapshot(0.7, policy.DefaultRules(), nil), noiseFrame(50, 50, 5))

	if len(sink.events) != 2 {
		t.Fatalf("Expected events for face and plate only, got %+v", sink.events)
	}
	if e := sink.events[0]; e.Category != "face" || e.Method != "pixelate" || e.Count != 2 || e.Confidence != 0.7 {
		t.Errorf("Unexpected face event %+v", e)
	}
	if e := sink.events[1]; e.Category != "license_plate" || e.Count != 1 {
		t.Errorf("Unexpected plate event %+v", e)
	}
}

func TestFailuresDegrade(t *testing.T) {
	lib := blur.NewLibrary(blur.DefaultParams(), zap.NewNop())

	t.Run("DetectorPanic", func(t *testing.T) {
		src := noiseFrame(40, 40, 6)
		out, counts := New(&fixedDetector{panics: true}, nil, nil, lib, zap.NewNop()).Process(policy.DefaultSnapshot(), src)
		if counts.Total() != 0 || !bytes.Equal(out.Pix, src.Pix) {
			t.Errorf("Expected an empty result, got %v", counts)
		}
	})

	t.Run("ExtractorPanic", func(t *testing.T) {
		p := New(&fixedDetector{}, &fixedExtractor{panics: true}, newClassifier(t), lib, zap.NewNop())
		_, counts := p.Process(policy.DefaultSnapshot(), noiseFrame(40, 40, 7))
		if counts[frame.SensitiveTextKey] != 0 {
			t.Errorf("Expected no text, got %v", counts)
		}
	})

	t.Run("SinkPanic", func(t *testing.T) {
		det := &fixedDetector{result: detector.Result{frame.Face: {{X1: 0, Y1: 0, X2: 10, Y2: 10}}}}
		p := New(det, nil, nil, lib, zap.NewNop(), WithSink(panicSink{}))
		if _, counts := p.Process(policy.DefaultSnapshot(), noiseFrame(40, 40, 8)); counts["face"] != 1 {
			t.Errorf("Expected processing to finish, got %v", counts)
		}
	})
}

func TestDebugHookAndOrigin(t *testing.T) {
	base := noiseFrame(60, 40, 9)
	sub := base.SubImage(image.Rect(10, 5, 50, 35)).(*image.RGBA)

	var seen *image.Gray
	p := New(&fixedDetector{}, nil, nil, blur.NewLibrary(blur.DefaultParams(), zap.NewNop()), zap.NewNop(),
		WithDebugHook(func(g *image.Gray) { seen = g }))
	out, _ := p.Process(policy.DefaultSnapshot(), sub)

	if out.Bounds() != image.Rect(0, 0, 40, 30) {
		t.Errorf("Expected zero origin output, got %v", out.Bounds())
	}
	if out.RGBAAt(0, 0) != base.RGBAAt(10, 5) {
		t.Error("Output must start at the source's top left pixel")
	}
	if seen == nil || seen.Bounds().Dx() != 40 || seen.Bounds().Dy() != 30 {
		t.Fatalf("Debug hook did not receive the frame-sized threshold, got %v", seen)
	}
	for _, v := range seen.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("Expected a binary threshold, found %d", v)
		}
	}
}
