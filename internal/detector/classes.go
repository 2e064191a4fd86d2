package detector

import "github.com/raaihank/frame-sentinel/internal/frame"

// COCO class ids the detector cares about
const (
	classPerson    = 0
	classCouch     = 57
	classTV        = 62
	classLaptop    = 63
	classCellPhone = 67
	classBook      = 73
)

type classKind int

const (
	kindIgnored classKind = iota
	kindPerson
	kindDocument
	kindScreen
	kindLaptop
)

// classKinds maps COCO ids to how their boxes are interpreted. Couches are
// treated as documents and laptops are recognized but produce no region.
var classKinds = map[int]classKind{
	classPerson:    kindPerson,
	classCouch:     kindDocument,
	classTV:        kindScreen,
	classLaptop:    kindLaptop,
	classCellPhone: kindDocument,
	classBook:      kindDocument,
}

const (
	cardAspectMin = 1.4
	cardAspectMax = 1.7
)

// aspect returns width/height, or 0 for boxes with no height
func aspect(w, h int) float64 {
	if h <= 0 {
		return 0
	}
	return float64(w) / float64(h)
}

// mapDetection converts one learned detection into result regions
func mapDetection(det Detection, res Result) {
	b := det.Box
	switch classKinds[det.ClassID] {
	case kindPerson:
		res.Add(frame.Face, frame.Region{X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y1 + (b.Y2-b.Y1)/3})
	case kindDocument:
		if a := aspect(b.Width(), b.Height()); a >= cardAspectMin && a <= cardAspectMax {
			res.Add(frame.CreditCard, b)
		} else {
			res.Add(frame.Document, b)
		}
	case kindScreen:
		res.Add(frame.Screen, b)
	}
}
