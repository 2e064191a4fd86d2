package policy

import (
	"sort"
	"strings"

	"github.com/raaihank/frame-sentinel/internal/frame"
)

// Method names a blur transform
type Method string

const (
	Gaussian       Method = "gaussian"
	Pixelate       Method = "pixelate"
	EdgePreserving Method = "edge_preserving"
	None           Method = "none"
)

// Methods lists every accepted method name
var Methods = []Method{Gaussian, Pixelate, EdgePreserving, None}

// ParseMethod normalizes a method name. Unknown or empty names map to None
// and report false.
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case Gaussian, Pixelate, EdgePreserving, None:
		return m, true
	}
	return None, false
}

// Rules assigns a blur method to every category plus sensitive text.
// A zero value field behaves as None.
type Rules struct {
	Face         Method `yaml:"face" mapstructure:"face" json:"face"`
	Document     Method `yaml:"document" mapstructure:"document" json:"document"`
	CreditCard   Method `yaml:"credit_card" mapstructure:"credit_card" json:"credit_card"`
	LicensePlate Method `yaml:"license_plate" mapstructure:"license_plate" json:"license_plate"`
	Screen       Method `yaml:"screen" mapstructure:"screen" json:"screen"`
	Text         Method `yaml:"text" mapstructure:"text" json:"text"`
}

// DefaultRules returns the stock privacy rule set
func DefaultRules() Rules {
	return Rules{
		Face:         Pixelate,
		Document:     Gaussian,
		CreditCard:   Pixelate,
		LicensePlate: Pixelate,
		Screen:       EdgePreserving,
		Text:         Gaussian,
	}
}

// For returns the method for category c. Unknown categories and unset or
// invalid entries yield None.
func (r Rules) For(c frame.Category) Method {
	var m Method
	switch c {
	case frame.Face:
		m = r.Face
	case frame.Document:
		m = r.Document
	case frame.CreditCard:
		m = r.CreditCard
	case frame.LicensePlate:
		m = r.LicensePlate
	case frame.Screen:
		m = r.Screen
	case frame.Text:
		m = r.Text
	default:
		return None
	}
	norm, _ := ParseMethod(string(m))
	return norm
}

// Set assigns method m to category c. It reports false for unknown categories.
func (r *Rules) Set(c frame.Category, m Method) bool {
	switch c {
	case frame.Face:
		r.Face = m
	case frame.Document:
		r.Document = m
	case frame.CreditCard:
		r.CreditCard = m
	case frame.LicensePlate:
		r.LicensePlate = m
	case frame.Screen:
		r.Screen = m
	case frame.Text:
		r.Text = m
	default:
		return false
	}
	return true
}

// Normalize replaces unset or invalid methods with None
func (r Rules) Normalize() Rules {
	for _, c := range ruleKeys() {
		r.Set(c, r.For(c))
	}
	return r
}

// Map returns the rules keyed by category name
func (r Rules) Map() map[string]string {
	out := make(map[string]string, len(frame.Categories)+1)
	for _, c := range ruleKeys() {
		out[string(c)] = string(r.For(c))
	}
	return out
}

// Merge overlays the entries of m onto r. Keys that are not categories are
// ignored; values that are not methods set the key to None. Both are
// returned for reporting.
func (r Rules) Merge(m map[string]string) (Rules, []string) {
	var rejected []string
	for key, value := range m {
		c := frame.Category(strings.ToLower(strings.TrimSpace(key)))
		if !c.Known() {
			rejected = append(rejected, key)
			continue
		}
		method, ok := ParseMethod(value)
		if !ok {
			rejected = append(rejected, key)
		}
		r.Set(c, method)
	}
	sort.Strings(rejected)
	return r, rejected
}

// ParseRules builds Rules from a loosely typed mapping. Missing categories
// are None; unknown keys and invalid methods are returned.
func ParseRules(m map[string]string) (Rules, []string) {
	return Rules{}.Normalize().Merge(m)
}

func ruleKeys() []frame.Category {
	keys := make([]frame.Category, 0, len(frame.Categories)+1)
	keys = append(keys, frame.Categories...)
	return append(keys, frame.Text)
}
