package privacy

import "regexp"

// DetectionRule is a named pattern that marks text as sensitive
type DetectionRule struct {
	Name    string
	Pattern *regexp.Regexp
	Enabled bool
}

// Entity is a named entity found by an EntityRecognizer
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// EntityRecognizer finds named entities in free text
type EntityRecognizer interface {
	Entities(text string) ([]Entity, error)
}

// MatchKind says which check flagged a string
type MatchKind string

const (
	MatchKeyword MatchKind = "keyword"
	MatchPattern MatchKind = "pattern"
	MatchEntity  MatchKind = "entity"
)

// Match describes why a string was classified as sensitive. It never
// carries the text itself.
type Match struct {
	Kind MatchKind `json:"kind"`
	Rule string    `json:"rule"`
}

func (m Match) String() string {
	if m.Kind == MatchEntity {
		return "entity:" + m.Rule
	}
	return m.Rule
}

// sensitiveLabels are the entity labels that count as sensitive. prose
// reports organizations as ORGANIZATION and locations as GPE or LOCATION.
var sensitiveLabels = map[string]bool{
	"PERSON":       true,
	"ORG":          true,
	"ORGANIZATION": true,
	"GPE":          true,
	"LOCATION":     true,
}
