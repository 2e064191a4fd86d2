package policy

import (
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultConfidence is the detection confidence used when none is configured
const DefaultConfidence = 0.5

// DefaultKeywords returns the stock sensitive keyword list
func DefaultKeywords() []string {
	return []string{
		"confidential", "private", "secret", "password", "visa",
		"mastercard", "american express", "cvv", "ssn", "social security",
	}
}

// KeywordSet is an immutable set of lowercase keywords kept in insertion order
type KeywordSet struct {
	words []string
}

// NewKeywordSet lowercases, trims and deduplicates words. Blank entries are dropped.
func NewKeywordSet(words []string) KeywordSet {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return KeywordSet{words: out}
}

// Words returns a copy of the keywords
func (k KeywordSet) Words() []string {
	out := make([]string, len(k.words))
	copy(out, k.words)
	return out
}

func (k KeywordSet) Len() int { return len(k.words) }

// FindIn returns the first keyword contained in lowered, which must already
// be lowercase
func (k KeywordSet) FindIn(lowered string) (string, bool) {
	for _, w := range k.words {
		if strings.Contains(lowered, w) {
			return w, true
		}
	}
	return "", false
}

// Snapshot is the per-frame view of the external configuration. It is
// passed by value and never mutated after construction.
type Snapshot struct {
	Confidence float64
	Rules      Rules
	Keywords   KeywordSet
}

// NewSnapshot builds a Snapshot, clamping confidence into [0,1] and
// normalizing rules
func NewSnapshot(confidence float64, rules Rules, keywords []string) Snapshot {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Snapshot{
		Confidence: confidence,
		Rules:      rules.Normalize(),
		Keywords:   NewKeywordSet(keywords),
	}
}

// DefaultSnapshot returns the stock configuration
func DefaultSnapshot() Snapshot {
	return NewSnapshot(DefaultConfidence, DefaultRules(), DefaultKeywords())
}

// Store publishes the current Snapshot to the frame loop. Writers replace
// the whole snapshot; readers always observe a complete one.
type Store struct {
	mu       sync.Mutex
	current  atomic.Pointer[Snapshot]
	version  atomic.Uint64
	onUpdate []func(Snapshot)
}

// NewStore creates a Store holding initial
func NewStore(initial Snapshot) *Store {
	s := &Store{}
	s.current.Store(&initial)
	return s
}

// Current returns the latest snapshot
func (s *Store) Current() Snapshot {
	return *s.current.Load()
}

// Version increments on every update
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Update replaces the snapshot and notifies subscribers
func (s *Store) Update(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(snap)
}

func (s *Store) publish(snap Snapshot) {
	s.current.Store(&snap)
	s.version.Add(1)
	for _, fn := range s.onUpdate {
		fn(snap)
	}
}

// Modify applies fn to a copy of the current snapshot and publishes the result
func (s *Store) Modify(fn func(Snapshot) Snapshot) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.Current())
	next = NewSnapshot(next.Confidence, next.Rules, next.Keywords.words)
	s.publish(next)
	return next
}

// OnUpdate registers fn to run after every update. Register before the
// store is shared.
func (s *Store) OnUpdate(fn func(Snapshot)) {
	s.onUpdate = append(s.onUpdate, fn)
}

// View is the serialized form of a Snapshot
type View struct {
	DetectionConfidence float64           `json:"detection_confidence" yaml:"detection_confidence"`
	BlurRules           map[string]string `json:"blur_rules" yaml:"blur_rules"`
	SensitiveKeywords   []string          `json:"sensitive_keywords" yaml:"sensitive_keywords"`
}

// View returns the serialized form of s
func (s Snapshot) View() View {
	return View{
		DetectionConfidence: s.Confidence,
		BlurRules:           s.Rules.Map(),
		SensitiveKeywords:   s.Keywords.Words(),
	}
}
