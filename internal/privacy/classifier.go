package privacy

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/policy"
)

// minTextLength is the shortest string worth classifying, in runes
const minTextLength = 3

// Classifier decides whether an OCR string is sensitive. Keywords come
// from the caller's snapshot so the classifier itself holds no mutable
// configuration after construction.
type Classifier struct {
	rules   []DetectionRule
	enabled map[string]bool
	ner     EntityRecognizer
	logger  *zap.Logger
}

// New creates a classifier. patterns names the enabled pattern rules; "all"
// or an empty list enables every rule. ner may be nil.
func New(patterns []string, ner EntityRecognizer, logger *zap.Logger) (*Classifier, error) {
	c := &Classifier{
		rules:   GetDefaultRules(),
		enabled: make(map[string]bool),
		ner:     ner,
		logger:  logger,
	}

	if err := c.configureRules(patterns); err != nil {
		return nil, fmt.Errorf("failed to configure patterns: %w", err)
	}

	logger.Info("Sensitivity classifier initialized",
		zap.Int("total_rules", len(c.rules)),
		zap.Strings("enabled_rules", c.EnabledRules()),
		zap.Bool("ner", ner != nil),
	)
	return c, nil
}

func (c *Classifier) configureRules(names []string) error {
	if len(names) == 0 {
		names = []string{"all"}
	}
	for _, rule := range c.rules {
		c.enabled[rule.Name] = false
	}
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "all" {
			for _, rule := range c.rules {
				c.enabled[rule.Name] = true
			}
			continue
		}
		if _, ok := c.enabled[name]; !ok {
			return fmt.Errorf("unknown pattern: %s", name)
		}
		c.enabled[name] = true
	}
	return nil
}

// EnabledRules returns the enabled pattern names in check order
func (c *Classifier) EnabledRules() []string {
	var names []string
	for _, rule := range c.rules {
		if c.enabled[rule.Name] {
			names = append(names, rule.Name)
		}
	}
	return names
}

// IsSensitive reports whether text should be treated as sensitive
func (c *Classifier) IsSensitive(text string, keywords policy.KeywordSet) bool {
	_, ok := c.Match(text, keywords)
	return ok
}

// Match classifies text and reports the first check that fired. Keywords
// are checked first, then patterns, then named entities.
func (c *Classifier) Match(text string, keywords policy.KeywordSet) (Match, bool) {
	if utf8.RuneCountInString(text) < minTextLength {
		return Match{}, false
	}

	if kw, ok := keywords.FindIn(strings.ToLower(text)); ok {
		return Match{Kind: MatchKeyword, Rule: kw}, true
	}

	for _, rule := range c.rules {
		if !c.enabled[rule.Name] {
			continue
		}
		if rule.Pattern.MatchString(text) {
			return Match{Kind: MatchPattern, Rule: rule.Name}, true
		}
	}

	if label, ok := c.entity(text); ok {
		return Match{Kind: MatchEntity, Rule: label}, true
	}
	return Match{}, false
}

// entity runs the recognizer. Errors and panics count as no entity.
func (c *Classifier) entity(text string) (label string, found bool) {
	if c.ner == nil {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("Entity recognizer panicked", zap.Any("panic", r))
			label, found = "", false
		}
	}()

	entities, err := c.ner.Entities(text)
	if err != nil {
		c.logger.Debug("Entity recognition failed", zap.Error(err))
		return "", false
	}
	for _, e := range entities {
		l := strings.ToUpper(e.Label)
		if sensitiveLabels[l] {
			return l, true
		}
	}
	return "", false
}
