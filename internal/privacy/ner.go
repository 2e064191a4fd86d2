package privacy

import (
	"fmt"
	"sync"

	"github.com/jdkato/prose/v2"
)

// ProseRecognizer finds entities with prose's averaged perceptron model.
// The tagger and entity model are loaded once and shared by every call.
type ProseRecognizer struct {
	model *prose.Model
	mu    sync.Mutex
}

// NewProseRecognizer loads prose's default model and returns a recognizer
// backed by it
func NewProseRecognizer() (*ProseRecognizer, error) {
	doc, err := prose.NewDocument("",
		prose.WithSegmentation(false),
		prose.WithExtraction(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load entity model: %w", err)
	}
	if doc.Model == nil {
		return nil, fmt.Errorf("failed to load entity model: no model returned")
	}
	return &ProseRecognizer{model: doc.Model}, nil
}

func (p *ProseRecognizer) Entities(text string) ([]Entity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := prose.NewDocument(text,
		prose.UsingModel(p.model),
		prose.WithSegmentation(false),
		prose.WithExtraction(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze text: %w", err)
	}

	ents := doc.Entities()
	out := make([]Entity, 0, len(ents))
	for _, e := range ents {
		out = append(out, Entity{Text: e.Text, Label: e.Label})
	}
	return out, nil
}
