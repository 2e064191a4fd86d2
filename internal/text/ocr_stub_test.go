//go:build !tesseract
// +build !tesseract

package text

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestStubEngine(t *testing.T) {
	engine, err := NewOCREngine(Config{Enabled: true}, zap.NewNop())
	if engine != nil {
		t.Fatal("Expected no engine without the tesseract tag")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}
