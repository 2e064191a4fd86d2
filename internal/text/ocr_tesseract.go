//go:build tesseract
// +build tesseract

package text

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/frame"
)

// TesseractEngine implements OCREngine with gosseract. Requires build tag 'tesseract'.
type TesseractEngine struct {
	client *gosseract.Client
	mu     sync.Mutex
	logger *zap.Logger
}

// NewOCREngine creates a Tesseract client in sparse text mode
func NewOCREngine(cfg Config, logger *zap.Logger) (OCREngine, error) {
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	logger.Info("Tesseract OCR initialized",
		zap.String("language", lang),
		zap.String("version", client.Version()),
	)
	return &TesseractEngine{client: client, logger: logger}, nil
}

func (t *TesseractEngine) Recognize(img *image.Gray) ([]Fragment, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set OCR image: %w", err)
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("failed to get bounding boxes: %w", err)
	}

	fragments := make([]Fragment, 0, len(boxes))
	for _, b := range boxes {
		fragments = append(fragments, Fragment{
			Text:       b.Word,
			Box:        frame.FromRect(b.Box),
			Confidence: b.Confidence,
		})
	}
	return fragments, nil
}

func (t *TesseractEngine) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
