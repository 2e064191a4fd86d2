package stream

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
)

// Preview holds the most recent processed frame and its JPEG encoding.
// Encoding happens on first read after each update.
type Preview struct {
	mu      sync.Mutex
	img     *image.RGBA
	encoded []byte
	quality int
	frame   uint64
}

// NewPreview creates an empty preview. quality outside 1..100 uses 80.
func NewPreview(quality int) *Preview {
	if quality < 1 || quality > 100 {
		quality = 80
	}
	return &Preview{quality: quality}
}

// Set replaces the latest frame. img must not be modified afterwards.
func (p *Preview) Set(img *image.RGBA, frame uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.img = img
	p.encoded = nil
	p.frame = frame
}

// JPEG returns the encoded latest frame and its number. ok is false
// before the first frame.
func (p *Preview) JPEG() (data []byte, frame uint64, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.img == nil {
		return nil, 0, false, nil
	}
	if p.encoded == nil {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, p.img, &jpeg.Options{Quality: p.quality}); err != nil {
			return nil, p.frame, true, fmt.Errorf("failed to encode preview: %w", err)
		}
		p.encoded = buf.Bytes()
	}
	return p.encoded, p.frame, true, nil
}
