package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// ImageFile replays still images. A single image is decoded once; a
// directory is listed once and each file decoded when reached.
type ImageFile struct {
	paths  []string
	cached image.Image
	next   int
	width  int
	height int
	loop   bool
	logger *zap.Logger
}

// NewImageFile replays the image at path
func NewImageFile(path string, width, height int, loop bool, logger *zap.Logger) (*ImageFile, error) {
	s := &ImageFile{paths: []string{path}, width: width, height: height, loop: loop, logger: logger}
	img, err := s.load(path)
	if err != nil {
		return nil, err
	}
	s.cached = img
	logger.Info("Using image source", zap.String("path", path), zap.Bool("loop", loop))
	return s, nil
}

// NewDirectory replays the PNG and JPEG files of dir in name order
func NewDirectory(dir string, width, height int, loop bool, logger *zap.Logger) (*ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no PNG or JPEG files in %s", dir)
	}
	sort.Strings(paths)

	logger.Info("Using directory source",
		zap.String("path", dir),
		zap.Int("files", len(paths)),
		zap.Bool("loop", loop))
	return &ImageFile{paths: paths, width: width, height: height, loop: loop, logger: logger}, nil
}

// Next returns the next image, or ErrExhausted once a non-looping source
// has returned every file
func (s *ImageFile) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.paths) {
		if !s.loop {
			return nil, ErrExhausted
		}
		s.next = 0
	}
	path := s.paths[s.next]
	s.next++

	if s.cached != nil {
		return s.cached, nil
	}
	return s.load(path)
}

// Close is a no-op
func (s *ImageFile) Close() error { return nil }

func (s *ImageFile) load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	s.logger.Debug("Image decoded",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))
	return s.resize(img), nil
}

// resize scales img to the configured size. A zero dimension keeps the
// aspect ratio; both zero keeps the image as is.
func (s *ImageFile) resize(img image.Image) image.Image {
	w, h := s.width, s.height
	b := img.Bounds()
	if (w <= 0 && h <= 0) || b.Empty() {
		return img
	}
	if w <= 0 {
		w = max(1, b.Dx()*h/b.Dy())
	}
	if h <= 0 {
		h = max(1, b.Dy()*w/b.Dx())
	}
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
