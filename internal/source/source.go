// Package source provides the frames fed to the pipeline.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"
)

// ErrExhausted is returned by Next when a non-looping source has no more frames
var ErrExhausted = errors.New("source exhausted")

// Source yields frames one at a time. Implementations are not safe for
// concurrent use.
type Source interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Config selects and configures a source
type Config struct {
	Type   string  `yaml:"type" mapstructure:"type"`
	Path   string  `yaml:"path" mapstructure:"path"`
	FPS    float64 `yaml:"fps" mapstructure:"fps"`
	Width  int     `yaml:"width" mapstructure:"width"`
	Height int     `yaml:"height" mapstructure:"height"`
	Loop   bool    `yaml:"loop" mapstructure:"loop"`
}

const (
	TypeSynthetic = "synthetic"
	TypeImage     = "image"
	TypeDirectory = "directory"
)

// Types lists the accepted source types
var Types = []string{TypeSynthetic, TypeImage, TypeDirectory}

// New creates the source named by cfg.Type
func New(cfg Config, logger *zap.Logger) (Source, error) {
	switch cfg.Type {
	case TypeSynthetic, "":
		logger.Info("Using synthetic demo source")
		return NewSynthetic(), nil
	case TypeImage:
		return NewImageFile(cfg.Path, cfg.Width, cfg.Height, cfg.Loop, logger)
	case TypeDirectory:
		return NewDirectory(cfg.Path, cfg.Width, cfg.Height, cfg.Loop, logger)
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}
