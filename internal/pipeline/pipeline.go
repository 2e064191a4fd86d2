// Package pipeline turns one input frame into its privacy-filtered copy.
package pipeline

import (
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/blur"
	"github.com/raaihank/frame-sentinel/internal/detector"
	"github.com/raaihank/frame-sentinel/internal/events"
	"github.com/raaihank/frame-sentinel/internal/frame"
	"github.com/raaihank/frame-sentinel/internal/imgproc"
	"github.com/raaihank/frame-sentinel/internal/policy"
	"github.com/raaihank/frame-sentinel/internal/privacy"
	"github.com/raaihank/frame-sentinel/internal/text"
)

// RegionDetector finds sensitive regions in a frame
type RegionDetector interface {
	Detect(img *image.RGBA, gray *image.Gray, confidence float64) detector.Result
}

// TextExtractor finds words in a grayscale frame
type TextExtractor interface {
	Extract(gray *image.Gray) []text.Fragment
}

// Classifier decides whether a word is sensitive
type Classifier interface {
	Match(text string, keywords policy.KeywordSet) (privacy.Match, bool)
}

// Counts holds the per-frame totals keyed by category name plus
// frame.SensitiveTextKey
type Counts map[string]int

// Total returns the sum over all keys
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithSink sends detection events to sink
func WithSink(sink events.Sink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithDebugHook receives the denoised inverted threshold of every frame
func WithDebugHook(fn func(*image.Gray)) Option {
	return func(p *Pipeline) { p.debug = fn }
}

// Pipeline runs detection, text analysis and blur dispatch for one frame
// at a time. It holds no per-frame state and never panics.
type Pipeline struct {
	detector   RegionDetector
	extractor  TextExtractor
	classifier Classifier
	blur       *blur.Library
	sink       events.Sink
	debug      func(*image.Gray)
	logger     *zap.Logger
}

// New creates a pipeline. extractor and classifier may be nil, in which
// case no text is analyzed.
func New(det RegionDetector, extractor TextExtractor, classifier Classifier, library *blur.Library, logger *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector:   det,
		extractor:  extractor,
		classifier: classifier,
		blur:       library,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process returns a filtered copy of src and the detection counts. src is
// never modified. snap is read once and applies to the whole frame.
func (p *Pipeline) Process(snap policy.Snapshot, src image.Image) (*image.RGBA, Counts) {
	out := frame.Clone(src)
	gray := frame.Gray(out)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()

	if p.debug != nil {
		p.guard("debug", func() {
			p.debug(imgproc.AdaptiveThresholdGaussian(imgproc.GaussianBlur(gray, 5, 0), 11, 2, true))
		})
	}

	regions := detector.NewResult()
	p.guard("detect", func() {
		if r := p.detector.Detect(out, gray, snap.Confidence); r != nil {
			regions = r
		}
	})

	var fragments []text.Fragment
	if p.extractor != nil && p.classifier != nil {
		p.guard("extract", func() {
			fragments = p.extractor.Extract(gray)
		})
	}

	counts := make(Counts, len(frame.Categories)+1)
	for _, c := range frame.Categories {
		list := regions[c]
		counts[string(c)] = len(list)
		method := snap.Rules.For(c)
		if method == policy.None {
			continue
		}
		for _, r := range list {
			p.apply(out, r, method, w, h)
		}
	}

	counts[frame.SensitiveTextKey] = 0
	textMethod := snap.Rules.For(frame.Text)
	for _, f := range fragments {
		match, ok := p.match(f.Text, snap.Keywords)
		if !ok {
			continue
		}
		counts[frame.SensitiveTextKey]++
		p.logger.Debug("Sensitive text found",
			zap.String("rule", match.String()),
			zap.Int("x1", f.Box.X1), zap.Int("y1", f.Box.Y1),
			zap.Int("x2", f.Box.X2), zap.Int("y2", f.Box.Y2),
		)
		if textMethod != policy.None {
			p.apply(out, f.Box, textMethod, w, h)
		}
	}

	p.emit(snap, counts)
	return out, counts
}

// apply blurs region r of out in place
func (p *Pipeline) apply(out *image.RGBA, r frame.Region, method policy.Method, w, h int) {
	clipped, ok := r.Clip(w, h)
	if !ok {
		return
	}
	p.guard("transform", func() {
		patch := p.blur.Apply(method, frame.Crop(out, clipped))
		frame.Paste(out, patch, clipped)
	})
}

func (p *Pipeline) match(s string, keywords policy.KeywordSet) (m privacy.Match, ok bool) {
	p.guard("classify", func() {
		m, ok = p.classifier.Match(s, keywords)
	})
	return m, ok
}

// emit sends one event per non-empty category
func (p *Pipeline) emit(snap policy.Snapshot, counts Counts) {
	if p.sink == nil {
		return
	}
	now := time.Now()
	send := func(key string, method policy.Method) {
		n := counts[key]
		if n == 0 {
			return
		}
		p.guard("sink", func() {
			p.sink.Emit(events.Detection{
				Category:   key,
				Method:     string(method),
				Count:      n,
				Confidence: snap.Confidence,
				Timestamp:  now,
			})
		})
	}
	for _, c := range frame.Categories {
		send(string(c), snap.Rules.For(c))
	}
	send(frame.SensitiveTextKey, snap.Rules.For(frame.Text))
}

// guard runs fn, logging and swallowing any panic
func (p *Pipeline) guard(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("Pipeline stage panicked",
				zap.String("stage", stage),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}
