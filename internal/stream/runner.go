// Package stream drives frames from a source through the pipeline at a
// fixed pace and reports throughput.
package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/raaihank/frame-sentinel/internal/pipeline"
	"github.com/raaihank/frame-sentinel/internal/policy"
	"github.com/raaihank/frame-sentinel/internal/source"
	"github.com/raaihank/frame-sentinel/internal/websocket"
)

const (
	// DefaultFPS paces the loop at one frame every 50ms
	DefaultFPS = 20.0
	// statsEvery is the frame interval for FPS updates and frame_stats events
	statsEvery = 10
	// ewmaAlpha weights the newest processing time sample
	ewmaAlpha = 0.2
	// maxSourceErrors consecutive read failures stop the runner
	maxSourceErrors = 10
)

// Processor filters one frame
type Processor interface {
	Process(snap policy.Snapshot, src image.Image) (*image.RGBA, pipeline.Counts)
}

// SnapshotSource returns the configuration for the next frame
type SnapshotSource interface {
	Current() policy.Snapshot
}

// StatsBroadcaster receives frame_stats samples
type StatsBroadcaster interface {
	BroadcastFrameStats(stats websocket.FrameStatsEvent)
}

// SessionEnder closes the persisted session when the runner stops
type SessionEnder interface {
	EndSession(ctx context.Context, sessionID int64) (time.Duration, error)
}

// Stats is a point-in-time view of the runner's metrics
type Stats struct {
	FPS          float64          `json:"fps"`
	ProcessingMS float64          `json:"processing_ms"`
	TotalObjects int              `json:"total_objects"`
	FrameNumber  uint64           `json:"frame_number"`
	LastCounts   map[string]int   `json:"last_counts"`
	Totals       map[string]int64 `json:"totals"`
	Running      bool             `json:"running"`
}

// Option configures a Runner
type Option func(*Runner)

// WithBroadcaster sends frame_stats every ten frames
func WithBroadcaster(b StatsBroadcaster) Option {
	return func(r *Runner) { r.broadcaster = b }
}

// WithPreview publishes every processed frame to p
func WithPreview(p *Preview) Option {
	return func(r *Runner) { r.preview = p }
}

// WithSession ends sessionID through ender when Run returns
func WithSession(sessionID int64, ender SessionEnder) Option {
	return func(r *Runner) {
		r.sessionID = sessionID
		r.ender = ender
	}
}

// WithMaxFrames stops the runner after n frames
func WithMaxFrames(n uint64) Option {
	return func(r *Runner) { r.maxFrames = n }
}

// Runner reads, processes and publishes frames until its context ends or
// the source is exhausted
type Runner struct {
	src       source.Source
	processor Processor
	snapshots SnapshotSource
	limiter   *rate.Limiter
	logger    *zap.Logger

	broadcaster StatsBroadcaster
	preview     *Preview
	sessionID   int64
	ender       SessionEnder
	maxFrames   uint64

	mu    sync.RWMutex
	stats Stats
}

// NewRunner creates a runner pacing at fps frames per second. A
// non-positive fps runs unthrottled.
func NewRunner(src source.Source, processor Processor, snapshots SnapshotSource, fps float64, logger *zap.Logger, opts ...Option) *Runner {
	limit := rate.Inf
	if fps > 0 {
		limit = rate.Limit(fps)
	}
	r := &Runner{
		src:       src,
		processor: processor,
		snapshots: snapshots,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
		stats: Stats{
			LastCounts: map[string]int{},
			Totals:     map[string]int64{},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes frames until ctx is cancelled, the source is exhausted or
// the source fails repeatedly
func (r *Runner) Run(ctx context.Context) error {
	r.setRunning(true)
	defer func() {
		r.setRunning(false)
		r.endSession()
	}()

	r.logger.Info("Frame loop started",
		zap.Float64("fps_limit", float64(r.limiter.Limit())),
		zap.Int64("session_id", r.sessionID))

	start := time.Now()
	var frames uint64
	sourceErrors := 0

	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return r.stopped(ctx, frames)
		}

		img, err := r.src.Next(ctx)
		if errors.Is(err, source.ErrExhausted) {
			r.logger.Info("Source exhausted", zap.Uint64("frames", frames))
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return r.stopped(ctx, frames)
			}
			sourceErrors++
			r.logger.Warn("Failed to read frame", zap.Error(err), zap.Int("consecutive_errors", sourceErrors))
			if sourceErrors >= maxSourceErrors {
				return fmt.Errorf("source failed %d times in a row: %w", sourceErrors, err)
			}
			continue
		}
		sourceErrors = 0

		snap := r.snapshots.Current()
		processStart := time.Now()
		out, counts := r.processor.Process(snap, img)
		elapsed := time.Since(processStart)
		frames++

		if r.preview != nil {
			r.preview.Set(out, frames)
		}
		stats := r.record(frames, elapsed, counts, start)

		if frames%statsEvery == 0 && r.broadcaster != nil {
			r.broadcaster.BroadcastFrameStats(websocket.FrameStatsEvent{
				FPS:          stats.FPS,
				ProcessingMS: stats.ProcessingMS,
				TotalObjects: stats.TotalObjects,
				FrameNumber:  stats.FrameNumber,
				Counts:       stats.LastCounts,
			})
		}

		if r.maxFrames > 0 && frames >= r.maxFrames {
			r.logger.Info("Frame limit reached", zap.Uint64("frames", frames))
			return nil
		}
	}
}

func (r *Runner) stopped(ctx context.Context, frames uint64) error {
	r.logger.Info("Frame loop stopped", zap.Uint64("frames", frames), zap.Error(ctx.Err()))
	return nil
}

// record updates the metrics and returns a copy
func (r *Runner) record(frames uint64, elapsed time.Duration, counts pipeline.Counts, start time.Time) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms := float64(elapsed.Microseconds()) / 1000
	if frames == 1 {
		r.stats.ProcessingMS = ms
	} else {
		r.stats.ProcessingMS = ewmaAlpha*ms + (1-ewmaAlpha)*r.stats.ProcessingMS
	}
	if frames%statsEvery == 0 {
		if secs := time.Since(start).Seconds(); secs > 0 {
			r.stats.FPS = math.Round(float64(frames)/secs*10) / 10
		}
	}

	r.stats.FrameNumber = frames
	r.stats.TotalObjects = counts.Total()
	r.stats.LastCounts = make(map[string]int, len(counts))
	for k, v := range counts {
		r.stats.LastCounts[k] = v
		r.stats.Totals[k] += int64(v)
	}
	return r.copyStats()
}

// Stats returns the current metrics
func (r *Runner) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyStats()
}

func (r *Runner) copyStats() Stats {
	s := r.stats
	s.LastCounts = make(map[string]int, len(r.stats.LastCounts))
	for k, v := range r.stats.LastCounts {
		s.LastCounts[k] = v
	}
	s.Totals = make(map[string]int64, len(r.stats.Totals))
	for k, v := range r.stats.Totals {
		s.Totals[k] = v
	}
	return s
}

func (r *Runner) setRunning(running bool) {
	r.mu.Lock()
	r.stats.Running = running
	r.mu.Unlock()
}

// SessionID returns the persisted session, zero when none
func (r *Runner) SessionID() int64 {
	return r.sessionID
}

func (r *Runner) endSession() {
	if r.ender == nil || r.sessionID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := r.ender.EndSession(ctx, r.sessionID)
	if err != nil {
		r.logger.Warn("Failed to end session", zap.Int64("session_id", r.sessionID), zap.Error(err))
		return
	}
	r.logger.Info("Session closed", zap.Int64("session_id", r.sessionID), zap.Duration("duration", d))
}
