package stream

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/websocket"
)

// StatusBroadcaster receives system_status samples
type StatusBroadcaster interface {
	BroadcastSystemStatus(status websocket.SystemStatusEvent)
	ClientCount() int
}

// Capabilities reports which optional backends are active
type Capabilities struct {
	ObjectDetector bool `json:"object_detector"`
	OCR            bool `json:"ocr"`
	NER            bool `json:"ner"`
	Database       bool `json:"database"`
	Redis          bool `json:"redis"`
}

// StatusReporter samples process and host metrics
type StatusReporter struct {
	runner       *Runner
	broadcaster  StatusBroadcaster
	capabilities Capabilities
	interval     time.Duration
	started      time.Time
	proc         *process.Process
	logger       *zap.Logger
}

// NewStatusReporter creates a reporter. broadcaster may be nil.
func NewStatusReporter(runner *Runner, broadcaster StatusBroadcaster, capabilities Capabilities, interval time.Duration, logger *zap.Logger) *StatusReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("Process metrics unavailable", zap.Error(err))
	}
	return &StatusReporter{
		runner:       runner,
		broadcaster:  broadcaster,
		capabilities: capabilities,
		interval:     interval,
		started:      time.Now(),
		proc:         proc,
		logger:       logger,
	}
}

// Capabilities returns the active backends
func (s *StatusReporter) Capabilities() Capabilities {
	return s.capabilities
}

// Sample collects one status snapshot
func (s *StatusReporter) Sample(ctx context.Context) websocket.SystemStatusEvent {
	stats := s.runner.Stats()
	status := "idle"
	if stats.Running {
		status = "running"
	}

	var total int64
	for _, v := range stats.Totals {
		total += v
	}

	ev := websocket.SystemStatusEvent{
		Status:          status,
		Uptime:          time.Since(s.started).Round(time.Second).String(),
		FramesProcessed: stats.FrameNumber,
		TotalDetections: total,
		ObjectDetector:  s.capabilities.ObjectDetector,
		OCR:             s.capabilities.OCR,
	}
	if s.broadcaster != nil {
		ev.ConnectedClients = s.broadcaster.ClientCount()
	}

	if s.proc != nil {
		if info, err := s.proc.MemoryInfoWithContext(ctx); err == nil {
			ev.MemoryUsage = formatBytes(info.RSS)
		}
		if cpu, err := s.proc.PercentWithContext(ctx, 0); err == nil {
			ev.CPUUsage = fmt.Sprintf("%.1f%%", cpu)
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		ev.MemoryPercent = vm.UsedPercent
	}
	return ev
}

// Run broadcasts a sample every interval until ctx is cancelled
func (s *StatusReporter) Run(ctx context.Context) error {
	if s.broadcaster == nil {
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.broadcaster.BroadcastSystemStatus(s.Sample(ctx))
		}
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
