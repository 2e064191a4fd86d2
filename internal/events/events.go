// Package events carries detection events from the frame pipeline to the
// persistence, counter and broadcast consumers without ever blocking the
// pipeline.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultBuffer is the dispatcher queue length
const DefaultBuffer = 256

// Detection reports how many regions of one category were found in a frame
// and which blur method was applied to them
type Detection struct {
	SessionID  int64     `json:"session_id,omitempty"`
	Category   string    `json:"category"`
	Method     string    `json:"method"`
	Count      int       `json:"count"`
	Confidence float64   `json:"confidence"`
	Frame      uint64    `json:"frame,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sink accepts detection events. Emit must not block.
type Sink interface {
	Emit(e Detection)
}

// Consumer handles events on the dispatcher goroutine
type Consumer interface {
	Name() string
	Consume(ctx context.Context, e Detection) error
}

type funcConsumer struct {
	name string
	fn   func(ctx context.Context, e Detection) error
}

// ConsumerFunc adapts a function to a named Consumer
func ConsumerFunc(name string, fn func(ctx context.Context, e Detection) error) Consumer {
	return funcConsumer{name: name, fn: fn}
}

func (f funcConsumer) Name() string { return f.name }

func (f funcConsumer) Consume(ctx context.Context, e Detection) error { return f.fn(ctx, e) }

// Dispatcher queues events and fans them out to consumers on one goroutine
type Dispatcher struct {
	ch        chan Detection
	consumers []Consumer
	logger    *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher starts a dispatcher with the given queue length
func NewDispatcher(buffer int, logger *zap.Logger, consumers ...Consumer) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	d := &Dispatcher{
		ch:        make(chan Detection, buffer),
		consumers: consumers,
		logger:    logger,
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit queues e, dropping it when the queue is full or the dispatcher is closed
func (d *Dispatcher) Emit(e Detection) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case d.ch <- e:
	default:
		d.dropped.Add(1)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	ctx := context.Background()
	for e := range d.ch {
		for _, c := range d.consumers {
			d.deliver(ctx, c, e)
		}
		d.delivered.Add(1)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, c Consumer, e Detection) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("Event consumer panicked",
				zap.String("consumer", c.Name()),
				zap.Any("panic", r))
		}
	}()
	if err := c.Consume(ctx, e); err != nil {
		d.logger.Warn("Event consumer failed",
			zap.String("consumer", c.Name()),
			zap.String("category", e.Category),
			zap.Error(err))
	}
}

// Stats returns the delivered and dropped event counts
func (d *Dispatcher) Stats() (delivered, dropped uint64) {
	return d.delivered.Load(), d.dropped.Load()
}

// Close stops accepting events, drains the queue and waits for the worker
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	<-d.done

	delivered, dropped := d.Stats()
	d.logger.Info("Event dispatcher stopped",
		zap.Uint64("delivered", delivered),
		zap.Uint64("dropped", dropped))
}

type sessionSink struct {
	sink      Sink
	sessionID int64
}

// WithSession stamps every event passed to sink with a session id
func WithSession(sink Sink, sessionID int64) Sink {
	if sink == nil {
		return nil
	}
	return sessionSink{sink: sink, sessionID: sessionID}
}

func (s sessionSink) Emit(e Detection) {
	e.SessionID = s.sessionID
	s.sink.Emit(e)
}
