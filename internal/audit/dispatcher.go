package audit

import (
	"context"
	"math/bits"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls dispatcher buffering. With DropIfFull unset, Emit blocks
// until the event is queued or ctx ends.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Logger receives drop and shutdown notices. Nil means no logging.
	Logger *zap.Logger
}

// Dispatcher relays events to a Sink from a single worker goroutine so a
// slow sink never sits on the token path.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	logger     *zap.Logger

	// mu guards queue against send-after-close: Emit holds it shared,
	// Close exclusively.
	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	stopped chan struct{}
	dropped atomic.Uint64
}

// NewDispatcher starts the worker. It returns nil when auditing is
// disabled; every method accepts a nil receiver.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		logger:     cfg.Logger.Named("audit"),
		queue:      make(chan Event, cfg.BufferSize),
		stopped:    make(chan struct{}),
	}
	go d.worker()
	return d
}

// worker exits once Close has closed the queue and it is drained.
func (d *Dispatcher) worker() {
	defer close(d.stopped)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit queues event. Events emitted after Close are discarded silently.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.noteDrop(event)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.noteDrop(event)
	}
}

// noteDrop counts a lost event and logs on the 1st, 2nd, 4th, 8th... drop.
func (d *Dispatcher) noteDrop(event Event) {
	n := d.dropped.Add(1)
	if bits.OnesCount64(n) == 1 {
		d.logger.Warn("audit event dropped",
			zap.String("event_type", event.EventType),
			zap.Uint64("dropped_total", n))
	}
}

// Close stops accepting events and waits for queued ones to reach the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.stopped
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.stopped
	if n := d.dropped.Load(); n > 0 {
		d.logger.Info("audit dispatcher closed", zap.Uint64("dropped_total", n))
	}
}

// Dropped reports how many events never reached the queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
