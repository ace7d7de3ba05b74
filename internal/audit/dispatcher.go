package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/goSession/internal/logging"
)

// Config controls dispatcher buffering behavior.
//
// Event types listed in Critical are never dropped: when the queue is full,
// or the dispatcher is already closed, they are handed to the sink on the
// caller's goroutine instead. DropIfFull applies to every other event.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	Critical   []string
	Logger     logging.Logger
}

// Dispatcher asynchronously forwards audit events to a sink.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	critical   map[string]struct{}
	log        logging.Logger

	// mu is held shared by senders and exclusively by Close, so no event
	// is queued after the delivery goroutine has drained and exited.
	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	direct  atomic.Uint64
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is
// disabled; a nil *Dispatcher accepts and ignores every call.
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
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		critical:   make(map[string]struct{}, len(cfg.Critical)),
		log:        log,
		queue:      make(chan Event, cfg.BufferSize),
		done:       make(chan struct{}),
	}
	for _, t := range cfg.Critical {
		d.critical[t] = struct{}{}
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			for {
				select {
				case event := <-d.queue:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// IsCritical reports whether eventType bypasses the drop policy.
func (d *Dispatcher) IsCritical(eventType string) bool {
	if d == nil {
		return false
	}
	_, ok := d.critical[eventType]
	return ok
}

func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.IsCritical(event.EventType) {
		d.emitCritical(ctx, event)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, event, "dispatcher closed")
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.drop(ctx, event, "queue full")
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(ctx, event, "context done")
	}
}

// emitCritical queues the event when there is room and otherwise delivers it
// synchronously, detached from ctx cancellation so a cancelled request still
// records the revocation.
func (d *Dispatcher) emitCritical(ctx context.Context, event Event) {
	d.mu.RLock()
	queued := false
	if !d.closed {
		select {
		case d.queue <- event:
			queued = true
		default:
		}
	}
	d.mu.RUnlock()
	if queued {
		return
	}

	d.direct.Add(1)
	d.sink.Emit(context.WithoutCancel(ctx), event)
}

func (d *Dispatcher) drop(ctx context.Context, event Event, cause string) {
	n := d.dropped.Add(1)
	d.log.Warn(ctx, "audit event dropped",
		"event_type", event.EventType,
		"user_id", event.UserID,
		"family_id", event.FamilyID,
		"cause", cause,
		"dropped_total", n,
	)
}

// Close stops accepting queued events and waits until the queue is drained.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.done)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Dropped counts non-critical events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Direct counts critical events delivered on the caller's goroutine.
func (d *Dispatcher) Direct() uint64 {
	if d == nil {
		return 0
	}
	return d.direct.Load()
}
