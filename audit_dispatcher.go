package gatekeep

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// sinkTimeout bounds a single sink call so a stuck writer cannot stall
// shutdown forever.
const sinkTimeout = 5 * time.Second

// auditDispatcher decouples request paths from the sink. Events are queued
// on a buffered channel and drained by one goroutine.
//
// Every Emit either enqueues an event that is delivered before Close
// returns or counts one drop. mu is held shared for the whole of an Emit so
// Close can wait out senders before the loop drains.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEvent
	closing    chan struct{}
	stop       chan struct{}
	dropIfFull bool

	mu       sync.RWMutex
	wg       sync.WaitGroup
	dropped  atomic.Uint64
	stopping atomic.Bool
	stopOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEvent, size),
		closing:    make(chan struct{}),
		stop:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
	}

	d.wg.Add(1)
	go d.loop()

	return d
}

func (d *auditDispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain flushes whatever is still buffered after Close.
func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *auditDispatcher) deliver(event AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	d.sink.Emit(ctx, event)
}

// Emit enqueues event. With dropIfFull a full queue counts a drop instead
// of blocking; otherwise Emit waits for space, ctx cancellation or Close.
// Events emitted after Close count as drops.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopping.Load() {
		d.dropped.Add(1)
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.closing:
		d.dropped.Add(1)
	}
}

// Close stops accepting events and waits until the queue is flushed.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopping.Store(true)
		close(d.closing)

		// Wait for in-flight Emits; anything they queued is drained below.
		d.mu.Lock()
		close(d.stop)
		d.mu.Unlock()

		d.wg.Wait()
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
