package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"grc-core/internal/observability/metrics"
	"grc-core/internal/observability/middleware"
	"grc-core/internal/tenant"
)

type Config struct {
	BufferSize   int
	WriteTimeout time.Duration
}

type queued struct {
	ctx context.Context
	ev  Event
}

// Dispatcher forwards events to a sink from a single goroutine. Emit never
// blocks: events are dropped and counted when the buffer is full.
type Dispatcher struct {
	cfg  Config
	sink Sink
	log  *slog.Logger
	now  func() time.Time

	ch      chan queued
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	// mu orders enqueues against Close so nothing lands after the drain.
	mu     sync.RWMutex
	closed bool
}

var (
	ErrClosed     = errors.New("audit dispatcher closed")
	ErrBufferFull = errors.New("audit buffer full")
)

func NewDispatcher(cfg Config, sink Sink, log *slog.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		log:  log,
		now:  time.Now,
		ch:   make(chan queued, cfg.BufferSize),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case q := <-d.ch:
			d.write(q)
		case <-d.done:
			for {
				select {
				case q := <-d.ch:
					d.write(q)
				default:
					return
				}
			}
		}
	}
}

// Emit snapshots the tenant, ids and time, then enqueues ev. Rejected events
// are counted.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	_ = d.Enqueue(ctx, ev)
}

// Enqueue is Emit with the reason for a rejection.
func (d *Dispatcher) Enqueue(ctx context.Context, ev Event) error {
	if d == nil {
		return ErrClosed
	}
	if ev.At.IsZero() {
		ev.At = d.now().UTC()
	}
	if ev.TenantID == "" {
		ev.TenantID, _ = tenant.FromContext(ctx)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.AuditEventsTotal.WithLabelValues("rejected").Inc()
		return ErrClosed
	}
	select {
	case d.ch <- queued{ctx: tenant.Detach(ctx), ev: ev}:
		return nil
	default:
		d.dropped.Add(1)
		metrics.AuditEventsTotal.WithLabelValues("dropped").Inc()
		return ErrBufferFull
	}
}

func (d *Dispatcher) write(q queued) {
	ctx, cancel := context.WithTimeout(q.ctx, d.cfg.WriteTimeout)
	defer cancel()

	if err := d.sink.Write(ctx, q.ev); err != nil {
		metrics.AuditEventsTotal.WithLabelValues("error").Inc()
		d.log.Error("audit write failed",
			"request_id", middleware.RequestIDFromContext(q.ctx),
			"tenant_id", q.ev.TenantID,
			"user_id", q.ev.UserID,
			"action", q.ev.Action,
			"error", err,
		)
		return
	}
	metrics.AuditEventsTotal.WithLabelValues("written").Inc()
}

// Close stops accepting events and drains the buffer. It is safe to call
// more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Recorder keeps events in memory and writes them synchronously.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Write(ctx context.Context, ev Event) error {
	r.Emit(ctx, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events with action were recorded.
func (r *Recorder) Count(action Action) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Action == action {
			n++
		}
	}
	return n
}
