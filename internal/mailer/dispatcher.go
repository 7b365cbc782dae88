package mailer

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
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

type job struct {
	ctx context.Context
	n   Notification
}

// Dispatcher queues notifications and sends them from a fixed worker pool.
// Tenant and correlation ids are snapshotted at Submit.
type Dispatcher struct {
	cfg       Config
	transport Transport
	log       *slog.Logger

	ch      chan job
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	// mu orders enqueues against Close so nothing lands after the drain.
	mu     sync.RWMutex
	closed bool
}

var (
	ErrClosed    = errors.New("mail dispatcher closed")
	ErrQueueFull = errors.New("mail queue full")
)

func NewDispatcher(cfg Config, transport Transport, log *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{
		cfg:       cfg,
		transport: transport,
		log:       log,
		ch:        make(chan job, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Submit enqueues n and returns false if it was not accepted.
func (d *Dispatcher) Submit(ctx context.Context, n Notification) bool {
	return d.Enqueue(ctx, n) == nil
}

// Enqueue is Submit with the reason for a rejection.
func (d *Dispatcher) Enqueue(ctx context.Context, n Notification) error {
	if d == nil {
		return ErrClosed
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.MailDispatchTotal.WithLabelValues(string(n.Kind), "rejected").Inc()
		return ErrClosed
	}
	select {
	case d.ch <- job{ctx: tenant.Detach(ctx), n: n}:
		return nil
	default:
		d.dropped.Add(1)
		metrics.MailDispatchTotal.WithLabelValues(string(n.Kind), "dropped").Inc()
		d.log.Error("mail queue full, notification dropped",
			"request_id", middleware.RequestIDFromContext(ctx),
			"kind", n.Kind,
		)
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case j := <-d.ch:
			d.send(j)
		case <-d.done:
			for {
				select {
				case j := <-d.ch:
					d.send(j)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) send(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.cfg.SendTimeout)
	defer cancel()

	tenantID, _ := tenant.FromContext(ctx)
	err := d.transport.Send(ctx, j.n)
	if err != nil {
		metrics.MailDispatchTotal.WithLabelValues(string(j.n.Kind), "error").Inc()
		d.log.Error("notification delivery failed",
			"request_id", middleware.RequestIDFromContext(ctx),
			"trace_id", middleware.TraceIDFromContext(ctx),
			"tenant_id", tenantID,
			"transport", d.transport.Name(),
			"kind", j.n.Kind,
			"error", err,
		)
		return
	}
	metrics.MailDispatchTotal.WithLabelValues(string(j.n.Kind), "sent").Inc()
	d.log.Info("notification sent",
		"request_id", middleware.RequestIDFromContext(ctx),
		"tenant_id", tenantID,
		"transport", d.transport.Name(),
		"kind", j.n.Kind,
	)
}

// Close stops accepting work and drains the queue. It is safe to call more
// than once.
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
