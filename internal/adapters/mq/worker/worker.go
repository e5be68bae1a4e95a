// Package worker runs queued work messages through a handler with bounded
// retries and duplicate-delivery suppression.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/scout/internal/adapters/mq/queue"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2
	defaultMaxAttempts      = 3
	sweepInterval           = time.Minute
)

// Handler processes one message. Returning an error wrapped with Permanent
// stops retries; any other error is retried until attempts run out.
type Handler interface {
	Handle(ctx context.Context, m queue.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, m queue.Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, m queue.Message) error { return f(ctx, m) }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

// Queue is what workers consume from and re-enqueue retries to.
type Queue interface {
	queue.Publisher
	Dequeue(ctx context.Context) <-chan queue.Message
}

// InMemoryWorker processes messages from the queue.
type InMemoryWorker struct {
	queue       Queue
	handler     Handler
	tracker     *Tracker
	maxAttempts int
	deadLetter  DeadLetterFunc
	name        string
	processed   *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

func newWorker(q Queue, h Handler, name string, cfg config, processed *atomic.Int64) *InMemoryWorker {
	return &InMemoryWorker{
		queue:       q,
		handler:     h,
		tracker:     cfg.tracker,
		maxAttempts: cfg.maxAttempts,
		deadLetter:  cfg.deadLetter,
		name:        name,
		processed:   processed,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      cfg.logger.Named(name),
	}
}

// Run starts the worker loop. It returns when ctx is canceled, the worker
// is stopped or the queue is closed and drained.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	messages := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			if err := w.process(ctx, m); err != nil {
				w.logger.Error(ctx, "message failed",
					logger.String("kind", m.Kind),
					logger.String("key", m.Key()),
					logger.Int("attempt", m.Attempt),
					logger.Error(err),
				)
			}
		}
	}
}

// process handles one delivery. Only the final failure is returned; a
// failure that is re-enqueued returns nil.
func (w *InMemoryWorker) process(ctx context.Context, m queue.Message) error {
	key := m.Key()
	if w.tracker.SeenAndRecord(key) {
		metrics.RecordDuplicateDelivery(m.Kind)
		w.logger.Debug(ctx, "duplicate delivery dropped", logger.String("key", key))
		return nil
	}

	start := time.Now()
	err := w.handler.Handle(ctx, m)
	metrics.RecordWorkerProcessingLatency(m.Kind, time.Since(start))
	w.processed.Add(1)
	if err == nil {
		return nil
	}

	w.tracker.Unrecord(key)
	metrics.RecordWorkerError(m.Kind)
	metrics.RecordErrorByComponent("worker", m.Kind)
	if isPermanent(err) || m.Attempt >= w.maxAttempts {
		w.giveUp(ctx, m, err)
		return fmt.Errorf("%s after %d attempt(s): %w", key, m.Attempt, err)
	}

	if qerr := w.queue.Enqueue(ctx, m.Retry()); qerr != nil {
		w.giveUp(ctx, m, err)
		return fmt.Errorf("%s: retry not enqueued (%v): %w", key, qerr, err)
	}
	metrics.RecordWorkerRetry(m.Kind)
	w.logger.Warn(ctx, "message retried",
		logger.String("key", key),
		logger.Int("attempt", m.Attempt),
		logger.Error(err),
	)
	return nil
}

func (w *InMemoryWorker) giveUp(ctx context.Context, m queue.Message, err error) {
	if w.deadLetter == nil {
		return
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	w.deadLetter(ctx, m, err)
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	tracker   *Tracker
	processed atomic.Int64

	shutdown chan struct{}
	logger   logger.Logger
}

// NewPool creates a pool of workerCount workers; a count below one means
// two per CPU.
func NewPool(workerCount int, q Queue, h Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	cfg := config{
		name:        "worker",
		logger:      logger.Get(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tracker == nil {
		cfg.tracker = NewTracker(DefaultDeliveryTTL)
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		tracker:  cfg.tracker,
		shutdown: make(chan struct{}),
		logger:   cfg.logger.Named(cfg.name + "-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = newWorker(q, h, cfg.name+"-"+strconv.Itoa(i), cfg, &pool.processed)
	}
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
	go p.maintain(ctx)
}

// maintain sweeps expired delivery keys until the pool stops.
func (p *Pool) maintain(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.tracker.Sweep()
		}
	}
}

// Processed returns the number of handled deliveries, failures included.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Shutdown closes the queue and waits for workers to drain it. When ctx
// expires first the workers are stopped and the remaining messages dropped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	defer metrics.UpdateWorkerActiveCount(0)

	var timedOut bool
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			timedOut = true
		}
		if timedOut {
			break
		}
	}
	close(p.shutdown)
	for _, w := range p.workers {
		close(w.shutdown)
	}
	if timedOut {
		p.logger.Warn(ctx, "worker pool shutdown timed out")
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
	return nil
}
