// Package work provides the bounded worker pool used for long-running
// background tasks such as off-cycle recommendation runs. The pool is
// deliberately separate from request-handling goroutines so interactive
// traffic is never starved by batch work.
package work

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/stockmonitor/monthend/pkg/logger"
)

// Task is one unit of background work.
type Task func(ctx context.Context)

const (
	defaultCoreWorkers = 5
	defaultMaxWorkers  = 10
	defaultQueueSize   = 100
)

// Pool runs tasks on a fixed set of core workers backed by a bounded
// queue. Under burst it grows up to a maximum worker count; when the
// queue is full and no extra worker slot is free, Submit runs the task
// synchronously on the caller's goroutine. Work is admitted, never
// dropped or rejected.
type Pool struct {
	queue chan Task
	log   *logger.Logger

	coreWorkers int
	maxWorkers  int

	// extra counts burst workers beyond the core set.
	extra atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	callerRuns atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithSizes overrides the core/max worker counts and queue capacity.
func WithSizes(core, max, queue int) Option {
	return func(p *Pool) {
		if core > 0 {
			p.coreWorkers = core
		}
		if max >= p.coreWorkers {
			p.maxWorkers = max
		}
		if queue > 0 {
			p.queue = make(chan Task, queue)
		}
	}
}

// NewPool creates and starts a pool with the default sizing
// (5 core workers, 10 max, queue of 100).
func NewPool(log *logger.Logger, opts ...Option) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:       make(chan Task, defaultQueueSize),
		log:         log,
		coreWorkers: defaultCoreWorkers,
		maxWorkers:  defaultMaxWorkers,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < p.coreWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues a task. When the queue is full it first tries to start
// a burst worker; if the pool is already at its maximum, the task runs
// synchronously on the calling goroutine (caller-runs backpressure).
func (p *Pool) Submit(task Task) {
	select {
	case <-p.ctx.Done():
		return
	default:
	}

	select {
	case p.queue <- task:
		return
	default:
	}

	if p.tryStartBurstWorker() {
		select {
		case p.queue <- task:
			return
		default:
		}
	}

	p.callerRuns.Add(1)
	p.log.Debug("worker queue full, running task on caller")
	task(p.ctx)
}

func (p *Pool) tryStartBurstWorker() bool {
	for {
		n := p.extra.Load()
		if int(n) >= p.maxWorkers-p.coreWorkers {
			return false
		}
		if p.extra.CompareAndSwap(n, n+1) {
			p.wg.Add(1)
			go p.burstWorker()
			return true
		}
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.queue:
			p.run(task)
		}
	}
}

// burstWorker drains the queue and exits when it goes idle.
func (p *Pool) burstWorker() {
	defer p.wg.Done()
	defer p.extra.Add(-1)
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.queue:
			p.run(task)
		default:
			return
		}
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Error("worker task panicked")
		}
	}()
	task(p.ctx)
}

// CallerRunCount reports how many tasks ran on the submitting goroutine.
func (p *Pool) CallerRunCount() int64 {
	return p.callerRuns.Load()
}

// Shutdown stops accepting work, cancels the pool context, and waits for
// in-flight tasks to finish.
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
}
