// Package scheduler runs host assessments on a bounded worker pool and
// observes the pool with a periodic monitor.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/vulntor/assessor/pkg/logging"
)

var (
	// ErrShutdown is returned by Submit after Shutdown.
	ErrShutdown = errors.New("pool is shut down")
	// ErrQueueFull is returned when the queue is full and every worker
	// slot is taken.
	ErrQueueFull = errors.New("pool queue is full")
)

// Task is one unit of work. The context is canceled by ShutdownNow.
type Task func(ctx context.Context)

// Options sizes a Pool.
type Options struct {
	CoreWorkers   int
	MaxWorkers    int
	QueueCapacity int
	// KeepAlive is how long a worker above the core size waits for work
	// before it exits.
	KeepAlive time.Duration
}

// DefaultOptions mirrors the scheduler defaults of the configuration.
func DefaultOptions() Options {
	return Options{CoreWorkers: 2, MaxWorkers: 4, QueueCapacity: 64, KeepAlive: 60 * time.Second}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.CoreWorkers <= 0 {
		o.CoreWorkers = 1
	}
	if o.MaxWorkers < o.CoreWorkers {
		o.MaxWorkers = o.CoreWorkers
	}
	if o.QueueCapacity < 0 {
		o.QueueCapacity = 0
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = def.KeepAlive
	}
	return o
}

// PoolStats is a point in time view of the pool counters.
type PoolStats struct {
	PoolSize          int   `json:"pool_size"`
	CoreSize          int   `json:"core_size"`
	MaxSize           int   `json:"max_size"`
	Active            int   `json:"active"`
	Completed         int64 `json:"completed"`
	Total             int64 `json:"total"`
	Queued            int   `json:"queued"`
	RemainingCapacity int   `json:"remaining_capacity"`
	WorkersStarted    int64 `json:"workers_started"`
	Shutdown          bool  `json:"shutdown"`
	Terminated        bool  `json:"terminated"`
}

// Pool is a worker pool with a core and a maximum size and a bounded
// queue. New work starts a worker while fewer than CoreWorkers run, is
// queued next, and starts an extra worker up to MaxWorkers only when the
// queue is full.
type Pool struct {
	opts   Options
	queue  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	mu       sync.Mutex
	shutdown atomic.Bool

	workers   atomic.Int32
	active    atomic.Int32
	completed atomic.Int64
	total     atomic.Int64
	started   atomic.Int64

	done     chan struct{}
	doneOnce sync.Once
}

// NewPool returns a started pool. Workers are spawned on demand.
func NewPool(opts Options) *Pool {
	opts = opts.normalized()
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		opts:   opts,
		queue:  make(chan Task, opts.QueueCapacity),
		ctx:    ctx,
		cancel: cancel,
		logger: logging.Component("scheduler"),
		done:   make(chan struct{}),
	}
}

// WithLogger replaces the pool logger.
func (p *Pool) WithLogger(logger zerolog.Logger) *Pool {
	p.logger = logger
	return p
}

// Submit schedules task. It never blocks.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("nil task")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown.Load() {
		return ErrShutdown
	}
	if int(p.workers.Load()) < p.opts.CoreWorkers {
		p.spawn(task)
		p.total.Add(1)
		return nil
	}
	select {
	case p.queue <- task:
		p.total.Add(1)
		return nil
	default:
	}
	if int(p.workers.Load()) < p.opts.MaxWorkers {
		p.spawn(task)
		p.total.Add(1)
		return nil
	}
	return ErrQueueFull
}

// spawn starts a worker; p.mu must be held.
func (p *Pool) spawn(first Task) {
	id := p.started.Add(1)
	p.workers.Add(1)
	go p.worker(id, first)
}

func (p *Pool) worker(id int64, task Task) {
	retired := false
	defer func() {
		if !retired {
			p.exit()
		}
	}()

	p.logger.Debug().Int64("worker_id", id).Msg("Worker started")
	idle := time.NewTimer(p.opts.KeepAlive)
	defer idle.Stop()

	for {
		if task != nil {
			p.run(task)
			task = nil
		}
		idle.Reset(p.opts.KeepAlive)
		select {
		case t, ok := <-p.queue:
			if !ok {
				p.logger.Debug().Int64("worker_id", id).Msg("Worker stopping")
				return
			}
			task = t
		case <-idle.C:
			if retired = p.retire(); retired {
				p.logger.Debug().Int64("worker_id", id).Msg("Idle worker retired")
				return
			}
		}
	}
}

// retire removes an idle worker from the count when the pool runs above
// its core size.
func (p *Pool) retire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown.Load() || int(p.workers.Load()) <= p.opts.CoreWorkers {
		return false
	}
	p.workers.Add(-1)
	return true
}

func (p *Pool) exit() {
	p.mu.Lock()
	left := p.workers.Add(-1)
	terminated := p.shutdown.Load() && left == 0
	p.mu.Unlock()
	if terminated {
		p.terminate()
	}
}

func (p *Pool) terminate() {
	p.doneOnce.Do(func() {
		close(p.done)
		p.logger.Info().
			Int64("completed", p.completed.Load()).
			Msg("Pool terminated")
	})
}

func (p *Pool) run(task Task) {
	p.active.Add(1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("Task panicked")
		}
		p.active.Add(-1)
		p.completed.Add(1)
	}()
	task(p.ctx)
}

// Shutdown stops accepting work. Queued tasks still run.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown.Load() {
		p.mu.Unlock()
		return
	}
	p.shutdown.Store(true)
	close(p.queue)
	idle := p.workers.Load() == 0
	p.mu.Unlock()

	p.logger.Debug().Msg("Pool shutting down")
	if idle {
		p.terminate()
	}
}

// ShutdownNow shuts down and cancels the context handed to running and
// queued tasks.
func (p *Pool) ShutdownNow() {
	p.cancel()
	p.Shutdown()
}

// AwaitTermination blocks until every worker exited after Shutdown, or
// ctx is done.
func (p *Pool) AwaitTermination(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminated reports whether the pool is shut down with no workers left.
func (p *Pool) Terminated() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Stats reads the counters without taking the pool lock.
func (p *Pool) Stats() PoolStats {
	queued := len(p.queue)
	terminated := p.Terminated()
	return PoolStats{
		PoolSize:          int(p.workers.Load()),
		CoreSize:          p.opts.CoreWorkers,
		MaxSize:           p.opts.MaxWorkers,
		Active:            int(p.active.Load()),
		Completed:         p.completed.Load(),
		Total:             p.total.Load(),
		Queued:            queued,
		RemainingCapacity: p.opts.QueueCapacity - queued,
		WorkersStarted:    p.started.Load(),
		Shutdown:          p.shutdown.Load(),
		Terminated:        terminated,
	}
}
