// Package worker runs background tasks on a fixed set of goroutines with a
// bounded backlog. Callers reserve capacity before committing to work so a
// saturated pool can be reported synchronously.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"stager/internal/infra"
)

var (
	ErrSaturated = errors.New("worker: pool saturated")
	ErrStopped   = errors.New("worker: pool stopped")
)

// Task is a unit of background work. ctx is cancelled only when the pool is
// force-stopped.
type Task func(ctx context.Context)

// Options configures a Pool.
type Options struct {
	Concurrency int
	QueueSize   int
	Logger      *infra.Logger
}

// Pool executes tasks on Concurrency goroutines. At most
// Concurrency+QueueSize tasks may be reserved or running at once.
type Pool struct {
	slots    *semaphore.Weighted
	capacity int64
	tasks    chan Task
	logger   *infra.Logger

	mu      sync.RWMutex
	stopped bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	reserved atomic.Int64
	active   atomic.Int64
	panics   atomic.Int64
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Capacity int64 `json:"capacity"`
	Reserved int64 `json:"reserved"`
	Active   int64 `json:"active"`
	Panics   int64 `json:"panics"`
}

// NewPool starts the worker goroutines.
func NewPool(opts Options) *Pool {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	queue := opts.QueueSize
	if queue < 0 {
		queue = 0
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	capacity := int64(concurrency + queue)
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		slots:    semaphore.NewWeighted(capacity),
		capacity: capacity,
		tasks:    make(chan Task, capacity),
		logger:   logger,
		baseCtx:  ctx,
		cancel:   cancel,
	}
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go p.loop()
	}
	return p
}

// Ticket is a reserved slot. Exactly one of Submit or Cancel must be called.
type Ticket struct {
	pool *Pool
	once sync.Once
}

// Reserve claims a slot without blocking.
func (p *Pool) Reserve() (*Ticket, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return nil, ErrStopped
	}
	if !p.slots.TryAcquire(1) {
		return nil, ErrSaturated
	}
	p.reserved.Add(1)
	return &Ticket{pool: p}, nil
}

// Submit hands task to the pool using the reserved slot.
func (t *Ticket) Submit(task Task) error {
	err := ErrStopped
	t.once.Do(func() {
		p := t.pool
		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.stopped {
			p.release()
			return
		}
		// capacity-sized buffer; a reservation guarantees room
		p.tasks <- task
		err = nil
	})
	return err
}

// Cancel returns the reserved slot unused.
func (t *Ticket) Cancel() {
	t.once.Do(t.pool.release)
}

// Go reserves and submits in one step.
func (p *Pool) Go(task Task) error {
	ticket, err := p.Reserve()
	if err != nil {
		return err
	}
	return ticket.Submit(task)
}

func (p *Pool) release() {
	p.reserved.Add(-1)
	p.slots.Release(1)
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	p.active.Add(1)
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("worker: task panicked")
		}
		p.active.Add(-1)
		p.release()
	}()
	task(p.baseCtx)
}

// Stats reports current occupancy.
func (p *Pool) Stats() Stats {
	return Stats{
		Capacity: p.capacity,
		Reserved: p.reserved.Load(),
		Active:   p.active.Load(),
		Panics:   p.panics.Load(),
	}
}

// Stop refuses new work and waits for queued and running tasks. If ctx ends
// first, running tasks see their context cancelled and Stop returns ctx.Err().
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
