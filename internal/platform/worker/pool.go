// Package worker provides a generic worker pool for concurrent task execution.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrBackpressure is returned when the queue is full and the pool does not block.
	ErrBackpressure = errors.New("worker pool queue is full")
	// ErrPoolClosed is returned by Submit after Close.
	ErrPoolClosed = errors.New("worker pool is closed")
)

// DropPolicy decides what Submit does when the queue is full.
type DropPolicy int

const (
	// DropPolicyBlock waits for queue space.
	DropPolicyBlock DropPolicy = iota
	// DropPolicyNewest rejects the job being submitted.
	DropPolicyNewest
)

// Job is a unit of work producing a T.
type Job[T any] struct {
	// ID is an optional identifier for logging
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// Result is the outcome of one job.
type Result[T any] struct {
	JobID string
	Value T
	Err   error
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Workers    int
	QueueSize  int
	DropPolicy DropPolicy
}

// Stats counts jobs over the pool's lifetime.
type Stats struct {
	JobsSubmitted int64
	JobsCompleted int64
	JobsFailed    int64
	JobsDropped   int64
}

// Pool runs jobs on a fixed set of goroutines fed from a bounded queue.
// Results are delivered on Results() when a reader keeps up; otherwise they
// are dropped.
type Pool[T any] struct {
	cfg     PoolConfig
	jobs    chan Job[T]
	results chan Result[T]
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewPool creates a blocking pool with the given workers and queue size.
//
//	pool := worker.NewPool[string](ctx, 4, 100)
//	defer pool.Close()
func NewPool[T any](ctx context.Context, workers, queueSize int) *Pool[T] {
	return NewPoolWithConfig[T](ctx, PoolConfig{Workers: workers, QueueSize: queueSize})
}

// NewPoolWithConfig creates a pool and starts its workers.
func NewPoolWithConfig[T any](ctx context.Context, cfg PoolConfig) *Pool[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	poolCtx, cancel := context.WithCancel(ctx)
	p := &Pool[T]{
		cfg:     cfg,
		jobs:    make(chan Job[T], cfg.QueueSize),
		results: make(chan Result[T], cfg.QueueSize),
		ctx:     poolCtx,
		cancel:  cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()

	for job := range p.jobs {
		res := Result[T]{JobID: job.ID}
		if err := p.ctx.Err(); err != nil {
			res.Err = err
		} else {
			res.Value, res.Err = job.Execute(p.ctx)
		}

		p.completed.Add(1)
		if res.Err != nil {
			p.failed.Add(1)
		}

		select {
		case p.results <- res:
		default:
		}
	}
}

// Submit queues job. With DropPolicyBlock it waits for queue space; with
// DropPolicyNewest a full queue returns ErrBackpressure.
func (p *Pool[T]) Submit(job Job[T]) error {
	if p.cfg.DropPolicy == DropPolicyNewest {
		return p.TrySubmit(job)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}

	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobs <- job:
		p.submitted.Add(1)
		return nil
	}
}

// TrySubmit queues job without blocking.
func (p *Pool[T]) TrySubmit(job Job[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}

	select {
	case p.jobs <- job:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return ErrBackpressure
	}
}

// SubmitAndWait submits jobs and collects their results in completion order.
// It must not be mixed with other readers of Results.
func (p *Pool[T]) SubmitAndWait(jobs []Job[T]) []Result[T] {
	submitted := 0
	for _, job := range jobs {
		if err := p.Submit(job); err != nil {
			break
		}
		submitted++
	}

	results := make([]Result[T], 0, submitted)
	for len(results) < submitted {
		select {
		case <-p.ctx.Done():
			return results
		case r := <-p.results:
			results = append(results, r)
		}
	}
	return results
}

// Results returns the channel of job results.
func (p *Pool[T]) Results() <-chan Result[T] {
	return p.results
}

// Close stops accepting jobs, runs everything already queued and waits for
// the workers. It is safe to call more than once.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	close(p.results)
}

// Workers returns the number of workers in the pool.
func (p *Pool[T]) Workers() int {
	return p.cfg.Workers
}

// DropPolicy returns the pool's full-queue behaviour.
func (p *Pool[T]) DropPolicy() DropPolicy {
	return p.cfg.DropPolicy
}

// QueueLen returns the current number of jobs waiting in the queue.
func (p *Pool[T]) QueueLen() int {
	return len(p.jobs)
}

// Stats returns lifetime job counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		JobsSubmitted: p.submitted.Load(),
		JobsCompleted: p.completed.Load(),
		JobsFailed:    p.failed.Load(),
		JobsDropped:   p.dropped.Load(),
	}
}
