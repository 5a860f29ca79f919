package events

import (
	"context"
	"errors"

	"github.com/solve3fi/contracts/internal/platform/observability"
	"github.com/solve3fi/contracts/internal/platform/resilience"
	"github.com/solve3fi/contracts/internal/platform/worker"
)

// Dispatcher hands events to another publisher from a worker pool so that a
// slow topic never holds up the engine. Deliveries are rate limited.
type Dispatcher struct {
	next    Publisher
	pool    *worker.Pool[struct{}]
	limiter *resilience.RateLimiter
	logger  *observability.Logger
	metrics *observability.Metrics
}

// DispatcherConfig holds dispatcher configuration
type DispatcherConfig struct {
	Publisher Publisher
	Workers   int
	QueueSize int

	// RatePerSecond of zero disables rate limiting.
	RatePerSecond float64
	Burst         int

	// DropWhenFull rejects events instead of blocking when the queue is full.
	DropWhenFull bool

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewDispatcher starts the dispatcher's workers. They stop when ctx is
// cancelled or Close is called.
func NewDispatcher(ctx context.Context, cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNoopMetrics()
	}

	policy := worker.DropPolicyBlock
	if cfg.DropWhenFull {
		policy = worker.DropPolicyNewest
	}

	d := &Dispatcher{
		next: cfg.Publisher,
		pool: worker.NewPoolWithConfig[struct{}](ctx, worker.PoolConfig{
			Workers:    cfg.Workers,
			QueueSize:  cfg.QueueSize,
			DropPolicy: policy,
		}),
		logger:  cfg.Logger.Component("dispatcher"),
		metrics: cfg.Metrics,
	}
	if cfg.RatePerSecond > 0 {
		d.limiter = resilience.NewRateLimiter(cfg.RatePerSecond, cfg.Burst)
	}
	return d, nil
}

// Publish queues ev. It only fails when the queue rejects the event. The
// wrapped publisher records delivery outcomes; the dispatcher records
// whether each event made it into the queue.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) error {
	err := d.pool.Submit(worker.Job[struct{}]{
		ID: ev.ID,
		Execute: func(ctx context.Context) (struct{}, error) {
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx); err != nil {
					return struct{}{}, err
				}
			}
			if err := d.next.Publish(ctx, ev); err != nil {
				d.logger.LogWarn(ctx, "event delivery failed",
					"event_id", ev.ID,
					"type", string(ev.Type),
					"error", err,
				)
				return struct{}{}, err
			}
			return struct{}{}, nil
		},
	})
	d.metrics.RecordDispatch(ctx, string(ev.Type), err)
	return err
}

// Stats returns the worker pool counters.
func (d *Dispatcher) Stats() worker.Stats {
	return d.pool.Stats()
}

// Close waits for queued events to be delivered.
func (d *Dispatcher) Close() {
	d.pool.Close()
}
