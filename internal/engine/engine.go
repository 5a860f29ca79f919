// Package engine executes pool operations against a record store.
//
// Every operation loads the records it needs, computes the new state in
// memory and writes all changed records in one versioned commit. A failed
// operation writes nothing. Operations on one pool are serialized in
// process; a commit that loses a race with another process is retried.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/platform/observability"
	"github.com/solve3fi/contracts/internal/platform/resilience"
	"github.com/solve3fi/contracts/internal/store"
)

// Clock returns the current unix time in seconds.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current unix time.
func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// EventPublisher receives events after their operation has committed.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Engine runs pool operations.
type Engine struct {
	store     store.Store
	clock     Clock
	publisher EventPublisher
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    observability.Tracer
	retry     resilience.RetryConfig

	locks sync.Map // solana.PublicKey -> *sync.Mutex
	seq   atomic.Uint64
}

// Config holds engine dependencies. Only Store is required.
type Config struct {
	Store     store.Store
	Clock     Clock
	Publisher EventPublisher
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracer    observability.Tracer

	// ConflictRetry bounds how often an operation is re-run after losing a
	// commit race.
	ConflictRetry *resilience.RetryConfig
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNoopMetrics()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NewNoOpPublisher(cfg.Logger, cfg.Metrics)
	}
	retry := resilience.ConflictRetryConfig()
	if cfg.ConflictRetry != nil {
		retry = *cfg.ConflictRetry
	}

	return &Engine{
		store:     cfg.Store,
		clock:     cfg.Clock,
		publisher: cfg.Publisher,
		logger:    cfg.Logger.Component("engine"),
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		retry:     retry,
	}, nil
}

// lock takes the in-process locks of keys in key order and returns the
// function that releases them.
func (e *Engine) lock(keys ...solana.PublicKey) func() {
	sorted := append([]solana.PublicKey(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })

	held := make([]*sync.Mutex, 0, len(sorted))
	for i, k := range sorted {
		if i > 0 && k == sorted[i-1] {
			continue
		}
		m, _ := e.locks.LoadOrStore(k, &sync.Mutex{})
		mu := m.(*sync.Mutex)
		mu.Lock()
		held = append(held, mu)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// mutate runs fn inside a transaction and commits what it staged. fn is
// re-run from scratch when the commit conflicts, so it must only capture
// its results in variables it overwrites.
func (e *Engine) mutate(ctx context.Context, op string, lockKeys []solana.PublicKey, fn func(tx *txn) error) error {
	start := time.Now()
	ctx, span := e.tracer.StartSpan(ctx, "Engine."+op, attribute.String("operation", op))
	defer span.End()

	unlock := e.lock(lockKeys...)
	defer unlock()

	var committed *txn
	err := resilience.RetryIf(ctx, e.retry, resilience.IsRetryable, func(ctx context.Context) error {
		tx := newTxn(ctx, e.store, e.clock.Now())
		if err := fn(tx); err != nil {
			return err
		}
		err := tx.commit()
		e.metrics.RecordCommit(ctx, errors.Is(err, store.ErrConflict))
		if err != nil {
			return err
		}
		committed = tx
		return nil
	})

	e.metrics.RecordOperation(ctx, op, errs.KindOf(err), start)
	span.NoticeError(err)
	if err != nil {
		e.logFailure(ctx, op, err)
		return err
	}

	e.logger.LogDebug(ctx, "operation committed",
		"operation", op,
		"records", len(committed.order),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	e.publish(ctx, committed)
	return nil
}

// view runs fn against a transaction that is never committed.
func (e *Engine) view(ctx context.Context, fn func(tx *txn) error) error {
	return fn(newTxn(ctx, e.store, e.clock.Now()))
}

func (e *Engine) logFailure(ctx context.Context, op string, err error) {
	var reason string
	switch {
	case errors.Is(err, errs.ErrFeeGrowthOverflow):
		reason = "fee_growth_overflow"
	case errors.Is(err, errs.ErrRewardGrowthOverflow):
		reason = "reward_growth_overflow"
	}
	if reason != "" {
		e.metrics.RecordInvariantViolation(ctx, op, reason)
		e.logger.LogError(ctx, "invariant violated", err, "operation", op)
		return
	}
	kind := errs.KindOf(err)
	if kind == "internal" {
		e.logger.LogError(ctx, "operation failed", err, "operation", op)
		return
	}
	e.logger.LogWarn(ctx, "operation rejected",
		"operation", op,
		"kind", kind,
		"error", err.Error(),
	)
}

func (e *Engine) publish(ctx context.Context, tx *txn) {
	for _, p := range tx.events {
		ev, err := events.New(p.typ, p.pool, p.position, tx.now, e.seq.Add(1), p.payload)
		if err != nil {
			e.logger.LogError(ctx, "failed to build event", err, "type", string(p.typ))
			continue
		}
		if err := e.publisher.Publish(ctx, ev); err != nil {
			e.logger.LogWarn(ctx, "failed to publish event",
				"event_id", ev.ID,
				"type", string(ev.Type),
				"error", err.Error(),
			)
		}
	}
}
