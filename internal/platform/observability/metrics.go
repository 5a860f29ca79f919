package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Metrics holds the pool engine's instruments.
type Metrics struct {
	Operations        Counter
	OperationDuration Histogram

	Swaps        Counter
	SwapVolume   Counter
	TicksCrossed Counter
	FeesAccrued  Counter

	LiquidityChanges Counter

	InvariantViolations Counter

	StoreCommits   Counter
	StoreConflicts Counter

	EventsPublished Counter
	EventsFailed    Counter
	EventsQueued    Counter
	EventsRejected  Counter

	CacheHits   Counter
	CacheMisses Counter

	CircuitBreakerState Gauge
}

// NewMetrics creates the engine instruments on meter.
func NewMetrics(meter Meter) *Metrics {
	if meter == nil {
		meter = noopMeter{}
	}
	return &Metrics{
		Operations:          meter.Counter("solve.operations", "Engine operations by name and result"),
		OperationDuration:   meter.Histogram("solve.operation.duration", "Engine operation duration in milliseconds", 0.1, 0.5, 1, 5, 10, 50, 100, 500),
		Swaps:               meter.Counter("solve.swaps", "Committed swaps"),
		SwapVolume:          meter.Counter("solve.swap.volume", "Swap input amount in token base units"),
		TicksCrossed:        meter.Counter("solve.swap.ticks_crossed", "Initialized ticks crossed by swaps"),
		FeesAccrued:         meter.Counter("solve.fees.accrued", "Trading fees charged in token base units"),
		LiquidityChanges:    meter.Counter("solve.liquidity.changes", "Position liquidity increases and decreases"),
		InvariantViolations: meter.Counter("solve.invariant.violations", "Operations aborted by an accumulator overflow"),
		StoreCommits:        meter.Counter("solve.store.commits", "Record batches committed"),
		StoreConflicts:      meter.Counter("solve.store.conflicts", "Record batches rejected by a version conflict"),
		EventsPublished:     meter.Counter("solve.events.published", "Events delivered to the publisher"),
		EventsFailed:        meter.Counter("solve.events.failed", "Events the publisher failed to deliver"),
		EventsQueued:        meter.Counter("solve.events.queued", "Events accepted by the dispatch queue"),
		EventsRejected:      meter.Counter("solve.events.rejected", "Events the dispatch queue refused"),
		CacheHits:           meter.Counter("solve.cache.hits", "Record cache hits"),
		CacheMisses:         meter.Counter("solve.cache.misses", "Record cache misses"),
		CircuitBreakerState: meter.Gauge("solve.circuit_breaker.state", "Circuit breaker state: 0 closed, 1 open, 2 half-open"),
	}
}

// NewNoopMetrics returns instruments that record nothing.
func NewNoopMetrics() *Metrics {
	return NewMetrics(noopMeter{})
}

// RecordOperation records one engine operation and its outcome kind.
func (m *Metrics) RecordOperation(ctx context.Context, op, result string, start time.Time) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", op),
		attribute.String("result", result),
	}
	m.Operations.Inc(ctx, attrs...)
	m.OperationDuration.RecordDuration(ctx, start, attrs...)
}

// RecordSwap records a committed swap.
func (m *Metrics) RecordSwap(ctx context.Context, pool string, aToB bool, amountIn, fee uint64, ticksCrossed int) {
	direction := "b_to_a"
	if aToB {
		direction = "a_to_b"
	}
	attrs := []attribute.KeyValue{
		attribute.String("pool", pool),
		attribute.String("direction", direction),
	}
	m.Swaps.Inc(ctx, attrs...)
	m.SwapVolume.Add(ctx, clampInt64(amountIn), attrs...)
	m.FeesAccrued.Add(ctx, clampInt64(fee), attrs...)
	m.TicksCrossed.Add(ctx, int64(ticksCrossed), attrs...)
}

// RecordLiquidityChange records a position increase or decrease.
func (m *Metrics) RecordLiquidityChange(ctx context.Context, pool string, increase bool) {
	kind := "decrease"
	if increase {
		kind = "increase"
	}
	m.LiquidityChanges.Inc(ctx, attribute.String("pool", pool), attribute.String("kind", kind))
}

// RecordInvariantViolation counts an aborted operation that hit a broken invariant.
func (m *Metrics) RecordInvariantViolation(ctx context.Context, op, reason string) {
	m.InvariantViolations.Inc(ctx, attribute.String("operation", op), attribute.String("reason", reason))
}

// RecordCommit records the outcome of a store commit.
func (m *Metrics) RecordCommit(ctx context.Context, conflict bool) {
	if conflict {
		m.StoreConflicts.Inc(ctx)
		return
	}
	m.StoreCommits.Inc(ctx)
}

// RecordEvent records the delivery outcome of one event.
func (m *Metrics) RecordEvent(ctx context.Context, eventType string, err error) {
	if err != nil {
		m.EventsFailed.Inc(ctx, attribute.String("type", eventType))
		return
	}
	m.EventsPublished.Inc(ctx, attribute.String("type", eventType))
}

// RecordDispatch records whether the dispatch queue accepted one event.
func (m *Metrics) RecordDispatch(ctx context.Context, eventType string, err error) {
	if err != nil {
		m.EventsRejected.Inc(ctx, attribute.String("type", eventType))
		return
	}
	m.EventsQueued.Inc(ctx, attribute.String("type", eventType))
}

// RecordCacheStats adds hit and miss deltas.
func (m *Metrics) RecordCacheStats(ctx context.Context, hits, misses uint64) {
	m.CacheHits.Add(ctx, clampInt64(hits))
	m.CacheMisses.Add(ctx, clampInt64(misses))
}

// SetCircuitBreakerState sets circuit breaker state
// 0 = closed, 1 = open, 2 = half-open
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, service string, state int64) {
	m.CircuitBreakerState.Record(ctx, state, attribute.String("service", service))
}

func clampInt64(v uint64) int64 {
	if v > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(v)
}
