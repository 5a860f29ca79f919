package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/solve3fi/contracts/internal/platform/observability"
	"github.com/solve3fi/contracts/internal/platform/resilience"
)

type fakeSNS struct {
	mu     sync.Mutex
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func (f *fakeSNS) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

var (
	testPool     = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
	testPosition = solana.MustPublicKeyFromBase58("11111111111111111111111111111112")
)

func tradedEvent(t *testing.T, seq uint64) Event {
	t.Helper()
	ev, err := New(TypeTraded, testPool, solana.PublicKey{}, 1700000000, seq, Traded{AToB: true, AmountIn: 1000, AmountOut: 997})
	require.NoError(t, err)
	return ev
}

func TestNew(t *testing.T) {
	a := tradedEvent(t, 1)
	b := tradedEvent(t, 1)
	c := tradedEvent(t, 2)

	assert.Equal(t, a.ID, b.ID, "same inputs give the same id")
	assert.NotEqual(t, a.ID, c.ID)
	assert.Len(t, a.ID, 32)
	assert.Empty(t, a.Position)
	assert.Equal(t, testPool.String(), a.Pool)

	var payload Traded
	require.NoError(t, a.Decode(&payload))
	assert.Equal(t, uint64(997), payload.AmountOut)

	withPosition, err := New(TypeFeesCollected, testPool, testPosition, 1, 0, FeesCollected{AmountA: 3})
	require.NoError(t, err)
	assert.Equal(t, testPosition.String(), withPosition.Attributes()["position"])
	assert.Equal(t, "FeesCollected", withPosition.Attributes()["type"])
}

func TestParseMessage(t *testing.T) {
	ev := tradedEvent(t, 7)
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	got, err := ParseMessage(string(raw))
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)

	envelope, err := json.Marshal(map[string]string{
		"Type":      "Notification",
		"MessageId": "abc",
		"Message":   string(raw),
	})
	require.NoError(t, err)
	got, err = ParseMessage(string(envelope))
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, TypeTraded, got.Type)

	_, err = ParseMessage(`{"hello":"world"}`)
	assert.Error(t, err)
	_, err = ParseMessage(`not json`)
	assert.Error(t, err)
}

func TestSNSPublisher_Publish(t *testing.T) {
	client := &fakeSNS{}
	pub, err := NewSNSPublisher(SNSPublisherConfig{Client: client, TopicARN: "arn:aws:sns:us-east-1:000000000000:events"})
	require.NoError(t, err)

	ev := tradedEvent(t, 1)
	require.NoError(t, pub.Publish(context.Background(), ev))
	require.Equal(t, 1, client.calls())

	in := client.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:events", aws.ToString(in.TopicArn))
	assert.Equal(t, "Traded", aws.ToString(in.MessageAttributes["type"].StringValue))
	assert.Equal(t, testPool.String(), aws.ToString(in.MessageAttributes["pool"].StringValue))

	got, err := ParseMessage(aws.ToString(in.Message))
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
}

func TestSNSPublisher_CircuitOpens(t *testing.T) {
	client := &fakeSNS{err: errors.New("throttled")}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "sns-test",
		FailureThreshold: 2,
		Timeout:          time.Hour,
	})
	retry := resilience.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	pub, err := NewSNSPublisher(SNSPublisherConfig{
		Client:         client,
		TopicARN:       "arn:aws:sns:us-east-1:000000000000:events",
		RetryConfig:    &retry,
		CircuitBreaker: cb,
	})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		assert.Error(t, pub.Publish(ctx, tradedEvent(t, uint64(i))))
	}
	assert.Equal(t, 4, client.calls(), "each publish retries once")
	assert.Equal(t, "open", pub.CircuitBreakerState())

	err = pub.Publish(ctx, tradedEvent(t, 9))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 4, client.calls(), "open circuit makes no call")

	pub.ResetCircuitBreaker()
	assert.Equal(t, "closed", pub.CircuitBreakerState())
}

func TestNewSNSPublisher_Validation(t *testing.T) {
	_, err := NewSNSPublisher(SNSPublisherConfig{TopicARN: "arn"})
	assert.Error(t, err)
	_, err = NewSNSPublisher(SNSPublisherConfig{Client: &fakeSNS{}})
	assert.Error(t, err)
}

func TestDispatcher_DeliversAll(t *testing.T) {
	rec := NewRecorder()
	d, err := NewDispatcher(context.Background(), DispatcherConfig{
		Publisher: rec,
		Workers:   3,
		QueueSize: 8,
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, d.Publish(context.Background(), tradedEvent(t, uint64(i))))
	}
	d.Close()

	assert.Len(t, rec.Events(), 20)
	assert.Len(t, rec.OfType(TypeTraded), 20)
	assert.Equal(t, int64(20), d.Stats().JobsCompleted)
}

func TestDispatcher_RateLimited(t *testing.T) {
	rec := NewRecorder()
	d, err := NewDispatcher(context.Background(), DispatcherConfig{
		Publisher:     rec,
		Workers:       1,
		QueueSize:     4,
		RatePerSecond: 1000,
		Burst:         1,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Publish(context.Background(), tradedEvent(t, uint64(i))))
	}
	d.Close()
	assert.Len(t, rec.Events(), 3)
}

type blockingPublisher struct {
	release chan struct{}
}

func (b *blockingPublisher) Publish(ctx context.Context, _ Event) error {
	<-b.release
	return nil
}

func TestDispatcher_DropWhenFull(t *testing.T) {
	blocker := &blockingPublisher{release: make(chan struct{})}
	d, err := NewDispatcher(context.Background(), DispatcherConfig{
		Publisher:    blocker,
		Workers:      1,
		QueueSize:    1,
		DropWhenFull: true,
	})
	require.NoError(t, err)

	var rejected int
	for i := 0; i < 5; i++ {
		if err := d.Publish(context.Background(), tradedEvent(t, uint64(i))); err != nil {
			rejected++
		}
	}
	close(blocker.release)
	d.Close()

	assert.GreaterOrEqual(t, rejected, 3, "one in flight and one queued at most")
	assert.Equal(t, int64(rejected), d.Stats().JobsDropped)
}

func TestDispatcher_RequiresPublisher(t *testing.T) {
	_, err := NewDispatcher(context.Background(), DispatcherConfig{})
	assert.Error(t, err)
}

type countingMeter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newCountingMeter() *countingMeter {
	return &countingMeter{counts: make(map[string]int64)}
}

func (m *countingMeter) get(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

func (m *countingMeter) Counter(name, _ string) observability.Counter {
	return &countingCounter{name: name, m: m}
}

func (m *countingMeter) Gauge(string, string) observability.Gauge { return discardGauge{} }

func (m *countingMeter) Histogram(string, string, ...float64) observability.Histogram {
	return discardHistogram{}
}

type countingCounter struct {
	name string
	m    *countingMeter
}

func (c *countingCounter) Add(_ context.Context, v int64, _ ...attribute.KeyValue) {
	c.m.mu.Lock()
	c.m.counts[c.name] += v
	c.m.mu.Unlock()
}

func (c *countingCounter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

type discardGauge struct{}

func (discardGauge) Record(context.Context, int64, ...attribute.KeyValue) {}

type discardHistogram struct{}

func (discardHistogram) Record(context.Context, float64, ...attribute.KeyValue)           {}
func (discardHistogram) RecordDuration(context.Context, time.Time, ...attribute.KeyValue) {}

func TestDispatcher_RecordsQueuedAndRejected(t *testing.T) {
	meter := newCountingMeter()
	blocker := &blockingPublisher{release: make(chan struct{})}
	d, err := NewDispatcher(context.Background(), DispatcherConfig{
		Publisher:    blocker,
		Workers:      1,
		QueueSize:    1,
		DropWhenFull: true,
		Metrics:      observability.NewMetrics(meter),
	})
	require.NoError(t, err)

	var rejected int64
	for i := 0; i < 5; i++ {
		if err := d.Publish(context.Background(), tradedEvent(t, uint64(i))); err != nil {
			rejected++
		}
	}
	close(blocker.release)
	d.Close()

	assert.Equal(t, rejected, meter.get("solve.events.rejected"))
	assert.Equal(t, 5-rejected, meter.get("solve.events.queued"))
	assert.Zero(t, meter.get("solve.events.failed"), "queue rejections are not delivery failures")
}
