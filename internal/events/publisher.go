package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.opentelemetry.io/otel/attribute"

	"github.com/solve3fi/contracts/internal/platform/observability"
	"github.com/solve3fi/contracts/internal/platform/resilience"
)

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NoOpPublisher only logs events.
// Use this when SNS is not configured (local development, testing).
type NoOpPublisher struct {
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewNoOpPublisher creates a publisher that only logs events.
func NewNoOpPublisher(logger *observability.Logger, metrics *observability.Metrics) *NoOpPublisher {
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &NoOpPublisher{logger: logger, metrics: metrics}
}

// Publish logs the event at debug level.
func (p *NoOpPublisher) Publish(ctx context.Context, ev Event) error {
	if p.logger != nil {
		p.logger.LogDebug(ctx, "event (publisher disabled)",
			"event_id", ev.ID,
			"type", string(ev.Type),
			"pool", ev.Pool,
			"position", ev.Position,
		)
	}
	p.metrics.RecordEvent(ctx, string(ev.Type), nil)
	return nil
}

// SNSAPI is the part of the SNS client the publisher uses.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes events to an SNS topic with retry and a circuit
// breaker. The event type and pool are sent as message attributes for
// subscription filters.
type SNSPublisher struct {
	client         SNSAPI
	topicARN       string
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    resilience.RetryConfig
	logger         *observability.Logger
	metrics        *observability.Metrics
	tracer         observability.Tracer
}

// SNSPublisherConfig holds SNS publisher configuration
type SNSPublisherConfig struct {
	Client         SNSAPI
	TopicARN       string
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	Tracer         observability.Tracer
	RetryConfig    *resilience.RetryConfig
	CircuitBreaker *resilience.CircuitBreaker
}

// NewSNSPublisher creates a new SNS event publisher
func NewSNSPublisher(cfg SNSPublisherConfig) (*SNSPublisher, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("SNS client is required")
	}
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN is required")
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

	retryConfig := resilience.DefaultRetryConfig()
	if cfg.RetryConfig != nil {
		retryConfig = *cfg.RetryConfig
	}

	circuitBreaker := cfg.CircuitBreaker
	if circuitBreaker == nil {
		logger, metrics := cfg.Logger, cfg.Metrics
		circuitBreaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "sns",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			OnStateChange: func(from, to resilience.State) {
				logger.Info("SNS circuit breaker state changed",
					"from", from.String(),
					"to", to.String(),
				)
				metrics.SetCircuitBreakerState(context.Background(), "sns", int64(to))
			},
		})
	}

	return &SNSPublisher{
		client:         cfg.Client,
		topicARN:       cfg.TopicARN,
		circuitBreaker: circuitBreaker,
		retryConfig:    retryConfig,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		tracer:         cfg.Tracer,
	}, nil
}

// Publish sends ev to the topic.
func (p *SNSPublisher) Publish(ctx context.Context, ev Event) error {
	ctx, span := p.tracer.StartSpan(ctx, "SNSPublisher.Publish",
		attribute.String("event_id", ev.ID),
		attribute.String("event_type", string(ev.Type)),
		attribute.String("topic_arn", p.topicARN),
	)
	defer span.End()

	body, err := marshalEvent(ev)
	if err != nil {
		span.NoticeError(err)
		return err
	}

	err = p.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, p.retryConfig, func(ctx context.Context) error {
			return p.publishOnce(ctx, body, ev.Attributes())
		})
	})
	p.metrics.RecordEvent(ctx, string(ev.Type), err)
	span.NoticeError(err)
	if err != nil {
		p.logger.LogError(ctx, "failed to publish event to SNS", err,
			"event_id", ev.ID,
			"type", string(ev.Type),
			"topic_arn", p.topicARN,
		)
		return fmt.Errorf("SNS publish failed: %w", err)
	}

	p.logger.LogDebug(ctx, "published event to SNS",
		"event_id", ev.ID,
		"type", string(ev.Type),
		"pool", ev.Pool,
	)
	return nil
}

func (p *SNSPublisher) publishOnce(ctx context.Context, body string, attributes map[string]string) error {
	messageAttributes := make(map[string]types.MessageAttributeValue, len(attributes))
	for k, v := range attributes {
		messageAttributes[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(p.topicARN),
		Message:           aws.String(body),
		MessageAttributes: messageAttributes,
	})
	return err
}

// CircuitBreakerState returns the current circuit breaker state
func (p *SNSPublisher) CircuitBreakerState() string {
	return p.circuitBreaker.State().String()
}

// ResetCircuitBreaker manually resets the circuit breaker
func (p *SNSPublisher) ResetCircuitBreaker() {
	p.circuitBreaker.Reset()
	p.logger.Info("reset SNS circuit breaker")
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish appends ev.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
