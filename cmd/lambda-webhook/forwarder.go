package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	lambdaevents "github.com/aws/aws-lambda-go/events"

	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/platform/observability"
	"github.com/solve3fi/contracts/internal/platform/resilience"
)

const userAgent = "Solve-Pool-Events-Webhook/1.0"

type forwarder struct {
	client     *http.Client
	webhookURL string
	types      map[events.Type]bool
	retry      resilience.RetryConfig
	logger     *observability.Logger
}

// Handle forwards every event in the batch and reports the messages that
// failed so SQS redelivers only those.
func (f *forwarder) Handle(ctx context.Context, sqsEvent lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
	var failures []lambdaevents.SQSBatchItemFailure
	sent, skipped := 0, 0

	for _, msg := range sqsEvent.Records {
		ev, err := events.ParseMessage(msg.Body)
		if err != nil {
			f.logger.LogError(ctx, "failed to parse message", err, "message_id", msg.MessageId)
			failures = append(failures, lambdaevents.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
			continue
		}

		url := f.urlFor(msg)
		if url == "" || (f.types != nil && !f.types[ev.Type]) {
			skipped++
			continue
		}

		if err := f.sendWithRetry(ctx, url, ev); err != nil {
			f.logger.LogError(ctx, "failed to send webhook", err,
				"message_id", msg.MessageId,
				"event_id", ev.ID,
				"url", maskURL(url),
			)
			failures = append(failures, lambdaevents.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
			continue
		}

		sent++
		f.logger.LogDebug(ctx, "webhook sent",
			"event_id", ev.ID,
			"type", string(ev.Type),
			"url", maskURL(url),
		)
	}

	f.logger.LogInfo(ctx, "batch processed",
		"records", len(sqsEvent.Records),
		"sent", sent,
		"skipped", skipped,
		"failed", len(failures),
	)
	return lambdaevents.SQSEventResponse{BatchItemFailures: failures}, nil
}

// urlFor returns the configured webhook URL, or the one carried in the
// message's webhookURL attribute.
func (f *forwarder) urlFor(msg lambdaevents.SQSMessage) string {
	if f.webhookURL != "" {
		return f.webhookURL
	}
	if attr, ok := msg.MessageAttributes["webhookURL"]; ok && attr.StringValue != nil {
		return *attr.StringValue
	}
	return ""
}

func (f *forwarder) sendWithRetry(ctx context.Context, url string, ev events.Event) error {
	return resilience.RetryIf(ctx, f.retry, isRetryableError, func(ctx context.Context) error {
		return f.send(ctx, url, ev)
	})
}

// send makes a single POST of the event envelope.
func (f *forwarder) send(ctx context.Context, url string, ev events.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &permanentError{fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Event-Id", ev.ID)
	req.Header.Set("X-Event-Type", string(ev.Type))

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("webhook failed with status %d", resp.StatusCode),
	}
}

// HTTPError represents an HTTP error response
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// isRetryableError retries server errors, rate limiting and network
// failures.
func isRetryableError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}
	var perm *permanentError
	if errors.As(err, &perm) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// maskURL masks sensitive parts of URL for logging
func maskURL(url string) string {
	if len(url) > 30 {
		return url[:15] + "..." + url[len(url)-10:]
	}
	return url
}
