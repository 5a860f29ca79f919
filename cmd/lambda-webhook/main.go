// Command lambda-webhook forwards pool events delivered through SQS (from
// the SNS topic) to an HTTP webhook.
package main

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/platform/observability"
	"github.com/solve3fi/contracts/internal/platform/resilience"
)

var handler *forwarder

func init() {
	logger := observability.NewLogger(envOr("LOG_LEVEL", "info"), "json").Component("webhook")

	handler = &forwarder{
		client:     &http.Client{Timeout: 5 * time.Second},
		webhookURL: os.Getenv("WEBHOOK_URL"),
		types:      parseTypes(os.Getenv("EVENT_TYPES")),
		retry: resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    4 * time.Second,
			Jitter:      0.1,
		},
		logger: logger,
	}
	logger.Info("webhook lambda initialized",
		"url", maskURL(handler.webhookURL),
		"event_types", len(handler.types),
	)
}

// parseTypes reads a comma-separated event type filter. Empty forwards
// every type.
func parseTypes(raw string) map[events.Type]bool {
	if raw == "" {
		return nil
	}
	types := make(map[events.Type]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[events.Type(t)] = true
		}
	}
	return types
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	lambda.Start(handler.Handle)
}
