// Command lambda-archiver stores pool events delivered through SQS (from the
// SNS topic) in DynamoDB with a TTL.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/solve3fi/contracts/internal/platform/aws"
	"github.com/solve3fi/contracts/internal/platform/observability"
)

const (
	defaultTable     = "solve-pool-events" // default for LocalStack
	defaultRetention = 7 * 24 * time.Hour
)

var handler *archiver

func init() {
	logger := observability.NewLogger(envOr("LOG_LEVEL", "info"), "json").Component("archiver")

	client, err := aws.NewDynamoDBClient(context.Background(), aws.Config{
		Region:   os.Getenv("AWS_REGION"),
		Endpoint: os.Getenv("AWS_ENDPOINT_URL"),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to load AWS config: %v", err))
	}

	retention := defaultRetention
	if raw := os.Getenv("RETENTION_HOURS"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			panic(fmt.Sprintf("invalid RETENTION_HOURS %q", raw))
		}
		retention = time.Duration(hours) * time.Hour
	}

	handler = &archiver{
		client:    client,
		table:     envOr("ARCHIVE_TABLE", defaultTable),
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
	logger.Info("archiver lambda initialized", "table", handler.table, "retention", retention.String())
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
