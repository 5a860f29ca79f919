package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/platform/observability"
)

// DynamoDBAPI is the part of the DynamoDB client the archiver uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// record is one archived event. The table is keyed by event_id.
type record struct {
	EventID   string `dynamodbav:"event_id"`
	Type      string `dynamodbav:"type"`
	Pool      string `dynamodbav:"pool"`
	Position  string `dynamodbav:"position,omitempty"`
	Timestamp uint64 `dynamodbav:"timestamp"`
	Payload   string `dynamodbav:"payload"`
	TTL       int64  `dynamodbav:"ttl"` // epoch seconds, read by DynamoDB TTL
}

type archiver struct {
	client    DynamoDBAPI
	table     string
	retention time.Duration
	logger    *observability.Logger
	now       func() time.Time
}

// Handle archives every event in the batch and reports the messages that
// failed so SQS redelivers only those.
func (a *archiver) Handle(ctx context.Context, sqsEvent lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
	var failures []lambdaevents.SQSBatchItemFailure
	archived := 0

	for _, msg := range sqsEvent.Records {
		ev, err := events.ParseMessage(msg.Body)
		if err != nil {
			a.logger.LogError(ctx, "failed to parse message", err, "message_id", msg.MessageId)
			failures = append(failures, lambdaevents.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
			continue
		}

		if err := a.archive(ctx, ev); err != nil {
			a.logger.LogError(ctx, "failed to archive event", err,
				"message_id", msg.MessageId,
				"event_id", ev.ID,
			)
			failures = append(failures, lambdaevents.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
			continue
		}

		archived++
		a.logger.LogDebug(ctx, "event archived",
			"event_id", ev.ID,
			"type", string(ev.Type),
			"pool", ev.Pool,
		)
	}

	a.logger.LogInfo(ctx, "batch processed",
		"records", len(sqsEvent.Records),
		"archived", archived,
		"failed", len(failures),
	)
	return lambdaevents.SQSEventResponse{BatchItemFailures: failures}, nil
}

// archive writes ev once. A redelivered event finds its item already there
// and counts as archived.
func (a *archiver) archive(ctx context.Context, ev events.Event) error {
	item, err := attributevalue.MarshalMap(record{
		EventID:   ev.ID,
		Type:      string(ev.Type),
		Pool:      ev.Pool,
		Position:  ev.Position,
		Timestamp: ev.Timestamp,
		Payload:   string(ev.Payload),
		TTL:       a.now().Add(a.retention).Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(a.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(event_id)"),
	})
	var exists *types.ConditionalCheckFailedException
	if errors.As(err, &exists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}
