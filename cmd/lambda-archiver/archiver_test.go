package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/platform/observability"
)

type fakeDynamo struct {
	items map[string]record
	err   error
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	var r record
	if err := attributevalue.UnmarshalMap(in.Item, &r); err != nil {
		return nil, err
	}
	if _, ok := f.items[r.EventID]; ok {
		return nil, &types.ConditionalCheckFailedException{Message: new(string)}
	}
	f.items[r.EventID] = r
	return &dynamodb.PutItemOutput{}, nil
}

func newTestArchiver(client DynamoDBAPI) *archiver {
	return &archiver{
		client:    client,
		table:     "events",
		retention: time.Hour,
		logger:    observability.NewNopLogger(),
		now:       func() time.Time { return time.Unix(1_700_000_000, 0) },
	}
}

func testEvent(t *testing.T) (events.Event, string) {
	t.Helper()
	ev, err := events.New(events.TypeTraded, solana.NewWallet().PublicKey(), solana.PublicKey{}, 1_700_000_000, 1,
		events.Traded{AmountIn: 1000, AmountOut: 996})
	require.NoError(t, err)
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return ev, string(body)
}

func TestArchiverHandle(t *testing.T) {
	ev, raw := testEvent(t)
	envelope, err := json.Marshal(map[string]string{"Type": "Notification", "MessageId": "sns-1", "Message": raw})
	require.NoError(t, err)

	db := &fakeDynamo{items: map[string]record{}}
	resp, err := newTestArchiver(db).Handle(context.Background(), lambdaevents.SQSEvent{
		Records: []lambdaevents.SQSMessage{
			{MessageId: "m1", Body: string(envelope)},
			{MessageId: "m2", Body: "not json"},
			{MessageId: "m3", Body: raw}, // redelivery of the same event
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m2", resp.BatchItemFailures[0].ItemIdentifier)

	require.Len(t, db.items, 1)
	got := db.items[ev.ID]
	assert.Equal(t, string(events.TypeTraded), got.Type)
	assert.Equal(t, ev.Pool, got.Pool)
	assert.Empty(t, got.Position)
	assert.Equal(t, int64(1_700_003_600), got.TTL)
	assert.JSONEq(t, string(ev.Payload), got.Payload)
}

func TestArchiverReportsWriteFailures(t *testing.T) {
	_, raw := testEvent(t)
	db := &fakeDynamo{items: map[string]record{}, err: errors.New("throttled")}

	resp, err := newTestArchiver(db).Handle(context.Background(), lambdaevents.SQSEvent{
		Records: []lambdaevents.SQSMessage{{MessageId: "m1", Body: raw}},
	})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m1", resp.BatchItemFailures[0].ItemIdentifier)
}
