package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/platform/observability"
	"github.com/solve3fi/contracts/internal/platform/resilience"
)

func newTestForwarder(url string) *forwarder {
	return &forwarder{
		client:     &http.Client{Timeout: time.Second},
		webhookURL: url,
		retry:      resilience.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		logger:     observability.NewNopLogger(),
	}
}

func message(t *testing.T, id string, typ events.Type) lambdaevents.SQSMessage {
	t.Helper()
	ev, err := events.New(typ, solana.NewWallet().PublicKey(), solana.PublicKey{}, 1_700_000_000, 1, events.FeesCollected{AmountA: 2})
	require.NoError(t, err)
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return lambdaevents.SQSMessage{MessageId: id, Body: string(body)}
}

func TestForwarderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	var got events.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, string(events.TypeFeesCollected), r.Header.Get("X-Event-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := newTestForwarder(srv.URL).Handle(context.Background(), lambdaevents.SQSEvent{
		Records: []lambdaevents.SQSMessage{message(t, "m1", events.TypeFeesCollected)},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, int32(2), calls.Load())

	var payload events.FeesCollected
	require.NoError(t, got.Decode(&payload))
	assert.Equal(t, uint64(2), payload.AmountA)
}

func TestForwarderClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	resp, err := newTestForwarder(srv.URL).Handle(context.Background(), lambdaevents.SQSEvent{
		Records: []lambdaevents.SQSMessage{
			message(t, "m1", events.TypeTraded),
			{MessageId: "m2", Body: "{}"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 2)
	assert.Equal(t, "m1", resp.BatchItemFailures[0].ItemIdentifier)
	assert.Equal(t, "m2", resp.BatchItemFailures[1].ItemIdentifier)
	assert.Equal(t, int32(1), calls.Load())
}

func TestForwarderSkips(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	f := newTestForwarder(srv.URL)
	f.types = parseTypes("Traded, PoolInitialized")
	resp, err := f.Handle(context.Background(), lambdaevents.SQSEvent{
		Records: []lambdaevents.SQSMessage{
			message(t, "m1", events.TypeFeesCollected),
			message(t, "m2", events.TypeTraded),
		},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, int32(1), calls.Load())

	// No URL configured and none in the message attributes.
	resp, err = newTestForwarder("").Handle(context.Background(), lambdaevents.SQSEvent{
		Records: []lambdaevents.SQSMessage{message(t, "m3", events.TypeTraded)},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
}

func TestForwarderURLFromAttribute(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	msg := message(t, "m1", events.TypeTraded)
	url := srv.URL
	msg.MessageAttributes = map[string]lambdaevents.SQSMessageAttribute{
		"webhookURL": {StringValue: &url, DataType: "String"},
	}
	resp, err := newTestForwarder("").Handle(context.Background(), lambdaevents.SQSEvent{
		Records: []lambdaevents.SQSMessage{msg},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "http://short", maskURL("http://short"))
	assert.Equal(t, "https://hooks.e...ret-123456", maskURL("https://hooks.example.com/path/secret-123456"))
}
