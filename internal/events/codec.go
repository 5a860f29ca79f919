package events

import (
	"encoding/json"
	"fmt"
)

func marshalEvent(ev Event) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}
	return string(b), nil
}

// snsEnvelope is the body SQS receives from an SNS subscription without raw
// message delivery.
type snsEnvelope struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	Message   string `json:"Message"`
}

// ParseMessage decodes an event from an SQS message body. Both raw delivery
// and the SNS notification envelope are accepted.
func ParseMessage(body string) (Event, error) {
	var env snsEnvelope
	if err := json.Unmarshal([]byte(body), &env); err == nil && env.Type == "Notification" && env.Message != "" {
		body = env.Message
	}

	var ev Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if ev.ID == "" || ev.Type == "" {
		return Event{}, fmt.Errorf("message is not an event")
	}
	return ev, nil
}
