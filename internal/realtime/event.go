// Package realtime fans out live events (new chat messages, notifications) to
// subscribed websocket connections.
//
// Topics are plain strings: "chat:<chatID>" for a conversation and
// "user:<userID>" for a user's notification stream. Delivery is best-effort: a
// subscriber that cannot keep up is dropped and must resubscribe, which on the
// websocket side means reconnecting and reloading the full state.
package realtime

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event types.
const (
	TypeMessage      = "message"
	TypeNotification = "notification"
	TypeSnapshot     = "snapshot"
)

// Event is one frame on a topic. Data is the JSON encoding of the payload
// (a model.Message, a model.Notification...).
type Event struct {
	Type  string              `json:"type"`
	Topic string              `json:"topic"`
	Data  jsoniter.RawMessage `json:"data"`
}

// NewEvent encodes v as the event payload.
func NewEvent(topic, typ string, v any) (Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("realtime: encoding %s event: %w", typ, err)
	}
	return Event{Type: typ, Topic: topic, Data: data}, nil
}

// ChatTopic is the topic carrying new messages of a chat.
func ChatTopic(chatID string) string {
	return "chat:" + chatID
}

// UserTopic is the topic carrying a user's notifications.
func UserTopic(userID string) string {
	return "user:" + userID
}

// Broker publishes events and hands out subscriptions.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(topic string) *Subscription
	Close() error
}

// Publisher is the part of Broker services need.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
