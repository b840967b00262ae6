// Package realtime provides the in-process event bus and the streaming
// gateway that relays bus events to long-lived client connections.
package realtime

import (
	"encoding/json"
	"errors"
	"strings"
)

// Well-known topics published by the device pipeline.
const (
	TopicDevices   = "devices"
	TopicTelemetry = "telemetry"
)

// Event types published by the device pipeline.
const (
	TypeDeviceRegistered = "device.registered"
	TypeDevicePaired     = "device.paired"
	TypeLogsIngested     = "logs.ingested"
)

// ErrInvalidEvent is returned when an encoded event lacks a topic or type.
var ErrInvalidEvent = errors.New("invalid realtime event")

// Event is an ephemeral domain event fanned out to live subscribers.
type Event struct {
	// Topic is the namespace subscribers filter on.
	Topic string `json:"topic"`

	// Type is the event kind within the topic.
	Type string `json:"type"`

	// Data is the opaque payload.
	Data any `json:"data,omitempty"`
}

// DecodeEvent parses a JSON-encoded event and checks its required fields.
func DecodeEvent(data []byte) (Event, error) {
	var wire struct {
		Topic string          `json:"topic"`
		Type  string          `json:"type"`
		Data  json.RawMessage `json:"data,omitempty"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Event{}, errors.Join(ErrInvalidEvent, err)
	}

	topic := strings.TrimSpace(wire.Topic)
	if topic == "" || wire.Type == "" || strings.ContainsAny(topic, "\r\n") {
		return Event{}, ErrInvalidEvent
	}

	ev := Event{Topic: topic, Type: wire.Type}
	if len(wire.Data) > 0 {
		ev.Data = wire.Data
	}
	return ev, nil
}

// ParseTopics splits a comma-separated topic filter. Blank entries and
// duplicates are dropped; an empty result means all topics.
func ParseTopics(raw string) []string {
	topics := make([]string, 0)
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		topic := strings.TrimSpace(part)
		if topic == "" || strings.ContainsAny(topic, "\r\n") {
			continue
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	return topics
}
