package aqmingestor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBadTopic is returned for topics that do not match the subscription pattern
var ErrBadTopic = errors.New("topic does not match subscription")

// Message is one device payload queued for forwarding
type Message struct {
	DeviceID   string
	Topic      string
	APIKey     string
	Payload    map[string]interface{}
	ReceivedAt time.Time
}

// DeviceIDFromTopic returns the segment matched by the first single-level
// wildcard of pattern, e.g. "aqm/+/readings" and "aqm/esp-7/readings" give "esp-7".
// A pattern without a wildcard matches its own topic and yields an empty id.
func DeviceIDFromTopic(pattern, topic string) (string, error) {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")

	deviceID := ""
	for i, seg := range pp {
		if seg == "#" {
			return deviceID, nil
		}
		if i >= len(tp) {
			return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
		}
		switch seg {
		case "+":
			if deviceID == "" {
				deviceID = tp[i]
			}
		default:
			if seg != tp[i] {
				return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
			}
		}
	}
	if len(tp) != len(pp) {
		return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	return deviceID, nil
}

// ParseMessage decodes an MQTT payload into an ingest body. The apiKey field is
// removed from the body and falls back to defaultKey. A deviceId from the
// topic is filled in when the body has none.
func ParseMessage(pattern, topic string, body []byte, defaultKey string, receivedAt time.Time) (Message, error) {
	msg := Message{Topic: topic, APIKey: defaultKey, ReceivedAt: receivedAt}

	deviceID, err := DeviceIDFromTopic(pattern, topic)
	if err != nil {
		return msg, err
	}
	msg.DeviceID = deviceID

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return msg, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if payload == nil {
		return msg, errors.New("invalid JSON payload: expected an object")
	}

	if key, ok := payload["apiKey"].(string); ok {
		if key != "" {
			msg.APIKey = key
		}
		delete(payload, "apiKey")
	}

	if id, ok := payload["deviceId"].(string); ok && strings.TrimSpace(id) != "" {
		msg.DeviceID = strings.TrimSpace(id)
	} else if msg.DeviceID != "" {
		payload["deviceId"] = msg.DeviceID
	}

	msg.Payload = payload
	return msg, nil
}
