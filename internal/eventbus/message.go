/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards player events from the in-process bus to
// external brokers.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/eos/internal/events"
)

// message is the wire envelope shared by every broker.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"` // For deduplication
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	msg := message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	}
	return json.Marshal(msg)
}

func unmarshalMessage(data []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &msg, nil
}

// NewNodeID returns hostname plus a random suffix.
func NewNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "eos"
	}
	return host + "-" + uuid.NewString()[:8]
}
