/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventConnState      EventType = "player.conn_state"
	EventState          EventType = "player.state"
	EventPlaybackStatus EventType = "player.playback_status"
	EventPlayInfo       EventType = "player.play_info"
	EventData           EventType = "player.data"

	// Output settings changes
	EventSettings EventType = "settings.changed"
)

// Types lists every event type published by the player.
func Types() []EventType {
	return []EventType{EventConnState, EventState, EventPlaybackStatus, EventPlayInfo, EventData, EventSettings}
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	return b.SubscribeN(eventType, 8)
}

// SubscribeN registers a subscriber buffering up to size payloads.
func (b *Bus) SubscribeN(eventType EventType, size int) Subscriber {
	ch := make(Subscriber, size)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Subscribers that are full miss
// the payload. It reports how many subscribers received it.
func (b *Bus) Publish(eventType EventType, payload Payload) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := 0
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
			delivered++
		default:
		}
	}
	return delivered
}

// Unsubscribe removes the subscriber and closes it.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}
