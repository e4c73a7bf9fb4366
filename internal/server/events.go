/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/eos/internal/events"
)

const pingInterval = 15 * time.Second

type typedPayload struct {
	t events.EventType
	p events.Payload
}

// handleEvents streams bus events to a websocket client. The "types"
// query parameter narrows the stream; all player and settings events are
// sent by default.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	s.deps.Metrics.WebSocketOpened()
	defer s.deps.Metrics.WebSocketClosed()

	var wg sync.WaitGroup
	defer wg.Wait()
	// Reads are discarded; the context ends when the client goes away.
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = events.Types()
	}

	merged := make(chan typedPayload, 32)
	for _, t := range eventTypes {
		sub := s.deps.Bus.Subscribe(t)
		wg.Add(1)
		go func(t events.EventType, sub events.Subscriber) {
			defer wg.Done()
			defer s.deps.Bus.Unsubscribe(t, sub)
			for {
				select {
				case <-ctx.Done():
					return
				case p, ok := <-sub:
					if !ok {
						return
					}
					select {
					case merged <- typedPayload{t: t, p: p}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(t, sub)
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				s.logger.Debug().Err(err).Msg("websocket ping failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		case ev := <-merged:
			if err := writeEvent(ctx, conn, ev.t, ev.p); err != nil {
				s.logger.Debug().Err(err).Msg("websocket write failed, client disconnected")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, bytes)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}
