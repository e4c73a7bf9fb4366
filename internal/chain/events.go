/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package chain

import (
	"context"
	"errors"

	"github.com/friendsincode/eos/internal/engine"
	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
	"github.com/friendsincode/eos/internal/playback"
)

// EventType is the kind of an event delivered to the host.
type EventType int

const (
	EventConnState EventType = iota + 1
	EventState
	EventPlaybackStatus
	EventPlayInfo
)

func (t EventType) String() string {
	switch t {
	case EventConnState:
		return "conn_state"
	case EventState:
		return "state"
	case EventPlaybackStatus:
		return "playback_status"
	case EventPlayInfo:
		return "play_info"
	}
	return "unknown"
}

// ConnState is the connection state carried by EventConnState.
type ConnState int

const (
	Disconnected ConnState = iota
	Connected
)

func (s ConnState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Reason explains a connection state change.
type Reason int

const (
	ReasonUser Reason = iota
	ReasonReadErr
)

func (r Reason) String() string {
	if r == ReasonReadErr {
		return "read_error"
	}
	return "user"
}

// PlayState is carried by EventState.
type PlayState int

const (
	StatePlaying PlayState = iota + 1
)

func (s PlayState) String() string {
	if s == StatePlaying {
		return "playing"
	}
	return "unknown"
}

// Status is carried by EventPlaybackStatus.
type Status int

const (
	StatusLowWatermark Status = iota + 1
	StatusBOS
	StatusEOS
)

func (s Status) String() string {
	switch s {
	case StatusLowWatermark:
		return "low_watermark"
	case StatusBOS:
		return "bos"
	case StatusEOS:
		return "eos"
	}
	return "unknown"
}

// Event is a pipeline event translated for the host. Only the fields
// matching Type are meaningful.
type Event struct {
	Type      EventType
	ChainID   uint32
	SessionID string
	Conn      ConnState
	Reason    Reason
	State     PlayState
	Status    Status
	PlayInfo  link.PlayInfo
}

// EventHandler receives translated events on the chain's event goroutine.
type EventHandler func(Event)

// DataHandler receives engine output. It runs on whatever goroutine fed
// the engine.
type DataHandler func(chainID uint32, t engine.Type, dt engine.DataType, data []byte)

// SetEventHandler installs the host event callback.
func (c *Chain) SetEventHandler(fn EventHandler) {
	c.handlersMu.Lock()
	c.onEvent = fn
	c.handlersMu.Unlock()
}

// SetDataHandler installs the host data callback.
func (c *Chain) SetDataHandler(fn DataHandler) {
	c.handlersMu.Lock()
	c.onData = fn
	c.handlersMu.Unlock()
}

func (c *Chain) eventHandler() EventHandler {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	return c.onEvent
}

func (c *Chain) relayData(t engine.Type, dt engine.DataType, data []byte) error {
	c.handlersMu.RLock()
	fn := c.onData
	c.handlersMu.RUnlock()
	if fn != nil {
		fn(c.id, t, dt, data)
	}
	return nil
}

// queued is a pipeline event waiting for the event goroutine. gen is the
// Lock attempt a source event belongs to, zero for sink events.
type queued struct {
	ev  link.Event
	gen uint64
}

// push is the link.EventHandler registered with the sink.
func (c *Chain) push(ev link.Event) { c.enqueue(0, ev) }

// enqueue never blocks; events that do not fit are dropped.
func (c *Chain) enqueue(gen uint64, ev link.Event) {
	err := c.queue.TryPut(queued{ev: ev.Clone(), gen: gen})
	if err == nil {
		return
	}
	reason := "paused"
	if errors.Is(err, errs.ErrOverflow) {
		reason = "full"
	}
	c.opts.Metrics.EventDropped(reason)
	c.logger.Warn().Stringer("event", ev.Type).Str("reason", reason).Msg("link event dropped")
}

func (c *Chain) run() {
	defer c.wg.Done()
	for {
		q, err := c.queue.Get(context.Background())
		if err != nil {
			return
		}
		c.dispatch(q)
	}
}

func (c *Chain) dispatch(q queued) {
	ev := q.ev
	c.mu.Lock()
	if q.gen != 0 && q.gen != c.lockGen {
		gen := c.lockGen
		c.mu.Unlock()
		c.logger.Debug().Stringer("event", ev.Type).Uint64("gen", q.gen).Uint64("current", gen).Msg("stale source event dropped")
		return
	}
	first := false
	switch ev.Type {
	case link.EventConnected:
		c.streams = ev.Conn.Media.Clone()
		c.connected = true
		c.wakeLock()
	case link.EventConnLost:
		c.streams = media.Desc{}
		c.connected = false
		c.playing = false
	case link.EventDisconnected:
		c.streams = media.Desc{}
		c.connected = false
		c.playing = false
	case link.EventNoConnect:
		c.streams = media.Desc{}
		c.connected = false
		c.wakeLock()
	case link.EventFrameDisplayed:
		if c.connected && !c.playing {
			c.playing = true
			first = true
		}
	}

	if c.connected && c.playing && c.ctrl.Has(playback.CapHandleEvent) {
		if err := c.ctrl.HandleEvent(c.bindingLocked(), ev); err != nil {
			c.logger.Debug().Err(err).Stringer("event", ev.Type).Msg("controller event")
		}
	}
	if c.dm != nil {
		c.dm.HandleEvent(ev)
	}
	session := c.session
	c.mu.Unlock()

	out, ok := c.translate(ev, first)
	if !ok {
		return
	}
	out.ChainID = c.id
	out.SessionID = session
	if fn := c.eventHandler(); fn != nil {
		fn(out)
	}
}

func (c *Chain) wakeLock() {
	if c.lockWake == nil {
		return
	}
	select {
	case c.lockWake <- struct{}{}:
	default:
	}
}

func (c *Chain) translate(ev link.Event, first bool) (Event, bool) {
	switch ev.Type {
	case link.EventConnected:
		return Event{Type: EventConnState, Conn: Connected, Reason: ReasonUser}, true
	case link.EventConnLost:
		return Event{Type: EventConnState, Conn: Disconnected, Reason: ReasonReadErr}, true
	case link.EventDisconnected:
		return Event{Type: EventConnState, Conn: Disconnected, Reason: ReasonUser}, true
	case link.EventFrameDisplayed:
		if first {
			return Event{Type: EventState, State: StatePlaying}, true
		}
		return Event{}, false
	case link.EventLowWatermark:
		return Event{Type: EventPlaybackStatus, Status: StatusLowWatermark}, true
	case link.EventBOS:
		return Event{Type: EventPlaybackStatus, Status: StatusBOS}, true
	case link.EventEOS:
		return Event{Type: EventPlaybackStatus, Status: StatusEOS}, true
	case link.EventPlayInfo:
		return Event{Type: EventPlayInfo, PlayInfo: ev.PlayInfo}, true
	case link.EventHighWatermark:
		c.logger.Debug().Msg("high watermark ignored")
	case link.EventNoConnect, link.EventNormalWatermark:
		c.logger.Debug().Stringer("event", ev.Type).Msg("event not forwarded")
	case link.EventPlaybackError:
		c.logger.Warn().Int("stage", int(ev.Error)).Msg("playback error not forwarded")
	default:
		c.logger.Warn().Int("type", int(ev.Type)).Msg("unknown link event")
	}
	return Event{}, false
}
