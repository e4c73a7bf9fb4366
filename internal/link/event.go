/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package link

import "github.com/friendsincode/eos/internal/media"

// EventType enumerates low-level pipeline notifications.
type EventType int

const (
	EventConnected EventType = iota + 1
	EventNoConnect
	EventConnLost
	EventDisconnected
	EventFrameDisplayed
	EventLowWatermark
	EventNormalWatermark
	EventHighWatermark
	EventBOS
	EventEOS
	EventPlaybackError
	EventPlayInfo
)

var eventNames = map[EventType]string{
	EventConnected:       "connected",
	EventNoConnect:       "no_connect",
	EventConnLost:        "conn_lost",
	EventDisconnected:    "disconnected",
	EventFrameDisplayed:  "frame_displayed",
	EventLowWatermark:    "low_wm",
	EventNormalWatermark: "normal_wm",
	EventHighWatermark:   "high_wm",
	EventBOS:             "bos",
	EventEOS:             "eos",
	EventPlaybackError:   "playback_error",
	EventPlayInfo:        "play_info",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// ConnError explains why a connection ended.
type ConnError int

const (
	ConnErrNone ConnError = iota
	ConnErrEOF
	ConnErrGeneral
	ConnErrRead
	ConnErrWrite
)

// PlaybackError is the failing stage of a playback error.
type PlaybackError int

const (
	PlaybackErrDemux PlaybackError = iota
	PlaybackErrDecode
	PlaybackErrSystem
)

// FrameInfo accompanies EventFrameDisplayed.
type FrameInfo struct {
	PTS      uint64
	KeyFrame bool
}

// PlayInfo accompanies EventPlayInfo.
type PlayInfo struct {
	Begin    uint64
	End      uint64
	Position uint64
	Speed    int16
}

// ConnInfo accompanies connection events.
type ConnInfo struct {
	Media  media.Desc
	Reason ConnError
}

// Event is one pipeline notification. Only the payload field matching
// Type is meaningful. Events are owned values: producers hand over a copy
// that consumers may keep.
type Event struct {
	Type     EventType
	LinkID   uint64
	Frame    FrameInfo
	Error    PlaybackError
	PlayInfo PlayInfo
	Conn     ConnInfo
}

// Clone deep-copies the event payload.
func (e Event) Clone() Event {
	e.Conn.Media = e.Conn.Media.Clone()
	return e
}

// EventHandler receives events pushed by a source or sink. Implementations
// must not block.
type EventHandler func(Event)
