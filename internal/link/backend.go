/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package link

import "github.com/friendsincode/eos/internal/media"

// Source produces a wire-typed stream from a URL.
type Source interface {
	Controller

	Name() string
	// Probe reports whether the source can serve url.
	Probe(url string) bool
	// Lock starts an asynchronous connect. The outcome is reported through
	// handler as EventConnected or EventNoConnect.
	Lock(url, extras string, handler EventHandler) error
	Unlock() error
	// Suspend asks a pending connect to give up.
	Suspend() error
	Resume() error
	FlushBuffers() error
	OutputType() (IOType, error)
	Caps() Caps
	AssignOutput(plug Plug) error
	HandleEvent(ev Event) error
}

// Sink consumes a wire-typed stream and renders it.
type Sink interface {
	Controller

	Name() string
	ID() uint32
	Caps() Caps
	PlugType() IOType
	Plug() Plug
	Setup(id uint32, desc media.Desc) error
	Start() error
	Stop() error
	// Pause halts output; buffering marks a pause caused by refill.
	Pause(buffering bool) error
	Resume() error
	FlushBuffers() error
	RegisterEventHandler(handler EventHandler) error
}

// StreamSelector is the CapStreamSel control table. Indexes refer to the
// stream descriptor.
type StreamSelector interface {
	Select(idx int) error
	Deselect(idx int) error
	Enable(idx int) error
	Disable(idx int) error
}

// StreamHook receives elementary stream payload pulled by a sink.
type StreamHook func(data []byte) error

// StreamProvider is the CapStreamProv control table.
type StreamProvider interface {
	Attach(idx int, hook StreamHook) error
	Detach(idx int) error
}

// VolumeLevel is the loudness target of volume leveling.
type VolumeLevel int

const (
	VolumeLevelLow VolumeLevel = iota
	VolumeLevelMedium
	VolumeLevelHigh
)

// AVOutput is the CapAVOutSet control table.
type AVOutput interface {
	VideoMove(x, y uint16) error
	VideoScale(w, h uint16) error
	AudioPassthrough(enable bool) error
	VolumeLeveling(enable bool, level VolumeLevel) error
}

// TrickplayNoChange leaves the position untouched.
const TrickplayNoChange int64 = -2

// Trickplayer is the CapTrickplay control table.
type Trickplayer interface {
	Trickplay(position int64, speed int16) error
	Speed() (int16, error)
}

// DataCallback receives data a sink extracted on its own, e.g. rendered
// teletext pages.
type DataCallback func(codec media.Codec, data media.Data) error

// DataProvider is the CapDataProv control table.
type DataProvider interface {
	Poll(id uint32, codec media.Codec) (media.Data, error)
	SetCallback(cb DataCallback) error
	TTXTPageSet(page, subpage uint16) error
	TTXTPageGet() (page, subpage uint16, err error)
	TTXTNextPage() (uint16, error)
	TTXTPrevPage() (uint16, error)
	TTXTNextSubpage() (uint16, error)
	TTXTPrevSubpage() (uint16, error)
	TTXTNextBlock() (uint16, error)
	TTXTNextGroup() (uint16, error)
	TTXTRedPage() (uint16, error)
	TTXTGreenPage() (uint16, error)
	DVBSubEnable(enable bool) error
}
