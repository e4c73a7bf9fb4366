/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback resolves, per capability, which registered provider
// drives a chain's playback. A chain's controller may be stitched together
// from several providers.
package playback

import (
	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
)

// Capability is one controllable playback function.
type Capability int

const (
	CapStart Capability = iota
	CapSelect
	CapTrickplay
	CapStop
	CapStartBuffering
	CapStopBuffering
	CapHandleEvent

	capabilityCount
)

// Capabilities lists every capability in resolution order.
var Capabilities = []Capability{
	CapStart, CapSelect, CapTrickplay, CapStop, CapStartBuffering, CapStopBuffering, CapHandleEvent,
}

func (c Capability) String() string {
	switch c {
	case CapStart:
		return "start"
	case CapSelect:
		return "select"
	case CapTrickplay:
		return "trickplay"
	case CapStop:
		return "stop"
	case CapStartBuffering:
		return "start_buffering"
	case CapStopBuffering:
		return "stop_buffering"
	case CapHandleEvent:
		return "handle_event"
	}
	return "unknown"
}

// Chain is the view of a chain handed to providers. Implementations must
// not take the chain lock, since controllers run with it held.
type Chain interface {
	ID() uint32
	Source() link.Source
	Sink() link.Sink
}

type (
	StartFunc       func(ch Chain, streams *media.Desc) error
	SelectFunc      func(ch Chain, streams *media.Desc, id uint32, on bool) error
	TrickplayFunc   func(ch Chain, position int64, speed int16) error
	StopFunc        func(ch Chain) error
	BufferingFunc   func(ch Chain) error
	HandleEventFunc func(ch Chain, ev link.Event) error
)

// Controller is the composite of per-capability functions. Calling a
// capability no provider assigned fails with errs.ErrInval.
type Controller struct {
	StartFn          StartFunc
	SelectFn         SelectFunc
	TrickplayFn      TrickplayFunc
	StopFn           StopFunc
	StartBufferingFn BufferingFunc
	StopBufferingFn  BufferingFunc
	HandleEventFn    HandleEventFunc
}

// Has reports whether cap has been assigned.
func (c *Controller) Has(cap Capability) bool {
	if c == nil {
		return false
	}
	switch cap {
	case CapStart:
		return c.StartFn != nil
	case CapSelect:
		return c.SelectFn != nil
	case CapTrickplay:
		return c.TrickplayFn != nil
	case CapStop:
		return c.StopFn != nil
	case CapStartBuffering:
		return c.StartBufferingFn != nil
	case CapStopBuffering:
		return c.StopBufferingFn != nil
	case CapHandleEvent:
		return c.HandleEventFn != nil
	}
	return false
}

func (c *Controller) Start(ch Chain, streams *media.Desc) error {
	if c == nil || c.StartFn == nil {
		return errs.ErrInval
	}
	return c.StartFn(ch, streams)
}

func (c *Controller) Select(ch Chain, streams *media.Desc, id uint32, on bool) error {
	if c == nil || c.SelectFn == nil {
		return errs.ErrInval
	}
	return c.SelectFn(ch, streams, id, on)
}

func (c *Controller) Trickplay(ch Chain, position int64, speed int16) error {
	if c == nil || c.TrickplayFn == nil {
		return errs.ErrInval
	}
	return c.TrickplayFn(ch, position, speed)
}

func (c *Controller) Stop(ch Chain) error {
	if c == nil || c.StopFn == nil {
		return errs.ErrInval
	}
	return c.StopFn(ch)
}

func (c *Controller) StartBuffering(ch Chain) error {
	if c == nil || c.StartBufferingFn == nil {
		return errs.ErrInval
	}
	return c.StartBufferingFn(ch)
}

func (c *Controller) StopBuffering(ch Chain) error {
	if c == nil || c.StopBufferingFn == nil {
		return errs.ErrInval
	}
	return c.StopBufferingFn(ch)
}

func (c *Controller) HandleEvent(ch Chain, ev link.Event) error {
	if c == nil || c.HandleEventFn == nil {
		return errs.ErrInval
	}
	return c.HandleEventFn(ch, ev)
}
