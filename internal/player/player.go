/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package player is the host facing surface of the engine. It addresses
// chains by output, forwards chain events and engine data to the host
// and to the event bus, and routes output settings to the sink.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/chain"
	"github.com/friendsincode/eos/internal/chainmgr"
	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/events"
	"github.com/friendsincode/eos/internal/media"
	"github.com/friendsincode/eos/internal/settings"
	"github.com/friendsincode/eos/internal/telemetry"
)

// Outputs. The output doubles as the sink and chain id.
const (
	MainAV uint32 = 0
	AuxAV  uint32 = 1
)

// Outputs lists the valid outputs.
func Outputs() []uint32 { return []uint32{MainAV, AuxAV} }

func validOutput(out uint32) bool { return out == MainAV || out == AuxAV }

// EventHandler receives chain events addressed by output. It runs on the
// chain's event goroutine and must not call Stop.
type EventHandler func(out uint32, ev chain.Event)

// DataHandler receives engine output addressed by output. data is owned
// by the handler.
type DataHandler func(out uint32, cls DataClass, f DataFormat, data []byte)

// Config wires a Player.
type Config struct {
	Chains   chainmgr.Config
	Settings *settings.Registry
	// Bus is optional. Every host event is published on it as well.
	Bus     *events.Bus
	Metrics *telemetry.Metrics
}

// Player is safe for concurrent use.
type Player struct {
	logger   zerolog.Logger
	chains   *chainmgr.Registry
	settings *settings.Registry
	bus      *events.Bus
	metrics  *telemetry.Metrics

	mu        sync.RWMutex
	onEvent   EventHandler
	onData    DataHandler
	listeners map[uint32]settings.ListenerID
}

// New builds the chain registry and registers the output setting
// handlers.
func New(cfg Config, logger zerolog.Logger) (*Player, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("player without settings registry: %w", errs.ErrInval)
	}
	p := &Player{
		logger:    logger.With().Str("component", "player").Logger(),
		settings:  cfg.Settings,
		bus:       cfg.Bus,
		metrics:   cfg.Metrics,
		listeners: make(map[uint32]settings.ListenerID),
	}
	cc := cfg.Chains
	if cc.Metrics == nil {
		cc.Metrics = cfg.Metrics
	}
	cc.DataHandler = p.handleData
	reg, err := chainmgr.New(cc, logger)
	if err != nil {
		return nil, err
	}
	p.chains = reg

	for _, opt := range outputOptions {
		p.settings.SetSystemHandler(opt, p.applyOutput)
	}
	if p.bus != nil {
		for _, out := range Outputs() {
			id, err := p.settings.AddListener(out, p.publishSetting)
			if err != nil {
				reg.Close()
				return nil, err
			}
			p.listeners[out] = id
		}
	}
	p.logger.Info().Msg("player ready")
	return p, nil
}

// Close tears down every chain. The settings registry stays with its
// owner but loses the output handlers.
func (p *Player) Close() {
	for _, opt := range outputOptions {
		p.settings.SetSystemHandler(opt, nil)
	}
	p.mu.Lock()
	for out, id := range p.listeners {
		if err := p.settings.RemoveListener(out, id); err != nil {
			p.logger.Debug().Err(err).Uint32("out", out).Msg("settings listener already gone")
		}
	}
	p.listeners = map[uint32]settings.ListenerID{}
	p.mu.Unlock()
	p.chains.Close()
	p.logger.Info().Msg("player stopped")
}

// SetEventHandler installs the host event callback, replacing any
// previous one.
func (p *Player) SetEventHandler(fn EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onEvent != nil {
		p.logger.Warn().Msg("event handler already set, overwriting")
	}
	p.onEvent = fn
}

// SetDataHandler installs the host data callback, replacing any previous
// one.
func (p *Player) SetDataHandler(fn DataHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onData != nil {
		p.logger.Warn().Msg("data handler already set, overwriting")
	}
	p.onData = fn
}

// Chains reports the chain registry.
func (p *Player) Chains() []chainmgr.Info { return p.chains.Snapshot() }

// Play tunes out to url and starts playback.
func (p *Player) Play(ctx context.Context, url, extras string, out uint32) error {
	if !validOutput(out) {
		return fmt.Errorf("output %d: %w", out, errs.ErrInval)
	}
	if err := p.chains.Create(ctx, url, extras, out, p.handleEvent); err != nil {
		return err
	}
	ch, err := p.chains.Get(out)
	if err != nil {
		return err
	}
	defer p.release(out, ch)

	p.restoreOutput(out, ch)
	return ch.Start()
}

// Stop stops playback on out and destroys its chain. Stopping an output
// without a chain succeeds.
func (p *Player) Stop(out uint32) error {
	ch, err := p.chains.Get(out)
	if err != nil {
		p.logger.Warn().Uint32("out", out).Msg("chain already stopped?")
		return nil
	}
	if err := ch.Stop(); err != nil {
		p.logger.Warn().Err(err).Uint32("out", out).Msg("chain not properly stopped")
	}
	p.release(out, ch)
	return p.chains.Destroy(out)
}

// Buffer starts or stops buffering on out.
func (p *Player) Buffer(out uint32, start bool) error {
	return p.withChain(out, func(ch *chain.Chain) error {
		var err error
		if start {
			err = ch.StartBuffering()
		} else {
			err = ch.StopBuffering()
		}
		if err != nil {
			p.logger.Warn().Err(err).Uint32("out", out).Bool("start", start).Msg("buffering not changed")
		}
		return err
	})
}

// Trickplay seeks to position (ms) and/or changes speed on out.
func (p *Player) Trickplay(out uint32, position int64, speed int16) error {
	ch, err := p.chains.Get(out)
	if err != nil {
		return fmt.Errorf("trickplay output %d: %w", out, errs.ErrGeneral)
	}
	defer p.release(out, ch)
	return ch.Trickplay(position, speed)
}

// MediaDesc returns the streams of out with the current selection.
func (p *Player) MediaDesc(out uint32) (media.Desc, error) {
	var desc media.Desc
	err := p.withChain(out, func(ch *chain.Chain) error {
		desc = ch.Streams()
		return nil
	})
	return desc, err
}

// SetTrack selects or deselects the track with stream id on out.
func (p *Player) SetTrack(out, id uint32, on bool) error {
	return p.withChain(out, func(ch *chain.Chain) error {
		return ch.SetTrack(id, on)
	})
}

// TTXTPage polls the teletext page of the track with stream id idx as
// JSON.
func (p *Player) TTXTPage(out uint32, idx uint16) ([]byte, error) {
	var page []byte
	err := p.withChain(out, func(ch *chain.Chain) error {
		d, err := ch.StreamData(media.CodecTTXT, uint32(idx))
		if err != nil {
			return err
		}
		page = append([]byte(nil), d.Bytes...)
		return nil
	})
	return page, err
}

// withChain runs fn on the held chain of out.
func (p *Player) withChain(out uint32, fn func(ch *chain.Chain) error) error {
	ch, err := p.chains.Get(out)
	if err != nil {
		return fmt.Errorf("output %d: %w", out, errs.ErrInval)
	}
	defer p.release(out, ch)
	return fn(ch)
}

func (p *Player) release(out uint32, ch *chain.Chain) {
	if err := p.chains.Release(out, ch); err != nil {
		p.logger.Error().Err(err).Uint32("out", out).Msg("chain release failed")
	}
}

func (p *Player) handleEvent(ev chain.Event) {
	out := ev.ChainID
	if !validOutput(out) {
		p.logger.Error().Uint32("chain_id", out).Msg("event from unknown chain")
		return
	}
	p.metrics.PlayerEvent(ev.Type.String())
	if p.bus != nil {
		p.bus.Publish(busType(ev.Type), eventPayload(ev))
	}

	p.mu.RLock()
	fn := p.onEvent
	p.mu.RUnlock()
	if fn != nil {
		fn(out, ev)
	}
}

func busType(t chain.EventType) events.EventType {
	switch t {
	case chain.EventConnState:
		return events.EventConnState
	case chain.EventState:
		return events.EventState
	case chain.EventPlaybackStatus:
		return events.EventPlaybackStatus
	}
	return events.EventPlayInfo
}

func eventPayload(ev chain.Event) events.Payload {
	pl := events.Payload{
		"out":        ev.ChainID,
		"session_id": ev.SessionID,
		"type":       ev.Type.String(),
	}
	switch ev.Type {
	case chain.EventConnState:
		pl["conn"] = ev.Conn.String()
		pl["reason"] = ev.Reason.String()
	case chain.EventState:
		pl["state"] = ev.State.String()
	case chain.EventPlaybackStatus:
		pl["status"] = ev.Status.String()
	case chain.EventPlayInfo:
		pl["begin"] = ev.PlayInfo.Begin
		pl["end"] = ev.PlayInfo.End
		pl["position"] = ev.PlayInfo.Position
		pl["speed"] = ev.PlayInfo.Speed
	}
	return pl
}

var errUnmapped = errors.New("unmapped engine output")
