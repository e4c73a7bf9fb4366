/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"errors"
	"fmt"

	"github.com/friendsincode/eos/internal/chain"
	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/events"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/settings"
)

// AudioMode selects the audio output path.
type AudioMode int

const (
	AudioStereo AudioMode = iota
	AudioPassthrough
)

var outputOptions = []settings.Option{settings.VideoPos, settings.VideoSize, settings.AudioMode, settings.VolumeLeveling}

// OutVideoScale resizes the video window of out.
func (p *Player) OutVideoScale(out uint32, w, h uint16) error {
	return p.settings.Apply(out, settings.VideoSize, settings.Value{W: w, H: h})
}

// OutVideoMove moves the video window of out.
func (p *Player) OutVideoMove(out uint32, x, y uint16) error {
	return p.settings.Apply(out, settings.VideoPos, settings.Value{X: x, Y: y})
}

// OutAudioMode switches out between decoded stereo and passthrough.
func (p *Player) OutAudioMode(out uint32, mode AudioMode) error {
	return p.settings.Apply(out, settings.AudioMode, settings.Value{Passthrough: mode != AudioStereo})
}

// OutVolumeLeveling configures loudness leveling on out.
func (p *Player) OutVolumeLeveling(out uint32, enable bool, level link.VolumeLevel) error {
	return p.settings.Apply(out, settings.VolumeLeveling, settings.Value{Leveling: enable, Level: int(level)})
}

// applyOutput is the system handler of every output option. Without an
// idle chain the value is only recorded; Play applies it later.
func (p *Player) applyOutput(out uint32, opt settings.Option, val settings.Value) error {
	if !validOutput(out) {
		return fmt.Errorf("output %d: %w", out, errs.ErrInval)
	}
	ch, err := p.chains.Get(out)
	if err != nil {
		p.logger.Debug().Uint32("out", out).Stringer("option", opt).Msg("no chain, setting deferred")
		return nil
	}
	defer p.release(out, ch)
	av, err := ch.AVOutput()
	if err != nil {
		return err
	}
	return setOutput(av, opt, val)
}

func setOutput(av link.AVOutput, opt settings.Option, val settings.Value) error {
	switch opt {
	case settings.VideoPos:
		return av.VideoMove(val.X, val.Y)
	case settings.VideoSize:
		return av.VideoScale(val.W, val.H)
	case settings.AudioMode:
		return av.AudioPassthrough(val.Passthrough)
	case settings.VolumeLeveling:
		return av.VolumeLeveling(val.Leveling, link.VolumeLevel(val.Level))
	}
	return fmt.Errorf("option %v: %w", opt, errs.ErrInval)
}

// restoreOutput pushes the recorded settings of out to a freshly tuned
// chain.
func (p *Player) restoreOutput(out uint32, ch *chain.Chain) {
	av, err := ch.AVOutput()
	if err != nil {
		return
	}
	for _, opt := range outputOptions {
		val, err := p.settings.Fetch(out, opt)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err := setOutput(av, opt, val); err != nil {
			p.logger.Warn().Err(err).Uint32("out", out).Stringer("option", opt).Msg("setting not restored")
		}
	}
}

func (p *Player) publishSetting(out uint32, opt settings.Option, val settings.Value) {
	p.bus.Publish(events.EventSettings, events.Payload{
		"out":    out,
		"option": opt.String(),
		"value":  val,
	})
}
