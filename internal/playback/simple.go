/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
)

// Simple drives a single-source single-sink chain. It accepts every
// capability.
type Simple struct {
	logger zerolog.Logger
}

// NewSimple creates the simple provider.
func NewSimple(logger zerolog.Logger) *Simple {
	return &Simple{logger: logger.With().Str("component", "simple_playback").Logger()}
}

func (s *Simple) Probe(Chain, Capability) bool { return true }

func (s *Simple) Assign(_ Chain, cap Capability, ctrl *Controller) error {
	switch cap {
	case CapStart:
		ctrl.StartFn = s.start
	case CapSelect:
		ctrl.SelectFn = s.selectTrack
	case CapTrickplay:
		ctrl.TrickplayFn = s.trickplay
	case CapStop:
		ctrl.StopFn = s.stop
	case CapStartBuffering:
		ctrl.StartBufferingFn = s.startBuffering
	case CapStopBuffering:
		ctrl.StopBufferingFn = s.stopBuffering
	case CapHandleEvent:
		ctrl.HandleEventFn = s.handleEvent
	default:
		return errs.ErrInval
	}
	return nil
}

// keepFirstSelected leaves at most one selected audio and one selected video
// track. It reports whether any A/V track was selected.
func keepFirstSelected(streams *media.Desc) bool {
	var audio, video bool
	for i := range streams.ES {
		es := &streams.ES[i]
		if !es.Selected {
			continue
		}
		switch es.Codec.Class() {
		case media.ClassAudio:
			if audio {
				es.Selected = false
			}
			audio = true
		case media.ClassVideo:
			if video {
				es.Selected = false
			}
			video = true
		}
	}
	return audio || video
}

// selectDefaults marks the first audio and first video track. It reports
// whether the descriptor holds any A/V at all.
func selectDefaults(streams *media.Desc) bool {
	var audio, video bool
	for i := range streams.ES {
		es := &streams.ES[i]
		switch es.Codec.Class() {
		case media.ClassAudio:
			if !audio {
				es.Selected = true
				audio = true
			}
		case media.ClassVideo:
			if !video {
				es.Selected = true
				video = true
			}
		}
	}
	return audio || video
}

func isAV(c media.Codec) bool { return c.IsAudio() || c.IsVideo() }

func (s *Simple) start(ch Chain, streams *media.Desc) error {
	src, sink := ch.Source(), ch.Sink()
	if src == nil || sink == nil || streams == nil {
		return fmt.Errorf("start chain %d without source or sink: %w", ch.ID(), errs.ErrGeneral)
	}
	fail := func(err error) error {
		if uerr := src.Unlock(); uerr != nil {
			s.logger.Warn().Err(uerr).Uint32("chain", ch.ID()).Msg("unlock after failed start")
		}
		return err
	}

	if !keepFirstSelected(streams) && !selectDefaults(streams) {
		return fail(fmt.Errorf("chain %d has no audio or video: %w", ch.ID(), errs.ErrGeneral))
	}

	sinkSel, err := link.ControlOf[link.StreamSelector](sink, link.CapStreamSel)
	if err != nil {
		return fail(fmt.Errorf("sink stream selection: %w", errs.ErrGeneral))
	}
	srcSel, err := link.ControlOf[link.StreamSelector](src, link.CapStreamSel)
	if err != nil {
		srcSel = nil
	}

	selected := 0
	for i := range streams.ES {
		es := &streams.ES[i]
		if !es.Selected || !isAV(es.Codec) {
			continue
		}
		if err := sinkSel.Select(i); err != nil {
			s.logger.Warn().Err(err).Uint32("es", es.ID).Msg("sink refused track")
			es.Selected = false
			continue
		}
		selected++
		if srcSel != nil {
			if err := srcSel.Select(i); err != nil {
				s.logger.Debug().Err(err).Uint32("es", es.ID).Msg("source refused track")
			}
		}
	}
	if selected == 0 {
		return fail(fmt.Errorf("chain %d: no track could be selected: %w", ch.ID(), errs.ErrGeneral))
	}

	if err := sink.Start(); err != nil {
		return fail(fmt.Errorf("start sink: %w", err))
	}
	if err := src.Resume(); err != nil {
		s.logger.Warn().Err(err).Uint32("chain", ch.ID()).Msg("source resume failed")
	}
	return nil
}

func (s *Simple) selectTrack(ch Chain, streams *media.Desc, id uint32, on bool) error {
	src, sink := ch.Source(), ch.Sink()
	if src == nil || sink == nil || streams == nil {
		return errs.ErrInval
	}
	idx := streams.Index(id)
	if idx < 0 {
		return fmt.Errorf("track %d: %w", id, errs.ErrNotFound)
	}
	es := &streams.ES[idx]
	if !isAV(es.Codec) {
		return fmt.Errorf("track %d is %v: %w", id, es.Codec, errs.ErrInval)
	}
	if es.Selected == on {
		return nil
	}

	sinkSel, err := link.ControlOf[link.StreamSelector](sink, link.CapStreamSel)
	if err != nil {
		return fmt.Errorf("sink stream selection: %w", errs.ErrGeneral)
	}
	srcSel, _ := link.ControlOf[link.StreamSelector](src, link.CapStreamSel)

	deselect := func(i int) error {
		if err := sinkSel.Deselect(i); err != nil {
			return err
		}
		streams.ES[i].Selected = false
		if srcSel != nil {
			_ = srcSel.Deselect(i)
		}
		return nil
	}

	if !on {
		return deselect(idx)
	}
	if cur := streams.Selected(es.Codec.Class()); cur >= 0 {
		if err := deselect(cur); err != nil {
			return fmt.Errorf("deselect track %d: %w", streams.ES[cur].ID, err)
		}
	}
	if err := sinkSel.Select(idx); err != nil {
		return fmt.Errorf("select track %d: %w", id, err)
	}
	es.Selected = true
	if srcSel != nil {
		_ = srcSel.Select(idx)
	}
	return nil
}

func (s *Simple) trickplay(ch Chain, position int64, speed int16) error {
	src, sink := ch.Source(), ch.Sink()
	if src == nil || sink == nil {
		return errs.ErrInval
	}
	trick, err := link.ControlOf[link.Trickplayer](src, link.CapTrickplay)
	if err != nil {
		return fmt.Errorf("source trickplay: %w", errs.ErrGeneral)
	}
	cur, err := trick.Speed()
	if err != nil {
		cur = 1
	}
	if cur == speed && ((position > 0 && speed == 0) || position < 0) {
		return nil
	}

	if cur != 0 {
		_ = sink.Pause(true)
	}
	_ = trick.Trickplay(link.TrickplayNoChange, 0)

	abort := func(err error) error {
		if cur != 0 {
			_ = sink.Resume()
		}
		s.logger.Warn().Err(err).Int64("position", position).Int16("speed", speed).Msg("trickplay failed")
		return fmt.Errorf("trickplay: %w", errs.ErrGeneral)
	}

	if position < 0 {
		if err := trick.Trickplay(position, speed); err != nil {
			return abort(err)
		}
	}
	// Pausing a running stream, or resuming a paused one in place, keeps
	// the buffered data.
	if !(cur == 1 && speed == 0) && !(cur == 0 && speed == 1 && position < 0) {
		_ = src.FlushBuffers()
		_ = sink.FlushBuffers()
	}
	if position >= 0 {
		if err := trick.Trickplay(position, speed); err != nil {
			return abort(err)
		}
	}
	if speed != 0 {
		_ = sink.Resume()
	}
	return nil
}

func (s *Simple) stop(ch Chain) error {
	if src := ch.Source(); src != nil {
		if err := src.Unlock(); err != nil {
			s.logger.Debug().Err(err).Uint32("chain", ch.ID()).Msg("source unlock")
		}
	}
	if sink := ch.Sink(); sink != nil {
		_ = sink.Stop()
		_ = sink.FlushBuffers()
	}
	return nil
}

func (s *Simple) startBuffering(ch Chain) error {
	if sink := ch.Sink(); sink != nil {
		_ = sink.Pause(true)
	}
	return nil
}

func (s *Simple) stopBuffering(ch Chain) error {
	if sink := ch.Sink(); sink != nil {
		_ = sink.Resume()
	}
	return nil
}

func (s *Simple) handleEvent(ch Chain, ev link.Event) error {
	switch ev.Type {
	case link.EventLowWatermark, link.EventNormalWatermark, link.EventHighWatermark:
		s.logger.Debug().Uint32("chain", ch.ID()).Stringer("event", ev.Type).Msg("sink watermark")
		return nil
	}
	if src := ch.Source(); src != nil {
		return src.HandleEvent(ev)
	}
	return nil
}
