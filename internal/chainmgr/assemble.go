/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package chainmgr

import (
	"context"
	"fmt"

	"github.com/friendsincode/eos/internal/link"
)

// sinkCaps is what every chain sink must offer.
const sinkCaps = link.CapStreamSel | link.CapSink

// assemble tunes e to url. On failure the chain is left without source and
// sink.
func (r *Registry) assemble(ctx context.Context, e *entry, url, extras string) error {
	e.interrupt.Lock()
	e.lynk.Lock()
	if e.chain.Source() != nil {
		e.chain.Interrupt()
	}
	e.lynk.Unlock()
	e.tune.Lock()
	e.interrupt.Unlock()
	defer e.tune.Unlock()

	ch := e.chain
	log := r.logger.With().Uint32("sink_id", e.id).Logger()

	src, sink := ch.Source(), ch.Sink()
	restart := src != nil && sink != nil
	if restart {
		reuse := src.Probe(url)
		ch.UnloadDataManager()
		if err := ch.Unlock(); err != nil {
			log.Warn().Err(err).Msg("unlock before retune")
		}
		if err := sink.Stop(); err != nil {
			log.Warn().Err(err).Msg("sink stop before retune")
		}
		if err := sink.FlushBuffers(); err != nil {
			log.Warn().Err(err).Msg("sink flush before retune")
		}
		e.lynk.Lock()
		r.detach(e)
		e.lynk.Unlock()
		if !reuse {
			r.dismantleSource(src)
			src = nil
		}
		log.Debug().Bool("source_reused", reuse).Msg("retune")
	} else if src != nil || sink != nil {
		// A half bound chain is never kept.
		e.lynk.Lock()
		if err := ch.Unlock(); err != nil {
			log.Warn().Err(err).Msg("unlock stale source")
		}
		r.detach(e)
		e.lynk.Unlock()
		r.dismantleSource(src)
		r.dismantleSink(sink)
		src, sink = nil, nil
	}

	if src == nil {
		var err error
		if src, err = r.cfg.Sources.Manufacture(url); err != nil {
			r.dismantleSink(sink)
			return err
		}
	}
	e.lynk.Lock()
	err := ch.SetSource(src)
	e.lynk.Unlock()
	if err != nil {
		r.rollback(e, src, sink)
		return err
	}
	if err := ch.Lock(ctx, url, extras, r.cfg.LockTimeout); err != nil {
		r.rollback(e, src, sink)
		return err
	}

	out, err := src.OutputType()
	if err != nil {
		r.rollback(e, src, sink)
		return fmt.Errorf("source output type: %w", err)
	}
	desc := ch.Streams()
	if sink != nil {
		if sink.PlugType().Covers(out) && sink.Caps().Has(sinkCaps) {
			if err := desc.Validate(); err != nil {
				log.Warn().Err(err).Msg("descriptor rejected, replacing sink")
				r.dismantleSink(sink)
				sink = nil
			} else if err := sink.Setup(e.id, desc); err != nil {
				log.Warn().Err(err).Msg("sink setup failed, replacing sink")
				r.dismantleSink(sink)
				sink = nil
			}
		} else {
			r.dismantleSink(sink)
			sink = nil
		}
	}
	if sink == nil {
		if sink, err = r.cfg.Sinks.Manufacture(e.id, desc, sinkCaps, out); err != nil {
			r.rollback(e, src, nil)
			return err
		}
	}

	e.lynk.Lock()
	err = ch.SetSink(sink)
	e.lynk.Unlock()
	if err != nil {
		r.rollback(e, src, sink)
		return err
	}
	if err := ch.LoadPlaybackController(r.cfg.Playback); err != nil {
		log.Warn().Err(err).Msg("chain assembled without playback controller")
	}
	return nil
}

// rollback undoes a failed assemble. Secondary failures are only logged.
func (r *Registry) rollback(e *entry, src link.Source, sink link.Sink) {
	e.lynk.Lock()
	if err := e.chain.Unlock(); err != nil {
		r.logger.Warn().Err(err).Uint32("sink_id", e.id).Msg("rollback unlock")
	}
	r.detach(e)
	r.dismantleSource(src)
	e.lynk.Unlock()

	if sink != nil {
		if err := sink.Stop(); err != nil {
			r.logger.Warn().Err(err).Uint32("sink_id", e.id).Msg("rollback sink stop")
		}
		r.dismantleSink(sink)
	}
}

// disassemble tears the pipeline of e down for good.
func (r *Registry) disassemble(e *entry) {
	ch := e.chain
	ch.UnloadDataManager()
	e.lynk.Lock()
	src, sink := ch.Source(), ch.Sink()
	if err := ch.Unlock(); err != nil {
		r.logger.Warn().Err(err).Uint32("sink_id", e.id).Msg("disassemble unlock")
	}
	r.detach(e)
	r.dismantleSource(src)
	e.lynk.Unlock()

	if sink != nil {
		if err := sink.Stop(); err != nil {
			r.logger.Warn().Err(err).Uint32("sink_id", e.id).Msg("disassemble sink stop")
		}
		r.dismantleSink(sink)
	}
}

// detach unbinds source and sink. The caller holds e.lynk and has
// unlocked the chain.
func (r *Registry) detach(e *entry) {
	if err := e.chain.SetSource(nil); err != nil {
		r.logger.Warn().Err(err).Uint32("sink_id", e.id).Msg("detach source")
	}
	if err := e.chain.SetSink(nil); err != nil {
		r.logger.Warn().Err(err).Uint32("sink_id", e.id).Msg("detach sink")
	}
}

func (r *Registry) dismantleSource(src link.Source) {
	if src == nil {
		return
	}
	if err := r.cfg.Sources.Dismantle(src); err != nil {
		r.logger.Warn().Err(err).Msg("dismantle source")
	}
}

func (r *Registry) dismantleSink(sink link.Sink) {
	if sink == nil {
		return
	}
	if err := r.cfg.Sinks.Dismantle(sink); err != nil {
		r.logger.Warn().Err(err).Msg("dismantle sink")
	}
}
