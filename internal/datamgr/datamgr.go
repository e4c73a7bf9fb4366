/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package datamgr runs the auxiliary data engines of one tune cycle. It
// selects data tracks, attaches an engine per engine class and routes
// engine output to the chain's data callback.
package datamgr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/engine"
	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
	"github.com/friendsincode/eos/internal/telemetry"
)

// Options configures a Manager.
type Options struct {
	// Manual* keep the matching tracks out of auto-selection.
	ManualTTXT  bool
	ManualHbbTV bool
	ManualDSMCC bool

	Engines  *engine.Factory
	Callback engine.Callback
	Metrics  *telemetry.Metrics
}

type attachment struct {
	idx    int
	engine engine.Engine
}

// Manager holds at most one engine per engine class.
type Manager struct {
	logger zerolog.Logger
	sink   link.Sink
	opts   Options

	mu       sync.Mutex
	running  bool
	attached []attachment
}

// New creates a manager feeding engines from sink.
func New(logger zerolog.Logger, sink link.Sink, opts Options) (*Manager, error) {
	if sink == nil || opts.Engines == nil || opts.Callback == nil {
		return nil, errs.ErrInval
	}
	return &Manager{
		logger: logger.With().Str("component", "datamgr").Logger(),
		sink:   sink,
		opts:   opts,
	}, nil
}

// Running reports whether Start succeeded and Stop has not run since.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) autoSelect(c media.Codec) bool {
	switch c {
	case media.CodecTTXT:
		return !m.opts.ManualTTXT
	case media.CodecHbbTV:
		return !m.opts.ManualHbbTV
	case media.CodecDSMCCC:
		return !m.opts.ManualDSMCC
	}
	return false
}

// Start selects the default data tracks and attaches their engines.
func (m *Manager) Start(streams *media.Desc) error {
	if streams == nil {
		return errs.ErrInval
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("data manager already running: %w", errs.ErrPerm)
	}

	for i := range streams.ES {
		if m.autoSelect(streams.ES[i].Codec) {
			streams.ES[i].Selected = true
		}
	}

	caps := m.sink.Caps()
	if caps.Has(link.CapDataProv) {
		if err := m.startDataProvider(streams); err != nil {
			m.logger.Error().Err(err).Msg("data provider engine not started")
		}
	}
	if caps.Has(link.CapStreamProv) {
		m.startStreamEngines(streams)
	}
	m.running = true
	return nil
}

func (m *Manager) startDataProvider(streams *media.Desc) error {
	if sel, err := link.ControlOf[link.StreamSelector](m.sink, link.CapStreamSel); err == nil {
		for i := range streams.ES {
			if streams.ES[i].Codec != media.CodecTTXT {
				continue
			}
			if err := sel.Select(i); err != nil {
				m.logger.Warn().Err(err).Uint32("es", streams.ES[i].ID).Msg("teletext select failed")
			}
		}
	}

	dp, err := link.ControlOf[link.DataProvider](m.sink, link.CapDataProv)
	if err != nil {
		return fmt.Errorf("sink data provider: %w", err)
	}
	e, err := m.opts.Engines.Manufacture(engine.Params{Codec: media.CodecDAT, Callback: m.opts.Callback})
	if err != nil {
		return err
	}
	api, ok := e.API().(engine.DataProvAPI)
	if !ok {
		m.dismantle(e)
		return fmt.Errorf("engine %s has no data provider API: %w", e.Name(), errs.ErrInval)
	}
	if err := api.SetDataProvider(dp); err != nil {
		m.dismantle(e)
		return fmt.Errorf("bind data provider: %w", err)
	}
	if err := m.store(len(streams.ES), e); err != nil {
		m.dismantle(e)
		return err
	}
	return nil
}

func (m *Manager) startStreamEngines(streams *media.Desc) {
	prov, err := link.ControlOf[link.StreamProvider](m.sink, link.CapStreamProv)
	if err != nil {
		m.logger.Warn().Err(err).Msg("sink stream provider unavailable")
		return
	}
	for i := range streams.ES {
		es := &streams.ES[i]
		if !es.Selected || !es.Codec.IsData() {
			continue
		}
		if err := m.attach(prov, i, es.Codec); err != nil {
			m.logger.Warn().Err(err).Uint32("es", es.ID).Stringer("codec", es.Codec).Msg("engine not attached")
			es.Selected = false
		}
	}
}

// attach manufactures an engine for codec and hooks it to track idx.
func (m *Manager) attach(prov link.StreamProvider, idx int, codec media.Codec) error {
	if m.find(engine.TypeForCodec(codec)) >= 0 {
		return fmt.Errorf("engine class %v already attached: %w", engine.TypeForCodec(codec), errs.ErrBusy)
	}
	e, err := m.opts.Engines.Manufacture(engine.Params{Codec: codec, Callback: m.opts.Callback})
	if err != nil {
		return fmt.Errorf("no engine for %v: %w", codec, errs.ErrNotFound)
	}
	hook := e.Hook()
	if hook == nil {
		m.dismantle(e)
		return fmt.Errorf("engine %s takes no stream input: %w", e.Name(), errs.ErrInval)
	}
	if err := prov.Attach(idx, hook); err != nil {
		m.dismantle(e)
		return fmt.Errorf("attach %s at %d: %w", e.Name(), idx, err)
	}
	if err := m.store(idx, e); err != nil {
		if derr := prov.Detach(idx); derr != nil {
			m.logger.Warn().Err(derr).Int("track", idx).Msg("engine detach failed")
		}
		m.dismantle(e)
		return err
	}
	return nil
}

func (m *Manager) store(idx int, e engine.Engine) error {
	if m.find(e.Type()) >= 0 {
		return fmt.Errorf("engine class %v already stored: %w", e.Type(), errs.ErrBusy)
	}
	m.attached = append(m.attached, attachment{idx: idx, engine: e})
	m.opts.Metrics.EngineAttached(e.Type().String())
	m.logger.Debug().Str("engine", e.Name()).Int("track", idx).Msg("engine attached")
	return nil
}

func (m *Manager) find(t engine.Type) int {
	for i, a := range m.attached {
		if a.engine.Type() == t {
			return i
		}
	}
	return -1
}

func (m *Manager) remove(i int) attachment {
	a := m.attached[i]
	m.attached = append(m.attached[:i], m.attached[i+1:]...)
	m.opts.Metrics.EngineDetached(a.engine.Type().String())
	return a
}

func (m *Manager) dismantle(e engine.Engine) {
	if err := m.opts.Engines.Dismantle(e); err != nil {
		m.logger.Warn().Err(err).Str("engine", e.Name()).Msg("engine dismantle failed")
	}
}

// detach unhooks, removes and dismantles the attachment at position i.
func (m *Manager) detach(prov link.StreamProvider, i int) int {
	a := m.remove(i)
	if prov != nil {
		if err := prov.Detach(a.idx); err != nil {
			m.logger.Warn().Err(err).Int("track", a.idx).Msg("engine detach failed")
		}
	}
	m.dismantle(a.engine)
	return a.idx
}

// errFallThrough marks a track the subtitle path does not handle.
var errFallThrough = errors.New("not a sink subtitle track")

// Set switches a data track on or off.
func (m *Manager) Set(streams *media.Desc, id uint32, on bool) error {
	if streams == nil {
		return errs.ErrInval
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.setSubtitle(streams, id, on); !errors.Is(err, errFallThrough) {
		return err
	}

	idx := streams.Index(id)
	if idx < 0 {
		return fmt.Errorf("track %d: %w", id, errs.ErrNotFound)
	}
	es := &streams.ES[idx]
	if !es.Codec.IsData() {
		return fmt.Errorf("track %d is %v: %w", id, es.Codec, errs.ErrInval)
	}
	if es.Selected == on {
		return nil
	}
	typ := engine.TypeForCodec(es.Codec)
	if typ == engine.TypeInvalid {
		return fmt.Errorf("no engine class for %v: %w", es.Codec, errs.ErrInval)
	}
	prov, err := link.ControlOf[link.StreamProvider](m.sink, link.CapStreamProv)
	if err != nil {
		return fmt.Errorf("sink stream provider: %w", errs.ErrNotFound)
	}

	cur := m.find(typ)
	if !on {
		if cur < 0 || m.attached[cur].idx != idx {
			return fmt.Errorf("no %v engine on track %d: %w", typ, id, errs.ErrNotFound)
		}
		m.detach(prov, cur)
		es.Selected = false
		return nil
	}

	if cur >= 0 {
		old := m.detach(prov, cur)
		if old < len(streams.ES) {
			streams.ES[old].Selected = false
		}
	}
	if err := m.attach(prov, idx, es.Codec); err != nil {
		return err
	}
	es.Selected = true
	return nil
}

// setSubtitle routes DVB subtitles through the sink's own selection.
func (m *Manager) setSubtitle(streams *media.Desc, id uint32, on bool) error {
	if !m.sink.Caps().Has(link.CapDataProv | link.CapStreamSel) {
		return fmt.Errorf("sink cannot render subtitles: %w", errFallThrough)
	}
	idx := streams.Index(id)
	if idx < 0 || streams.ES[idx].Codec != media.CodecDVBSub {
		return errFallThrough
	}
	es := &streams.ES[idx]
	if es.Selected == on {
		return nil
	}
	sel, err := link.ControlOf[link.StreamSelector](m.sink, link.CapStreamSel)
	if err != nil {
		return err
	}
	if !on {
		if err := sel.Deselect(idx); err != nil {
			return fmt.Errorf("deselect subtitle %d: %w", id, err)
		}
		es.Selected = false
		return nil
	}
	for i := range streams.ES {
		other := &streams.ES[i]
		if i == idx || !other.Selected || other.Codec != media.CodecDVBSub {
			continue
		}
		if err := sel.Deselect(i); err != nil {
			m.logger.Warn().Err(err).Uint32("es", other.ID).Msg("subtitle deselect failed")
		}
		other.Selected = false
	}
	if err := sel.Select(idx); err != nil {
		return fmt.Errorf("select subtitle %d: %w", id, err)
	}
	es.Selected = true
	return nil
}

// Stop detaches and dismantles every engine.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var prov link.StreamProvider
	if m.sink.Caps().Has(link.CapStreamProv) {
		prov, _ = link.ControlOf[link.StreamProvider](m.sink, link.CapStreamProv)
	}
	for len(m.attached) > 0 {
		i := len(m.attached) - 1
		if m.attached[i].engine.Type() == engine.TypeDataProv {
			m.dismantle(m.remove(i).engine)
			continue
		}
		m.detach(prov, i)
	}
	m.running = false
	return nil
}

// Poll fetches the current page of a data stream from the sink. Only
// teletext is supported.
func (m *Manager) Poll(codec media.Codec, id uint32) (media.Data, error) {
	if codec != media.CodecTTXT {
		return media.Data{}, fmt.Errorf("poll %v: %w", codec, errs.ErrInval)
	}
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if !running {
		return media.Data{}, fmt.Errorf("data manager stopped: %w", errs.ErrPerm)
	}
	dp, err := link.ControlOf[link.DataProvider](m.sink, link.CapDataProv)
	if err != nil {
		return media.Data{}, err
	}
	return dp.Poll(id, codec)
}

// HandleEvent fans ev out to engines interested in link events.
func (m *Manager) HandleEvent(ev link.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attached {
		h, ok := a.engine.(engine.EventHandler)
		if !ok {
			continue
		}
		if err := h.HandleEvent(ev); err != nil {
			m.logger.Debug().Err(err).Str("engine", a.engine.Name()).Stringer("event", ev.Type).Msg("engine event")
		}
	}
}

// Attached returns the track index of each attached engine by class.
func (m *Manager) Attached() map[engine.Type]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[engine.Type]int, len(m.attached))
	for _, a := range m.attached {
		out[a.engine.Type()] = a.idx
	}
	return out
}
