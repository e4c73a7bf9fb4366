/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package loopback

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
)

// SinkCaps is what a loopback sink offers unless configured otherwise.
const SinkCaps = link.CapSink | link.CapStreamSel | link.CapStreamProv | link.CapDataProv | link.CapAVOutSet

// SinkOptions configures sinks built by a SinkModel.
type SinkOptions struct {
	Caps     link.Caps
	PlugType link.IOType
	// FailSetup makes Setup fail, exercising the rollback paths.
	FailSetup bool
	// SetupLimit caps the Setup calls one sink accepts. Zero is unlimited.
	SetupLimit int
}

// SinkModel builds loopback sinks and remembers the live ones.
type SinkModel struct {
	logger zerolog.Logger
	opts   SinkOptions

	mu    sync.Mutex
	sinks map[uint32]*Sink
	built int
}

// NewSinkModel creates a sink model.
func NewSinkModel(logger zerolog.Logger, opts SinkOptions) *SinkModel {
	if opts.Caps == 0 {
		opts.Caps = SinkCaps
	}
	if opts.PlugType == 0 {
		opts.PlugType = link.IOTS | link.IOES
	}
	return &SinkModel{
		logger: logger.With().Str("component", "loopback_sink").Logger(),
		opts:   opts,
		sinks:  make(map[uint32]*Sink),
	}
}

func (m *SinkModel) Name() string          { return "loopback" }
func (m *SinkModel) Caps() link.Caps       { return m.opts.Caps }
func (m *SinkModel) PlugType() link.IOType { return m.opts.PlugType }

func (m *SinkModel) Manufacture(id uint32) (link.Sink, error) {
	s := &Sink{
		logger:   m.logger.With().Uint32("sink_id", id).Logger(),
		id:       id,
		caps:     m.opts.Caps,
		plugType: m.opts.PlugType,
		failSet:  m.opts.FailSetup,
		limit:    m.opts.SetupLimit,
		sel:      newSelector(),
		prov:     &streamProvider{hooks: make(map[int]link.StreamHook)},
		data:     &dataProvider{page: 100},
		av:       &avOutput{},
	}
	m.mu.Lock()
	m.sinks[id] = s
	m.built++
	m.mu.Unlock()
	return s, nil
}

func (m *SinkModel) Dismantle(sink link.Sink) error {
	s, ok := sink.(*Sink)
	if !ok {
		return errs.ErrInval
	}
	m.mu.Lock()
	if m.sinks[s.id] == s {
		delete(m.sinks, s.id)
	}
	m.mu.Unlock()
	s.mu.Lock()
	s.dismantled = true
	s.mu.Unlock()
	return nil
}

// Sink returns the live sink with the given id.
func (m *SinkModel) Sink(id uint32) (*Sink, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sinks[id]
	return s, ok
}

// Built returns the number of sinks manufactured so far.
func (m *SinkModel) Built() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.built
}

// Sink records what the chain asks of it. Once started it reports
// a displayed frame.
type Sink struct {
	logger   zerolog.Logger
	id       uint32
	caps     link.Caps
	plugType link.IOType
	failSet  bool
	limit    int
	sel      *selector
	prov     *streamProvider
	data     *dataProvider
	av       *avOutput

	mu         sync.Mutex
	handler    link.EventHandler
	media      media.Desc
	setups     int
	running    bool
	paused     bool
	buffering  bool
	stops      int
	flushes    int
	committed  int
	dismantled bool
}

func (s *Sink) Name() string          { return "loopback" }
func (s *Sink) ID() uint32            { return s.id }
func (s *Sink) Caps() link.Caps       { return s.caps }
func (s *Sink) PlugType() link.IOType { return s.plugType }
func (s *Sink) Plug() link.Plug       { return s }

func (s *Sink) Control(cap link.Caps) (any, error) {
	if !s.caps.Has(cap) {
		return nil, fmt.Errorf("loopback sink control %v: %w", cap, errs.ErrNotFound)
	}
	switch cap {
	case link.CapStreamSel:
		return link.StreamSelector(s.sel), nil
	case link.CapStreamProv:
		return link.StreamProvider(s.prov), nil
	case link.CapDataProv:
		return link.DataProvider(s.data), nil
	case link.CapAVOutSet:
		return link.AVOutput(s.av), nil
	}
	return nil, fmt.Errorf("loopback sink control %v: %w", cap, errs.ErrNotFound)
}

func (s *Sink) Setup(id uint32, desc media.Desc) error {
	if s.failSet {
		return fmt.Errorf("loopback sink %d setup refused: %w", id, errs.ErrGeneral)
	}
	if err := desc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.limit > 0 && s.setups >= s.limit {
		s.mu.Unlock()
		return fmt.Errorf("loopback sink %d setup limit reached: %w", id, errs.ErrGeneral)
	}
	s.media = desc.Clone()
	s.setups++
	s.mu.Unlock()
	s.logger.Debug().Int("streams", len(desc.ES)).Msg("sink set up")
	return nil
}

func (s *Sink) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.paused = false
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler(link.Event{Type: link.EventFrameDisplayed, Frame: link.FrameInfo{KeyFrame: true}})
	}
	return nil
}

func (s *Sink) Stop() error {
	s.mu.Lock()
	s.running = false
	s.stops++
	s.mu.Unlock()
	return nil
}

func (s *Sink) Pause(buffering bool) error {
	s.mu.Lock()
	s.paused = true
	s.buffering = buffering
	s.mu.Unlock()
	return nil
}

func (s *Sink) Resume() error {
	s.mu.Lock()
	s.paused = false
	s.buffering = false
	s.mu.Unlock()
	return nil
}

func (s *Sink) FlushBuffers() error {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
	return nil
}

func (s *Sink) RegisterEventHandler(handler link.EventHandler) error {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
	return nil
}

// Allocate implements link.Plug.
func (s *Sink) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errs.ErrInval
	}
	return make([]byte, size), nil
}

// Commit implements link.Plug. Committed payload is fanned out to the
// attached stream hooks.
func (s *Sink) Commit(buf []byte, n int) error {
	if n < 0 || n > len(buf) {
		return errs.ErrInval
	}
	s.mu.Lock()
	s.committed += n
	s.mu.Unlock()
	return s.prov.push(buf[:n])
}

// Emit pushes ev to the registered handler as if the renderer raised it.
func (s *Sink) Emit(ev link.Event) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

// Push feeds payload to the hook attached at track idx.
func (s *Sink) Push(idx int, data []byte) error {
	return s.prov.pushTo(idx, data)
}

// PushData hands data to the data provider callback, as a sink decoding
// teletext or subtitles itself would.
func (s *Sink) PushData(codec media.Codec, data media.Data) error {
	return s.data.push(codec, data)
}

// SinkState is a snapshot of a sink's recorded calls.
type SinkState struct {
	Media      media.Desc
	Setups     int
	Running    bool
	Paused     bool
	Buffering  bool
	Stops      int
	Flushes    int
	Committed  int
	Dismantled bool
	Selected   []int
	Attached   []int
	DVBSub     bool
	Page       uint16
	Subpage    uint16
	Video      [4]uint16
	Passthru   bool
	Leveling   bool
	Level      link.VolumeLevel
}

// State returns a snapshot of the sink.
func (s *Sink) State() SinkState {
	s.mu.Lock()
	st := SinkState{
		Media:      s.media.Clone(),
		Setups:     s.setups,
		Running:    s.running,
		Paused:     s.paused,
		Buffering:  s.buffering,
		Stops:      s.stops,
		Flushes:    s.flushes,
		Committed:  s.committed,
		Dismantled: s.dismantled,
	}
	s.mu.Unlock()
	st.Selected = s.sel.list()
	st.Attached = s.prov.list()
	st.DVBSub, st.Page, st.Subpage = s.data.state()
	st.Video, st.Passthru, st.Leveling, st.Level = s.av.state()
	return st
}

type streamProvider struct {
	mu    sync.Mutex
	hooks map[int]link.StreamHook
}

func (p *streamProvider) Attach(idx int, hook link.StreamHook) error {
	if hook == nil {
		return errs.ErrInval
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.hooks[idx]; ok {
		return fmt.Errorf("track %d already attached: %w", idx, errs.ErrBusy)
	}
	p.hooks[idx] = hook
	return nil
}

func (p *streamProvider) Detach(idx int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.hooks[idx]; !ok {
		return fmt.Errorf("track %d not attached: %w", idx, errs.ErrNotFound)
	}
	delete(p.hooks, idx)
	return nil
}

func (p *streamProvider) pushTo(idx int, data []byte) error {
	p.mu.Lock()
	hook, ok := p.hooks[idx]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("track %d not attached: %w", idx, errs.ErrNotFound)
	}
	return hook(data)
}

func (p *streamProvider) push(data []byte) error {
	p.mu.Lock()
	hooks := make([]link.StreamHook, 0, len(p.hooks))
	for _, h := range p.hooks {
		hooks = append(hooks, h)
	}
	p.mu.Unlock()
	for _, h := range hooks {
		if err := h(data); err != nil {
			return err
		}
	}
	return nil
}

func (p *streamProvider) list() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedKeys(p.hooks)
}

type dataProvider struct {
	mu      sync.Mutex
	cb      link.DataCallback
	page    uint16
	subpage uint16
	dvbsub  bool
}

type pageJSON struct {
	Page    uint16 `json:"page"`
	Subpage uint16 `json:"subpage"`
}

func (d *dataProvider) Poll(id uint32, codec media.Codec) (media.Data, error) {
	if codec != media.CodecTTXT {
		return media.Data{}, errs.ErrInval
	}
	d.mu.Lock()
	p := pageJSON{Page: d.page, Subpage: d.subpage}
	d.mu.Unlock()
	b, err := json.Marshal(p)
	if err != nil {
		return media.Data{}, err
	}
	return media.Data{Codec: codec, Format: media.FormatJSON, Bytes: b}, nil
}

func (d *dataProvider) SetCallback(cb link.DataCallback) error {
	d.mu.Lock()
	d.cb = cb
	d.mu.Unlock()
	return nil
}

func (d *dataProvider) push(codec media.Codec, data media.Data) error {
	d.mu.Lock()
	cb := d.cb
	d.mu.Unlock()
	if cb == nil {
		return errs.ErrPerm
	}
	return cb(codec, data)
}

// Teletext pages run from 100 to 899.
func (d *dataProvider) move(delta int) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := int(d.page) + delta
	switch {
	case p > 899:
		p = 100
	case p < 100:
		p = 899
	}
	d.page = uint16(p)
	d.subpage = 0
	return d.page, nil
}

func (d *dataProvider) TTXTPageSet(page, subpage uint16) error {
	if page < 100 || page > 899 {
		return errs.ErrInval
	}
	d.mu.Lock()
	d.page, d.subpage = page, subpage
	d.mu.Unlock()
	return nil
}

func (d *dataProvider) TTXTPageGet() (uint16, uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page, d.subpage, nil
}

func (d *dataProvider) TTXTNextPage() (uint16, error)  { return d.move(1) }
func (d *dataProvider) TTXTPrevPage() (uint16, error)  { return d.move(-1) }
func (d *dataProvider) TTXTNextBlock() (uint16, error) { return d.move(10) }
func (d *dataProvider) TTXTNextGroup() (uint16, error) { return d.move(100) }
func (d *dataProvider) TTXTRedPage() (uint16, error)   { return d.move(-1) }
func (d *dataProvider) TTXTGreenPage() (uint16, error) { return d.move(1) }

func (d *dataProvider) TTXTNextSubpage() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subpage++
	return d.subpage, nil
}

func (d *dataProvider) TTXTPrevSubpage() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subpage == 0 {
		return 0, errs.ErrBOL
	}
	d.subpage--
	return d.subpage, nil
}

func (d *dataProvider) DVBSubEnable(enable bool) error {
	d.mu.Lock()
	d.dvbsub = enable
	d.mu.Unlock()
	return nil
}

func (d *dataProvider) state() (bool, uint16, uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dvbsub, d.page, d.subpage
}

type avOutput struct {
	mu       sync.Mutex
	video    [4]uint16 // x, y, w, h
	passthru bool
	leveling bool
	level    link.VolumeLevel
}

func (a *avOutput) VideoMove(x, y uint16) error {
	a.mu.Lock()
	a.video[0], a.video[1] = x, y
	a.mu.Unlock()
	return nil
}

func (a *avOutput) VideoScale(w, h uint16) error {
	if w == 0 || h == 0 {
		return errs.ErrInval
	}
	a.mu.Lock()
	a.video[2], a.video[3] = w, h
	a.mu.Unlock()
	return nil
}

func (a *avOutput) AudioPassthrough(enable bool) error {
	a.mu.Lock()
	a.passthru = enable
	a.mu.Unlock()
	return nil
}

func (a *avOutput) VolumeLeveling(enable bool, level link.VolumeLevel) error {
	a.mu.Lock()
	a.leveling, a.level = enable, level
	a.mu.Unlock()
	return nil
}

func (a *avOutput) state() ([4]uint16, bool, bool, link.VolumeLevel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.video, a.passthru, a.leveling, a.level
}
