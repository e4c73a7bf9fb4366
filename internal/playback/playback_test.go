/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
)

type selector struct {
	selected   map[int]bool
	refuse     map[int]bool
	deselected []int
}

func newSelector() *selector {
	return &selector{selected: map[int]bool{}, refuse: map[int]bool{}}
}

func (s *selector) Select(idx int) error {
	if s.refuse[idx] {
		return errs.ErrGeneral
	}
	s.selected[idx] = true
	return nil
}

func (s *selector) Deselect(idx int) error {
	delete(s.selected, idx)
	s.deselected = append(s.deselected, idx)
	return nil
}

func (s *selector) Enable(int) error  { return nil }
func (s *selector) Disable(int) error { return nil }

type trick struct {
	speed int16
	calls [][2]int64
	fail  bool
}

func (t *trick) Trickplay(position int64, speed int16) error {
	t.calls = append(t.calls, [2]int64{position, int64(speed)})
	if t.fail && position != link.TrickplayNoChange {
		return errs.ErrGeneral
	}
	t.speed = speed
	return nil
}

func (t *trick) Speed() (int16, error) { return t.speed, nil }

type fakeSource struct {
	link.Source
	sel      *selector
	trick    *trick
	unlocked int
	resumed  int
	events   []link.Event
}

func (s *fakeSource) Control(cap link.Caps) (any, error) {
	switch {
	case cap == link.CapStreamSel && s.sel != nil:
		return s.sel, nil
	case cap == link.CapTrickplay && s.trick != nil:
		return s.trick, nil
	}
	return nil, errs.ErrNotFound
}

func (s *fakeSource) Unlock() error       { s.unlocked++; return nil }
func (s *fakeSource) Resume() error       { s.resumed++; return nil }
func (s *fakeSource) FlushBuffers() error { return nil }
func (s *fakeSource) HandleEvent(ev link.Event) error {
	s.events = append(s.events, ev)
	return nil
}

type fakeSink struct {
	link.Sink
	sel      *selector
	started  int
	stopped  int
	paused   int
	resumed  int
	flushed  int
	startErr error
}

func (s *fakeSink) Control(cap link.Caps) (any, error) {
	if cap == link.CapStreamSel && s.sel != nil {
		return s.sel, nil
	}
	return nil, errs.ErrNotFound
}

func (s *fakeSink) Start() error        { s.started++; return s.startErr }
func (s *fakeSink) Stop() error         { s.stopped++; return nil }
func (s *fakeSink) Pause(bool) error    { s.paused++; return nil }
func (s *fakeSink) Resume() error       { s.resumed++; return nil }
func (s *fakeSink) FlushBuffers() error { s.flushed++; return nil }

type view struct {
	src  link.Source
	sink link.Sink
}

func (v view) ID() uint32          { return 7 }
func (v view) Source() link.Source { return v.src }
func (v view) Sink() link.Sink     { return v.sink }

func avDesc() *media.Desc {
	return &media.Desc{ES: []media.ES{
		{ID: 1, Codec: media.CodecH264},
		{ID: 2, Codec: media.CodecAAC},
		{ID: 3, Codec: media.CodecAC3},
		{ID: 4, Codec: media.CodecTTXT},
	}}
}

func controller(t *testing.T) *Controller {
	t.Helper()
	ctrl := &Controller{}
	if err := NewDefaultFactory(zerolog.Nop()).Assign(view{}, ctrl); err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}
	return ctrl
}

func TestFactory_AssignAll(t *testing.T) {
	ctrl := controller(t)
	for _, cap := range Capabilities {
		if !ctrl.Has(cap) {
			t.Errorf("capability %v not assigned", cap)
		}
	}
}

type selectOnly struct{ called bool }

func (p *selectOnly) Probe(_ Chain, cap Capability) bool { return cap == CapSelect }
func (p *selectOnly) Assign(_ Chain, _ Capability, ctrl *Controller) error {
	ctrl.SelectFn = func(Chain, *media.Desc, uint32, bool) error { p.called = true; return nil }
	return nil
}

func TestFactory_PerCapabilityPrecedence(t *testing.T) {
	f := NewFactory(zerolog.Nop())
	custom := &selectOnly{}
	if err := f.Register("custom", custom); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := f.Register("simple", NewSimple(zerolog.Nop())); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := f.Register("simple", NewSimple(zerolog.Nop())); !errors.Is(err, errs.ErrInval) {
		t.Errorf("duplicate Register() = %v, want inval", err)
	}

	ctrl := &Controller{}
	if err := f.Assign(view{}, ctrl); err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}
	_ = ctrl.Select(view{}, avDesc(), 1, true)
	if !custom.called {
		t.Error("select not routed to first registered provider")
	}
	if !ctrl.Has(CapStart) {
		t.Error("start not filled in by the later provider")
	}
}

func TestFactory_NothingAssigned(t *testing.T) {
	f := NewFactory(zerolog.Nop())
	ctrl := &Controller{}
	if err := f.Assign(view{}, ctrl); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Assign() = %v, want not found", err)
	}
	if err := ctrl.Start(view{}, avDesc()); !errors.Is(err, errs.ErrInval) {
		t.Errorf("unassigned Start() = %v, want inval", err)
	}
	if err := f.Unregister("missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Unregister() = %v, want not found", err)
	}
}

func TestSimple_StartSelectsDefaults(t *testing.T) {
	ctrl := controller(t)
	src := &fakeSource{sel: newSelector()}
	sink := &fakeSink{sel: newSelector()}
	desc := avDesc()

	if err := ctrl.Start(view{src, sink}, desc); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !desc.ES[0].Selected || !desc.ES[1].Selected || desc.ES[2].Selected || desc.ES[3].Selected {
		t.Errorf("selection = %+v, want first video and first audio", desc.ES)
	}
	if !sink.sel.selected[0] || !sink.sel.selected[1] {
		t.Errorf("sink selected = %v, want 0 and 1", sink.sel.selected)
	}
	if sink.started != 1 || src.resumed != 1 {
		t.Errorf("started/resumed = %d/%d, want 1/1", sink.started, src.resumed)
	}
}

func TestSimple_StartKeepsFirstPreselected(t *testing.T) {
	ctrl := controller(t)
	sink := &fakeSink{sel: newSelector()}
	desc := avDesc()
	desc.ES[1].Selected = true
	desc.ES[2].Selected = true

	if err := ctrl.Start(view{&fakeSource{}, sink}, desc); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !desc.ES[1].Selected || desc.ES[2].Selected {
		t.Errorf("audio selection = %v/%v, want true/false", desc.ES[1].Selected, desc.ES[2].Selected)
	}
	if desc.ES[0].Selected {
		t.Error("video selected although a preselection existed")
	}
}

func TestSimple_StartFailures(t *testing.T) {
	ctrl := controller(t)

	src := &fakeSource{}
	if err := ctrl.Start(view{src, &fakeSink{}}, avDesc()); !errors.Is(err, errs.ErrGeneral) {
		t.Errorf("Start() without sink selector = %v, want general", err)
	}
	if src.unlocked != 1 {
		t.Errorf("unlocked = %d, want 1", src.unlocked)
	}

	src = &fakeSource{}
	noAV := &media.Desc{ES: []media.ES{{ID: 9, Codec: media.CodecTTXT}}}
	if err := ctrl.Start(view{src, &fakeSink{sel: newSelector()}}, noAV); !errors.Is(err, errs.ErrGeneral) {
		t.Errorf("Start() without A/V = %v, want general", err)
	}
	if src.unlocked != 1 {
		t.Errorf("unlocked = %d, want 1", src.unlocked)
	}

	sel := newSelector()
	sel.refuse[0], sel.refuse[1] = true, true
	desc := avDesc()
	if err := ctrl.Start(view{&fakeSource{}, &fakeSink{sel: sel}}, desc); !errors.Is(err, errs.ErrGeneral) {
		t.Errorf("Start() with refused tracks = %v, want general", err)
	}
	if desc.ES[0].Selected || desc.ES[1].Selected {
		t.Error("refused tracks still marked selected")
	}

	if err := ctrl.Start(view{nil, &fakeSink{}}, avDesc()); !errors.Is(err, errs.ErrGeneral) {
		t.Errorf("Start() without source = %v, want general", err)
	}
}

func TestSimple_Select(t *testing.T) {
	ctrl := controller(t)
	sink := &fakeSink{sel: newSelector()}
	src := &fakeSource{sel: newSelector()}
	ch := view{src, sink}
	desc := avDesc()
	desc.ES[1].Selected = true

	if err := ctrl.Select(ch, desc, 3, true); err != nil {
		t.Fatalf("Select(3, on) failed: %v", err)
	}
	if desc.ES[1].Selected || !desc.ES[2].Selected {
		t.Errorf("audio = %v/%v, want switched to track 3", desc.ES[1].Selected, desc.ES[2].Selected)
	}
	if len(sink.sel.deselected) != 1 || sink.sel.deselected[0] != 1 {
		t.Errorf("sink deselected = %v, want [1]", sink.sel.deselected)
	}

	if err := ctrl.Select(ch, desc, 3, true); err != nil {
		t.Errorf("Select() same state = %v, want nil", err)
	}
	if err := ctrl.Select(ch, desc, 3, false); err != nil {
		t.Fatalf("Select(3, off) failed: %v", err)
	}
	if desc.ES[2].Selected {
		t.Error("track 3 still selected")
	}
	if got := sink.sel.deselected[len(sink.sel.deselected)-1]; got != 2 {
		t.Errorf("deselected index = %d, want 2", got)
	}

	if err := ctrl.Select(ch, desc, 99, true); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Select(99) = %v, want not found", err)
	}
	if err := ctrl.Select(ch, desc, 4, true); !errors.Is(err, errs.ErrInval) {
		t.Errorf("Select(teletext) = %v, want inval", err)
	}
	if err := ctrl.Select(view{nil, sink}, desc, 1, true); !errors.Is(err, errs.ErrInval) {
		t.Errorf("Select() without source = %v, want inval", err)
	}
}

func TestSimple_Trickplay(t *testing.T) {
	ctrl := controller(t)

	if err := ctrl.Trickplay(view{&fakeSource{}, &fakeSink{}}, 0, 0); !errors.Is(err, errs.ErrGeneral) {
		t.Errorf("Trickplay() without control = %v, want general", err)
	}

	tr := &trick{speed: 1}
	sink := &fakeSink{}
	ch := view{&fakeSource{trick: tr}, sink}

	// Pause keeps buffered data.
	if err := ctrl.Trickplay(ch, link.TrickplayNoChange, 0); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if sink.paused != 1 || sink.flushed != 0 || sink.resumed != 0 {
		t.Errorf("pause paused/flushed/resumed = %d/%d/%d, want 1/0/0", sink.paused, sink.flushed, sink.resumed)
	}
	if tr.speed != 0 {
		t.Errorf("speed = %d, want 0", tr.speed)
	}

	// Resume in place keeps buffered data.
	if err := ctrl.Trickplay(ch, link.TrickplayNoChange, 1); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if sink.flushed != 0 || sink.resumed != 1 {
		t.Errorf("resume flushed/resumed = %d/%d, want 0/1", sink.flushed, sink.resumed)
	}

	// Same speed again without a seek is a no-op.
	calls := len(tr.calls)
	if err := ctrl.Trickplay(ch, link.TrickplayNoChange, 1); err != nil {
		t.Fatalf("no-op failed: %v", err)
	}
	if len(tr.calls) != calls {
		t.Error("no-op trickplay reached the source")
	}

	// A seek flushes.
	if err := ctrl.Trickplay(ch, 5000, 1); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if sink.flushed != 1 {
		t.Errorf("seek flushed = %d, want 1", sink.flushed)
	}
	last := tr.calls[len(tr.calls)-1]
	if last[0] != 5000 || last[1] != 1 {
		t.Errorf("last trickplay call = %v, want [5000 1]", last)
	}
}

func TestSimple_TrickplayFailureResumes(t *testing.T) {
	ctrl := controller(t)
	tr := &trick{speed: 1, fail: true}
	sink := &fakeSink{}
	if err := ctrl.Trickplay(view{&fakeSource{trick: tr}, sink}, 100, 2); !errors.Is(err, errs.ErrGeneral) {
		t.Errorf("Trickplay() = %v, want general", err)
	}
	if sink.resumed != 1 {
		t.Errorf("resumed = %d, want 1", sink.resumed)
	}
}

func TestSimple_StopAndBuffering(t *testing.T) {
	ctrl := controller(t)
	src := &fakeSource{}
	sink := &fakeSink{}
	ch := view{src, sink}

	if err := ctrl.Stop(ch); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if src.unlocked != 1 || sink.stopped != 1 || sink.flushed != 1 {
		t.Errorf("unlock/stop/flush = %d/%d/%d, want 1/1/1", src.unlocked, sink.stopped, sink.flushed)
	}
	if err := ctrl.Stop(view{}); err != nil {
		t.Errorf("Stop() on empty chain = %v, want nil", err)
	}

	_ = ctrl.StartBuffering(ch)
	_ = ctrl.StopBuffering(ch)
	if sink.paused != 1 || sink.resumed != 1 {
		t.Errorf("paused/resumed = %d/%d, want 1/1", sink.paused, sink.resumed)
	}
}

func TestSimple_HandleEvent(t *testing.T) {
	ctrl := controller(t)
	src := &fakeSource{}
	ch := view{src, &fakeSink{}}

	_ = ctrl.HandleEvent(ch, link.Event{Type: link.EventHighWatermark})
	_ = ctrl.HandleEvent(ch, link.Event{Type: link.EventEOS})
	if len(src.events) != 1 || src.events[0].Type != link.EventEOS {
		t.Errorf("forwarded = %v, want only EOS", src.events)
	}
}
