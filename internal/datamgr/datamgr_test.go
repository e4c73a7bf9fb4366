/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package datamgr

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/engine"
	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/loopback"
	"github.com/friendsincode/eos/internal/media"
)

const (
	idxTTXT  = 3
	idxHbbTV = 4
)

type recorder struct {
	mu    sync.Mutex
	types []engine.Type
	data  [][]byte
}

func (r *recorder) cb(t engine.Type, _ engine.DataType, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, t)
	r.data = append(r.data, data)
	return nil
}

func newManager(t *testing.T, caps link.Caps, opts Options) (*Manager, *loopback.Sink, *media.Desc, *recorder) {
	t.Helper()
	model := loopback.NewSinkModel(zerolog.Nop(), loopback.SinkOptions{Caps: caps})
	s, err := model.Manufacture(1)
	if err != nil {
		t.Fatalf("Manufacture() failed: %v", err)
	}
	rec := &recorder{}
	opts.Engines = engine.NewDefaultFactory(zerolog.Nop())
	opts.Callback = rec.cb
	m, err := New(zerolog.Nop(), s, opts)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	streams := loopback.DefaultMedia()
	return m, s.(*loopback.Sink), &streams, rec
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New(zerolog.Nop(), nil, Options{}); !errors.Is(err, errs.ErrInval) {
		t.Errorf("New(nil sink) = %v, want invalid", err)
	}
}

func TestStart_AutoSelect(t *testing.T) {
	m, s, streams, _ := newManager(t, loopback.SinkCaps, Options{})
	if err := m.Start(streams); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !m.Running() {
		t.Error("Running() = false after Start")
	}
	if !streams.ES[idxTTXT].Selected || !streams.ES[idxHbbTV].Selected {
		t.Errorf("data tracks not auto-selected: %+v", streams.ES)
	}

	got := m.Attached()
	want := map[engine.Type]int{
		engine.TypeDataProv: len(streams.ES),
		engine.TypeTTXT:     idxTTXT,
		engine.TypeHbbTV:    idxHbbTV,
	}
	for typ, idx := range want {
		if got[typ] != idx {
			t.Errorf("Attached()[%v] = %d, want %d", typ, got[typ], idx)
		}
	}
	if len(got) != len(want) {
		t.Errorf("Attached() = %v, want %v", got, want)
	}
	if st := s.State(); len(st.Attached) != 2 {
		t.Errorf("sink hooks = %v, want two", st.Attached)
	}

	if err := m.Start(streams); !errors.Is(err, errs.ErrPerm) {
		t.Errorf("second Start() = %v, want perm", err)
	}
}

func TestStart_ManualTTXT(t *testing.T) {
	m, _, streams, _ := newManager(t, loopback.SinkCaps, Options{ManualTTXT: true})
	if err := m.Start(streams); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if streams.ES[idxTTXT].Selected {
		t.Error("teletext selected despite manual override")
	}
	if _, ok := m.Attached()[engine.TypeTTXT]; ok {
		t.Error("teletext engine attached despite manual override")
	}
}

func TestSet_Toggle(t *testing.T) {
	m, s, streams, _ := newManager(t, loopback.SinkCaps, Options{})
	if err := m.Start(streams); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	ttxt := streams.ES[idxTTXT].ID

	if err := m.Set(streams, ttxt, false); err != nil {
		t.Fatalf("Set(off) failed: %v", err)
	}
	if streams.ES[idxTTXT].Selected {
		t.Error("teletext still selected")
	}
	if _, ok := m.Attached()[engine.TypeTTXT]; ok {
		t.Error("teletext engine still attached")
	}
	if st := s.State(); len(st.Attached) != 1 {
		t.Errorf("sink hooks = %v, want one", st.Attached)
	}

	if err := m.Set(streams, ttxt, true); err != nil {
		t.Fatalf("Set(on) failed: %v", err)
	}
	if got := m.Attached()[engine.TypeTTXT]; got != idxTTXT {
		t.Errorf("teletext engine at %d, want %d", got, idxTTXT)
	}
	if err := m.Set(streams, ttxt, true); err != nil {
		t.Errorf("Set(on) again = %v, want nil", err)
	}
}

func TestSet_Errors(t *testing.T) {
	m, _, streams, _ := newManager(t, loopback.SinkCaps, Options{})
	if err := m.Start(streams); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	tests := []struct {
		name string
		id   uint32
		want error
	}{
		{"missing", 0x999, errs.ErrNotFound},
		{"video", streams.ES[0].ID, errs.ErrInval},
		{"audio", streams.ES[1].ID, errs.ErrInval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.Set(streams, tt.id, true); !errors.Is(err, tt.want) {
				t.Errorf("Set(%#x) = %v, want %v", tt.id, err, tt.want)
			}
		})
	}
}

func TestSet_Subtitle(t *testing.T) {
	m, s, streams, _ := newManager(t, loopback.SinkCaps, Options{})
	streams.ES = append(streams.ES,
		media.ES{ID: 0x200, Codec: media.CodecDVBSub, Lang: "eng"},
		media.ES{ID: 0x201, Codec: media.CodecDVBSub, Lang: "deu"},
	)
	if err := m.Start(streams); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if err := m.Set(streams, 0x200, true); err != nil {
		t.Fatalf("Set(0x200) failed: %v", err)
	}
	if err := m.Set(streams, 0x201, true); err != nil {
		t.Fatalf("Set(0x201) failed: %v", err)
	}
	if streams.ES[5].Selected {
		t.Error("first subtitle still selected")
	}
	if !streams.ES[6].Selected {
		t.Error("second subtitle not selected")
	}
	sel := s.State().Selected
	found := false
	for _, i := range sel {
		if i == 5 {
			t.Errorf("sink still selects index 5: %v", sel)
		}
		if i == 6 {
			found = true
		}
	}
	if !found {
		t.Errorf("sink selection %v lacks index 6", sel)
	}
}

func TestHbbTV_URL(t *testing.T) {
	m, s, streams, rec := newManager(t, loopback.SinkCaps, Options{})
	if err := m.Start(streams); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if _, err := m.HbbTVURL(); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("HbbTVURL() before AIT = %v, want not found", err)
	}

	apps, _ := json.Marshal([]engine.Application{{AppID: 1, URL: "http://red.example/app", Autostart: true}})
	if err := s.Push(idxHbbTV, apps); err != nil {
		t.Fatalf("Push() failed: %v", err)
	}
	url, err := m.HbbTVURL()
	if err != nil {
		t.Fatalf("HbbTVURL() failed: %v", err)
	}
	if url != "http://red.example/app" {
		t.Errorf("HbbTVURL() = %q, want red button app", url)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.types) != 1 || rec.types[0] != engine.TypeHbbTV {
		t.Errorf("callback types = %v, want one hbbtv", rec.types)
	}
}

func TestTeletextPages(t *testing.T) {
	m, s, streams, _ := newManager(t, loopback.SinkCaps, Options{})
	if err := m.Start(streams); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	page, err := m.TTXTNextPage()
	if err != nil {
		t.Fatalf("TTXTNextPage() failed: %v", err)
	}
	if page != 101 {
		t.Errorf("TTXTNextPage() = %d, want 101", page)
	}
	if err := m.TTXTPageSet(300, 2); err != nil {
		t.Fatalf("TTXTPageSet() failed: %v", err)
	}
	if st := s.State(); st.Page != 300 || st.Subpage != 2 {
		t.Errorf("sink page = %d/%d, want 300/2", st.Page, st.Subpage)
	}

	d, err := m.Poll(media.CodecTTXT, streams.ES[idxTTXT].ID)
	if err != nil {
		t.Fatalf("Poll() failed: %v", err)
	}
	var got struct {
		Page    uint16 `json:"page"`
		Subpage uint16 `json:"subpage"`
	}
	if err := json.Unmarshal(d.Bytes, &got); err != nil {
		t.Fatalf("decode poll: %v", err)
	}
	if got.Page != 300 || got.Subpage != 2 {
		t.Errorf("Poll() = %+v, want page 300/2", got)
	}
	if _, err := m.Poll(media.CodecHbbTV, 0x104); !errors.Is(err, errs.ErrInval) {
		t.Errorf("Poll(hbbtv) = %v, want invalid", err)
	}
}

func TestNoDataProvider(t *testing.T) {
	caps := link.CapSink | link.CapStreamSel | link.CapStreamProv
	m, _, streams, _ := newManager(t, caps, Options{})
	if err := m.Start(streams); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if _, err := m.TTXTNextPage(); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("TTXTNextPage() = %v, want not found", err)
	}
	if _, ok := m.Attached()[engine.TypeDataProv]; ok {
		t.Error("data provider engine attached without sink support")
	}
}

func TestStop(t *testing.T) {
	m, s, streams, _ := newManager(t, loopback.SinkCaps, Options{})
	if err := m.Start(streams); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if m.Running() {
		t.Error("Running() = true after Stop")
	}
	if got := m.Attached(); len(got) != 0 {
		t.Errorf("Attached() = %v after Stop", got)
	}
	if st := s.State(); len(st.Attached) != 0 {
		t.Errorf("sink hooks = %v after Stop", st.Attached)
	}
	if _, err := m.Poll(media.CodecTTXT, 0x103); !errors.Is(err, errs.ErrPerm) {
		t.Errorf("Poll() after Stop = %v, want perm", err)
	}
}
