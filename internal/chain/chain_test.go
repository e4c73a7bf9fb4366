/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package chain

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/friendsincode/eos/internal/engine"
	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/loopback"
	"github.com/friendsincode/eos/internal/playback"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	chain  *Chain
	src    *loopback.Source
	sink   *loopback.Sink
	events chan Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srcModel := loopback.NewSourceModel(zerolog.Nop(), loopback.SourceOptions{})
	src, err := srcModel.Manufacture("loop://test")
	if err != nil {
		t.Fatalf("source Manufacture() failed: %v", err)
	}
	sinkModel := loopback.NewSinkModel(zerolog.Nop(), loopback.SinkOptions{})
	sink, err := sinkModel.Manufacture(1)
	if err != nil {
		t.Fatalf("sink Manufacture() failed: %v", err)
	}
	c, err := New(zerolog.Nop(), 1, Options{Engines: engine.NewDefaultFactory(zerolog.Nop())})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	f := &fixture{chain: c, src: src.(*loopback.Source), sink: sink.(*loopback.Sink), events: make(chan Event, 32)}
	c.SetEventHandler(func(ev Event) { f.events <- ev })
	if err := c.SetSource(src); err != nil {
		t.Fatalf("SetSource() failed: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Unlock()
		c.Close()
	})
	return f
}

func (f *fixture) lock(t *testing.T) {
	t.Helper()
	if err := f.chain.Lock(context.Background(), "loop://test", "", time.Second); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
}

// attach binds the sink and the default controller.
func (f *fixture) attach(t *testing.T) {
	t.Helper()
	if err := f.chain.SetSink(f.sink); err != nil {
		t.Fatalf("SetSink() failed: %v", err)
	}
	if err := f.chain.LoadPlaybackController(playback.NewDefaultFactory(zerolog.Nop())); err != nil {
		t.Fatalf("LoadPlaybackController() failed: %v", err)
	}
}

func (f *fixture) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-f.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	return Event{}
}

func TestNew_RequiresEngines(t *testing.T) {
	if _, err := New(zerolog.Nop(), 1, Options{}); !errors.Is(err, errs.ErrInval) {
		t.Errorf("New() = %v, want invalid", err)
	}
}

func TestLock(t *testing.T) {
	f := newFixture(t)
	f.lock(t)

	if !f.chain.Connected() {
		t.Error("Connected() = false after Lock")
	}
	if f.chain.Session() == "" {
		t.Error("Session() empty after Lock")
	}
	ev := f.next(t)
	if ev.Type != EventConnState || ev.Conn != Connected || ev.Reason != ReasonUser {
		t.Errorf("event = %+v, want connected by user", ev)
	}
	if ev.ChainID != 1 || ev.SessionID != f.chain.Session() {
		t.Errorf("event ids = %d/%q, want 1/%q", ev.ChainID, ev.SessionID, f.chain.Session())
	}
	if got, want := f.chain.Streams(), loopback.DefaultMedia(); !reflect.DeepEqual(got, want) {
		t.Errorf("Streams() = %+v, want %+v", got, want)
	}

	if err := f.chain.Lock(context.Background(), "loop://test", "", time.Second); !errors.Is(err, errs.ErrInval) {
		t.Errorf("second Lock() = %v, want invalid", err)
	}
	if err := f.chain.SetSource(nil); !errors.Is(err, errs.ErrGeneral) {
		t.Errorf("SetSource(nil) while connected = %v, want general", err)
	}
}

func TestLock_Failures(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		timeout time.Duration
		want    error
	}{
		{"empty url", "", time.Second, errs.ErrInval},
		{"refused", "loop://test?refuse=1", time.Second, errs.ErrGeneral},
		{"timeout", "loop://test?delay=2s", 50 * time.Millisecond, errs.ErrTimedOut},
		{"bad delay", "loop://test?delay=soon", time.Second, errs.ErrInval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.chain.Lock(context.Background(), tt.url, "", tt.timeout)
			if !errors.Is(err, tt.want) {
				t.Errorf("Lock(%q) = %v, want %v", tt.url, err, tt.want)
			}
			if f.chain.Connected() {
				t.Error("Connected() = true after failed Lock")
			}
		})
	}
}

func TestLock_RelockAfterTimeout(t *testing.T) {
	f := newFixture(t)
	// A slow host handler keeps the event goroutine behind the source.
	f.chain.SetEventHandler(func(Event) { time.Sleep(50 * time.Millisecond) })
	f.chain.push(link.Event{Type: link.EventBOS})

	ctx := context.Background()
	if err := f.chain.Lock(ctx, "loop://test?delay=1s", "", 5*time.Millisecond); !errors.Is(err, errs.ErrTimedOut) {
		t.Fatalf("first Lock() = %v, want timed out", err)
	}
	if f.chain.Connected() {
		t.Fatal("Connected() = true after timed out Lock")
	}
	if err := f.chain.Lock(ctx, "loop://test?delay=200ms", "", 2*time.Second); err != nil {
		t.Fatalf("second Lock() = %v, want nil", err)
	}
	if !f.chain.Connected() {
		t.Error("Connected() = false after second Lock")
	}
}

func TestDisconnectClearsStreams(t *testing.T) {
	f := newFixture(t)
	f.lock(t)
	f.next(t)

	f.chain.push(link.Event{Type: link.EventDisconnected})
	ev := f.next(t)
	if ev.Type != EventConnState || ev.Conn != Disconnected || ev.Reason != ReasonUser {
		t.Fatalf("event = %+v, want disconnected by user", ev)
	}
	if f.chain.Connected() {
		t.Error("Connected() = true after disconnect")
	}
	if got := len(f.chain.Streams().ES); got != 0 {
		t.Errorf("Streams() has %d tracks after disconnect, want 0", got)
	}
}

func TestLock_NoSource(t *testing.T) {
	c, err := New(zerolog.Nop(), 2, Options{Engines: engine.NewDefaultFactory(zerolog.Nop())})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer c.Close()
	if err := c.Lock(context.Background(), "loop://x", "", time.Second); !errors.Is(err, errs.ErrInval) {
		t.Errorf("Lock() = %v, want invalid", err)
	}
	if err := c.SetSink(nil); err != nil {
		t.Errorf("SetSink(nil) without source = %v, want nil", err)
	}
}

func TestInterrupt(t *testing.T) {
	f := newFixture(t)
	done := make(chan error, 1)
	go func() {
		done <- f.chain.Lock(context.Background(), "loop://test?delay=10s", "", 10*time.Second)
	}()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case err := <-done:
			if !errors.Is(err, errs.ErrGeneral) {
				t.Errorf("interrupted Lock() = %v, want general", err)
			}
			return
		case <-tick.C:
			f.chain.Interrupt()
		case <-deadline:
			t.Fatal("Lock() not interrupted")
		}
	}
}

func TestSetSink(t *testing.T) {
	f := newFixture(t)
	if err := f.chain.SetSink(f.sink); err != nil {
		t.Fatalf("SetSink() failed: %v", err)
	}
	if f.chain.Sink() != link.Sink(f.sink) {
		t.Error("Sink() does not return the bound sink")
	}
	if err := f.chain.SetSink(nil); !errors.Is(err, errs.ErrGeneral) {
		t.Errorf("SetSink(nil) with source = %v, want general", err)
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	if err := f.chain.Start(); !errors.Is(err, errs.ErrInval) {
		t.Errorf("Start() without controller = %v, want invalid", err)
	}
	f.lock(t)
	f.next(t)
	f.attach(t)

	if err := f.chain.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	ev := f.next(t)
	if ev.Type != EventState || ev.State != StatePlaying {
		t.Errorf("event = %+v, want playing", ev)
	}
	if !f.chain.Playing() {
		t.Error("Playing() = false after first frame")
	}

	streams := f.chain.Streams()
	if !streams.ES[0].Selected || !streams.ES[1].Selected || streams.ES[2].Selected {
		t.Errorf("selection = %+v, want first video and audio", streams.ES)
	}
	if page, err := f.chain.TTXTNextPage(); err != nil || page != 101 {
		t.Errorf("TTXTNextPage() = %d, %v, want 101", page, err)
	}

	if err := f.chain.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if f.chain.Playing() || f.chain.Connected() {
		t.Error("chain still connected after Stop")
	}
	if _, err := f.chain.TTXTNextPage(); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("TTXTNextPage() after Stop = %v, want not found", err)
	}
	if st := f.sink.State(); st.Running {
		t.Error("sink still running after Stop")
	}
}

func TestSetTrack(t *testing.T) {
	f := newFixture(t)
	f.lock(t)
	f.attach(t)
	if err := f.chain.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if err := f.chain.SetTrack(0x102, true); err != nil {
		t.Fatalf("SetTrack(audio) failed: %v", err)
	}
	streams := f.chain.Streams()
	if streams.ES[1].Selected || !streams.ES[2].Selected {
		t.Errorf("audio selection = %v/%v, want false/true", streams.ES[1].Selected, streams.ES[2].Selected)
	}

	if err := f.chain.SetTrack(0x103, false); err != nil {
		t.Fatalf("SetTrack(teletext off) failed: %v", err)
	}
	if f.chain.Streams().ES[3].Selected {
		t.Error("teletext still selected")
	}
	if err := f.chain.SetTrack(0x999, true); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("SetTrack(missing) = %v, want not found", err)
	}
}

func TestTrickplay(t *testing.T) {
	f := newFixture(t)
	f.lock(t)
	f.attach(t)
	if err := f.chain.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := f.chain.Trickplay(link.TrickplayNoChange, 0); err != nil {
		t.Fatalf("Trickplay(pause) failed: %v", err)
	}
	if got := f.src.Speed(); got != 0 {
		t.Errorf("Speed() = %d, want 0", got)
	}
	if st := f.sink.State(); !st.Paused {
		t.Error("sink not paused")
	}
	if err := f.chain.StartBuffering(); err != nil {
		t.Errorf("StartBuffering() failed: %v", err)
	}
	if err := f.chain.StopBuffering(); err != nil {
		t.Errorf("StopBuffering() failed: %v", err)
	}
}

func TestEventTranslation(t *testing.T) {
	f := newFixture(t)
	f.lock(t)
	f.next(t)
	if err := f.chain.SetSink(f.sink); err != nil {
		t.Fatalf("SetSink() failed: %v", err)
	}

	f.sink.Emit(link.Event{Type: link.EventHighWatermark})
	f.sink.Emit(link.Event{Type: link.EventEOS})
	if ev := f.next(t); ev.Type != EventPlaybackStatus || ev.Status != StatusEOS {
		t.Errorf("event = %+v, want eos", ev)
	}

	f.sink.Emit(link.Event{Type: link.EventFrameDisplayed})
	f.sink.Emit(link.Event{Type: link.EventFrameDisplayed})
	f.sink.Emit(link.Event{Type: link.EventLowWatermark})
	if ev := f.next(t); ev.Type != EventState {
		t.Errorf("event = %+v, want playing once", ev)
	}
	if ev := f.next(t); ev.Type != EventPlaybackStatus || ev.Status != StatusLowWatermark {
		t.Errorf("event = %+v, want low watermark", ev)
	}

	info := link.PlayInfo{Position: 1500}
	f.sink.Emit(link.Event{Type: link.EventPlayInfo, PlayInfo: info})
	if ev := f.next(t); ev.Type != EventPlayInfo || ev.PlayInfo != info {
		t.Errorf("event = %+v, want play info", ev)
	}

	f.sink.Emit(link.Event{Type: link.EventConnLost})
	ev := f.next(t)
	if ev.Type != EventConnState || ev.Conn != Disconnected || ev.Reason != ReasonReadErr {
		t.Errorf("event = %+v, want disconnected on read error", ev)
	}
	if f.chain.Connected() {
		t.Error("Connected() = true after connection loss")
	}
}
