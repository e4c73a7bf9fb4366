/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package loopback

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
)

// Scheme is the URL scheme served by the loopback source.
const Scheme = "loop://"

// SourceOptions configures sources built by a SourceModel.
type SourceOptions struct {
	// Media is announced on connect. DefaultMedia is used when empty.
	Media media.Desc
	// ConnectDelay elapses before the connect outcome is reported. A
	// "delay" URL query parameter overrides it.
	ConnectDelay time.Duration
	// Refuse reports NO_CONNECT instead of CONNECTED. A "refuse=1" query
	// parameter has the same effect.
	Refuse bool
	Output link.IOType
}

// DefaultMedia is one video, two audio, a teletext and an HbbTV track.
func DefaultMedia() media.Desc {
	return media.Desc{
		Container: media.ContainerMPEGTS,
		ES: []media.ES{
			{ID: 0x100, Codec: media.CodecH264, Video: media.VideoAttr{FPS: 25, Width: 1920, Height: 1080}},
			{ID: 0x101, Codec: media.CodecAAC, Lang: "eng", Audio: media.AudioAttr{Rate: 48000, Channels: 2}},
			{ID: 0x102, Codec: media.CodecAC3, Lang: "deu", Audio: media.AudioAttr{Rate: 48000, Channels: 6}},
			{ID: 0x103, Codec: media.CodecTTXT, Lang: "eng", TTXT: []media.TTXTPageInfo{{Lang: "eng", Type: media.TTXTInitialPage, Page: 100}}},
			{ID: 0x104, Codec: media.CodecHbbTV},
		},
	}
}

// SourceModel builds loopback sources.
type SourceModel struct {
	logger zerolog.Logger
	opts   SourceOptions
}

// NewSourceModel creates a source model.
func NewSourceModel(logger zerolog.Logger, opts SourceOptions) *SourceModel {
	if opts.Output == 0 {
		opts.Output = link.IOTS
	}
	if len(opts.Media.ES) == 0 {
		opts.Media = DefaultMedia()
	}
	return &SourceModel{logger: logger.With().Str("component", "loopback_source").Logger(), opts: opts}
}

func (m *SourceModel) Name() string { return "loopback" }

func (m *SourceModel) Probe(u string) bool { return strings.HasPrefix(u, Scheme) }

func (m *SourceModel) Manufacture(u string) (link.Source, error) {
	if !m.Probe(u) {
		return nil, errs.ErrInval
	}
	return &Source{logger: m.logger, opts: m.opts, trick: &trickplay{speed: 1}, sel: newSelector()}, nil
}

func (m *SourceModel) Dismantle(src link.Source) error {
	s, ok := src.(*Source)
	if !ok {
		return errs.ErrInval
	}
	return s.Unlock()
}

// Source emulates an ingest that connects after a delay.
type Source struct {
	logger zerolog.Logger
	opts   SourceOptions
	trick  *trickplay
	sel    *selector

	mu        sync.Mutex
	url       string
	handler   link.EventHandler
	suspend   chan struct{}
	wg        sync.WaitGroup
	connected bool
	suspended bool
	plug      link.Plug
	resumed   int
	flushed   int
	events    []link.Event
}

func (s *Source) Name() string { return "loopback" }

func (s *Source) Probe(u string) bool { return strings.HasPrefix(u, Scheme) }

func (s *Source) Caps() link.Caps {
	return link.CapSource | link.CapTrickplay | link.CapStreamSel
}

func (s *Source) OutputType() (link.IOType, error) { return s.opts.Output, nil }

func (s *Source) Control(cap link.Caps) (any, error) {
	switch cap {
	case link.CapTrickplay:
		return link.Trickplayer(s.trick), nil
	case link.CapStreamSel:
		return link.StreamSelector(s.sel), nil
	}
	return nil, fmt.Errorf("loopback source control %v: %w", cap, errs.ErrNotFound)
}

// parse applies URL query overrides.
func (s *Source) parse(raw string) (time.Duration, bool, error) {
	delay, refuse := s.opts.ConnectDelay, s.opts.Refuse
	u, err := url.Parse(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse %q: %w", raw, errs.ErrInval)
	}
	q := u.Query()
	if d := q.Get("delay"); d != "" {
		if delay, err = time.ParseDuration(d); err != nil {
			return 0, false, fmt.Errorf("delay %q: %w", d, errs.ErrInval)
		}
	}
	if q.Get("refuse") == "1" {
		refuse = true
	}
	return delay, refuse, nil
}

func (s *Source) Lock(u, _ string, handler link.EventHandler) error {
	if handler == nil {
		return errs.ErrInval
	}
	delay, refuse, err := s.parse(u)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suspend != nil {
		return fmt.Errorf("loopback source busy: %w", errs.ErrBusy)
	}
	s.url = u
	s.handler = handler
	s.suspend = make(chan struct{})
	s.suspended = false
	s.wg.Add(1)
	go s.connect(handler, s.suspend, delay, refuse)
	return nil
}

func (s *Source) connect(handler link.EventHandler, suspend <-chan struct{}, delay time.Duration, refuse bool) {
	defer s.wg.Done()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-suspend:
		handler(link.Event{Type: link.EventNoConnect})
		return
	}
	if refuse {
		s.logger.Debug().Str("url", s.url).Msg("refusing connect")
		handler(link.Event{Type: link.EventNoConnect})
		return
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	handler(link.Event{Type: link.EventConnected, Conn: link.ConnInfo{Media: s.opts.Media.Clone()}})
}

// Suspend aborts a pending connect.
func (s *Source) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suspend != nil && !s.suspended {
		close(s.suspend)
		s.suspended = true
	}
	return nil
}

// Unlock aborts any pending connect and drops the connection.
func (s *Source) Unlock() error {
	_ = s.Suspend()
	s.wg.Wait()
	s.mu.Lock()
	s.suspend = nil
	s.suspended = false
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *Source) Resume() error {
	s.mu.Lock()
	s.resumed++
	s.mu.Unlock()
	return nil
}

func (s *Source) FlushBuffers() error {
	s.mu.Lock()
	s.flushed++
	s.mu.Unlock()
	return nil
}

func (s *Source) AssignOutput(plug link.Plug) error {
	s.mu.Lock()
	s.plug = plug
	s.mu.Unlock()
	return nil
}

func (s *Source) HandleEvent(ev link.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

// Connected reports whether the last connect succeeded and was not undone.
func (s *Source) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Feed writes payload through the assigned plug.
func (s *Source) Feed(data []byte) error {
	s.mu.Lock()
	plug := s.plug
	s.mu.Unlock()
	if plug == nil {
		return errs.ErrPerm
	}
	buf, err := plug.Allocate(len(data))
	if err != nil {
		return err
	}
	n := copy(buf, data)
	return plug.Commit(buf, n)
}

// URL returns the url of the last Lock.
func (s *Source) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Selected returns the track indexes the chain selected on the source.
func (s *Source) Selected() []int { return s.sel.list() }

// Speed returns the current trickplay speed.
func (s *Source) Speed() int16 {
	sp, _ := s.trick.Speed()
	return sp
}

type trickplay struct {
	mu       sync.Mutex
	speed    int16
	position int64
}

func (t *trickplay) Trickplay(position int64, speed int16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if position != link.TrickplayNoChange {
		if position < -1 {
			return errs.ErrInval
		}
		t.position = position
	}
	t.speed = speed
	return nil
}

func (t *trickplay) Speed() (int16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speed, nil
}
