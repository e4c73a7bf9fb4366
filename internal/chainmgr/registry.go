/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package chainmgr keeps the sink id to chain registry. It serializes
// tunes per sink, lets a new tune interrupt a pending one and reuses the
// source and sink of the previous tune when they fit.
package chainmgr

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/eos/internal/chain"
	"github.com/friendsincode/eos/internal/datamgr"
	"github.com/friendsincode/eos/internal/engine"
	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/playback"
	"github.com/friendsincode/eos/internal/telemetry"
)

// DefaultLockTimeout bounds the source connect of a tune.
const DefaultLockTimeout = 5 * time.Second

// Config wires the registry to its factories.
type Config struct {
	Sources  *link.SourceFactory
	Sinks    *link.SinkFactory
	Playback *playback.Factory
	Engines  *engine.Factory

	LockTimeout time.Duration
	QueueLen    int
	DataManager datamgr.Options
	Metrics     *telemetry.Metrics

	// DataHandler receives engine output of every chain.
	DataHandler chain.DataHandler
}

// State summarizes an entry's counters.
type State int

const (
	StateIdle State = iota
	StateBusy
	StateTransitioning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateTransitioning:
		return "transitioning"
	}
	return "unknown"
}

type entry struct {
	id            uint32
	refs          int
	manipulations int
	chain         *chain.Chain

	// Lock order is interrupt, lynk, tune.
	interrupt sync.Mutex
	lynk      sync.Mutex
	tune      sync.Mutex
}

// state derives the entry state. Busy carries the number of holders.
func (e *entry) state() (State, int) {
	switch {
	case e.manipulations > 0:
		return StateTransitioning, e.manipulations
	case e.refs > 0:
		return StateBusy, e.refs
	}
	return StateIdle, 0
}

// Registry maps sink ids to chains.
type Registry struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[uint32]*entry
	closed  bool
}

// New creates an empty registry.
func New(cfg Config, logger zerolog.Logger) (*Registry, error) {
	if cfg.Sources == nil || cfg.Sinks == nil || cfg.Playback == nil || cfg.Engines == nil {
		return nil, fmt.Errorf("registry needs source, sink, playback and engine factories: %w", errs.ErrInval)
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = chain.DefaultQueueLen
	}
	return &Registry{
		cfg:     cfg,
		logger:  logger.With().Str("component", "chainmgr").Logger(),
		entries: make(map[uint32]*entry),
	}, nil
}

// Get hands out the chain of an idle entry and counts the caller as a
// holder until Release.
func (r *Registry) Get(sinkID uint32) (*chain.Chain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sinkID]
	if !ok {
		return nil, fmt.Errorf("sink %d: %w", sinkID, errs.ErrNotFound)
	}
	if e.refs != 0 || e.manipulations != 0 {
		st, n := e.state()
		return nil, fmt.Errorf("sink %d %v(%d): %w", sinkID, st, n, errs.ErrNotFound)
	}
	e.refs++
	return e.chain, nil
}

// Release returns a chain obtained from Get.
func (r *Registry) Release(sinkID uint32, ch *chain.Chain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sinkID]
	if !ok || e.chain != ch || e.refs == 0 {
		return fmt.Errorf("release sink %d: %w", sinkID, errs.ErrNotFound)
	}
	e.refs--
	return nil
}

// Create tunes the chain of sinkID to url, creating the chain on first
// use. A tune already in flight on the sink is interrupted.
func (r *Registry) Create(ctx context.Context, url, extras string, sinkID uint32, handler chain.EventHandler) (err error) {
	start := time.Now()
	ctx, span := telemetry.StartChainSpan(ctx, "create", sinkID, attribute.String("eos.url", url))
	defer func() {
		telemetry.EndSpan(span, err)
		r.cfg.Metrics.ObserveChainOp("create", start, err)
	}()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("registry closed: %w", errs.ErrPerm)
	}
	e, ok := r.entries[sinkID]
	if ok && e.refs > 0 {
		r.mu.Unlock()
		return fmt.Errorf("sink %d held by %d callers: %w", sinkID, e.refs, errs.ErrPerm)
	}
	if !ok {
		ch, cerr := chain.New(r.logger, sinkID, chain.Options{
			QueueLen:    r.cfg.QueueLen,
			Engines:     r.cfg.Engines,
			DataManager: r.cfg.DataManager,
			Metrics:     r.cfg.Metrics,
		})
		if cerr != nil {
			r.mu.Unlock()
			return cerr
		}
		e = &entry{id: sinkID, chain: ch}
		r.entries[sinkID] = e
		r.cfg.Metrics.SetActiveChains(len(r.entries))
	}
	e.manipulations++
	r.mu.Unlock()

	e.chain.SetEventHandler(handler)
	if r.cfg.DataHandler != nil {
		e.chain.SetDataHandler(r.cfg.DataHandler)
	}
	err = r.assemble(ctx, e, url, extras)

	r.mu.Lock()
	e.manipulations--
	destroy := err != nil && e.refs == 0 && e.manipulations == 0 && r.entries[sinkID] == e
	if destroy {
		delete(r.entries, sinkID)
		r.cfg.Metrics.SetActiveChains(len(r.entries))
	}
	r.mu.Unlock()

	if destroy {
		r.disassemble(e)
		e.chain.Close()
	}
	if err != nil {
		r.logger.Warn().Err(err).Uint32("sink_id", sinkID).Str("url", url).Msg("tune failed")
		return err
	}
	r.logger.Info().Uint32("sink_id", sinkID).Str("url", url).Str("session_id", e.chain.Session()).Msg("tuned")
	return nil
}

// Destroy tears down an idle chain.
func (r *Registry) Destroy(sinkID uint32) (err error) {
	start := time.Now()
	_, span := telemetry.StartChainSpan(context.Background(), "destroy", sinkID)
	defer func() {
		telemetry.EndSpan(span, err)
		r.cfg.Metrics.ObserveChainOp("destroy", start, err)
	}()

	r.mu.Lock()
	e, ok := r.entries[sinkID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("sink %d: %w", sinkID, errs.ErrNotFound)
	}
	if e.refs != 0 || e.manipulations != 0 {
		st, n := e.state()
		r.mu.Unlock()
		return fmt.Errorf("sink %d %v(%d): %w", sinkID, st, n, errs.ErrPerm)
	}
	delete(r.entries, sinkID)
	r.cfg.Metrics.SetActiveChains(len(r.entries))
	r.mu.Unlock()

	r.disassemble(e)
	e.chain.Close()
	r.logger.Info().Uint32("sink_id", sinkID).Msg("chain destroyed")
	return nil
}

// Interrupt aborts the pending connect of sinkID. It never waits for the
// tune in progress.
func (r *Registry) Interrupt(sinkID uint32) error {
	r.mu.Lock()
	e, ok := r.entries[sinkID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("sink %d: %w", sinkID, errs.ErrNotFound)
	}
	e.interrupt.Lock()
	e.lynk.Lock()
	e.chain.Interrupt()
	e.lynk.Unlock()
	e.interrupt.Unlock()
	return nil
}

// Info describes one registry entry.
type Info struct {
	SinkID    uint32 `json:"sink_id"`
	State     string `json:"state"`
	Holders   int    `json:"holders"`
	Connected bool   `json:"connected"`
	Playing   bool   `json:"playing"`
	Session   string `json:"session_id,omitempty"`
}

// Snapshot lists the entries ordered by sink id.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	type item struct {
		info Info
		ch   *chain.Chain
	}
	items := make([]item, 0, len(r.entries))
	for id, e := range r.entries {
		st, n := e.state()
		items = append(items, item{info: Info{SinkID: id, State: st.String(), Holders: n}, ch: e.chain})
	}
	r.mu.Unlock()

	out := make([]Info, 0, len(items))
	for _, it := range items {
		it.info.Connected = it.ch.Connected()
		it.info.Playing = it.ch.Playing()
		it.info.Session = it.ch.Session()
		out = append(out, it.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SinkID < out[j].SinkID })
	return out
}

// Close interrupts every tune, then tears every chain down.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[uint32]*entry)
	r.cfg.Metrics.SetActiveChains(0)
	r.mu.Unlock()

	for _, e := range entries {
		e.interrupt.Lock()
		e.lynk.Lock()
		e.chain.Interrupt()
		e.lynk.Unlock()
		e.tune.Lock()
		e.interrupt.Unlock()
		r.disassemble(e)
		e.tune.Unlock()
		e.chain.Close()
	}
	r.logger.Info().Int("chains", len(entries)).Msg("registry closed")
}
