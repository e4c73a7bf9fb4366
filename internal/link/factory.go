/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package link

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/media"
)

// SourceModel builds sources of one kind.
type SourceModel interface {
	Name() string
	Probe(url string) bool
	Manufacture(url string) (Source, error)
	Dismantle(src Source) error
}

// SinkModel builds sinks of one kind.
type SinkModel interface {
	Name() string
	Caps() Caps
	PlugType() IOType
	Manufacture(id uint32) (Sink, error)
	Dismantle(sink Sink) error
}

// SourceFactory picks the first registered model able to serve a URL.
type SourceFactory struct {
	logger   zerolog.Logger
	mu       sync.Mutex
	models   []SourceModel
	products map[Source]SourceModel
}

// NewSourceFactory creates an empty source factory.
func NewSourceFactory(logger zerolog.Logger) *SourceFactory {
	return &SourceFactory{
		logger:   logger.With().Str("component", "source_factory").Logger(),
		products: make(map[Source]SourceModel),
	}
}

// Register adds a model. Models are probed in registration order.
func (f *SourceFactory) Register(model SourceModel) error {
	if model == nil {
		return errs.ErrInval
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.models {
		if m.Name() == model.Name() {
			return fmt.Errorf("source model %s already registered: %w", model.Name(), errs.ErrInval)
		}
	}
	f.models = append(f.models, model)
	f.logger.Info().Str("model", model.Name()).Msg("registered source model")
	return nil
}

// Unregister removes the model with the given name.
func (f *SourceFactory) Unregister(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.models {
		if m.Name() == name {
			f.models = append(f.models[:i], f.models[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("source model %s: %w", name, errs.ErrNotFound)
}

// Manufacture creates a source for url.
func (f *SourceFactory) Manufacture(url string) (Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.models {
		if !m.Probe(url) {
			continue
		}
		src, err := m.Manufacture(url)
		if err != nil {
			return nil, fmt.Errorf("manufacture %s source: %w", m.Name(), err)
		}
		f.products[src] = m
		f.logger.Debug().Str("model", m.Name()).Str("url", url).Msg("manufactured source")
		return src, nil
	}
	return nil, fmt.Errorf("no source for %q: %w", url, errs.ErrNotFound)
}

// Dismantle releases a source obtained from Manufacture.
func (f *SourceFactory) Dismantle(src Source) error {
	if src == nil {
		return errs.ErrInval
	}
	f.mu.Lock()
	m, ok := f.products[src]
	delete(f.products, src)
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("source %s not from this factory: %w", src.Name(), errs.ErrNotFound)
	}
	if err := m.Dismantle(src); err != nil {
		return fmt.Errorf("dismantle %s source: %w", m.Name(), err)
	}
	return nil
}

type sinkProduct struct {
	model SinkModel
	id    uint32
}

// SinkFactory hands out at most one live sink per sink id.
type SinkFactory struct {
	logger   zerolog.Logger
	mu       sync.Mutex
	models   []SinkModel
	products map[Sink]sinkProduct
	live     map[uint32]bool
}

// NewSinkFactory creates an empty sink factory.
func NewSinkFactory(logger zerolog.Logger) *SinkFactory {
	return &SinkFactory{
		logger:   logger.With().Str("component", "sink_factory").Logger(),
		products: make(map[Sink]sinkProduct),
		live:     make(map[uint32]bool),
	}
}

// Register adds a model.
func (f *SinkFactory) Register(model SinkModel) error {
	if model == nil {
		return errs.ErrInval
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.models {
		if m.Name() == model.Name() {
			return fmt.Errorf("sink model %s already registered: %w", model.Name(), errs.ErrInval)
		}
	}
	f.models = append(f.models, model)
	f.logger.Info().Str("model", model.Name()).Msg("registered sink model")
	return nil
}

// Unregister removes the model with the given name.
func (f *SinkFactory) Unregister(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.models {
		if m.Name() == name {
			f.models = append(f.models[:i], f.models[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("sink model %s: %w", name, errs.ErrNotFound)
}

// Manufacture creates a sink for id able to take input and offering at
// least one of caps, then sets it up for desc.
func (f *SinkFactory) Manufacture(id uint32, desc media.Desc, caps Caps, input IOType) (Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live[id] {
		return nil, fmt.Errorf("sink %d already live: %w", id, errs.ErrPerm)
	}
	for _, m := range f.models {
		if !m.Caps().Overlaps(caps) || !m.PlugType().Overlaps(input) {
			continue
		}
		sink, err := m.Manufacture(id)
		if err != nil {
			f.logger.Error().Err(err).Str("model", m.Name()).Msg("sink manufacture failed")
			return nil, fmt.Errorf("manufacture %s sink: %w", m.Name(), err)
		}
		if err := sink.Setup(id, desc); err != nil {
			if derr := m.Dismantle(sink); derr != nil {
				f.logger.Warn().Err(derr).Str("model", m.Name()).Msg("dismantle after failed setup")
			}
			return nil, fmt.Errorf("setup %s sink %d: %w", m.Name(), id, err)
		}
		f.products[sink] = sinkProduct{model: m, id: id}
		f.live[id] = true
		f.logger.Debug().Str("model", m.Name()).Uint32("sink_id", id).Msg("manufactured sink")
		return sink, nil
	}
	return nil, fmt.Errorf("no sink for caps %v input %#x: %w", caps, uint32(input), errs.ErrNotFound)
}

// Dismantle releases a sink and frees its id.
func (f *SinkFactory) Dismantle(sink Sink) error {
	if sink == nil {
		return errs.ErrInval
	}
	f.mu.Lock()
	p, ok := f.products[sink]
	delete(f.products, sink)
	if ok {
		delete(f.live, p.id)
	}
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("sink %s not from this factory: %w", sink.Name(), errs.ErrNotFound)
	}
	if err := p.model.Dismantle(sink); err != nil {
		f.logger.Warn().Err(err).Str("model", p.model.Name()).Msg("sink dismantle failed")
	}
	return nil
}
