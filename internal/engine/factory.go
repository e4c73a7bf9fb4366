/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/media"
)

// Model builds engines of one kind.
type Model interface {
	Name() string
	Probe(codec media.Codec) bool
	Manufacture(p Params) (Engine, error)
	Dismantle(e Engine) error
}

// Factory resolves a codec to the first registered model accepting it.
type Factory struct {
	logger   zerolog.Logger
	mu       sync.Mutex
	models   []Model
	products map[Engine]Model
}

// NewFactory creates an empty engine factory.
func NewFactory(logger zerolog.Logger) *Factory {
	return &Factory{
		logger:   logger.With().Str("component", "engine_factory").Logger(),
		products: make(map[Engine]Model),
	}
}

// NewDefaultFactory creates a factory with the built-in models registered.
func NewDefaultFactory(logger zerolog.Logger) *Factory {
	f := NewFactory(logger)
	for _, m := range []Model{
		DataProvModel{},
		HbbTVModel{},
		RawModel{Codec: media.CodecTTXT},
		RawModel{Codec: media.CodecDSMCCC},
	} {
		if err := f.Register(m); err != nil {
			f.logger.Error().Err(err).Str("model", m.Name()).Msg("built-in engine model not registered")
		}
	}
	return f
}

// Register adds a model.
func (f *Factory) Register(model Model) error {
	if model == nil {
		return errs.ErrInval
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.models {
		if m.Name() == model.Name() {
			return fmt.Errorf("engine model %s already registered: %w", model.Name(), errs.ErrInval)
		}
	}
	f.models = append(f.models, model)
	f.logger.Debug().Str("model", model.Name()).Msg("registered engine model")
	return nil
}

// Models returns the registered model names in probe order.
func (f *Factory) Models() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.models))
	for i, m := range f.models {
		names[i] = m.Name()
	}
	return names
}

// Unregister removes the model with the given name.
func (f *Factory) Unregister(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.models {
		if m.Name() == name {
			f.models = append(f.models[:i], f.models[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("engine model %s: %w", name, errs.ErrNotFound)
}

// Manufacture creates an engine for p.Codec.
func (f *Factory) Manufacture(p Params) (Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.models {
		if !m.Probe(p.Codec) {
			continue
		}
		e, err := m.Manufacture(p)
		if err != nil {
			return nil, fmt.Errorf("manufacture %s engine: %w", m.Name(), err)
		}
		f.products[e] = m
		return e, nil
	}
	f.logger.Warn().Stringer("codec", p.Codec).Msg("no engine model for codec")
	return nil, fmt.Errorf("no engine for codec %v: %w", p.Codec, errs.ErrNotFound)
}

// Dismantle releases an engine obtained from Manufacture.
func (f *Factory) Dismantle(e Engine) error {
	if e == nil {
		return errs.ErrInval
	}
	f.mu.Lock()
	m, ok := f.products[e]
	delete(f.products, e)
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("engine %s not from this factory: %w", e.Name(), errs.ErrNotFound)
	}
	return m.Dismantle(e)
}

// Live returns the number of engines not yet dismantled.
func (f *Factory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.products)
}
