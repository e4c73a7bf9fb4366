/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/errs"
)

// Provider supplies controller functions for the capabilities it accepts.
type Provider interface {
	Probe(ch Chain, cap Capability) bool
	Assign(ch Chain, cap Capability, ctrl *Controller) error
}

type namedProvider struct {
	name     string
	provider Provider
}

// Factory is the provider registry.
type Factory struct {
	logger    zerolog.Logger
	mu        sync.RWMutex
	providers []namedProvider
}

// NewFactory creates an empty factory.
func NewFactory(logger zerolog.Logger) *Factory {
	return &Factory{logger: logger.With().Str("component", "playback_factory").Logger()}
}

// NewDefaultFactory creates a factory with the simple provider registered.
func NewDefaultFactory(logger zerolog.Logger) *Factory {
	f := NewFactory(logger)
	_ = f.Register("simple", NewSimple(logger))
	return f
}

// Register appends a provider. Earlier providers take precedence.
func (f *Factory) Register(name string, p Provider) error {
	if name == "" || p == nil {
		return errs.ErrInval
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, np := range f.providers {
		if np.name == name {
			return fmt.Errorf("provider %s already registered: %w", name, errs.ErrInval)
		}
	}
	f.providers = append(f.providers, namedProvider{name: name, provider: p})
	f.logger.Info().Str("provider", name).Msg("registered playback provider")
	return nil
}

// Unregister removes a provider.
func (f *Factory) Unregister(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, np := range f.providers {
		if np.name == name {
			f.providers = append(f.providers[:i], f.providers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("provider %s: %w", name, errs.ErrNotFound)
}

// Assign resolves every capability independently to the first provider
// accepting it. It fails with errs.ErrNotFound only when nothing at all
// could be assigned.
func (f *Factory) Assign(ch Chain, ctrl *Controller) error {
	if ctrl == nil {
		return errs.ErrInval
	}
	f.mu.RLock()
	providers := append([]namedProvider(nil), f.providers...)
	f.mu.RUnlock()

	assigned := 0
	for _, cap := range Capabilities {
		for _, np := range providers {
			if !np.provider.Probe(ch, cap) {
				continue
			}
			if err := np.provider.Assign(ch, cap, ctrl); err != nil {
				f.logger.Warn().Err(err).Str("provider", np.name).Stringer("capability", cap).Msg("assign failed")
				continue
			}
			assigned++
			break
		}
		if !ctrl.Has(cap) {
			f.logger.Debug().Stringer("capability", cap).Msg("no provider for capability")
		}
	}
	if assigned == 0 {
		return fmt.Errorf("no playback provider: %w", errs.ErrNotFound)
	}
	return nil
}
