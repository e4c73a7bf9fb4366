/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package loopback is a reference source and sink backend. The source
// "connects" to loop:// URLs after a configurable delay and announces a
// fixed stream descriptor; the sink records every request and renders
// nothing.
package loopback

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
)

// Register adds the loopback models to the factories and returns them.
func Register(logger zerolog.Logger, sources *link.SourceFactory, sinks *link.SinkFactory, srcOpts SourceOptions, sinkOpts SinkOptions) (*SourceModel, *SinkModel, error) {
	sm := NewSourceModel(logger, srcOpts)
	km := NewSinkModel(logger, sinkOpts)
	if err := sources.Register(sm); err != nil {
		return nil, nil, fmt.Errorf("register loopback source: %w", err)
	}
	if err := sinks.Register(km); err != nil {
		_ = sources.Unregister(sm.Name())
		return nil, nil, fmt.Errorf("register loopback sink: %w", err)
	}
	return sm, km, nil
}

type selector struct {
	mu       sync.Mutex
	selected map[int]bool
	disabled map[int]bool
}

func newSelector() *selector {
	return &selector{selected: make(map[int]bool), disabled: make(map[int]bool)}
}

func (s *selector) Select(idx int) error {
	if idx < 0 {
		return errs.ErrInval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled[idx] {
		return fmt.Errorf("track %d disabled: %w", idx, errs.ErrPerm)
	}
	s.selected[idx] = true
	return nil
}

func (s *selector) Deselect(idx int) error {
	s.mu.Lock()
	delete(s.selected, idx)
	s.mu.Unlock()
	return nil
}

func (s *selector) Enable(idx int) error {
	s.mu.Lock()
	delete(s.disabled, idx)
	s.mu.Unlock()
	return nil
}

func (s *selector) Disable(idx int) error {
	s.mu.Lock()
	s.disabled[idx] = true
	delete(s.selected, idx)
	s.mu.Unlock()
	return nil
}

func (s *selector) list() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.selected)
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
