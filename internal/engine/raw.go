/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"fmt"
	"sync"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
)

// RawModel builds engines relaying stream payload of one codec to the
// data callback untouched. Hosts doing their own teletext or carousel
// decoding use it.
type RawModel struct {
	Codec media.Codec
}

func (m RawModel) Name() string { return "raw_" + m.Codec.String() }

func (m RawModel) Probe(codec media.Codec) bool {
	return codec == m.Codec && TypeForCodec(codec) != TypeInvalid
}

func (m RawModel) Manufacture(p Params) (Engine, error) {
	if p.Callback == nil {
		return nil, fmt.Errorf("raw engine without callback: %w", errs.ErrInval)
	}
	return &Raw{typ: TypeForCodec(p.Codec), cb: p.Callback, enabled: true}, nil
}

func (RawModel) Dismantle(e Engine) error {
	if _, ok := e.(*Raw); !ok {
		return errs.ErrInval
	}
	return nil
}

// Raw relays payload while enabled.
type Raw struct {
	mu      sync.Mutex
	typ     Type
	cb      Callback
	enabled bool
	page    uint16
}

func (r *Raw) Name() string          { return "raw" }
func (r *Raw) Type() Type            { return r.typ }
func (r *Raw) Hook() link.StreamHook { return r.hook }
func (r *Raw) Flush() error          { return nil }

func (r *Raw) API() any {
	if r.typ == TypeTTXT {
		return TTXTAPI(r)
	}
	return nil
}

func (r *Raw) Enable() error {
	r.mu.Lock()
	r.enabled = true
	r.mu.Unlock()
	return nil
}

func (r *Raw) Disable() error {
	r.mu.Lock()
	r.enabled = false
	r.mu.Unlock()
	return nil
}

// Select records the teletext page the host decodes.
func (r *Raw) Select(page uint16) error {
	r.mu.Lock()
	r.page = page
	r.mu.Unlock()
	return nil
}

func (r *Raw) hook(data []byte) error {
	r.mu.Lock()
	enabled, cb, typ := r.enabled, r.cb, r.typ
	r.mu.Unlock()
	if !enabled {
		return nil
	}
	return cb(typ, DataString, append([]byte(nil), data...))
}
