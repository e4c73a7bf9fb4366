/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
)

// Application is one HbbTV application signalled in the AIT.
type Application struct {
	OrgID     uint32 `json:"org_id"`
	AppID     uint16 `json:"app_id"`
	Control   uint8  `json:"control"`
	Name      string `json:"name,omitempty"`
	URL       string `json:"url"`
	Autostart bool   `json:"autostart"`
}

// AITDecoder turns sink supplied AIT payload into applications. complete
// is false while more sections are still expected.
type AITDecoder func(data []byte) (apps []Application, complete bool, err error)

// DecodeAITJSON is the default decoder for sinks that hand over the
// application table already parsed, as a JSON array.
func DecodeAITJSON(data []byte) ([]Application, bool, error) {
	var apps []Application
	if err := json.Unmarshal(data, &apps); err != nil {
		return nil, false, fmt.Errorf("decode ait: %w", err)
	}
	return apps, true, nil
}

// HbbTVModel builds HbbTV signalling engines.
type HbbTVModel struct {
	Decoder AITDecoder
}

func (HbbTVModel) Name() string { return "hbbtv" }

func (HbbTVModel) Probe(codec media.Codec) bool { return codec == media.CodecHbbTV }

func (m HbbTVModel) Manufacture(p Params) (Engine, error) {
	if p.Callback == nil {
		return nil, fmt.Errorf("hbbtv engine without callback: %w", errs.ErrInval)
	}
	dec := m.Decoder
	if dec == nil {
		dec = DecodeAITJSON
	}
	return &HbbTV{cb: p.Callback, decode: dec, enabled: true}, nil
}

func (HbbTVModel) Dismantle(e Engine) error {
	if _, ok := e.(*HbbTV); !ok {
		return errs.ErrInval
	}
	return nil
}

// HbbTV collects the application table and reports it once complete.
type HbbTV struct {
	mu      sync.Mutex
	cb      Callback
	decode  AITDecoder
	apps    []Application
	done    bool
	enabled bool
}

func (h *HbbTV) Name() string          { return "hbbtv" }
func (h *HbbTV) Type() Type            { return TypeHbbTV }
func (h *HbbTV) API() any              { return HbbTVAPI(h) }
func (h *HbbTV) Hook() link.StreamHook { return h.hook }

func (h *HbbTV) Flush() error {
	h.mu.Lock()
	h.apps = nil
	h.done = false
	h.mu.Unlock()
	return nil
}

func (h *HbbTV) Enable() error {
	h.mu.Lock()
	h.enabled = true
	h.mu.Unlock()
	return nil
}

func (h *HbbTV) Disable() error {
	h.mu.Lock()
	h.enabled = false
	h.mu.Unlock()
	return nil
}

func (h *HbbTV) hook(data []byte) error {
	if len(data) == 0 {
		return errs.ErrInval
	}
	h.mu.Lock()
	if h.done || !h.enabled {
		h.mu.Unlock()
		return nil
	}
	apps, complete, err := h.decode(data)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.apps = append(h.apps, apps...)
	if !complete {
		h.mu.Unlock()
		return nil
	}
	h.done = true
	if len(h.apps) == 0 {
		h.mu.Unlock()
		return fmt.Errorf("application descriptor missing in ait: %w", errs.ErrGeneral)
	}
	out, err := json.Marshal(h.apps)
	cb := h.cb
	h.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode applications: %w", err)
	}
	return cb(TypeHbbTV, DataJSON, out)
}

// RedButtonURL returns the URL of the autostart application, falling back
// to the first one signalled.
func (h *HbbTV) RedButtonURL() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.done || len(h.apps) == 0 {
		return "", fmt.Errorf("no hbbtv application: %w", errs.ErrNotFound)
	}
	for _, app := range h.apps {
		if app.Autostart {
			return app.URL, nil
		}
	}
	return h.apps[0].URL, nil
}
