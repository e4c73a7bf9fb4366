/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/player"
	"github.com/friendsincode/eos/internal/settings"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// httpStatus maps an engine error to a response status.
func httpStatus(err error) int {
	switch errs.CodeOf(err) {
	case errs.Inval:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Perm, errs.Busy, errs.Again:
		return http.StatusConflict
	case errs.TimedOut:
		return http.StatusGatewayTimeout
	case errs.NotImplemented:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	ev := s.logger.Debug()
	if status >= http.StatusInternalServerError {
		ev = s.logger.Warn()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	writeError(w, status, errs.CodeOf(err).String())
}

func output(r *http.Request) (uint32, error) {
	out, err := strconv.ParseUint(chi.URLParam(r, "out"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("output %q: %w", chi.URLParam(r, "out"), errs.ErrInval)
	}
	return uint32(out), nil
}

// streamID accepts decimal and 0x prefixed hex ids.
func streamID(r *http.Request) (uint32, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("stream id %q: %w", chi.URLParam(r, "id"), errs.ErrInval)
	}
	return uint32(id), nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, errs.ErrInval)
	}
	return nil
}

// outHandler parses the output and runs fn. A nil result answers 204.
func (s *Server) outHandler(fn func(r *http.Request, out uint32) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := output(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		res, err := fn(r, out)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if res == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"chains": s.deps.Player.Chains()})
}

type playRequest struct {
	URL    string `json:"url"`
	Extras string `json:"extras"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(r *http.Request, out uint32) (any, error) {
		var req playRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		if req.URL == "" {
			return nil, fmt.Errorf("url required: %w", errs.ErrInval)
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.tuneTimeout)
		defer cancel()
		if err := s.deps.Player.Play(ctx, req.URL, req.Extras, out); err != nil {
			return nil, err
		}
		return map[string]any{"out": out, "url": req.URL}, nil
	})(w, r)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(_ *http.Request, out uint32) (any, error) {
		return nil, s.deps.Player.Stop(out)
	})(w, r)
}

func (s *Server) handleBuffer(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(r *http.Request, out uint32) (any, error) {
		var req struct {
			Start bool `json:"start"`
		}
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return nil, s.deps.Player.Buffer(out, req.Start)
	})(w, r)
}

func (s *Server) handleTrickplay(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(r *http.Request, out uint32) (any, error) {
		req := struct {
			Position *int64 `json:"position"`
			Speed    int16  `json:"speed"`
		}{}
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		pos := link.TrickplayNoChange
		if req.Position != nil {
			pos = *req.Position
		}
		return nil, s.deps.Player.Trickplay(out, pos, req.Speed)
	})(w, r)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(_ *http.Request, out uint32) (any, error) {
		desc, err := s.deps.Player.MediaDesc(out)
		if err != nil {
			return nil, err
		}
		return desc, nil
	})(w, r)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(r *http.Request, out uint32) (any, error) {
		id, err := streamID(r)
		if err != nil {
			return nil, err
		}
		var req struct {
			On bool `json:"on"`
		}
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return nil, s.deps.Player.SetTrack(out, id, req.On)
	})(w, r)
}

type enableRequest struct {
	Enable bool `json:"enable"`
}

func (s *Server) handleTTXTEnable(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(r *http.Request, out uint32) (any, error) {
		var req enableRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return nil, s.deps.Player.TTXTEnable(out, req.Enable)
	})(w, r)
}

func (s *Server) handleDVBSub(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(r *http.Request, out uint32) (any, error) {
		var req enableRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return nil, s.deps.Player.DVBSubEnable(out, req.Enable)
	})(w, r)
}

type pageBody struct {
	Page    uint16 `json:"page"`
	Subpage uint16 `json:"subpage"`
}

func (s *Server) handleTTXTPageGet(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(_ *http.Request, out uint32) (any, error) {
		page, sub, err := s.deps.Player.TTXTPageGet(out)
		if err != nil {
			return nil, err
		}
		return pageBody{Page: page, Subpage: sub}, nil
	})(w, r)
}

func (s *Server) handleTTXTPageSet(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(r *http.Request, out uint32) (any, error) {
		var req pageBody
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return nil, s.deps.Player.TTXTPageSet(out, req.Page, req.Subpage)
	})(w, r)
}

func (s *Server) navigator(nav string) (func(uint32) (uint16, error), bool) {
	p := s.deps.Player
	fns := map[string]func(uint32) (uint16, error){
		"next":         p.TTXTNextPage,
		"prev":         p.TTXTPrevPage,
		"red":          p.TTXTRedPage,
		"green":        p.TTXTGreenPage,
		"blue":         p.TTXTBluePage,
		"yellow":       p.TTXTYellowPage,
		"next_subpage": p.TTXTNextSubpage,
		"prev_subpage": p.TTXTPrevSubpage,
	}
	fn, ok := fns[nav]
	return fn, ok
}

func (s *Server) handleTTXTNavigate(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(r *http.Request, out uint32) (any, error) {
		nav := chi.URLParam(r, "nav")
		fn, ok := s.navigator(nav)
		if !ok {
			return nil, fmt.Errorf("navigation %q: %w", nav, errs.ErrInval)
		}
		page, err := fn(out)
		if err != nil {
			return nil, err
		}
		return map[string]uint16{"page": page}, nil
	})(w, r)
}

func (s *Server) handleTTXTTransparency(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(r *http.Request, out uint32) (any, error) {
		var req struct {
			Alpha uint8 `json:"alpha"`
		}
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return nil, s.deps.Player.TTXTTransparencySet(out, req.Alpha)
	})(w, r)
}

func (s *Server) handleTTXTPoll(w http.ResponseWriter, r *http.Request) {
	out, err := output(r)
	if err == nil {
		var id uint32
		if id, err = streamID(r); err == nil && id > 0xffff {
			err = fmt.Errorf("stream id %d: %w", id, errs.ErrInval)
		}
		if err == nil {
			var page []byte
			if page, err = s.deps.Player.TTXTPage(out, uint16(id)); err == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(page)
				return
			}
		}
	}
	s.fail(w, r, err)
}

func (s *Server) handleHbbTV(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(_ *http.Request, out uint32) (any, error) {
		url, err := s.deps.Player.HbbTVURL(out)
		if err != nil {
			return nil, err
		}
		return map[string]string{"url": url}, nil
	})(w, r)
}

func (s *Server) handleSettingPut(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(r *http.Request, out uint32) (any, error) {
		opt, err := settings.ParseOption(chi.URLParam(r, "option"))
		if err != nil {
			return nil, err
		}
		var val settings.Value
		if err := decode(r, &val); err != nil {
			return nil, err
		}
		p := s.deps.Player
		switch opt {
		case settings.VideoPos:
			return nil, p.OutVideoMove(out, val.X, val.Y)
		case settings.VideoSize:
			return nil, p.OutVideoScale(out, val.W, val.H)
		case settings.AudioMode:
			mode := player.AudioStereo
			if val.Passthrough {
				mode = player.AudioPassthrough
			}
			return nil, p.OutAudioMode(out, mode)
		case settings.VolumeLeveling:
			return nil, p.OutVolumeLeveling(out, val.Leveling, link.VolumeLevel(val.Level))
		}
		return nil, fmt.Errorf("option %v: %w", opt, errs.ErrInval)
	})(w, r)
}

func (s *Server) handleSettingGet(w http.ResponseWriter, r *http.Request) {
	s.outHandler(func(r *http.Request, out uint32) (any, error) {
		opt, err := settings.ParseOption(chi.URLParam(r, "option"))
		if err != nil {
			return nil, err
		}
		val, err := s.deps.Settings.Fetch(out, opt)
		if err != nil {
			return nil, err
		}
		return val, nil
	})(w, r)
}
