/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the player over a local HTTP control API and
// streams player events to websocket clients.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/chainmgr"
	"github.com/friendsincode/eos/internal/events"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
	"github.com/friendsincode/eos/internal/player"
	"github.com/friendsincode/eos/internal/settings"
	"github.com/friendsincode/eos/internal/telemetry"
)

// Player is the control surface served by the API. *player.Player
// implements it.
type Player interface {
	Chains() []chainmgr.Info
	Play(ctx context.Context, url, extras string, out uint32) error
	Stop(out uint32) error
	Buffer(out uint32, start bool) error
	Trickplay(out uint32, position int64, speed int16) error
	MediaDesc(out uint32) (media.Desc, error)
	SetTrack(out, id uint32, on bool) error
	TTXTPage(out uint32, idx uint16) ([]byte, error)
	TTXTEnable(out uint32, enable bool) error
	TTXTPageSet(out uint32, page, subpage uint16) error
	TTXTPageGet(out uint32) (page, subpage uint16, err error)
	TTXTNextPage(out uint32) (uint16, error)
	TTXTPrevPage(out uint32) (uint16, error)
	TTXTRedPage(out uint32) (uint16, error)
	TTXTGreenPage(out uint32) (uint16, error)
	TTXTBluePage(out uint32) (uint16, error)
	TTXTYellowPage(out uint32) (uint16, error)
	TTXTNextSubpage(out uint32) (uint16, error)
	TTXTPrevSubpage(out uint32) (uint16, error)
	TTXTTransparencySet(out uint32, alpha uint8) error
	DVBSubEnable(out uint32, enable bool) error
	HbbTVURL(out uint32) (string, error)
	OutVideoScale(out uint32, w, h uint16) error
	OutVideoMove(out uint32, x, y uint16) error
	OutAudioMode(out uint32, mode player.AudioMode) error
	OutVolumeLeveling(out uint32, enable bool, level link.VolumeLevel) error
}

var _ Player = (*player.Player)(nil)

// Deps are the services behind the API. Settings and Bus are optional;
// without them the settings read and event routes are not mounted.
type Deps struct {
	Player   Player
	Settings *settings.Registry
	Bus      *events.Bus
	Metrics  *telemetry.Metrics
}

// Server bundles the router and the HTTP server.
type Server struct {
	logger     zerolog.Logger
	deps       Deps
	router     chi.Router
	httpServer *http.Server

	// tuneTimeout bounds a play request.
	tuneTimeout time.Duration
}

// New constructs the server. addr is the listen address.
func New(addr string, deps Deps, logger zerolog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(deps.Metrics.Middleware)

	srv := &Server{
		logger:      logger.With().Str("component", "server").Logger(),
		deps:        deps,
		router:      router,
		tuneTimeout: 30 * time.Second,
	}
	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for the event stream.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until Shutdown. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("control API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"chains": len(s.deps.Player.Chains()),
		})
	})
	s.router.Handle("/metrics", s.deps.Metrics.Handler())
	if s.deps.Bus != nil {
		s.router.Get("/events", s.handleEvents)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/chains", s.handleChains)
		r.Route("/outputs/{out}", func(r chi.Router) {
			r.Post("/play", s.handlePlay)
			r.Post("/stop", s.handleStop)
			r.Post("/buffer", s.handleBuffer)
			r.Post("/trickplay", s.handleTrickplay)
			r.Get("/media", s.handleMedia)
			r.Put("/tracks/{id}", s.handleTrack)

			r.Put("/ttxt", s.handleTTXTEnable)
			r.Get("/ttxt/page", s.handleTTXTPageGet)
			r.Put("/ttxt/page", s.handleTTXTPageSet)
			r.Post("/ttxt/page/{nav}", s.handleTTXTNavigate)
			r.Put("/ttxt/transparency", s.handleTTXTTransparency)
			r.Get("/ttxt/{id}", s.handleTTXTPoll)
			r.Put("/dvbsub", s.handleDVBSub)
			r.Get("/hbbtv", s.handleHbbTV)

			r.Put("/settings/{option}", s.handleSettingPut)
			if s.deps.Settings != nil {
				r.Get("/settings/{option}", s.handleSettingGet)
			}
		})
	})
}
