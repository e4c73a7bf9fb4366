/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/friendsincode/eos/internal/errs"
)

func newMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveChainOp("create", time.Now(), nil)
	m.SetActiveChains(3)
	m.EventDropped("queue_full")
	m.EngineAttached("ttxt")
	m.EngineDetached("ttxt")
	m.PlayerEvent("state")
	m.Forwarded("nats", nil)
	m.WebSocketOpened()
	m.WebSocketClosed()

	called := false
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("nil Middleware did not call the next handler")
	}
}

func TestNewMetricsRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Fatal("second NewMetrics() on the same registry succeeded")
	}
}

func TestChainMetrics(t *testing.T) {
	m := newMetrics(t)
	m.ObserveChainOp("create", time.Now(), nil)
	m.ObserveChainOp("create", time.Now(), fmt.Errorf("lock: %w", errs.ErrTimedOut))
	m.SetActiveChains(2)
	m.EngineAttached("ttxt")
	m.Forwarded("redis", errors.New("down"))

	if got := testutil.ToFloat64(m.chainOpsTotal.WithLabelValues("create", "ok")); got != 1 {
		t.Errorf("create/ok = %v, want 1", got)
	}
	timedOut := errs.CodeOf(errs.ErrTimedOut).String()
	if got := testutil.ToFloat64(m.chainOpsTotal.WithLabelValues("create", timedOut)); got != 1 {
		t.Errorf("create/%s = %v, want 1", timedOut, got)
	}
	if got := testutil.ToFloat64(m.activeChains); got != 2 {
		t.Errorf("active chains = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.engineOps.WithLabelValues("ttxt", "attach")); got != 1 {
		t.Errorf("ttxt attach = %v, want 1", got)
	}
	general := errs.CodeOf(errors.New("down")).String()
	if got := testutil.ToFloat64(m.forwardedTotal.WithLabelValues("redis", general)); got != 1 {
		t.Errorf("redis/%s = %v, want 1", general, got)
	}

	m.WebSocketOpened()
	m.WebSocketOpened()
	m.WebSocketClosed()
	if got := testutil.ToFloat64(m.wsConnections); got != 1 {
		t.Errorf("websocket connections = %v, want 1", got)
	}
}

func TestMiddlewareLabelsRoutePattern(t *testing.T) {
	m := newMetrics(t)
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/outputs/{out}/media", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, out := range []string{"0", "1"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/outputs/"+out+"/media", nil))
	}

	c := m.httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/outputs/{out}/media", "404")
	if got := testutil.ToFloat64(c); got != 2 {
		t.Errorf("requests for route pattern = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.httpActive); got != 0 {
		t.Errorf("active requests = %v, want 0", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := newMetrics(t)
	m.PlayerEvent("state")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `eos_player_events_total{type="state"} 1`) {
		t.Error("metrics output missing eos_player_events_total")
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, sdktrace.AlwaysSample().Description()},
		{1.5, sdktrace.AlwaysSample().Description()},
		{0, sdktrace.NeverSample().Description()},
		{0.25, sdktrace.TraceIDRatioBased(0.25).Description()},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestDisabledTracer(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{ServiceName: "eosd"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	_, span := StartChainSpan(context.Background(), "create", 0)
	EndSpan(span, errs.ErrInval)
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
