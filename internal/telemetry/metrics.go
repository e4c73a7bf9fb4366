/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/friendsincode/eos/internal/errs"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	chainOpsTotal     *prometheus.CounterVec
	chainOpDuration   *prometheus.HistogramVec
	activeChains      prometheus.Gauge
	droppedEvents     *prometheus.CounterVec
	engineOps         *prometheus.CounterVec
	playerEventsTotal *prometheus.CounterVec
	forwardedTotal    *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpActive          prometheus.Gauge
	wsConnections       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them, together with the
// Go runtime and process collectors, on registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.chainOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eos_chain_operations_total",
			Help: "Chain registry operations by outcome",
		},
		[]string{"operation", "result"},
	)
	m.chainOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eos_chain_operation_duration_seconds",
			Help:    "Time taken by chain registry operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"operation"},
	)
	m.activeChains = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eos_active_chains",
		Help: "Chains currently held by the registry",
	})
	m.droppedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eos_link_events_dropped_total",
			Help: "Pipeline events dropped before reaching the chain",
		},
		[]string{"reason"},
	)
	m.engineOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eos_engine_operations_total",
			Help: "Data engine attach and detach operations",
		},
		[]string{"engine", "action"},
	)
	m.playerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eos_player_events_total",
			Help: "Player events delivered to the host",
		},
		[]string{"type"},
	)
	m.forwardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eos_events_forwarded_total",
			Help: "Player events published to external buses",
		},
		[]string{"bus", "result"},
	)
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eos_api_requests_total",
			Help: "Control API requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eos_api_request_duration_seconds",
			Help:    "Control API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	m.httpActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eos_api_active_connections",
		Help: "Control API requests in flight",
	})
	m.wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eos_api_websocket_connections",
		Help: "Open event websocket connections",
	})
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.chainOpsTotal.Describe(ch)
	m.chainOpDuration.Describe(ch)
	m.activeChains.Describe(ch)
	m.droppedEvents.Describe(ch)
	m.engineOps.Describe(ch)
	m.playerEventsTotal.Describe(ch)
	m.forwardedTotal.Describe(ch)
	m.httpRequestsTotal.Describe(ch)
	m.httpRequestDuration.Describe(ch)
	m.httpActive.Describe(ch)
	m.wsConnections.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.chainOpsTotal.Collect(ch)
	m.chainOpDuration.Collect(ch)
	m.activeChains.Collect(ch)
	m.droppedEvents.Collect(ch)
	m.engineOps.Collect(ch)
	m.playerEventsTotal.Collect(ch)
	m.forwardedTotal.Collect(ch)
	m.httpRequestsTotal.Collect(ch)
	m.httpRequestDuration.Collect(ch)
	m.httpActive.Collect(ch)
	m.wsConnections.Collect(ch)
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return errs.CodeOf(err).String()
}

// ObserveChainOp records one registry operation started at start.
func (m *Metrics) ObserveChainOp(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.chainOpsTotal.WithLabelValues(op, result(err)).Inc()
	m.chainOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetActiveChains(n int) {
	if m == nil {
		return
	}
	m.activeChains.Set(float64(n))
}

func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.droppedEvents.WithLabelValues(reason).Inc()
}

func (m *Metrics) EngineAttached(engine string) {
	if m == nil {
		return
	}
	m.engineOps.WithLabelValues(engine, "attach").Inc()
}

func (m *Metrics) EngineDetached(engine string) {
	if m == nil {
		return
	}
	m.engineOps.WithLabelValues(engine, "detach").Inc()
}

func (m *Metrics) PlayerEvent(typ string) {
	if m == nil {
		return
	}
	m.playerEventsTotal.WithLabelValues(typ).Inc()
}

// Forwarded records a publish attempt to an external bus.
func (m *Metrics) Forwarded(bus string, err error) {
	if m == nil {
		return
	}
	m.forwardedTotal.WithLabelValues(bus, result(err)).Inc()
}

// WebSocketOpened and WebSocketClosed track event stream clients.
func (m *Metrics) WebSocketOpened() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) WebSocketClosed() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}
