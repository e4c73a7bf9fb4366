/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const tracerName = "github.com/friendsincode/eos"

// exportTimeout bounds one OTLP export and the final flush.
const exportTimeout = 5 * time.Second

// TracerConfig selects where chain spans go.
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint is a host:port gRPC collector address.
	OTLPEndpoint string
	Enabled      bool
	// SampleRate is the sampled share of root spans, 0 to 1.
	SampleRate float64
}

// TracerProvider owns the SDK provider installed by InitTracer. It is
// empty when tracing is disabled.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	logger   zerolog.Logger
}

// InitTracer installs the global tracer provider. With tracing disabled
// a no-op provider is installed.
func InitTracer(ctx context.Context, cfg TracerConfig, logger zerolog.Logger) (*TracerProvider, error) {
	logger = logger.With().Str("component", "tracing").Logger()
	if !cfg.Enabled {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		logger.Info().Msg("tracing disabled")
		return &TracerProvider{logger: logger}, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	exporter, err := newExporter(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithExportTimeout(exportTimeout)),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRate))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.Info().
		Str("endpoint", cfg.OTLPEndpoint).
		Float64("sample_rate", cfg.SampleRate).
		Msg("tracing enabled")
	return &TracerProvider{provider: provider, logger: logger}, nil
}

func newResource(ctx context.Context, cfg TracerConfig) (*resource.Resource, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	return res, nil
}

// newExporter dials the collector without TLS; collectors are expected
// to run next to the engine.
func newExporter(ctx context.Context, endpoint string) (*otlptrace.Exporter, error) {
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(exportTimeout),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		return nil, fmt.Errorf("OTLP exporter for %s: %w", endpoint, err)
	}
	return exp, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes buffered spans. It is a no-op for a disabled tracer.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, exportTimeout)
	defer cancel()
	if err := tp.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("flush spans: %w", err)
	}
	tp.logger.Debug().Msg("tracer flushed")
	return nil
}

// StartChainSpan starts a span for a registry operation on one sink.
// Extra attributes are appended to the sink id.
func StartChainSpan(ctx context.Context, op string, sinkID uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{attribute.Int64("eos.sink_id", int64(sinkID))}, attrs...)
	return otel.Tracer(tracerName).Start(ctx, "chain."+op, trace.WithAttributes(attrs...))
}

// EndSpan records err, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
