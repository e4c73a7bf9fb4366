/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string
	// SubjectPrefix is prepended to the event type, e.g. "eos".
	SubjectPrefix string
	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "eos",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSForwarder publishes events to "<prefix>.<event type>".
type NATSForwarder struct {
	conn   *nats.Conn
	cfg    NATSConfig
	nodeID string
	logger zerolog.Logger
}

// NewNATSForwarder connects to the NATS server.
func NewNATSForwarder(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSForwarder, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url: %w", errs.ErrInval)
	}
	logger = logger.With().Str("component", "nats_forwarder").Logger()

	opts := []nats.Option{
		nats.Name("eos-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS event forwarder connected")
	return &NATSForwarder{conn: nc, cfg: cfg, nodeID: nodeID, logger: logger}, nil
}

func (f *NATSForwarder) Name() string { return "nats" }

// Subject returns the subject an event type is published on.
func (f *NATSForwarder) Subject(eventType events.EventType) string {
	return subject(f.cfg.SubjectPrefix, eventType)
}

func subject(prefix string, eventType events.EventType) string {
	if prefix == "" {
		return string(eventType)
	}
	return prefix + "." + string(eventType)
}

// Forward publishes one event. NATS buffers while reconnecting, so ctx is
// only checked before publishing.
func (f *NATSForwarder) Forward(ctx context.Context, eventType events.EventType, payload events.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := marshalMessage(eventType, payload, f.nodeID)
	if err != nil {
		return err
	}
	if err := f.conn.Publish(f.Subject(eventType), data); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (f *NATSForwarder) Close() error {
	if err := f.conn.Drain(); err != nil {
		f.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
