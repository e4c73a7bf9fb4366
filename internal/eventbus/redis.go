/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/events"
)

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Channel receives every forwarded event.
	Channel string

	// Connection pooling
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		Channel:       "eos.events",
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
	}
}

// RedisForwarder publishes events on a Redis channel. After MaxFailures
// consecutive publish errors the circuit opens and events are refused
// until a ping succeeds again, at most once per CheckInterval.
type RedisForwarder struct {
	client *redis.Client
	cfg    RedisConfig
	nodeID string
	logger zerolog.Logger

	mu        sync.Mutex
	open      bool
	failCount int
	lastCheck time.Time
	now       func() time.Time
}

// NewRedisForwarder creates the client. An unreachable server starts the
// forwarder with the circuit open.
func NewRedisForwarder(cfg RedisConfig, nodeID string, logger zerolog.Logger) *RedisForwarder {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 1
	}
	f := &RedisForwarder{
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}),
		cfg:    cfg,
		nodeID: nodeID,
		logger: logger.With().Str("component", "redis_forwarder").Logger(),
		now:    time.Now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout+time.Second)
	defer cancel()
	if err := f.client.Ping(ctx).Err(); err != nil {
		f.logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unreachable, circuit open")
		f.open = true
		f.lastCheck = f.now()
		return f
	}
	f.logger.Info().Str("addr", cfg.Addr).Str("channel", cfg.Channel).Msg("Redis event forwarder initialized")
	return f
}

func (f *RedisForwarder) Name() string { return "redis" }

// Open reports whether the circuit breaker is open.
func (f *RedisForwarder) Open() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Forward publishes one event.
func (f *RedisForwarder) Forward(ctx context.Context, eventType events.EventType, payload events.Payload) error {
	if err := f.tryReconnect(ctx); err != nil {
		return err
	}
	data, err := marshalMessage(eventType, payload, f.nodeID)
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := f.client.Publish(pctx, f.cfg.Channel, data).Err(); err != nil {
		f.handleFailure()
		return fmt.Errorf("publish %s to redis: %w", eventType, err)
	}

	f.mu.Lock()
	f.failCount = 0
	f.mu.Unlock()
	return nil
}

// handleFailure implements circuit breaker logic.
func (f *RedisForwarder) handleFailure() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCount++
	if f.failCount >= f.cfg.MaxFailures && !f.open {
		f.logger.Warn().Int("fail_count", f.failCount).Msg("Redis failure threshold reached, circuit open")
		f.open = true
		f.lastCheck = f.now()
	}
}

// tryReconnect closes the circuit again once Redis answers a ping.
func (f *RedisForwarder) tryReconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return nil
	}
	if f.now().Sub(f.lastCheck) < f.cfg.CheckInterval {
		return fmt.Errorf("redis circuit open: %w", errs.ErrBusy)
	}
	f.lastCheck = f.now()

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := f.client.Ping(pctx).Err(); err != nil {
		return fmt.Errorf("redis still unavailable: %w", errs.ErrBusy)
	}
	f.open = false
	f.failCount = 0
	f.logger.Info().Msg("reconnected to Redis, circuit closed")
	return nil
}

// Close closes the Redis client.
func (f *RedisForwarder) Close() error {
	if err := f.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
