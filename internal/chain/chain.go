/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package chain binds one source to one sink into a playback session.
// A chain owns a single event goroutine translating pipeline events for
// its host, and delegates playback control to a playback.Controller and
// data tracks to a datamgr.Manager.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/datamgr"
	"github.com/friendsincode/eos/internal/engine"
	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
	"github.com/friendsincode/eos/internal/msgq"
	"github.com/friendsincode/eos/internal/playback"
	"github.com/friendsincode/eos/internal/telemetry"
)

// DefaultQueueLen bounds the pending pipeline events of a chain.
const DefaultQueueLen = 20

// Options configures a chain.
type Options struct {
	QueueLen int
	Engines  *engine.Factory
	// DataManager carries the manual selection overrides. Its Engines,
	// Callback and Metrics fields are filled in by the chain.
	DataManager datamgr.Options
	Metrics     *telemetry.Metrics
}

// Chain is safe for concurrent use.
type Chain struct {
	id     uint32
	logger zerolog.Logger
	opts   Options
	queue  *msgq.Queue[queued]
	wg     sync.WaitGroup

	mu        sync.Mutex
	src       link.Source
	sink      link.Sink
	ctrl      *playback.Controller
	dm        *datamgr.Manager
	streams   media.Desc
	connected bool
	playing   bool
	session   string
	lockWake  chan struct{}
	lockStop  context.CancelFunc
	// lockGen numbers Lock attempts. Source events carry the number of
	// the attempt that registered their handler.
	lockGen   uint64
	closed    bool

	handlersMu sync.RWMutex
	onEvent    EventHandler
	onData     DataHandler
}

// New creates a chain and starts its event goroutine.
func New(logger zerolog.Logger, id uint32, opts Options) (*Chain, error) {
	if opts.Engines == nil {
		return nil, fmt.Errorf("chain %d without engine factory: %w", id, errs.ErrInval)
	}
	if opts.QueueLen <= 0 {
		opts.QueueLen = DefaultQueueLen
	}
	c := &Chain{
		id:     id,
		logger: logger.With().Str("component", "chain").Uint32("chain_id", id).Logger(),
		opts:   opts,
		queue:  msgq.New[queued](opts.QueueLen, nil),
	}
	c.wg.Add(1)
	go c.run()
	return c, nil
}

// Close stops the event goroutine and waits for it. Pending events are
// discarded.
func (c *Chain) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.queue.Pause()
	c.wg.Wait()
	c.queue.Close()
	c.logger.Debug().Msg("chain closed")
}

func (c *Chain) ID() uint32 { return c.id }

// Session returns the id of the current connection, empty before the first
// successful Lock.
func (c *Chain) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Chain) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Chain) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

func (c *Chain) Source() link.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.src
}

func (c *Chain) Sink() link.Sink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink
}

// SetSource binds src. Detaching (nil) is refused while connected.
func (c *Chain) SetSource(src link.Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if src == nil && c.connected {
		return fmt.Errorf("detach source of connected chain %d: %w", c.id, errs.ErrGeneral)
	}
	c.src = src
	return nil
}

// SetSink binds sink to the current source. Detaching (nil) requires the
// source to be detached first.
func (c *Chain) SetSink(sink link.Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sink == nil {
		if c.src != nil {
			return fmt.Errorf("detach sink of chain %d with source bound: %w", c.id, errs.ErrGeneral)
		}
		c.sink = nil
		return nil
	}
	if c.src == nil {
		return fmt.Errorf("attach sink to chain %d without source: %w", c.id, errs.ErrGeneral)
	}
	if err := c.src.AssignOutput(sink.Plug()); err != nil {
		return fmt.Errorf("assign source output: %w", err)
	}
	if err := sink.RegisterEventHandler(c.push); err != nil {
		return fmt.Errorf("register sink events: %w", err)
	}
	c.sink = sink
	return nil
}

// Lock connects the bound source to url and waits up to timeout for the
// outcome. Interrupt aborts the wait.
func (c *Chain) Lock(ctx context.Context, url, extras string, timeout time.Duration) error {
	c.mu.Lock()
	if url == "" || c.src == nil {
		c.mu.Unlock()
		return fmt.Errorf("lock chain %d: %w", c.id, errs.ErrInval)
	}
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("chain %d already connected: %w", c.id, errs.ErrInval)
	}
	src := c.src
	wake := make(chan struct{}, 1)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	c.lockWake, c.lockStop = wake, cancel
	c.lockGen++
	gen := c.lockGen
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.lockWake, c.lockStop = nil, nil
		c.mu.Unlock()
	}()

	if err := src.Lock(url, extras, func(ev link.Event) { c.enqueue(gen, ev) }); err != nil {
		return fmt.Errorf("lock source %s: %w", src.Name(), err)
	}

	select {
	case <-wake:
		c.mu.Lock()
		ok := c.connected
		if ok {
			c.session = uuid.NewString()
		}
		session := c.session
		c.mu.Unlock()
		if ok {
			c.logger.Info().Str("session_id", session).Str("url", url).Msg("chain connected")
			return nil
		}
		c.abortLock(src)
		return fmt.Errorf("source %s refused %s: %w", src.Name(), url, errs.ErrGeneral)
	case <-ctx.Done():
		c.abortLock(src)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("lock %s after %v: %w", url, timeout, errs.ErrTimedOut)
		}
		return fmt.Errorf("lock %s interrupted: %w", url, errs.ErrGeneral)
	}
}

func (c *Chain) abortLock(src link.Source) {
	if err := src.Unlock(); err != nil {
		c.logger.Warn().Err(err).Msg("source unlock after failed lock")
	}
	c.mu.Lock()
	c.connected = false
	c.playing = false
	c.mu.Unlock()
}

// Unlock disconnects the source.
func (c *Chain) Unlock() error {
	c.mu.Lock()
	src := c.src
	c.connected = false
	c.playing = false
	c.mu.Unlock()
	if src == nil {
		return nil
	}
	return src.Unlock()
}

// Interrupt aborts an in-flight Lock without waiting for it.
func (c *Chain) Interrupt() {
	c.mu.Lock()
	src, stop := c.src, c.lockStop
	c.mu.Unlock()
	if src != nil {
		if err := src.Suspend(); err != nil {
			c.logger.Debug().Err(err).Msg("source suspend")
		}
	}
	if stop != nil {
		stop()
	}
}
