/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package chain

import (
	"errors"
	"fmt"

	"github.com/friendsincode/eos/internal/datamgr"
	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
	"github.com/friendsincode/eos/internal/playback"
)

// binding is the lock-free chain view handed to playback controllers.
type binding struct {
	id   uint32
	src  link.Source
	sink link.Sink
}

func (b binding) ID() uint32          { return b.id }
func (b binding) Source() link.Source { return b.src }
func (b binding) Sink() link.Sink     { return b.sink }

func (c *Chain) bindingLocked() playback.Chain {
	return binding{id: c.id, src: c.src, sink: c.sink}
}

// LoadPlaybackController resolves the chain's controller from f. Missing
// capabilities are left unassigned; the returned error only reports that
// none at all could be assigned.
func (c *Chain) LoadPlaybackController(f *playback.Factory) error {
	if f == nil {
		return errs.ErrInval
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ctrl := &playback.Controller{}
	err := f.Assign(c.bindingLocked(), ctrl)
	c.ctrl = ctrl
	if err != nil {
		c.logger.Warn().Err(err).Msg("no playback controller")
	}
	return err
}

// Start starts playback and the data manager.
func (c *Chain) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ctrl.Has(playback.CapStart) {
		return fmt.Errorf("chain %d start: %w", c.id, errs.ErrInval)
	}
	if err := c.ctrl.Start(c.bindingLocked(), &c.streams); err != nil {
		return fmt.Errorf("chain %d start: %w", c.id, err)
	}
	if err := c.loadDataManagerLocked(); err != nil {
		c.logger.Warn().Err(err).Msg("data manager not loaded")
	}
	return nil
}

// Stop stops playback, unloads the data manager and drops pending events.
func (c *Chain) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ctrl.Has(playback.CapStop) {
		return fmt.Errorf("chain %d stop: %w", c.id, errs.ErrInval)
	}
	c.connected = false
	c.playing = false
	c.unloadDataManagerLocked()
	err := c.ctrl.Stop(c.bindingLocked())
	c.queue.Flush()
	if err != nil {
		return fmt.Errorf("chain %d stop: %w", c.id, err)
	}
	return nil
}

func (c *Chain) Trickplay(position int64, speed int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.Trickplay(c.bindingLocked(), position, speed)
}

func (c *Chain) StartBuffering() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.StartBuffering(c.bindingLocked())
}

func (c *Chain) StopBuffering() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.StopBuffering(c.bindingLocked())
}

// SetTrack switches a track. Audio and video go through the playback
// controller; whatever it rejects is offered to the data manager.
func (c *Chain) SetTrack(id uint32, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.ctrl.Select(c.bindingLocked(), &c.streams, id, on)
	if err == nil || c.dm == nil {
		return err
	}
	if !errors.Is(err, errs.ErrInval) && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	return c.dm.Set(&c.streams, id, on)
}

// Streams returns a copy of the last announced stream descriptor with the
// current selection.
func (c *Chain) Streams() media.Desc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams.Clone()
}

// StreamData polls the current payload of a data stream.
func (c *Chain) StreamData(codec media.Codec, id uint32) (media.Data, error) {
	dm, err := c.data()
	if err != nil {
		return media.Data{}, err
	}
	return dm.Poll(codec, id)
}

// AVOutput returns the sink's output control table.
func (c *Chain) AVOutput() (link.AVOutput, error) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink == nil {
		return nil, fmt.Errorf("chain %d without sink: %w", c.id, errs.ErrNotFound)
	}
	return link.ControlOf[link.AVOutput](sink, link.CapAVOutSet)
}

// LoadDataManager creates and starts the data manager on the bound sink.
func (c *Chain) LoadDataManager() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadDataManagerLocked()
}

func (c *Chain) loadDataManagerLocked() error {
	if c.dm != nil {
		return fmt.Errorf("data manager already loaded: %w", errs.ErrPerm)
	}
	if c.sink == nil {
		return fmt.Errorf("chain %d without sink: %w", c.id, errs.ErrInval)
	}
	opts := c.opts.DataManager
	opts.Engines = c.opts.Engines
	opts.Callback = c.relayData
	opts.Metrics = c.opts.Metrics
	dm, err := datamgr.New(c.logger, c.sink, opts)
	if err != nil {
		return err
	}
	if err := dm.Start(&c.streams); err != nil {
		return err
	}
	c.dm = dm
	return nil
}

// UnloadDataManager stops and drops the data manager, if any.
func (c *Chain) UnloadDataManager() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unloadDataManagerLocked()
}

func (c *Chain) unloadDataManagerLocked() {
	if c.dm == nil {
		return
	}
	if err := c.dm.Stop(); err != nil {
		c.logger.Warn().Err(err).Msg("data manager stop")
	}
	c.dm = nil
}

func (c *Chain) data() (*datamgr.Manager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dm == nil {
		return nil, fmt.Errorf("chain %d has no data manager: %w", c.id, errs.ErrNotFound)
	}
	return c.dm, nil
}
