/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/events"
	"github.com/friendsincode/eos/internal/telemetry"
)

// Forwarder hands events to an external broker.
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, eventType events.EventType, payload events.Payload) error
	Close() error
}

// relayBuffer is the subscription depth per event type.
const relayBuffer = 64

// Relay subscribes to every player event type and passes each payload to
// the forwarders in order.
type Relay struct {
	bus        *events.Bus
	forwarders []Forwarder
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
}

// NewRelay creates a relay. Run starts it.
func NewRelay(bus *events.Bus, metrics *telemetry.Metrics, logger zerolog.Logger, forwarders ...Forwarder) *Relay {
	return &Relay{
		bus:        bus,
		forwarders: forwarders,
		metrics:    metrics,
		logger:     logger.With().Str("component", "event_relay").Logger(),
	}
}

// Run forwards events until ctx ends, then unsubscribes and closes the
// forwarders.
func (r *Relay) Run(ctx context.Context) error {
	if len(r.forwarders) == 0 {
		<-ctx.Done()
		return nil
	}

	var wg sync.WaitGroup
	subs := make(map[events.EventType]events.Subscriber)
	for _, t := range events.Types() {
		sub := r.bus.SubscribeN(t, relayBuffer)
		subs[t] = sub
		wg.Add(1)
		go func(t events.EventType, sub events.Subscriber) {
			defer wg.Done()
			r.pump(ctx, t, sub)
		}(t, sub)
	}
	r.logger.Info().Int("forwarders", len(r.forwarders)).Msg("event relay started")

	<-ctx.Done()
	for t, sub := range subs {
		r.bus.Unsubscribe(t, sub)
	}
	wg.Wait()

	for _, f := range r.forwarders {
		if err := f.Close(); err != nil {
			r.logger.Warn().Err(err).Str("forwarder", f.Name()).Msg("forwarder close")
		}
	}
	r.logger.Info().Msg("event relay stopped")
	return nil
}

func (r *Relay) pump(ctx context.Context, t events.EventType, sub events.Subscriber) {
	for payload := range sub {
		for _, f := range r.forwarders {
			err := f.Forward(ctx, t, payload)
			r.metrics.Forwarded(f.Name(), err)
			if err != nil {
				r.logger.Debug().Err(err).Str("forwarder", f.Name()).Str("event_type", string(t)).Msg("event not forwarded")
			}
		}
	}
}
