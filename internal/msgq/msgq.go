/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package msgq implements a bounded FIFO of owned values with blocking
// put/get, urgent head insertion and a pause switch that rejects further
// traffic. Chains use it for link events and the settings registry for
// change notifications.
package msgq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/friendsincode/eos/internal/errs"
)

// Queue is safe for concurrent use. The zero value is not usable; call New.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	max     int
	free    func(T)
	running bool
	// changed is closed and replaced whenever items or running change.
	changed chan struct{}
}

// New creates a running queue holding at most max items. A max of 0 means
// unbounded. free, when not nil, is called for every item discarded by
// Flush, Close or an overwriting PutUrgent.
func New[T any](max int, free func(T)) *Queue[T] {
	return &Queue[T]{
		max:     max,
		free:    free,
		running: true,
		changed: make(chan struct{}),
	}
}

func (q *Queue[T]) broadcast() {
	close(q.changed)
	q.changed = make(chan struct{})
}

func (q *Queue[T]) full() bool {
	return q.max > 0 && len(q.items) >= q.max
}

// wait releases the lock until the queue changes or ctx ends.
func (q *Queue[T]) wait(ctx context.Context) error {
	ch := q.changed
	q.mu.Unlock()
	defer q.mu.Lock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctxErr(ctx)
	}
}

func ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("queue wait: %w", errs.ErrTimedOut)
	}
	return fmt.Errorf("queue wait: %w", ctx.Err())
}

// Put appends v, blocking while the queue is full. It fails with
// errs.ErrPerm once the queue is paused.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.running && q.full() {
		if err := q.wait(ctx); err != nil {
			return err
		}
	}
	if !q.running {
		return errs.ErrPerm
	}
	q.items = append(q.items, v)
	q.broadcast()
	return nil
}

// TryPut appends v without blocking; a full queue yields errs.ErrOverflow.
func (q *Queue[T]) TryPut(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return errs.ErrPerm
	}
	if q.full() {
		return errs.ErrOverflow
	}
	q.items = append(q.items, v)
	q.broadcast()
	return nil
}

// PutUrgent places v at the head of the queue. When the queue is full the
// current head is discarded and replaced.
func (q *Queue[T]) PutUrgent(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return errs.ErrPerm
	}
	if q.full() {
		if q.free != nil {
			q.free(q.items[0])
		}
		q.items[0] = v
		return nil
	}
	q.items = append(q.items, v)
	copy(q.items[1:], q.items[:len(q.items)-1])
	q.items[0] = v
	q.broadcast()
	return nil
}

// Get removes and returns the head, blocking while the queue is empty.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.running && len(q.items) == 0 {
		if err := q.wait(ctx); err != nil {
			return zero, err
		}
	}
	if !q.running {
		return zero, errs.ErrPerm
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	q.broadcast()
	return v, nil
}

// Peek returns the item at idx without removing it.
func (q *Queue[T]) Peek(idx int) (T, error) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx < 0 || idx >= len(q.items) {
		return zero, errs.ErrNotFound
	}
	return q.items[idx], nil
}

// Pause stops the queue and wakes every blocked caller.
func (q *Queue[T]) Pause() {
	q.mu.Lock()
	q.running = false
	q.broadcast()
	q.mu.Unlock()
}

// Resume restarts a paused queue.
func (q *Queue[T]) Resume() {
	q.mu.Lock()
	q.running = true
	q.broadcast()
	q.mu.Unlock()
}

// Flush discards every queued item.
func (q *Queue[T]) Flush() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.broadcast()
	q.mu.Unlock()
	if q.free != nil {
		for _, it := range items {
			q.free(it)
		}
	}
}

// Count returns the number of queued items.
func (q *Queue[T]) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close pauses the queue and discards its content.
func (q *Queue[T]) Close() {
	q.Pause()
	q.Flush()
}
