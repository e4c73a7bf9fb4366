/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package msgq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/eos/internal/errs"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int](0, nil)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := q.Put(ctx, i); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}
	for want := 1; want <= 3; want++ {
		got, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got != want {
			t.Errorf("Get() = %d, want %d", got, want)
		}
	}
}

func TestQueue_TryPutOverflow(t *testing.T) {
	q := New[string](2, nil)
	_ = q.TryPut("a")
	_ = q.TryPut("b")
	if err := q.TryPut("c"); !errors.Is(err, errs.ErrOverflow) {
		t.Errorf("TryPut() on full queue = %v, want overflow", err)
	}
	if q.Count() != 2 {
		t.Errorf("Count() = %d, want 2", q.Count())
	}
}

func TestQueue_PutTimesOutWhenFull(t *testing.T) {
	q := New[int](1, nil)
	_ = q.TryPut(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Put(ctx, 2); !errors.Is(err, errs.ErrTimedOut) {
		t.Errorf("Put() = %v, want timed out", err)
	}
}

func TestQueue_PutUnblocksOnGet(t *testing.T) {
	q := New[int](1, nil)
	_ = q.TryPut(1)

	done := make(chan error, 1)
	go func() { done <- q.Put(context.Background(), 2) }()

	time.Sleep(10 * time.Millisecond)
	if v, _ := q.Get(context.Background()); v != 1 {
		t.Errorf("Get() = %d, want 1", v)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Put() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Put() still blocked after Get()")
	}
}

func TestQueue_PutUrgent(t *testing.T) {
	var freed []int
	q := New[int](2, func(v int) { freed = append(freed, v) })
	_ = q.TryPut(1)
	_ = q.PutUrgent(0)

	if v, _ := q.Peek(0); v != 0 {
		t.Errorf("Peek(0) = %d, want 0", v)
	}
	if v, _ := q.Peek(1); v != 1 {
		t.Errorf("Peek(1) = %d, want 1", v)
	}

	// Full: the head is overwritten.
	_ = q.PutUrgent(9)
	if v, _ := q.Peek(0); v != 9 {
		t.Errorf("Peek(0) = %d, want 9", v)
	}
	if len(freed) != 1 || freed[0] != 0 {
		t.Errorf("freed = %v, want [0]", freed)
	}
	if _, err := q.Peek(2); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Peek(2) = %v, want not found", err)
	}
}

func TestQueue_PauseWakesGetter(t *testing.T) {
	q := New[int](4, nil)
	done := make(chan error, 1)
	go func() {
		_, err := q.Get(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Pause()

	select {
	case err := <-done:
		if !errors.Is(err, errs.ErrPerm) {
			t.Errorf("Get() after Pause = %v, want perm", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Get() not woken by Pause")
	}

	if err := q.TryPut(1); !errors.Is(err, errs.ErrPerm) {
		t.Errorf("TryPut() while paused = %v, want perm", err)
	}

	q.Resume()
	if err := q.TryPut(1); err != nil {
		t.Errorf("TryPut() after Resume = %v, want nil", err)
	}
}

func TestQueue_Flush(t *testing.T) {
	var freed int
	q := New[int](0, func(int) { freed++ })
	for i := 0; i < 5; i++ {
		_ = q.TryPut(i)
	}
	q.Flush()
	if q.Count() != 0 {
		t.Errorf("Count() = %d, want 0", q.Count())
	}
	if freed != 5 {
		t.Errorf("freed = %d, want 5", freed)
	}
}
