/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package settings

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/friendsincode/eos/internal/errs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(zerolog.Nop())
	t.Cleanup(r.Close)
	return r
}

func TestApplyFetch(t *testing.T) {
	r := newRegistry(t)
	if _, err := r.Fetch(0, VideoSize); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Fetch() before Apply = %v, want not found", err)
	}

	var calls int
	r.SetSystemHandler(VideoSize, func(out uint32, opt Option, val Value) error {
		calls++
		if val.W == 0 {
			return errs.ErrInval
		}
		return nil
	})

	want := Value{W: 1280, H: 720}
	if err := r.Apply(0, VideoSize, want); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	got, err := r.Fetch(0, VideoSize)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if got != want {
		t.Errorf("Fetch() = %+v, want %+v", got, want)
	}

	if err := r.Apply(0, VideoSize, Value{}); !errors.Is(err, errs.ErrInval) {
		t.Errorf("rejected Apply() = %v, want invalid", err)
	}
	if got, _ := r.Fetch(0, VideoSize); got != want {
		t.Errorf("rejected value stored: %+v", got)
	}
	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
	if _, err := r.Fetch(1, VideoSize); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Fetch(other output) = %v, want not found", err)
	}
	if err := r.Apply(0, Option(99), Value{}); !errors.Is(err, errs.ErrInval) {
		t.Errorf("Apply(unknown option) = %v, want invalid", err)
	}
}

func TestListeners(t *testing.T) {
	r := newRegistry(t)
	got := make(chan Value, 4)
	fn := func(out uint32, opt Option, val Value) {
		if out == 1 && opt == AudioMode {
			got <- val
		}
	}
	id1, err := r.AddListener(1, fn)
	if err != nil {
		t.Fatalf("AddListener() failed: %v", err)
	}
	id2, err := r.AddListener(1, fn)
	if err != nil {
		t.Fatalf("duplicate AddListener() failed: %v", err)
	}
	if id1 == id2 {
		t.Error("duplicate listeners share an id")
	}

	if err := r.Apply(1, AudioMode, Value{Passthrough: true}); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case v := <-got:
			if !v.Passthrough {
				t.Errorf("notified value = %+v, want passthrough", v)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("notification %d missing", i)
		}
	}

	if err := r.RemoveListener(1, id1); err != nil {
		t.Errorf("RemoveListener() failed: %v", err)
	}
	if err := r.RemoveListener(1, id1); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("second RemoveListener() = %v, want not found", err)
	}
	if _, err := r.AddListener(1, nil); !errors.Is(err, errs.ErrInval) {
		t.Errorf("AddListener(nil) = %v, want invalid", err)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	r := newRegistry(t)
	if err := r.Apply(0, VideoPos, Value{X: 10, Y: 20}); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if err := r.Apply(1, VolumeLeveling, Value{Leveling: true, Level: 2}); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if err := r.Save(path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	restored := newRegistry(t)
	var applied int
	restored.SetSystemHandler(VideoPos, func(uint32, Option, Value) error {
		applied++
		return nil
	})
	if err := restored.Load(path); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if applied != 1 {
		t.Errorf("system handler calls = %d, want 1", applied)
	}
	if v, err := restored.Fetch(1, VolumeLeveling); err != nil || !v.Leveling || v.Level != 2 {
		t.Errorf("Fetch() = %+v, %v, want leveling at 2", v, err)
	}
	if len(restored.Snapshot()) != 2 {
		t.Errorf("Snapshot() = %+v, want two entries", restored.Snapshot())
	}

	if err := restored.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) succeeded")
	}
}

func TestParseOption(t *testing.T) {
	for _, o := range []Option{VideoPos, VideoSize, AudioMode, VolumeLeveling} {
		got, err := ParseOption(o.String())
		if err != nil || got != o {
			t.Errorf("ParseOption(%q) = %v, %v, want %v", o.String(), got, err, o)
		}
	}
	if _, err := ParseOption("brightness"); !errors.Is(err, errs.ErrInval) {
		t.Errorf("ParseOption(brightness) = %v, want invalid", err)
	}
}
