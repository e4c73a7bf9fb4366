/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package link_test

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/loopback"
)

func TestCapsString(t *testing.T) {
	tests := []struct {
		caps link.Caps
		want string
	}{
		{0, "none"},
		{link.CapSource, "source"},
		{link.CapSink | link.CapTrickplay, "trickplay|sink"},
	}
	for _, tt := range tests {
		if got := tt.caps.String(); got != tt.want {
			t.Errorf("Caps(%d).String() = %q, want %q", uint64(tt.caps), got, tt.want)
		}
	}
	if !(link.CapSource | link.CapSink).Has(link.CapSink) {
		t.Error("Has(CapSink) = false, want true")
	}
	if link.CapSource.Overlaps(link.CapSink) {
		t.Error("CapSource.Overlaps(CapSink) = true, want false")
	}
}

func TestSourceFactory(t *testing.T) {
	f := link.NewSourceFactory(zerolog.Nop())
	model := loopback.NewSourceModel(zerolog.Nop(), loopback.SourceOptions{})

	if err := f.Register(nil); !errors.Is(err, errs.ErrInval) {
		t.Fatalf("Register(nil) error = %v, want ErrInval", err)
	}
	if err := f.Register(model); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := f.Register(model); !errors.Is(err, errs.ErrInval) {
		t.Fatalf("duplicate Register() error = %v, want ErrInval", err)
	}

	if _, err := f.Manufacture("udp://239.0.0.1:1234"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("Manufacture(udp) error = %v, want ErrNotFound", err)
	}
	src, err := f.Manufacture("loop://one")
	if err != nil {
		t.Fatalf("Manufacture() error = %v", err)
	}
	if err := f.Dismantle(src); err != nil {
		t.Fatalf("Dismantle() error = %v", err)
	}
	if err := f.Dismantle(src); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("second Dismantle() error = %v, want ErrNotFound", err)
	}

	if err := f.Unregister("loopback"); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if err := f.Unregister("loopback"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("second Unregister() error = %v, want ErrNotFound", err)
	}
}

func TestSinkFactoryOneLiveSinkPerID(t *testing.T) {
	f := link.NewSinkFactory(zerolog.Nop())
	model := loopback.NewSinkModel(zerolog.Nop(), loopback.SinkOptions{})
	if err := f.Register(model); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	desc := loopback.DefaultMedia()

	sink, err := f.Manufacture(0, desc, link.CapSink, link.IOTS)
	if err != nil {
		t.Fatalf("Manufacture() error = %v", err)
	}
	if _, err := f.Manufacture(0, desc, link.CapSink, link.IOTS); !errors.Is(err, errs.ErrPerm) {
		t.Fatalf("second Manufacture(0) error = %v, want ErrPerm", err)
	}
	if _, err := f.Manufacture(1, desc, link.CapSink, link.IOTS); err != nil {
		t.Fatalf("Manufacture(1) error = %v", err)
	}

	if err := f.Dismantle(sink); err != nil {
		t.Fatalf("Dismantle() error = %v", err)
	}
	if _, ok := model.Sink(0); ok {
		t.Error("sink 0 still live after Dismantle")
	}
	if _, err := f.Manufacture(0, desc, link.CapSink, link.IOTS); err != nil {
		t.Fatalf("Manufacture(0) after Dismantle error = %v", err)
	}
	if got := model.Built(); got != 3 {
		t.Errorf("Built() = %d, want 3", got)
	}
}

func TestSinkFactoryMatching(t *testing.T) {
	f := link.NewSinkFactory(zerolog.Nop())
	if err := f.Register(loopback.NewSinkModel(zerolog.Nop(), loopback.SinkOptions{PlugType: link.IOES})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	desc := loopback.DefaultMedia()

	if _, err := f.Manufacture(0, desc, link.CapSink, link.IOTS); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Manufacture(TS input) error = %v, want ErrNotFound", err)
	}
	if _, err := f.Manufacture(0, desc, link.CapDecrypt, link.IOES); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Manufacture(decrypt caps) error = %v, want ErrNotFound", err)
	}
	if _, err := f.Manufacture(0, desc, link.CapSink, link.IOES); err != nil {
		t.Errorf("Manufacture(ES input) error = %v", err)
	}
}

func TestSinkFactoryFailedSetupFreesID(t *testing.T) {
	f := link.NewSinkFactory(zerolog.Nop())
	model := loopback.NewSinkModel(zerolog.Nop(), loopback.SinkOptions{FailSetup: true})
	if err := f.Register(model); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	desc := loopback.DefaultMedia()

	for i := 0; i < 2; i++ {
		_, err := f.Manufacture(0, desc, link.CapSink, link.IOTS)
		if err == nil {
			t.Fatalf("Manufacture() attempt %d succeeded, want setup failure", i)
		}
		if errors.Is(err, errs.ErrPerm) {
			t.Fatalf("Manufacture() attempt %d error = %v, id was not freed", i, err)
		}
	}
	if _, ok := model.Sink(0); ok {
		t.Error("sink with failed setup was not dismantled")
	}
}
