/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package link defines the boundary between the orchestration core and the
// source and sink backends: capability masks, wire types, control tables,
// pipeline events and the factories producing backend instances.
package link

import (
	"fmt"
	"strings"

	"github.com/friendsincode/eos/internal/errs"
)

// Caps is a capability bitmask advertised by a source or sink.
type Caps uint64

const (
	CapSource Caps = 1 << iota
	CapTrickplay
	CapDecrypt
	CapStreamSel
	CapStreamProv
	CapDataProv
	CapAVOutSet
	CapSink
)

var capNames = []struct {
	cap  Caps
	name string
}{
	{CapSource, "source"},
	{CapTrickplay, "trickplay"},
	{CapDecrypt, "decrypt"},
	{CapStreamSel, "stream_sel"},
	{CapStreamProv, "stream_prov"},
	{CapDataProv, "data_prov"},
	{CapAVOutSet, "av_out_set"},
	{CapSink, "sink"},
}

// Has reports whether every bit of want is set.
func (c Caps) Has(want Caps) bool { return c&want == want }

// Overlaps reports whether c and other share at least one bit.
func (c Caps) Overlaps(other Caps) bool { return c&other != 0 }

func (c Caps) String() string {
	var parts []string
	for _, n := range capNames {
		if c&n.cap != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// IOType is the wire format flowing between a source and a sink.
type IOType uint32

const (
	IOTS IOType = 1 << iota
	IOSingleProgramTS
	IOMultiProgramTS
	IOES
)

// Covers reports whether t accepts every format in want.
func (t IOType) Covers(want IOType) bool { return t&want == want }

// Overlaps reports whether t and other share a format.
func (t IOType) Overlaps(other IOType) bool { return t&other != 0 }

// Plug is the buffer interface a sink exposes to its source. The source
// allocates a buffer, fills it and commits the filled part.
type Plug interface {
	Allocate(size int) ([]byte, error)
	Commit(buf []byte, n int) error
}

// Controller hands out capability control tables.
type Controller interface {
	Control(cap Caps) (any, error)
}

// ControlOf fetches the control table for cap and asserts its type.
func ControlOf[T any](c Controller, cap Caps) (T, error) {
	var zero T
	raw, err := c.Control(cap)
	if err != nil {
		return zero, err
	}
	ctrl, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("control %v is %T: %w", cap, raw, errs.ErrInval)
	}
	return ctrl, nil
}
