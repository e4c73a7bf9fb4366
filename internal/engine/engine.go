/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine defines the per-stream auxiliary data processors
// (teletext, HbbTV signalling, DVB subtitles, object carousels, sink data
// providers) and the factory manufacturing them by codec.
package engine

import (
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
)

// Type is the engine class. A data manager holds at most one engine per
// class.
type Type int

const (
	TypeInvalid Type = iota
	TypeTTXT
	TypeHbbTV
	TypeDVBSub
	TypeDataProv
	TypeDSMCC
)

func (t Type) String() string {
	switch t {
	case TypeTTXT:
		return "ttxt"
	case TypeHbbTV:
		return "hbbtv"
	case TypeDVBSub:
		return "dvbsub"
	case TypeDataProv:
		return "data_prov"
	case TypeDSMCC:
		return "dsmcc"
	}
	return "invalid"
}

// TypeForCodec maps a data codec to the engine class handling it.
func TypeForCodec(c media.Codec) Type {
	switch c {
	case media.CodecTTXT:
		return TypeTTXT
	case media.CodecHbbTV:
		return TypeHbbTV
	case media.CodecDVBSub:
		return TypeDVBSub
	case media.CodecDSMCCC:
		return TypeDSMCC
	case media.CodecDAT:
		return TypeDataProv
	}
	return TypeInvalid
}

// DataType is the encoding of data an engine emits.
type DataType int

const (
	DataString DataType = iota + 1
	DataHTML
	DataJSON
	DataBase64PNG
)

func (d DataType) String() string {
	switch d {
	case DataString:
		return "string"
	case DataHTML:
		return "html"
	case DataJSON:
		return "json"
	case DataBase64PNG:
		return "base64_png"
	}
	return "unknown"
}

// Callback receives data produced by an engine.
type Callback func(t Type, dt DataType, data []byte) error

// Params configures a manufactured engine.
type Params struct {
	Codec    media.Codec
	Callback Callback
}

// Engine processes one elementary stream.
type Engine interface {
	Name() string
	Type() Type
	// API returns the class specific control interface, one of
	// TTXTAPI, HbbTVAPI or DataProvAPI, or nil.
	API() any
	// Hook returns the input the sink pushes stream payload into, or nil
	// for engines fed another way.
	Hook() link.StreamHook
	Flush() error
	Enable() error
	Disable() error
}

// EventHandler is implemented by engines interested in link events.
type EventHandler interface {
	HandleEvent(ev link.Event) error
}

// TTXTAPI selects pages of a stream driven teletext engine.
type TTXTAPI interface {
	Select(page uint16) error
}

// HbbTVAPI exposes the signalled HbbTV application.
type HbbTVAPI interface {
	RedButtonURL() (string, error)
}

// DataProvAPI controls data extracted by the sink itself.
type DataProvAPI interface {
	SetDataProvider(dp link.DataProvider) error
	TTXTEnable(enable bool) error
	TTXTPageSet(page, subpage uint16) error
	TTXTPageGet() (page, subpage uint16, err error)
	TTXTNextPage() (uint16, error)
	TTXTPrevPage() (uint16, error)
	TTXTRedPage() (uint16, error)
	TTXTGreenPage() (uint16, error)
	TTXTBluePage() (uint16, error)
	TTXTYellowPage() (uint16, error)
	TTXTNextSubpage() (uint16, error)
	TTXTPrevSubpage() (uint16, error)
	TTXTTransparencySet(alpha uint8) error
	DVBSubEnable(enable bool) error
}
