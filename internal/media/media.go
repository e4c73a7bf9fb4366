/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media describes the elementary streams a source delivers and the
// codecs they carry.
package media

import (
	"fmt"

	"github.com/friendsincode/eos/internal/errs"
)

const (
	// ESMax bounds the number of elementary streams in one descriptor.
	ESMax = 30
	// LangMax is the size of an ISO 639 language code buffer.
	LangMax = 5
	// TTXTPageInfosMax bounds the teletext page infos per stream.
	TTXTPageInfosMax = 10
)

// Container is the multiplex format of a stream.
type Container int

const (
	ContainerNone Container = iota
	ContainerMPEGTS
	ContainerMP4
)

func (c Container) String() string {
	switch c {
	case ContainerMPEGTS:
		return "mpegts"
	case ContainerMP4:
		return "mp4"
	}
	return "none"
}

// DRMType names the conditional access system protecting a stream.
type DRMType int

const (
	DRMNone DRMType = iota
	DRMVmx
	DRMPlayReady
	DRMUnknown
)

// DRM carries the conditional access data announced by the source.
type DRM struct {
	ID     uint32  `json:"id"`
	Type   DRMType `json:"type"`
	System uint16  `json:"system"`
	Data   []byte  `json:"data,omitempty"`
}

// TTXTType is the kind of a teletext page.
type TTXTType int

const (
	TTXTInitialPage TTXTType = iota + 1
	TTXTSubtitle
	TTXTInfo
	TTXTSchedule
	TTXTCC
)

// TTXTPageInfo advertises one teletext magazine page of a stream.
type TTXTPageInfo struct {
	Lang string   `json:"lang"`
	Type TTXTType `json:"type"`
	Page uint16   `json:"page"`
}

// VideoAttr is filled for video streams.
type VideoAttr struct {
	FPS    uint16 `json:"fps"`
	Width  uint16 `json:"width"`
	Height uint16 `json:"height"`
}

// AudioAttr is filled for audio streams.
type AudioAttr struct {
	Rate     uint32 `json:"rate"`
	Channels uint8  `json:"channels"`
}

// ES is one elementary stream.
type ES struct {
	ID       uint32         `json:"id"`
	Codec    Codec          `json:"codec"`
	Lang     string         `json:"lang,omitempty"`
	Video    VideoAttr      `json:"video,omitempty"`
	Audio    AudioAttr      `json:"audio,omitempty"`
	TTXT     []TTXTPageInfo `json:"ttxt,omitempty"`
	Selected bool           `json:"selected"`
}

// Desc is the stream descriptor of one source.
type Desc struct {
	Container Container `json:"container"`
	DRM       DRM       `json:"drm"`
	ES        []ES      `json:"es"`
}

// Validate checks the descriptor bounds.
func (d *Desc) Validate() error {
	if len(d.ES) > ESMax {
		return fmt.Errorf("%d elementary streams, max %d: %w", len(d.ES), ESMax, errs.ErrOverflow)
	}
	for i := range d.ES {
		if len(d.ES[i].Lang) > LangMax {
			return fmt.Errorf("stream %d language %q: %w", d.ES[i].ID, d.ES[i].Lang, errs.ErrInval)
		}
		if len(d.ES[i].TTXT) > TTXTPageInfosMax {
			return fmt.Errorf("stream %d has %d teletext pages: %w", d.ES[i].ID, len(d.ES[i].TTXT), errs.ErrOverflow)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d Desc) Clone() Desc {
	out := d
	if d.DRM.Data != nil {
		out.DRM.Data = append([]byte(nil), d.DRM.Data...)
	}
	if d.ES != nil {
		out.ES = make([]ES, len(d.ES))
		for i, es := range d.ES {
			if es.TTXT != nil {
				es.TTXT = append([]TTXTPageInfo(nil), es.TTXT...)
			}
			out.ES[i] = es
		}
	}
	return out
}

// Index returns the index of the stream with the given id, or -1.
func (d *Desc) Index(id uint32) int {
	for i := range d.ES {
		if d.ES[i].ID == id {
			return i
		}
	}
	return -1
}

// Selected returns the index of the first selected stream whose codec
// is of class c, or -1.
func (d *Desc) Selected(c Class) int {
	for i := range d.ES {
		if d.ES[i].Selected && d.ES[i].Codec.Class() == c {
			return i
		}
	}
	return -1
}

// DataFormat is the encoding of a data payload handed to callers.
type DataFormat int

const (
	FormatJSON DataFormat = iota
	FormatNone
)

// Data is a payload polled from a data stream, e.g. a teletext page.
type Data struct {
	Codec  Codec
	Format DataFormat
	Bytes  []byte
}
