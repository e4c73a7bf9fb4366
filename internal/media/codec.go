/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

// Codec identifies the coding of one elementary stream. Values are grouped
// in ranges headed by their class marker, so the numeric layout matches the
// one exchanged with source and sink backends.
type Codec uint16

const CodecUnknown Codec = 0

const (
	CodecVID Codec = 0x20 + iota
	CodecMPEG1
	CodecMPEG2
	CodecMPEG4
	CodecH264
	CodecH265
	CodecWMV
)

const (
	CodecAUD Codec = 0x40 + iota
	CodecMP1
	CodecMP2
	CodecMP3
	CodecAAC
	CodecHEAAC
	CodecAC3
	CodecEAC3
	CodecDTS
	CodecLPCM
	CodecWMA
)

const (
	CodecDAT Codec = 0x80 + iota
	CodecTTXT
	CodecDVBSub
	CodecCC
	CodecCLK
	CodecHbbTV
	CodecDSMCCA
	CodecDSMCCB
	CodecDSMCCC
	CodecDSMCCD
)

const (
	CodecDRM Codec = 0x100 + iota
	CodecVMX
)

// Class is the coarse category of a codec.
type Class int

const (
	ClassUnknown Class = iota
	ClassVideo
	ClassAudio
	ClassData
	ClassDRM
)

func (c Class) String() string {
	switch c {
	case ClassVideo:
		return "video"
	case ClassAudio:
		return "audio"
	case ClassData:
		return "data"
	case ClassDRM:
		return "drm"
	}
	return "unknown"
}

// Class classifies c by the range it falls in. Class markers themselves
// (CodecVID, CodecDAT, ...) belong to their class.
func (c Codec) Class() Class {
	switch {
	case c >= CodecVID && c < CodecAUD:
		return ClassVideo
	case c >= CodecAUD && c < CodecDAT:
		return ClassAudio
	case c >= CodecDAT && c < CodecDRM:
		return ClassData
	case c >= CodecDRM && c < CodecDRM+0x100:
		return ClassDRM
	}
	return ClassUnknown
}

func (c Codec) IsVideo() bool { return c.Class() == ClassVideo }
func (c Codec) IsAudio() bool { return c.Class() == ClassAudio }
func (c Codec) IsData() bool  { return c.Class() == ClassData }
func (c Codec) IsDRM() bool   { return c.Class() == ClassDRM }

var codecNames = map[Codec]string{
	CodecMPEG1:  "MPEG1",
	CodecMPEG2:  "MPEG2",
	CodecMPEG4:  "MPEG4",
	CodecH264:   "H264",
	CodecH265:   "H265",
	CodecWMV:    "WMV",
	CodecMP1:    "MP1",
	CodecMP2:    "MP2",
	CodecMP3:    "MP3",
	CodecAAC:    "AAC",
	CodecHEAAC:  "HEAAC",
	CodecAC3:    "AC3",
	CodecEAC3:   "EAC3",
	CodecDTS:    "DTS",
	CodecLPCM:   "LPCM",
	CodecWMA:    "WMA",
	CodecTTXT:   "TTXT",
	CodecDVBSub: "DVB SUB",
	CodecCC:     "CC",
	CodecCLK:    "CLK",
	CodecHbbTV:  "HBBTV",
	CodecDSMCCA: "DSMCC_A",
	CodecDSMCCB: "DSMCC_B",
	CodecDSMCCC: "DSMCC_C",
	CodecDSMCCD: "DSMCC_D",
	CodecVMX:    "VMX",
}

func (c Codec) String() string {
	if name, ok := codecNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}
