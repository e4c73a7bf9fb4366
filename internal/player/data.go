/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"fmt"

	"github.com/friendsincode/eos/internal/chain"
	"github.com/friendsincode/eos/internal/engine"
	"github.com/friendsincode/eos/internal/events"
)

// DataClass is the kind of data handed to the host.
type DataClass int

const (
	ClassTTXT DataClass = iota
	ClassSub
	ClassHbbTV
	ClassDSMCC
)

func (c DataClass) String() string {
	switch c {
	case ClassTTXT:
		return "ttxt"
	case ClassSub:
		return "sub"
	case ClassHbbTV:
		return "hbbtv"
	case ClassDSMCC:
		return "dsmcc"
	}
	return "unknown"
}

// DataFormat is the encoding of data handed to the host.
type DataFormat int

const (
	FormatRaw DataFormat = iota
	FormatJSON
	FormatHTML
	FormatBase64PNG
)

func (f DataFormat) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatJSON:
		return "json"
	case FormatHTML:
		return "html"
	case FormatBase64PNG:
		return "base64_png"
	}
	return "unknown"
}

func classOf(t engine.Type) (DataClass, error) {
	switch t {
	case engine.TypeTTXT:
		return ClassTTXT, nil
	case engine.TypeDVBSub:
		return ClassSub, nil
	case engine.TypeHbbTV:
		return ClassHbbTV, nil
	case engine.TypeDSMCC:
		return ClassDSMCC, nil
	}
	return 0, fmt.Errorf("engine %v: %w", t, errUnmapped)
}

func formatOf(dt engine.DataType) (DataFormat, error) {
	switch dt {
	case engine.DataString:
		return FormatRaw, nil
	case engine.DataJSON:
		return FormatJSON, nil
	case engine.DataHTML:
		return FormatHTML, nil
	case engine.DataBase64PNG:
		return FormatBase64PNG, nil
	}
	return 0, fmt.Errorf("data type %v: %w", dt, errUnmapped)
}

func (p *Player) handleData(chainID uint32, t engine.Type, dt engine.DataType, data []byte) {
	if !validOutput(chainID) {
		p.logger.Error().Uint32("chain_id", chainID).Msg("data from unknown chain")
	}
	cls, err := classOf(t)
	if err == nil {
		var f DataFormat
		if f, err = formatOf(dt); err == nil {
			p.deliverData(chainID, cls, f, data)
			return
		}
	}
	p.logger.Warn().Err(err).Uint32("out", chainID).Msg("engine data dropped")
}

func (p *Player) deliverData(out uint32, cls DataClass, f DataFormat, data []byte) {
	p.metrics.PlayerEvent("data")
	if p.bus != nil {
		p.bus.Publish(events.EventData, events.Payload{
			"out":    out,
			"class":  cls.String(),
			"format": f.String(),
			"data":   string(data),
		})
	}

	p.mu.RLock()
	fn := p.onData
	p.mu.RUnlock()
	if fn != nil {
		fn(out, cls, f, append([]byte(nil), data...))
	}
}

// TTXTEnable turns teletext decoding on or off.
func (p *Player) TTXTEnable(out uint32, enable bool) error {
	return p.withChain(out, func(ch *chain.Chain) error { return ch.TTXTEnable(enable) })
}

// TTXTPageSet shows page and subpage.
func (p *Player) TTXTPageSet(out uint32, page, subpage uint16) error {
	return p.withChain(out, func(ch *chain.Chain) error { return ch.TTXTPageSet(page, subpage) })
}

// TTXTPageGet reports the page and subpage shown.
func (p *Player) TTXTPageGet(out uint32) (page, subpage uint16, err error) {
	err = p.withChain(out, func(ch *chain.Chain) error {
		var gerr error
		page, subpage, gerr = ch.TTXTPageGet()
		return gerr
	})
	return page, subpage, err
}

// TTXTTransparencySet sets the teletext background alpha.
func (p *Player) TTXTTransparencySet(out uint32, alpha uint8) error {
	return p.withChain(out, func(ch *chain.Chain) error { return ch.TTXTTransparencySet(alpha) })
}

// Page navigation. Each returns the page (or subpage) now shown.
func (p *Player) TTXTNextPage(out uint32) (uint16, error) {
	return p.page(out, (*chain.Chain).TTXTNextPage)
}

func (p *Player) TTXTPrevPage(out uint32) (uint16, error) {
	return p.page(out, (*chain.Chain).TTXTPrevPage)
}

func (p *Player) TTXTRedPage(out uint32) (uint16, error) {
	return p.page(out, (*chain.Chain).TTXTRedPage)
}

func (p *Player) TTXTGreenPage(out uint32) (uint16, error) {
	return p.page(out, (*chain.Chain).TTXTGreenPage)
}

func (p *Player) TTXTBluePage(out uint32) (uint16, error) {
	return p.page(out, (*chain.Chain).TTXTBluePage)
}

func (p *Player) TTXTYellowPage(out uint32) (uint16, error) {
	return p.page(out, (*chain.Chain).TTXTYellowPage)
}

func (p *Player) TTXTNextSubpage(out uint32) (uint16, error) {
	return p.page(out, (*chain.Chain).TTXTNextSubpage)
}

func (p *Player) TTXTPrevSubpage(out uint32) (uint16, error) {
	return p.page(out, (*chain.Chain).TTXTPrevSubpage)
}

func (p *Player) page(out uint32, move func(*chain.Chain) (uint16, error)) (uint16, error) {
	var pg uint16
	err := p.withChain(out, func(ch *chain.Chain) error {
		var merr error
		pg, merr = move(ch)
		return merr
	})
	return pg, err
}

// DVBSubEnable turns DVB subtitle rendering on or off.
func (p *Player) DVBSubEnable(out uint32, enable bool) error {
	return p.withChain(out, func(ch *chain.Chain) error { return ch.DVBSubEnable(enable) })
}

// HbbTVURL returns the last signalled HbbTV application URL.
func (p *Player) HbbTVURL(out uint32) (string, error) {
	var url string
	err := p.withChain(out, func(ch *chain.Chain) error {
		var herr error
		url, herr = ch.HbbTVURL()
		return herr
	})
	return url, err
}
