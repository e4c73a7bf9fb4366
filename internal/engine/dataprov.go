/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"fmt"
	"sync"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/link"
	"github.com/friendsincode/eos/internal/media"
)

// DataProvModel builds the generic engine fronting a sink's own data
// extraction. It answers to the bare data class codec.
type DataProvModel struct{}

func (DataProvModel) Name() string { return "data_prov" }

func (DataProvModel) Probe(codec media.Codec) bool { return codec == media.CodecDAT }

func (DataProvModel) Manufacture(p Params) (Engine, error) {
	if p.Callback == nil {
		return nil, fmt.Errorf("data provider engine without callback: %w", errs.ErrInval)
	}
	return &DataProv{cb: p.Callback}, nil
}

func (DataProvModel) Dismantle(e Engine) error {
	dp, ok := e.(*DataProv)
	if !ok {
		return errs.ErrInval
	}
	return dp.release()
}

// DataProv forwards teletext and subtitle control to a link.DataProvider
// and relays the data the sink pushes back while the matching output is
// enabled.
type DataProv struct {
	mu           sync.Mutex
	cb           Callback
	dp           link.DataProvider
	ttxt         bool
	dvbsub       bool
	transparency uint8
	enabled      bool
}

func (d *DataProv) Name() string          { return "data_prov" }
func (d *DataProv) Type() Type            { return TypeDataProv }
func (d *DataProv) API() any              { return DataProvAPI(d) }
func (d *DataProv) Hook() link.StreamHook { return nil }
func (d *DataProv) Flush() error          { return nil }

func (d *DataProv) Enable() error {
	d.mu.Lock()
	d.enabled = true
	d.mu.Unlock()
	return nil
}

func (d *DataProv) Disable() error {
	d.mu.Lock()
	d.enabled = false
	d.mu.Unlock()
	return nil
}

func (d *DataProv) provider() (link.DataProvider, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dp == nil {
		return nil, fmt.Errorf("no data provider set: %w", errs.ErrPerm)
	}
	return d.dp, nil
}

// SetDataProvider binds the sink table and registers the relay callback.
func (d *DataProv) SetDataProvider(dp link.DataProvider) error {
	if dp == nil {
		return errs.ErrInval
	}
	if err := dp.SetCallback(d.relay); err != nil {
		return fmt.Errorf("register data callback: %w", err)
	}
	d.mu.Lock()
	d.dp = dp
	d.enabled = true
	d.mu.Unlock()
	return nil
}

func (d *DataProv) release() error {
	d.mu.Lock()
	dp := d.dp
	d.dp = nil
	d.mu.Unlock()
	if dp == nil {
		return nil
	}
	return dp.SetCallback(nil)
}

func (d *DataProv) relay(codec media.Codec, data media.Data) error {
	d.mu.Lock()
	cb := d.cb
	forward := d.enabled && ((codec == media.CodecTTXT && d.ttxt) || (codec == media.CodecDVBSub && d.dvbsub))
	d.mu.Unlock()
	if !forward {
		return nil
	}
	t, dt := TypeTTXT, DataString
	if codec == media.CodecDVBSub {
		t, dt = TypeDVBSub, DataBase64PNG
	}
	if data.Format == media.FormatJSON {
		dt = DataJSON
	}
	return cb(t, dt, data.Bytes)
}

func (d *DataProv) TTXTEnable(enable bool) error {
	if _, err := d.provider(); err != nil {
		return err
	}
	d.mu.Lock()
	d.ttxt = enable
	d.mu.Unlock()
	return nil
}

func (d *DataProv) TTXTPageSet(page, subpage uint16) error {
	dp, err := d.provider()
	if err != nil {
		return err
	}
	return dp.TTXTPageSet(page, subpage)
}

func (d *DataProv) TTXTPageGet() (uint16, uint16, error) {
	dp, err := d.provider()
	if err != nil {
		return 0, 0, err
	}
	return dp.TTXTPageGet()
}

func (d *DataProv) page(get func(link.DataProvider) (uint16, error)) (uint16, error) {
	dp, err := d.provider()
	if err != nil {
		return 0, err
	}
	return get(dp)
}

func (d *DataProv) TTXTNextPage() (uint16, error) {
	return d.page(link.DataProvider.TTXTNextPage)
}

func (d *DataProv) TTXTPrevPage() (uint16, error) {
	return d.page(link.DataProvider.TTXTPrevPage)
}

func (d *DataProv) TTXTRedPage() (uint16, error) {
	return d.page(link.DataProvider.TTXTRedPage)
}

func (d *DataProv) TTXTGreenPage() (uint16, error) {
	return d.page(link.DataProvider.TTXTGreenPage)
}

// TTXTBluePage follows the FLOF blue key, which links to the next block.
func (d *DataProv) TTXTBluePage() (uint16, error) {
	return d.page(link.DataProvider.TTXTNextBlock)
}

// TTXTYellowPage follows the FLOF yellow key, which links to the next group.
func (d *DataProv) TTXTYellowPage() (uint16, error) {
	return d.page(link.DataProvider.TTXTNextGroup)
}

func (d *DataProv) TTXTNextSubpage() (uint16, error) {
	return d.page(link.DataProvider.TTXTNextSubpage)
}

func (d *DataProv) TTXTPrevSubpage() (uint16, error) {
	return d.page(link.DataProvider.TTXTPrevSubpage)
}

// TTXTTransparencySet stores the background alpha applied by the renderer.
func (d *DataProv) TTXTTransparencySet(alpha uint8) error {
	if _, err := d.provider(); err != nil {
		return err
	}
	d.mu.Lock()
	d.transparency = alpha
	d.mu.Unlock()
	return nil
}

// Transparency returns the stored teletext background alpha.
func (d *DataProv) Transparency() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transparency
}

func (d *DataProv) DVBSubEnable(enable bool) error {
	dp, err := d.provider()
	if err != nil {
		return err
	}
	if err := dp.DVBSubEnable(enable); err != nil {
		return err
	}
	d.mu.Lock()
	d.dvbsub = enable
	d.mu.Unlock()
	return nil
}
