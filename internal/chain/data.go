/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package chain

import "github.com/friendsincode/eos/internal/datamgr"

// Data accessors delegated to the data manager. Each fails with
// errs.ErrNotFound while no data manager is loaded.

func (c *Chain) withData(fn func(dm *datamgr.Manager) error) error {
	dm, err := c.data()
	if err != nil {
		return err
	}
	return fn(dm)
}

func (c *Chain) dataPage(fn func(dm *datamgr.Manager) (uint16, error)) (uint16, error) {
	dm, err := c.data()
	if err != nil {
		return 0, err
	}
	return fn(dm)
}

func (c *Chain) TTXTEnable(enable bool) error {
	return c.withData(func(dm *datamgr.Manager) error { return dm.TTXTEnable(enable) })
}

func (c *Chain) TTXTPageSet(page, subpage uint16) error {
	return c.withData(func(dm *datamgr.Manager) error { return dm.TTXTPageSet(page, subpage) })
}

func (c *Chain) TTXTPageGet() (page, subpage uint16, err error) {
	err = c.withData(func(dm *datamgr.Manager) error {
		var derr error
		page, subpage, derr = dm.TTXTPageGet()
		return derr
	})
	return page, subpage, err
}

func (c *Chain) TTXTNextPage() (uint16, error)    { return c.dataPage((*datamgr.Manager).TTXTNextPage) }
func (c *Chain) TTXTPrevPage() (uint16, error)    { return c.dataPage((*datamgr.Manager).TTXTPrevPage) }
func (c *Chain) TTXTRedPage() (uint16, error)     { return c.dataPage((*datamgr.Manager).TTXTRedPage) }
func (c *Chain) TTXTGreenPage() (uint16, error)   { return c.dataPage((*datamgr.Manager).TTXTGreenPage) }
func (c *Chain) TTXTBluePage() (uint16, error)    { return c.dataPage((*datamgr.Manager).TTXTBluePage) }
func (c *Chain) TTXTYellowPage() (uint16, error)  { return c.dataPage((*datamgr.Manager).TTXTYellowPage) }
func (c *Chain) TTXTNextSubpage() (uint16, error) { return c.dataPage((*datamgr.Manager).TTXTNextSubpage) }
func (c *Chain) TTXTPrevSubpage() (uint16, error) { return c.dataPage((*datamgr.Manager).TTXTPrevSubpage) }

func (c *Chain) TTXTTransparencySet(alpha uint8) error {
	return c.withData(func(dm *datamgr.Manager) error { return dm.TTXTTransparencySet(alpha) })
}

func (c *Chain) DVBSubEnable(enable bool) error {
	return c.withData(func(dm *datamgr.Manager) error { return dm.DVBSubEnable(enable) })
}

func (c *Chain) HbbTVURL() (string, error) {
	dm, err := c.data()
	if err != nil {
		return "", err
	}
	return dm.HbbTVURL()
}
