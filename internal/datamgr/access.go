/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package datamgr

import (
	"fmt"

	"github.com/friendsincode/eos/internal/engine"
	"github.com/friendsincode/eos/internal/errs"
)

func (m *Manager) dataProv() (engine.DataProvAPI, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(engine.TypeDataProv)
	if i < 0 {
		return nil, fmt.Errorf("no data provider engine: %w", errs.ErrNotFound)
	}
	api, ok := m.attached[i].engine.API().(engine.DataProvAPI)
	if !ok {
		return nil, fmt.Errorf("data provider engine without API: %w", errs.ErrNotFound)
	}
	return api, nil
}

func (m *Manager) page(get func(engine.DataProvAPI) (uint16, error)) (uint16, error) {
	api, err := m.dataProv()
	if err != nil {
		return 0, err
	}
	return get(api)
}

func (m *Manager) TTXTEnable(enable bool) error {
	api, err := m.dataProv()
	if err != nil {
		return err
	}
	return api.TTXTEnable(enable)
}

func (m *Manager) TTXTPageSet(page, subpage uint16) error {
	api, err := m.dataProv()
	if err != nil {
		return err
	}
	return api.TTXTPageSet(page, subpage)
}

func (m *Manager) TTXTPageGet() (page, subpage uint16, err error) {
	api, err := m.dataProv()
	if err != nil {
		return 0, 0, err
	}
	return api.TTXTPageGet()
}

func (m *Manager) TTXTNextPage() (uint16, error) {
	return m.page(engine.DataProvAPI.TTXTNextPage)
}

func (m *Manager) TTXTPrevPage() (uint16, error) {
	return m.page(engine.DataProvAPI.TTXTPrevPage)
}

func (m *Manager) TTXTRedPage() (uint16, error) {
	return m.page(engine.DataProvAPI.TTXTRedPage)
}

func (m *Manager) TTXTGreenPage() (uint16, error) {
	return m.page(engine.DataProvAPI.TTXTGreenPage)
}

func (m *Manager) TTXTBluePage() (uint16, error) {
	return m.page(engine.DataProvAPI.TTXTBluePage)
}

func (m *Manager) TTXTYellowPage() (uint16, error) {
	return m.page(engine.DataProvAPI.TTXTYellowPage)
}

func (m *Manager) TTXTNextSubpage() (uint16, error) {
	return m.page(engine.DataProvAPI.TTXTNextSubpage)
}

func (m *Manager) TTXTPrevSubpage() (uint16, error) {
	return m.page(engine.DataProvAPI.TTXTPrevSubpage)
}

func (m *Manager) TTXTTransparencySet(alpha uint8) error {
	api, err := m.dataProv()
	if err != nil {
		return err
	}
	return api.TTXTTransparencySet(alpha)
}

func (m *Manager) DVBSubEnable(enable bool) error {
	api, err := m.dataProv()
	if err != nil {
		return err
	}
	return api.DVBSubEnable(enable)
}

// HbbTVURL returns the red button application URL signalled on the
// attached HbbTV track.
func (m *Manager) HbbTVURL() (string, error) {
	m.mu.Lock()
	i := m.find(engine.TypeHbbTV)
	var api engine.HbbTVAPI
	if i >= 0 {
		api, _ = m.attached[i].engine.API().(engine.HbbTVAPI)
	}
	m.mu.Unlock()
	if api == nil {
		return "", fmt.Errorf("no hbbtv engine: %w", errs.ErrNotFound)
	}
	return api.RedButtonURL()
}
