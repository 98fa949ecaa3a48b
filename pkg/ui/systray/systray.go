// Zaparoo Flash Disk
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Flash Disk.
//
// Zaparoo Flash Disk is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Flash Disk is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Flash Disk.  If not, see <http://www.gnu.org/licenses/>.

// Package systray shows the tray icon while removable devices are mounted,
// with a menu to eject them.
package systray

import (
	"context"
	"sync/atomic"
	"time"

	"fyne.io/systray"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/config"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/service/broker"
	"github.com/rs/zerolog/log"
)

const (
	title        = "Flash Disk"
	ejectTimeout = 5 * time.Second
)

// Ejector is the part of the service the menu drives.
type Ejector interface {
	Eject(ctx context.Context, driveID string) error
}

type row struct {
	item  *systray.MenuItem
	entry atomic.Pointer[Entry]
}

// Run blocks running the tray until Quit is chosen or ctx is done, then
// calls onExit.
func Run(ctx context.Context, b *broker.Broker, ej Ejector, icon []byte, onExit func()) {
	systray.Run(func() { onReady(ctx, b, ej, icon) }, onExit)
}

func onReady(ctx context.Context, b *broker.Broker, ej Ejector, icon []byte) {
	systray.SetTitle(title)
	systray.SetTooltip(title + " " + config.AppVersion)

	rows := make([]*row, MaxEntries)
	for i := range rows {
		item := systray.AddMenuItem("", "")
		item.Hide()
		rows[i] = &row{item: item}
		go func(r *row) {
			for range r.item.ClickedCh {
				e := r.entry.Load()
				if e == nil || e.DriveID == "" {
					continue
				}
				id := e.DriveID
				ectx, cancel := context.WithTimeout(ctx, ejectTimeout)
				if err := ej.Eject(ectx, id); err != nil {
					log.Warn().Err(err).Str("drive", id).Msg("eject request failed")
				}
				cancel()
			}
		}(rows[i])
	}
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit "+title)

	ch, id := b.Subscribe(32,
		models.NotificationTrayVisibility,
		models.NotificationDevicesChanged,
	)

	go func() {
		defer b.Unsubscribe(id)
		var state State
		render(&state, rows, icon)
		for {
			select {
			case <-ctx.Done():
				systray.Quit()
				return
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			case notif, ok := <-ch:
				if !ok {
					return
				}
				changed, err := state.Apply(notif)
				if err != nil {
					log.Warn().Err(err).Msg("tray ignored notification")
					continue
				}
				if changed {
					render(&state, rows, icon)
				}
			}
		}
	}()
}

// render updates the icon and the menu rows. An invisible tray has its
// icon cleared.
func render(state *State, rows []*row, icon []byte) {
	if state.Visible {
		systray.SetIcon(icon)
	} else {
		systray.SetIcon(nil)
	}
	for i, r := range rows {
		if i >= len(state.Entries) {
			r.entry.Store(nil)
			r.item.Hide()
			continue
		}
		e := state.Entries[i]
		r.entry.Store(&e)
		r.item.SetTitle(e.Label)
		r.item.SetTooltip(e.Tooltip)
		if e.DriveID == "" {
			r.item.Disable()
		} else {
			r.item.Enable()
		}
		r.item.Show()
	}
}
