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

package systray

import (
	"encoding/json"
	"fmt"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
	"github.com/docker/go-units"
)

// MaxEntries is the number of device rows in the menu.
const MaxEntries = 8

// Entry is one device row of the tray menu.
type Entry struct {
	Label   string
	Tooltip string
	// DriveID is set for rows that can be ejected.
	DriveID string
}

// Entries lists mounted volumes and standalone mounts in snapshot order,
// at most limit of them.
func Entries(snap *devices.Snapshot, limit int) []Entry {
	var out []Entry
	add := func(e Entry) bool {
		if len(out) >= limit {
			return false
		}
		out = append(out, e)
		return true
	}

	for i := range snap.Drives {
		d := &snap.Drives[i]
		for j := range d.Volumes {
			v := &d.Volumes[j]
			if !v.Mounted() {
				continue
			}
			e := mountEntry(v.Mount, v.Name)
			if d.CanEject || d.CanStop {
				e.DriveID = d.ID
			}
			if !add(e) {
				return out
			}
		}
	}
	for i := range snap.Volumes {
		v := &snap.Volumes[i]
		if !v.Mounted() {
			continue
		}
		if !add(mountEntry(v.Mount, v.Name)) {
			return out
		}
	}
	for i := range snap.Mounts {
		if !add(mountEntry(&snap.Mounts[i], "")) {
			return out
		}
	}
	return out
}

func mountEntry(m *devices.MountRecord, fallback string) Entry {
	name := m.Name
	if name == "" {
		name = fallback
	}
	if name == "" {
		name = m.URI
	}
	e := Entry{Label: name, Tooltip: m.Tooltip}
	if m.TotalBytes > 0 {
		e.Label = fmt.Sprintf("%s (%s free of %s)", name,
			units.HumanSize(float64(m.FreeBytes)),
			units.HumanSize(float64(m.TotalBytes)))
	}
	return e
}

// State is what the tray shows, derived from notifications.
type State struct {
	Entries []Entry
	Visible bool
}

// Apply updates the state from one notification and reports whether it
// changed what is shown.
//
//nolint:gocritic // notification read only
func (s *State) Apply(notif models.Notification) (bool, error) {
	switch notif.Method {
	case models.NotificationTrayVisibility:
		var p models.TrayVisibilityParams
		if err := json.Unmarshal(notif.Params, &p); err != nil {
			return false, fmt.Errorf("failed to decode tray visibility: %w", err)
		}
		changed := s.Visible != p.Visible
		s.Visible = p.Visible
		return changed, nil
	case models.NotificationDevicesChanged:
		var p models.DevicesChangedParams
		if err := json.Unmarshal(notif.Params, &p); err != nil {
			return false, fmt.Errorf("failed to decode devices: %w", err)
		}
		s.Entries = Entries(&p.Snapshot, MaxEntries)
		return true, nil
	default:
		return false, nil
	}
}
