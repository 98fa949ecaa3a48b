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

package udisks

import (
	"context"
	"net/url"
	"path/filepath"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
)

// drive is a devices.Drive backed by a copy of the derived drive state.
type drive struct {
	m    *Monitor
	info driveInfo
}

func (d *drive) UnixDevice() string { return d.info.device }
func (d *drive) Name() string       { return d.info.name() }
func (d *drive) CanEject() bool     { return d.info.ejectable }
func (d *drive) CanStop() bool      { return d.info.canPowerOff }
func (*drive) CanStart() bool       { return false }
func (d *drive) IsRemovable() bool  { return d.info.removable }

// Volumes returns the volumes the monitor currently sees on the drive.
func (d *drive) Volumes() []devices.Volume {
	return d.m.driveVolumes(d.info.path)
}

func (d *drive) Eject(ctx context.Context) error {
	return d.m.ejectDrive(ctx, d.info.path)
}

// volume is a devices.Volume backed by a copy of the derived volume state.
// Its mount is looked up live so a completed mount request is visible
// before the matching property change arrives.
type volume struct {
	m     *Monitor
	drive *drive
	info  volumeInfo
}

func (v *volume) UnixDevice() string    { return v.info.device }
func (v *volume) UUID() string          { return v.info.uuid }
func (v *volume) Name() string          { return v.info.name() }
func (v *volume) ShouldAutoMount() bool { return v.info.hintAuto }

func (v *volume) CanMount() bool {
	return v.m.mountPointOf(v.info.path) == ""
}

func (v *volume) CanEject() bool {
	return v.drive != nil && v.drive.info.ejectable
}

func (v *volume) Drive() devices.Drive {
	if v.drive == nil {
		return nil
	}
	return v.drive
}

func (v *volume) CurrentMount() devices.Mount {
	mp := v.m.mountPointOf(v.info.path)
	if mp == "" {
		return nil
	}
	return &mount{vol: v, path: mp}
}

func (v *volume) RequestMount(ctx context.Context) error {
	return v.m.mountVolume(ctx, v.info.path)
}

// mount is a devices.Mount for a mounted UDisks2 filesystem.
type mount struct {
	vol  *volume
	path string
}

// UUID is empty so the mount is keyed by its URI.
func (*mount) UUID() string { return "" }

func (m *mount) Name() string {
	if m.vol.info.label != "" {
		return m.vol.info.label
	}
	return filepath.Base(m.path)
}

func (m *mount) CanEject() bool         { return m.vol.CanEject() }
func (*mount) CanUnmount() bool         { return true }
func (m *mount) RootURI() string        { return fileURI(m.path) }
func (m *mount) RootPath() string       { return m.path }
func (*mount) IsNative() bool           { return true }
func (m *mount) Tooltip() string        { return m.path }
func (m *mount) Volume() devices.Volume { return m.vol }
func (m *mount) Drive() devices.Drive   { return m.vol.Drive() }

func fileURI(path string) string {
	u := url.URL{Scheme: "file", Path: path}
	return u.String()
}
