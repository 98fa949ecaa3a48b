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

package config

import "github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"

type Devices struct {
	SystemDiskPrefix    string   `toml:"system_disk_prefix,omitempty" validate:"omitempty,devpath"`
	ReservedMountPrefix string   `toml:"reserved_mount_prefix,omitempty" validate:"omitempty,uri"`
	RemovablePrefixes   []string `toml:"removable_prefixes,omitempty" validate:"dive,devpath"`
	OpticalPrefixes     []string `toml:"optical_prefixes,omitempty" validate:"dive,devpath"`
	BusPrefixes         []string `toml:"bus_prefixes,omitempty" validate:"dive,devpath"`
	AutoMount           bool     `toml:"auto_mount"`
}

type Notifications struct {
	Desktop bool `toml:"desktop"`
}

// AutoMount reports whether newly inserted volumes should be mounted. It is
// read on every event so edits to the file apply without a restart.
func (c *Instance) AutoMount() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Devices.AutoMount
}

func (c *Instance) SetAutoMount(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Devices.AutoMount = enabled
}

// ClassifierRules returns the configured device prefixes. Unset entries are
// left empty and filled with the built-in defaults by the classifier.
func (c *Instance) ClassifierRules() devices.ClassifierRules {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d := c.vals.Devices
	return devices.ClassifierRules{
		SystemDiskPrefix:    d.SystemDiskPrefix,
		ReservedMountPrefix: d.ReservedMountPrefix,
		RemovablePrefixes:   append([]string(nil), d.RemovablePrefixes...),
		OpticalPrefixes:     append([]string(nil), d.OpticalPrefixes...),
		BusPrefixes:         append([]string(nil), d.BusPrefixes...),
	}
}

func (c *Instance) DesktopNotifications() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Notifications.Desktop
}

func (c *Instance) SetDesktopNotifications(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Notifications.Desktop = enabled
}
