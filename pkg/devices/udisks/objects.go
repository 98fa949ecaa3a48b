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

// Package udisks implements devices.VolumeMonitor over the UDisks2 D-Bus
// service.
package udisks

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	udisks2Service      = "org.freedesktop.UDisks2"
	udisks2Path         = "/org/freedesktop/UDisks2"
	udisks2Drive        = "org.freedesktop.UDisks2.Drive"
	udisks2Block        = "org.freedesktop.UDisks2.Block"
	udisks2Filesystem   = "org.freedesktop.UDisks2.Filesystem"
	udisks2Partition    = "org.freedesktop.UDisks2.Partition"
	dbusObjectManager   = "org.freedesktop.DBus.ObjectManager"
	dbusPropertiesIface = "org.freedesktop.DBus.Properties"
)

// Interfaces maps interface name to its properties for one object.
type Interfaces map[string]map[string]dbus.Variant

// ManagedObjects is the UDisks2 object tree as returned by
// GetManagedObjects.
type ManagedObjects map[dbus.ObjectPath]Interfaces

// addInterfaces merges newly added interfaces into the tree.
func (o ManagedObjects) addInterfaces(path dbus.ObjectPath, ifaces Interfaces) {
	obj, ok := o[path]
	if !ok {
		obj = make(Interfaces, len(ifaces))
		o[path] = obj
	}
	for name, props := range ifaces {
		cp := make(map[string]dbus.Variant, len(props))
		for k, v := range props {
			cp[k] = v
		}
		obj[name] = cp
	}
}

// removeInterfaces drops interfaces and deletes the object once it has none
// left.
func (o ManagedObjects) removeInterfaces(path dbus.ObjectPath, names []string) {
	obj, ok := o[path]
	if !ok {
		return
	}
	for _, name := range names {
		delete(obj, name)
	}
	if len(obj) == 0 {
		delete(o, path)
	}
}

// changeProperties applies a PropertiesChanged signal. Unknown objects and
// interfaces are ignored.
func (o ManagedObjects) changeProperties(
	path dbus.ObjectPath,
	iface string,
	changed map[string]dbus.Variant,
	invalidated []string,
) bool {
	obj, ok := o[path]
	if !ok {
		return false
	}
	props, ok := obj[iface]
	if !ok {
		return false
	}
	for k, v := range changed {
		props[k] = v
	}
	for _, k := range invalidated {
		delete(props, k)
	}
	return true
}

func propString(props map[string]dbus.Variant, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func propBool(props map[string]dbus.Variant, key string) bool {
	if v, ok := props[key]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}

func propPath(props map[string]dbus.Variant, key string) dbus.ObjectPath {
	if v, ok := props[key]; ok {
		if p, ok := v.Value().(dbus.ObjectPath); ok && p != "/" {
			return p
		}
	}
	return ""
}

// propBytes decodes a NUL terminated bytestring property such as Device.
func propBytes(props map[string]dbus.Variant, key string) string {
	if v, ok := props[key]; ok {
		if b, ok := v.Value().([]byte); ok && len(b) > 0 {
			return strings.TrimRight(string(b), "\x00")
		}
	}
	return ""
}

// propByteArrays decodes an array of bytestrings such as MountPoints.
func propByteArrays(props map[string]dbus.Variant, key string) []string {
	v, ok := props[key]
	if !ok {
		return nil
	}
	raw, ok := v.Value().([][]byte)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		if s := strings.TrimRight(string(b), "\x00"); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// driveInfo is the derived view of a UDisks2 Drive object.
type driveInfo struct {
	path        dbus.ObjectPath
	device      string
	vendor      string
	model       string
	ejectable   bool
	canPowerOff bool
	removable   bool
}

func (d *driveInfo) name() string {
	name := strings.TrimSpace(strings.TrimSpace(d.vendor) + " " + strings.TrimSpace(d.model))
	if name == "" {
		return d.device
	}
	return name
}

// volumeInfo is the derived view of a Block object carrying a filesystem.
type volumeInfo struct {
	path        dbus.ObjectPath
	drivePath   dbus.ObjectPath
	device      string
	uuid        string
	label       string
	hintName    string
	mountPoints []string
	hintAuto    bool
}

func (v *volumeInfo) name() string {
	switch {
	case v.hintName != "":
		return v.hintName
	case v.label != "":
		return v.label
	case v.device != "":
		return filepath.Base(v.device)
	default:
		return string(v.path)
	}
}

func (v *volumeInfo) mountPoint() string {
	if len(v.mountPoints) == 0 {
		return ""
	}
	return v.mountPoints[0]
}

// state is everything the monitor exposes, derived from ManagedObjects.
type state struct {
	drives  map[dbus.ObjectPath]*driveInfo
	volumes map[dbus.ObjectPath]*volumeInfo
}

// derive builds the exposed state from the raw object tree. A drive is only
// present once its whole-disk block device is known, and a volume that
// belongs to a drive is only present once that drive is. Blocks flagged
// HintIgnore or HintSystem and blocks without a filesystem are not volumes.
func derive(objects ManagedObjects) state {
	s := state{
		drives:  make(map[dbus.ObjectPath]*driveInfo),
		volumes: make(map[dbus.ObjectPath]*volumeInfo),
	}

	for path, ifaces := range objects {
		props, ok := ifaces[udisks2Drive]
		if !ok {
			continue
		}
		s.drives[path] = &driveInfo{
			path:        path,
			vendor:      propString(props, "Vendor"),
			model:       propString(props, "Model"),
			ejectable:   propBool(props, "Ejectable"),
			canPowerOff: propBool(props, "CanPowerOff"),
			removable:   propBool(props, "Removable") || propBool(props, "MediaRemovable"),
		}
	}

	for _, ifaces := range objects {
		block, ok := ifaces[udisks2Block]
		if !ok {
			continue
		}
		if _, isPart := ifaces[udisks2Partition]; isPart {
			continue
		}
		if d, ok := s.drives[propPath(block, "Drive")]; ok && d.device == "" {
			d.device = propBytes(block, "Device")
		}
	}
	for path, d := range s.drives {
		if d.device == "" {
			delete(s.drives, path)
		}
	}

	for path, ifaces := range objects {
		block, ok := ifaces[udisks2Block]
		if !ok {
			continue
		}
		fs, ok := ifaces[udisks2Filesystem]
		if !ok {
			continue
		}
		if propBool(block, "HintIgnore") || propBool(block, "HintSystem") {
			continue
		}
		v := &volumeInfo{
			path:        path,
			drivePath:   propPath(block, "Drive"),
			device:      propBytes(block, "Device"),
			uuid:        propString(block, "IdUUID"),
			label:       propString(block, "IdLabel"),
			hintName:    propString(block, "HintName"),
			hintAuto:    propBool(block, "HintAuto"),
			mountPoints: propByteArrays(fs, "MountPoints"),
		}
		if v.drivePath != "" {
			if _, ok := s.drives[v.drivePath]; !ok {
				continue
			}
		}
		s.volumes[path] = v
	}

	return s
}

// volumesOf returns the volumes of a drive sorted by object path.
func (s *state) volumesOf(drive dbus.ObjectPath) []*volumeInfo {
	var out []*volumeInfo
	for _, v := range s.volumes {
		if v.drivePath == drive {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

func sortedPaths[T any](m map[dbus.ObjectPath]T) []dbus.ObjectPath {
	out := make([]dbus.ObjectPath, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
