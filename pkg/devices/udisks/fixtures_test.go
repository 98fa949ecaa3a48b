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
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	stickDrive = dbus.ObjectPath("/org/freedesktop/UDisks2/drives/SanDisk_Cruzer_123")
	stickDisk  = dbus.ObjectPath("/org/freedesktop/UDisks2/block_devices/sdb")
	stickPart1 = dbus.ObjectPath("/org/freedesktop/UDisks2/block_devices/sdb1")
	stickPart2 = dbus.ObjectPath("/org/freedesktop/UDisks2/block_devices/sdb2")
	systemPart = dbus.ObjectPath("/org/freedesktop/UDisks2/block_devices/sda1")
	loopDev    = dbus.ObjectPath("/org/freedesktop/UDisks2/block_devices/loop0")
)

func driveIfaces(vendor, model string, ejectable bool) Interfaces {
	return Interfaces{
		udisks2Drive: {
			"Vendor":      dbus.MakeVariant(vendor),
			"Model":       dbus.MakeVariant(model),
			"Ejectable":   dbus.MakeVariant(ejectable),
			"CanPowerOff": dbus.MakeVariant(true),
			"Removable":   dbus.MakeVariant(true),
		},
	}
}

func wholeDiskIfaces(device string, drive dbus.ObjectPath) Interfaces {
	return Interfaces{
		udisks2Block: {
			"Device": dbus.MakeVariant([]byte(device + "\x00")),
			"Drive":  dbus.MakeVariant(drive),
		},
	}
}

func mountPointsVariant(mountPoints ...string) dbus.Variant {
	raw := make([][]byte, 0, len(mountPoints))
	for _, mp := range mountPoints {
		raw = append(raw, []byte(mp+"\x00"))
	}
	return dbus.MakeVariant(raw)
}

func partitionIfaces(device string, drive dbus.ObjectPath, uuid, label string, mountPoints ...string) Interfaces {
	return Interfaces{
		udisks2Block: {
			"Device":   dbus.MakeVariant([]byte(device + "\x00")),
			"Drive":    dbus.MakeVariant(drive),
			"IdUUID":   dbus.MakeVariant(uuid),
			"IdLabel":  dbus.MakeVariant(label),
			"HintAuto": dbus.MakeVariant(true),
		},
		udisks2Partition:  {},
		udisks2Filesystem: {"MountPoints": mountPointsVariant(mountPoints...)},
	}
}

// stickObjects is one USB stick with two partitions, the first mounted.
func stickObjects() ManagedObjects {
	return ManagedObjects{
		stickDrive: driveIfaces("SanDisk", "Cruzer", true),
		stickDisk:  wholeDiskIfaces("/dev/sdb", stickDrive),
		stickPart1: partitionIfaces("/dev/sdb1", stickDrive, "AAAA-1111", "KEY", "/media/u/KEY"),
		stickPart2: partitionIfaces("/dev/sdb2", stickDrive, "BBBB-2222", "DATA"),
	}
}

type recordedCall struct {
	path   dbus.ObjectPath
	method string
}

// fakeCaller records method calls and answers from a table.
type fakeCaller struct {
	errs    map[string]error
	replies map[string][]any
	calls   []recordedCall
	mu      sync.Mutex
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		errs:    make(map[string]error),
		replies: make(map[string][]any),
	}
}

func (f *fakeCaller) callMethod(_ context.Context, path dbus.ObjectPath, method string, _ ...any) *dbus.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{path: path, method: method})
	return &dbus.Call{Err: f.errs[method], Body: f.replies[method]}
}

func (f *fakeCaller) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}
