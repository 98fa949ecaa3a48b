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
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
	"github.com/godbus/dbus/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(m *Monitor) []devices.Event {
	var out []devices.Event
	for {
		select {
		case ev := <-m.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func kinds(events []devices.Event) []devices.EventKind {
	out := make([]devices.EventKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestMonitor_Enumeration(t *testing.T) {
	t.Parallel()

	m := newMonitor(newFakeCaller())
	m.load(stickObjects())

	drives := m.ConnectedDrives()
	require.Len(t, drives, 1)
	assert.Equal(t, "/dev/sdb", drives[0].UnixDevice())
	assert.True(t, drives[0].CanEject())
	assert.True(t, drives[0].CanStop())
	assert.False(t, drives[0].CanStart())
	assert.Len(t, drives[0].Volumes(), 2)

	vols := m.Volumes()
	require.Len(t, vols, 2)
	assert.Equal(t, "AAAA-1111", vols[0].UUID())
	assert.True(t, vols[0].CanEject())
	assert.True(t, vols[0].ShouldAutoMount())
	assert.False(t, vols[0].CanMount(), "already mounted")
	assert.True(t, vols[1].CanMount())
	require.NotNil(t, vols[0].Drive())
	assert.Equal(t, "/dev/sdb", vols[0].Drive().UnixDevice())

	mounts := m.Mounts()
	require.Len(t, mounts, 1)
	assert.Equal(t, "file:///media/u/KEY", mounts[0].RootURI())
	assert.Equal(t, "/media/u/KEY", mounts[0].RootPath())
	assert.Equal(t, "KEY", mounts[0].Name())
	assert.Empty(t, mounts[0].UUID())
	assert.True(t, mounts[0].IsNative())
	assert.True(t, mounts[0].CanEject())
	require.NotNil(t, mounts[0].Volume())
	assert.Equal(t, "AAAA-1111", mounts[0].Volume().UUID())

	assert.Empty(t, drain(m), "loading emits nothing")
}

func TestMonitor_PlugInEmitsTopDown(t *testing.T) {
	t.Parallel()

	m := newMonitorWithClock(newFakeCaller(), clockwork.NewFakeClock())
	objects := stickObjects()

	m.interfacesAdded(stickDrive, objects[stickDrive])
	assert.Empty(t, drain(m), "drive without block device is not announced")

	m.interfacesAdded(stickDisk, objects[stickDisk])
	assert.Empty(t, drain(m), "drive is held until a filesystem arrives")

	m.interfacesAdded(stickPart1, objects[stickPart1])
	events := drain(m)
	require.Equal(t, []devices.EventKind{
		devices.DriveConnected,
		devices.VolumeAdded,
		devices.MountAdded,
	}, kinds(events))
	assert.Equal(t, "/dev/sdb", events[0].Drive.UnixDevice())
	assert.Len(t, events[0].Drive.Volumes(), 1)
	assert.Equal(t, "AAAA-1111", events[1].Volume.UUID())
	assert.Equal(t, "/media/u/KEY", events[2].Mount.RootPath())
	require.NotNil(t, events[2].Mount.Drive())
	assert.Equal(t, "/dev/sdb", events[2].Mount.Drive().UnixDevice())

	m.interfacesAdded(stickPart2, objects[stickPart2])
	assert.Equal(t, []devices.EventKind{devices.VolumeAdded}, kinds(drain(m)))
}

func TestMonitor_DriveWithoutFilesystemAnnouncedAfterSettle(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	m := newMonitorWithClock(newFakeCaller(), clock)
	t.Cleanup(m.Stop)
	objects := stickObjects()

	m.interfacesAdded(stickDrive, objects[stickDrive])
	m.interfacesAdded(stickDisk, objects[stickDisk])
	assert.Empty(t, drain(m))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(settleDelay)

	select {
	case ev := <-m.Events():
		assert.Equal(t, devices.DriveConnected, ev.Kind)
		assert.Equal(t, "/dev/sdb", ev.Drive.UnixDevice())
		assert.Empty(t, ev.Drive.Volumes())
	case <-time.After(2 * time.Second):
		t.Fatal("held drive never announced")
	}

	m.interfacesAdded(stickPart1, objects[stickPart1])
	assert.Equal(t, []devices.EventKind{devices.VolumeAdded, devices.MountAdded}, kinds(drain(m)))
}

func TestMonitor_HeldDriveRemovedSilently(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	m := newMonitorWithClock(newFakeCaller(), clock)
	objects := stickObjects()

	m.interfacesAdded(stickDrive, objects[stickDrive])
	m.interfacesAdded(stickDisk, objects[stickDisk])
	m.interfacesRemoved(stickDisk, []string{udisks2Block})
	m.interfacesRemoved(stickDrive, []string{udisks2Drive})
	assert.Empty(t, drain(m), "a drive never announced is never disconnected")

	clock.Advance(settleDelay)
	assert.Empty(t, drain(m))
	m.mu.RLock()
	assert.Empty(t, m.settling)
	m.mu.RUnlock()
}

func TestMonitor_StopCancelsHeldDrives(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	m := newMonitorWithClock(newFakeCaller(), clock)
	objects := stickObjects()

	m.interfacesAdded(stickDrive, objects[stickDrive])
	m.interfacesAdded(stickDisk, objects[stickDisk])
	m.Stop()
	clock.Advance(settleDelay)

	_, open := <-m.Events()
	assert.False(t, open, "events closed without a late announcement")
}

func TestMonitor_UnplugEmitsBottomUp(t *testing.T) {
	t.Parallel()

	m := newMonitor(newFakeCaller())
	m.load(stickObjects())

	m.update(func(o ManagedObjects) bool {
		for p := range stickObjects() {
			delete(o, p)
		}
		return true
	})

	assert.Equal(t, []devices.EventKind{
		devices.MountRemoved,
		devices.VolumeRemoved,
		devices.VolumeRemoved,
		devices.DriveDisconnected,
	}, kinds(drain(m)))
}

func TestMonitor_MountPointChange(t *testing.T) {
	t.Parallel()

	m := newMonitor(newFakeCaller())
	m.load(stickObjects())

	m.propertiesChanged(stickPart2, udisks2Filesystem,
		map[string]dbus.Variant{"MountPoints": mountPointsVariant("/media/u/DATA")}, nil)
	events := drain(m)
	require.Equal(t, []devices.EventKind{devices.MountAdded}, kinds(events))
	assert.Equal(t, "file:///media/u/DATA", events[0].Mount.RootURI())

	m.propertiesChanged(stickPart1, udisks2Filesystem,
		map[string]dbus.Variant{"MountPoints": mountPointsVariant()}, nil)
	events = drain(m)
	require.Equal(t, []devices.EventKind{devices.MountRemoved}, kinds(events))
	assert.Equal(t, "file:///media/u/KEY", events[0].Mount.RootURI())

	m.propertiesChanged(stickPart1, udisks2Block,
		map[string]dbus.Variant{"IdLabel": dbus.MakeVariant("RENAMED")}, nil)
	assert.Empty(t, drain(m), "label change is not a lifecycle event")
}

func TestMonitor_RequestMount(t *testing.T) {
	t.Parallel()

	caller := newFakeCaller()
	caller.replies[udisks2Filesystem+".Mount"] = []any{"/media/u/DATA"}
	m := newMonitor(caller)
	m.load(stickObjects())

	vol := m.Volumes()[1]
	require.Nil(t, vol.CurrentMount())
	require.NoError(t, vol.RequestMount(context.Background()))

	mnt := vol.CurrentMount()
	require.NotNil(t, mnt, "mount visible before the property change")
	assert.Equal(t, "/media/u/DATA", mnt.RootPath())
	assert.Equal(t, []recordedCall{{path: stickPart2, method: udisks2Filesystem + ".Mount"}}, caller.recorded())

	// the property change still announces the mount
	m.propertiesChanged(stickPart2, udisks2Filesystem,
		map[string]dbus.Variant{"MountPoints": mountPointsVariant("/media/u/DATA")}, nil)
	assert.Equal(t, []devices.EventKind{devices.MountAdded}, kinds(drain(m)))
	assert.Empty(t, m.pending)
}

func TestMonitor_RequestMountErrors(t *testing.T) {
	t.Parallel()

	caller := newFakeCaller()
	caller.errs[udisks2Filesystem+".Mount"] = errors.New("not authorized")
	m := newMonitor(caller)
	m.load(stickObjects())

	vol := m.Volumes()[1]
	err := vol.RequestMount(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
	assert.Nil(t, vol.CurrentMount())

	m.update(func(o ManagedObjects) bool {
		delete(o, stickPart2)
		return true
	})
	assert.ErrorIs(t, vol.RequestMount(context.Background()), ErrUnknownObject)
}

func TestMonitor_EjectUnmountsFirst(t *testing.T) {
	t.Parallel()

	caller := newFakeCaller()
	m := newMonitor(caller)
	m.load(stickObjects())

	require.NoError(t, m.ConnectedDrives()[0].Eject(context.Background()))
	assert.Equal(t, []recordedCall{
		{path: stickPart1, method: udisks2Filesystem + ".Unmount"},
		{path: stickDrive, method: udisks2Drive + ".Eject"},
	}, caller.recorded())
}

func TestMonitor_EjectPowersOffFixedDrive(t *testing.T) {
	t.Parallel()

	caller := newFakeCaller()
	m := newMonitor(caller)
	objects := stickObjects()
	objects[stickDrive] = driveIfaces("WD", "Passport", false)
	objects[stickPart1][udisks2Filesystem]["MountPoints"] = mountPointsVariant()
	m.load(objects)

	d := m.ConnectedDrives()[0]
	assert.Equal(t, "WD Passport", d.Name())
	require.NoError(t, d.Eject(context.Background()))
	assert.Equal(t, []recordedCall{
		{path: stickDrive, method: udisks2Drive + ".PowerOff"},
	}, caller.recorded())
}

func TestMonitor_EjectStopsOnUnmountError(t *testing.T) {
	t.Parallel()

	caller := newFakeCaller()
	caller.errs[udisks2Filesystem+".Unmount"] = errors.New("target is busy")
	m := newMonitor(caller)
	m.load(stickObjects())

	err := m.ConnectedDrives()[0].Eject(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target is busy")
	assert.Len(t, caller.recorded(), 1, "eject not attempted")
}

func TestMonitor_StopClosesEvents(t *testing.T) {
	t.Parallel()

	m := newMonitor(nil)
	m.Stop()
	m.Stop()

	_, ok := <-m.Events()
	assert.False(t, ok)
	assert.Error(t, m.mountVolume(context.Background(), stickPart1))
}
