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
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/helpers/syncutil"
	"github.com/godbus/dbus/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// settleDelay is how long a new drive with no filesystem yet is held back.
// UDisks2 announces the drive, the whole disk and each partition in
// separate signals.
const settleDelay = 3 * time.Second

// ErrUnknownObject is returned when a mount or eject targets an object the
// monitor no longer sees.
var ErrUnknownObject = errors.New("udisks2 object not found")

// methodCaller issues a method call on a UDisks2 object.
type methodCaller interface {
	callMethod(ctx context.Context, path dbus.ObjectPath, method string, args ...any) *dbus.Call
}

// Monitor implements devices.VolumeMonitor over UDisks2. It keeps a copy of
// the managed object tree, re-derives drives and volumes on every change
// and emits the differences as lifecycle events.
//
// DriveConnected is only sent once the drive has a filesystem or after
// settleDelay, so a stick whose partitions are still arriving is not
// reported as a drive without volumes.
type Monitor struct {
	clock    clockwork.Clock
	caller   methodCaller
	closer   func()
	objects  ManagedObjects
	pending  map[dbus.ObjectPath]string
	settling map[dbus.ObjectPath]clockwork.Timer
	events   chan devices.Event
	stopChan chan struct{}
	state    state
	wg       sync.WaitGroup
	mu       syncutil.RWMutex
	sendMu   syncutil.Mutex
	stopOnce sync.Once
	stopped  bool
}

// NewMonitor creates a monitor. Call Start to connect to the system bus.
func NewMonitor() *Monitor {
	return newMonitor(nil)
}

func newMonitor(caller methodCaller) *Monitor {
	return newMonitorWithClock(caller, clockwork.NewRealClock())
}

func newMonitorWithClock(caller methodCaller, clock clockwork.Clock) *Monitor {
	return &Monitor{
		clock:    clock,
		caller:   caller,
		objects:  make(ManagedObjects),
		pending:  make(map[dbus.ObjectPath]string),
		settling: make(map[dbus.ObjectPath]clockwork.Timer),
		events:   make(chan devices.Event, 32),
		stopChan: make(chan struct{}),
		state:    derive(nil),
	}
}

func (m *Monitor) Events() <-chan devices.Event {
	return m.events
}

func (m *Monitor) ConnectedDrives() []devices.Drive {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]devices.Drive, 0, len(m.state.drives))
	for _, p := range sortedPaths(m.state.drives) {
		out = append(out, m.newDrive(m.state.drives[p]))
	}
	return out
}

func (m *Monitor) Volumes() []devices.Volume {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]devices.Volume, 0, len(m.state.volumes))
	for _, p := range sortedPaths(m.state.volumes) {
		out = append(out, m.newVolume(&m.state, m.state.volumes[p]))
	}
	return out
}

// Mounts lists every mounted filesystem. UDisks2 mounts always belong to a
// volume.
func (m *Monitor) Mounts() []devices.Mount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []devices.Mount
	for _, p := range sortedPaths(m.state.volumes) {
		v := m.state.volumes[p]
		if mp := v.mountPoint(); mp != "" {
			out = append(out, &mount{vol: m.newVolume(&m.state, v), path: mp})
		}
	}
	return out
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		for p, t := range m.settling {
			t.Stop()
			delete(m.settling, p)
		}
		m.mu.Unlock()

		close(m.stopChan)
		m.wg.Wait()
		if m.closer != nil {
			m.closer()
		}
		close(m.events)
	})
}

//nolint:gocritic // info copied into the handle
func (m *Monitor) newDrive(info *driveInfo) *drive {
	return &drive{m: m, info: *info}
}

func (m *Monitor) newVolume(st *state, info *volumeInfo) *volume {
	v := &volume{m: m, info: *info}
	if d, ok := st.drives[info.drivePath]; ok {
		v.drive = m.newDrive(d)
	}
	return v
}

// load replaces the object tree, used for the initial GetManagedObjects.
// No events are emitted: the initial state is read through enumeration.
func (m *Monitor) load(objects ManagedObjects) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects = objects
	m.state = derive(objects)
}

// update mutates the object tree, re-derives the state and emits the
// resulting events in order.
func (m *Monitor) update(mutate func(ManagedObjects) bool) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	if !mutate(m.objects) {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = derive(m.objects)
	for p := range m.pending {
		if v, ok := m.state.volumes[p]; !ok || v.mountPoint() != "" {
			delete(m.pending, p)
		}
	}
	events := m.diff(&old, &m.state)
	m.mu.Unlock()

	m.send(events)
}

func (m *Monitor) send(events []devices.Event) {
	for _, ev := range events {
		select {
		case m.events <- ev:
			log.Debug().Str("event", ev.Kind.String()).Msg("udisks2 event")
		case <-m.stopChan:
			return
		}
	}
}

// holdDrive delays the announcement of a drive that has no filesystem yet.
// Called with mu held.
func (m *Monitor) holdDrive(path dbus.ObjectPath) {
	if m.stopped {
		return
	}
	if _, ok := m.settling[path]; ok {
		return
	}
	m.settling[path] = m.clock.AfterFunc(settleDelay, func() { m.settled(path) })
}

// settled announces a held drive once the settle delay passes without a
// filesystem showing up.
func (m *Monitor) settled(path dbus.ObjectPath) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	if _, ok := m.settling[path]; !ok || m.stopped {
		m.mu.Unlock()
		return
	}
	delete(m.settling, path)
	d, ok := m.state.drives[path]
	if !ok {
		m.mu.Unlock()
		return
	}
	ev := devices.Event{Kind: devices.DriveConnected, Drive: m.newDrive(d)}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	log.Debug().Str("device", d.device).Msg("drive settled without filesystems")
	m.send([]devices.Event{ev})
}

func (m *Monitor) interfacesAdded(path dbus.ObjectPath, ifaces Interfaces) {
	m.update(func(o ManagedObjects) bool {
		o.addInterfaces(path, ifaces)
		return true
	})
}

func (m *Monitor) interfacesRemoved(path dbus.ObjectPath, names []string) {
	m.update(func(o ManagedObjects) bool {
		o.removeInterfaces(path, names)
		return true
	})
}

func (m *Monitor) propertiesChanged(
	path dbus.ObjectPath,
	iface string,
	changed map[string]dbus.Variant,
	invalidated []string,
) {
	m.update(func(o ManagedObjects) bool {
		return o.changeProperties(path, iface, changed, invalidated)
	})
}

// diff turns a state change into events. Removals come first, deepest
// object first, then additions from the drive down. Called with mu held.
func (m *Monitor) diff(old, cur *state) []devices.Event {
	var events []devices.Event

	for _, p := range sortedPaths(old.volumes) {
		ov := old.volumes[p]
		mp := ov.mountPoint()
		if mp == "" {
			continue
		}
		if nv, ok := cur.volumes[p]; ok && nv.mountPoint() == mp {
			continue
		}
		events = append(events, devices.Event{
			Kind:  devices.MountRemoved,
			Mount: &mount{vol: m.newVolume(old, ov), path: mp},
		})
	}
	for _, p := range sortedPaths(old.volumes) {
		if _, ok := cur.volumes[p]; !ok {
			events = append(events, devices.Event{
				Kind:   devices.VolumeRemoved,
				Volume: m.newVolume(old, old.volumes[p]),
			})
		}
	}
	for _, p := range sortedPaths(old.drives) {
		if _, ok := cur.drives[p]; !ok {
			if t, held := m.settling[p]; held {
				t.Stop()
				delete(m.settling, p)
				continue
			}
			events = append(events, devices.Event{
				Kind:  devices.DriveDisconnected,
				Drive: m.newDrive(old.drives[p]),
			})
		}
	}

	for _, p := range sortedPaths(cur.drives) {
		t, held := m.settling[p]
		if _, ok := old.drives[p]; ok && !held {
			continue
		}
		if len(cur.volumesOf(p)) == 0 {
			m.holdDrive(p)
			continue
		}
		if held {
			t.Stop()
			delete(m.settling, p)
		}
		events = append(events, devices.Event{
			Kind:  devices.DriveConnected,
			Drive: m.newDrive(cur.drives[p]),
		})
	}
	for _, p := range sortedPaths(cur.volumes) {
		if _, ok := old.volumes[p]; !ok {
			events = append(events, devices.Event{
				Kind:   devices.VolumeAdded,
				Volume: m.newVolume(cur, cur.volumes[p]),
			})
		}
	}
	for _, p := range sortedPaths(cur.volumes) {
		nv := cur.volumes[p]
		mp := nv.mountPoint()
		if mp == "" {
			continue
		}
		if ov, ok := old.volumes[p]; ok && ov.mountPoint() == mp {
			continue
		}
		events = append(events, devices.Event{
			Kind:  devices.MountAdded,
			Mount: &mount{vol: m.newVolume(cur, nv), path: mp},
		})
	}

	return events
}

func (m *Monitor) driveVolumes(path dbus.ObjectPath) []devices.Volume {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vols := m.state.volumesOf(path)
	out := make([]devices.Volume, 0, len(vols))
	for _, v := range vols {
		out = append(out, m.newVolume(&m.state, v))
	}
	return out
}

func (m *Monitor) mountPointOf(path dbus.ObjectPath) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, ok := m.state.volumes[path]; ok {
		if mp := v.mountPoint(); mp != "" {
			return mp
		}
	}
	return m.pending[path]
}

func emptyOptions() map[string]dbus.Variant {
	return map[string]dbus.Variant{}
}

// mountVolume calls Filesystem.Mount and remembers the returned mount point
// until the MountPoints property catches up.
func (m *Monitor) mountVolume(ctx context.Context, path dbus.ObjectPath) error {
	if m.caller == nil {
		return errors.New("udisks2 monitor not started")
	}
	m.mu.RLock()
	_, ok := m.state.volumes[path]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("mount %s: %w", path, ErrUnknownObject)
	}

	var mountPath string
	call := m.caller.callMethod(ctx, path, udisks2Filesystem+".Mount", emptyOptions())
	if err := call.Store(&mountPath); err != nil {
		return fmt.Errorf("failed to mount %s: %w", path, err)
	}

	m.mu.Lock()
	if v, ok := m.state.volumes[path]; ok && v.mountPoint() == "" && mountPath != "" {
		m.pending[path] = mountPath
	}
	m.mu.Unlock()

	log.Info().Str("object", string(path)).Str("mount_path", mountPath).Msg("volume mounted")
	return nil
}

// ejectDrive unmounts every mounted filesystem of the drive, then ejects it,
// or powers it off when it cannot eject.
func (m *Monitor) ejectDrive(ctx context.Context, path dbus.ObjectPath) error {
	if m.caller == nil {
		return errors.New("udisks2 monitor not started")
	}
	m.mu.RLock()
	d, ok := m.state.drives[path]
	var info driveInfo
	if ok {
		info = *d
	}
	var mounted []dbus.ObjectPath
	for _, v := range m.state.volumesOf(path) {
		if v.mountPoint() != "" || m.pending[v.path] != "" {
			mounted = append(mounted, v.path)
		}
	}
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("eject %s: %w", path, ErrUnknownObject)
	}

	for _, vp := range mounted {
		call := m.caller.callMethod(ctx, vp, udisks2Filesystem+".Unmount", emptyOptions())
		if call.Err != nil {
			return fmt.Errorf("failed to unmount %s: %w", vp, call.Err)
		}
	}

	switch {
	case info.ejectable:
		if call := m.caller.callMethod(ctx, path, udisks2Drive+".Eject", emptyOptions()); call.Err != nil {
			return fmt.Errorf("failed to eject %s: %w", info.device, call.Err)
		}
	case info.canPowerOff:
		if call := m.caller.callMethod(ctx, path, udisks2Drive+".PowerOff", emptyOptions()); call.Err != nil {
			return fmt.Errorf("failed to power off %s: %w", info.device, call.Err)
		}
	}

	log.Info().Str("device", info.device).Msg("drive ejected")
	return nil
}
