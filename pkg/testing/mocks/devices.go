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

package mocks

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
)

// FakeMount is a settable devices.Mount.
type FakeMount struct {
	ParentVolume devices.Volume
	ParentDrive  devices.Drive
	ID           string
	Label        string
	URI          string
	Path         string
	Parse        string
	Native       bool
	Ejectable    bool
	Unmountable  bool
}

func (m *FakeMount) UUID() string           { return m.ID }
func (m *FakeMount) Name() string           { return m.Label }
func (m *FakeMount) CanEject() bool         { return m.Ejectable }
func (m *FakeMount) CanUnmount() bool       { return m.Unmountable }
func (m *FakeMount) RootURI() string        { return m.URI }
func (m *FakeMount) RootPath() string       { return m.Path }
func (m *FakeMount) IsNative() bool         { return m.Native }
func (m *FakeMount) Volume() devices.Volume { return m.ParentVolume }
func (m *FakeMount) Drive() devices.Drive   { return m.ParentDrive }
func (m *FakeMount) Tooltip() string {
	if m.Parse != "" {
		return m.Parse
	}
	return m.Path
}

// FakeVolume is a settable devices.Volume. RequestMount attaches OnMount
// (or fails with MountErr) and counts calls.
type FakeVolume struct {
	ParentDrive devices.Drive
	mounted     *FakeMount
	// OnMount is the mount attached when RequestMount succeeds.
	OnMount *FakeMount
	// MountErr makes RequestMount fail.
	MountErr error
	// MountStarted, when set, receives a value as RequestMount begins and
	// MountRelease, when set, must be closed before it returns.
	MountStarted chan struct{}
	MountRelease chan struct{}
	Device       string
	ID           string
	Label        string
	mountCalls   atomic.Int32
	mu           sync.Mutex
	Mountable    bool
	Ejectable    bool
	AutoMount    bool
}

func (v *FakeVolume) UnixDevice() string    { return v.Device }
func (v *FakeVolume) UUID() string          { return v.ID }
func (v *FakeVolume) Name() string          { return v.Label }
func (v *FakeVolume) CanMount() bool        { return v.Mountable }
func (v *FakeVolume) CanEject() bool        { return v.Ejectable }
func (v *FakeVolume) ShouldAutoMount() bool { return v.AutoMount }
func (v *FakeVolume) Drive() devices.Drive  { return v.ParentDrive }

// SetMount replaces the current mount, nil unmounts.
func (v *FakeVolume) SetMount(m *FakeMount) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if m != nil {
		m.ParentVolume = v
		if m.ParentDrive == nil {
			m.ParentDrive = v.ParentDrive
		}
	}
	v.mounted = m
}

func (v *FakeVolume) CurrentMount() devices.Mount {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mounted == nil {
		return nil
	}
	return v.mounted
}

func (v *FakeVolume) RequestMount(ctx context.Context) error {
	v.mountCalls.Add(1)
	if v.MountStarted != nil {
		v.MountStarted <- struct{}{}
	}
	if v.MountRelease != nil {
		select {
		case <-v.MountRelease:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if v.MountErr != nil {
		return v.MountErr
	}
	if v.OnMount != nil {
		v.SetMount(v.OnMount)
	}
	return nil
}

// MountCalls is the number of RequestMount calls.
func (v *FakeVolume) MountCalls() int {
	return int(v.mountCalls.Load())
}

// FakeDrive is a settable devices.Drive.
type FakeDrive struct {
	EjectErr   error
	Device     string
	Label      string
	Vols       []devices.Volume
	ejectCalls atomic.Int32
	Ejectable  bool
	Stoppable  bool
	Startable  bool
	Removable  bool
}

func (d *FakeDrive) UnixDevice() string        { return d.Device }
func (d *FakeDrive) Name() string              { return d.Label }
func (d *FakeDrive) CanEject() bool            { return d.Ejectable }
func (d *FakeDrive) CanStop() bool             { return d.Stoppable }
func (d *FakeDrive) CanStart() bool            { return d.Startable }
func (d *FakeDrive) IsRemovable() bool         { return d.Removable }
func (d *FakeDrive) Volumes() []devices.Volume { return d.Vols }

func (d *FakeDrive) Eject(_ context.Context) error {
	d.ejectCalls.Add(1)
	return d.EjectErr
}

// EjectCalls is the number of Eject calls.
func (d *FakeDrive) EjectCalls() int {
	return int(d.ejectCalls.Load())
}

// AddVolume attaches v to the drive and points it back at the drive.
func (d *FakeDrive) AddVolume(v *FakeVolume) {
	v.ParentDrive = d
	d.Vols = append(d.Vols, v)
}

// FakeMonitor is a devices.VolumeMonitor driven by the test.
type FakeMonitor struct {
	StartErr   error
	events     chan devices.Event
	DrivesList []devices.Drive
	VolsList   []devices.Volume
	MountsList []devices.Mount
	stopOnce   sync.Once
	started    atomic.Bool
}

// NewFakeMonitor creates a monitor with a buffered event channel.
func NewFakeMonitor() *FakeMonitor {
	return &FakeMonitor{events: make(chan devices.Event, 64)}
}

func (f *FakeMonitor) ConnectedDrives() []devices.Drive { return f.DrivesList }
func (f *FakeMonitor) Volumes() []devices.Volume        { return f.VolsList }
func (f *FakeMonitor) Mounts() []devices.Mount          { return f.MountsList }
func (f *FakeMonitor) Events() <-chan devices.Event     { return f.events }

func (f *FakeMonitor) Start() error {
	if f.StartErr != nil {
		return f.StartErr
	}
	f.started.Store(true)
	return nil
}

func (f *FakeMonitor) Stop() {
	f.stopOnce.Do(func() {
		close(f.events)
	})
}

// Started reports whether Start succeeded.
func (f *FakeMonitor) Started() bool {
	return f.started.Load()
}

// Emit queues an event.
//
//nolint:gocritic // event is small
func (f *FakeMonitor) Emit(ev devices.Event) {
	f.events <- ev
}
