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

package service

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/api/notifications"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/testing/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	loop      *Loop
	recon     *Reconciler
	orch      *Orchestrator
	registry  *devices.Registry
	monitor   *mocks.FakeMonitor
	ns        chan models.Notification
	autoMount atomic.Bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		monitor: mocks.NewFakeMonitor(),
		ns:      make(chan models.Notification, 256),
	}
	classifier := devices.NewClassifier(devices.DefaultClassifierRules())
	h.registry = devices.NewRegistry(classifier)

	ctx, cancel := context.WithCancel(context.Background())
	h.loop = NewLoop(16)
	h.orch = NewOrchestrator(ctx, h.loop.Post)
	h.recon = NewReconciler(
		h.registry,
		devices.NewExtractor(classifier, nil),
		h.orch,
		NewPolicy(h.autoMount.Load, false),
		notifications.NewSender(h.ns, nil),
	)

	go func() { _ = h.loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.loop.Done()
		h.orch.Wait()
	})
	return h
}

func (h *harness) do(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, h.loop.Do(context.Background(), fn))
}

//nolint:gocritic // event is small
func (h *harness) event(t *testing.T, ev devices.Event) {
	t.Helper()
	h.do(t, func() { h.recon.HandleEvent(ev) })
}

func (h *harness) count(t *testing.T) int {
	t.Helper()
	var n int
	h.do(t, func() { n = h.recon.ValidCount() })
	return n
}

// drain returns every notification sent so far.
func (h *harness) drain() []models.Notification {
	var out []models.Notification
	for {
		select {
		case n := <-h.ns:
			out = append(out, n)
		default:
			return out
		}
	}
}

func byMethod(ns []models.Notification, method string) []models.Notification {
	var out []models.Notification
	for _, n := range ns {
		if n.Method == method {
			out = append(out, n)
		}
	}
	return out
}

func visibilityChanges(t *testing.T, ns []models.Notification) []bool {
	t.Helper()
	var out []bool
	for _, n := range byMethod(ns, models.NotificationTrayVisibility) {
		var p models.TrayVisibilityParams
		require.NoError(t, json.Unmarshal(n.Params, &p))
		out = append(out, p.Visible)
	}
	return out
}

func usbDrive(dev string) *mocks.FakeDrive {
	return &mocks.FakeDrive{
		Device:    dev,
		Label:     "USB Stick",
		Ejectable: true,
		Removable: true,
	}
}

func fakeMount(uri, path string) *mocks.FakeMount {
	return &mocks.FakeMount{
		Label:       "KEY",
		URI:         uri,
		Path:        path,
		Native:      path != "",
		Ejectable:   true,
		Unmountable: true,
	}
}

func mountedVolume(d *mocks.FakeDrive, dev, id, uri string) *mocks.FakeVolume {
	v := &mocks.FakeVolume{
		Device:    dev,
		ID:        id,
		Label:     id,
		Mountable: true,
		Ejectable: true,
	}
	if d != nil {
		d.AddVolume(v)
	}
	v.SetMount(fakeMount(uri, "/media/u/"+id))
	return v
}

func TestReconciler_EnumerateDriveWithVolumes(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	d := usbDrive("/dev/sdb")
	v1 := mountedVolume(d, "/dev/sdb1", "A1B2", "file:///media/u/A")
	v2 := mountedVolume(d, "/dev/sdb2", "C3D4", "file:///media/u/B")
	h.monitor.DrivesList = []devices.Drive{d}
	h.monitor.VolsList = []devices.Volume{v1, v2}
	h.monitor.MountsList = []devices.Mount{v1.CurrentMount(), v2.CurrentMount()}

	h.do(t, func() { h.recon.Enumerate(h.monitor) })

	assert.Equal(t, 2, h.count(t))
	var snap devices.Snapshot
	h.do(t, func() { snap = h.recon.Snapshot() })
	require.Len(t, snap.Drives, 1)
	assert.Len(t, snap.Drives[0].Volumes, 2)
	assert.Empty(t, snap.Volumes)
	assert.Empty(t, snap.Mounts)

	ns := h.drain()
	assert.Equal(t, []bool{true}, visibilityChanges(t, ns))
	assert.Len(t, byMethod(ns, models.NotificationDevicesChanged), 1)
}

func TestReconciler_EnumerateSkipsSystemAndFixed(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sys := usbDrive("/dev/sda")
	mountedVolume(sys, "/dev/sda1", "ROOT", "file:///")
	fixed := usbDrive("/dev/sdc")
	fixed.Ejectable = false
	mountedVolume(fixed, "/dev/sdc1", "FIXED", "file:///media/u/F")
	empty := usbDrive("/dev/sdd")
	h.monitor.DrivesList = []devices.Drive{sys, fixed, empty}
	h.monitor.MountsList = []devices.Mount{
		&mocks.FakeMount{URI: "file:///home/u/net", Ejectable: false},
	}

	h.do(t, func() { h.recon.Enumerate(h.monitor) })

	assert.Equal(t, 0, h.count(t))
	ns := h.drain()
	assert.Empty(t, byMethod(ns, models.NotificationDevicesProblem), "no problem during enumeration")
	assert.Empty(t, visibilityChanges(t, ns))
}

func TestReconciler_DrivelessMTPVolume(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	phone := &mocks.FakeVolume{Device: "/dev/bus/usb/001/004", Label: "Phone"}
	phone.SetMount(&mocks.FakeMount{Label: "Phone", URI: "mtp://Phone_123/"})

	h.event(t, devices.Event{Kind: devices.VolumeAdded, Volume: phone})
	assert.Equal(t, 1, h.count(t))

	var snap devices.Snapshot
	h.do(t, func() { snap = h.recon.Snapshot() })
	require.Len(t, snap.Volumes, 1)
	assert.Equal(t, "mtp://Phone_123/", snap.Volumes[0].ID, "identity falls back to mount URI")

	h.event(t, devices.Event{Kind: devices.MountAdded, Mount: phone.CurrentMount()})
	assert.Equal(t, 1, h.count(t), "mount lands on the existing volume")

	ns := h.drain()
	mounted := byMethod(ns, models.NotificationDevicesMounted)
	require.Len(t, mounted, 1)
	var p models.DeviceMountedParams
	require.NoError(t, json.Unmarshal(mounted[0].Params, &p))
	assert.True(t, p.Standalone)
	assert.Equal(t, "mtp://Phone_123/", p.URI)

	h.event(t, devices.Event{Kind: devices.MountRemoved, Mount: phone.CurrentMount()})
	assert.Equal(t, 0, h.count(t))
	assert.Equal(t, []bool{true, false}, visibilityChanges(t, append(ns, h.drain()...)))
}

func TestReconciler_DriveWithoutVolumesIsProblem(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	d := usbDrive("/dev/sdb")

	h.event(t, devices.Event{Kind: devices.DriveConnected, Drive: d})

	assert.Equal(t, 0, h.count(t))
	var size int
	h.do(t, func() { size = h.registry.Size() })
	assert.Equal(t, 0, size, "drive is not registered")

	problems := byMethod(h.drain(), models.NotificationDevicesProblem)
	require.Len(t, problems, 1)
	var p models.DeviceProblemParams
	require.NoError(t, json.Unmarshal(problems[0].Params, &p))
	assert.Equal(t, "/dev/sdb", p.Device)
	assert.Equal(t, notifications.ProblemMessage, p.Message)
}

func TestReconciler_DriveConnectedRegistersDrive(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	d := usbDrive("/dev/sdb")
	mountedVolume(d, "/dev/sdb1", "A1B2", "file:///media/u/A")

	h.event(t, devices.Event{Kind: devices.DriveConnected, Drive: d})

	var ok bool
	h.do(t, func() { _, ok = h.registry.Drive("/dev/sdb") })
	assert.True(t, ok)
	assert.Equal(t, 0, h.count(t), "volumes arrive as their own events")
	assert.Empty(t, byMethod(h.drain(), models.NotificationDevicesProblem))
}

func TestReconciler_ReservedStandaloneMountIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	share := &mocks.FakeMount{URI: "file:///data/usershare", Ejectable: true}

	h.event(t, devices.Event{Kind: devices.MountAdded, Mount: share})

	assert.Equal(t, 0, h.count(t))
	var ignored int
	h.do(t, func() { ignored = h.registry.IgnoredCount() })
	assert.Equal(t, 1, ignored)

	ns := h.drain()
	assert.Empty(t, visibilityChanges(t, ns))
	assert.Empty(t, byMethod(ns, models.NotificationDevicesMounted))
}

func TestReconciler_AutoMountThenPopup(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.autoMount.Store(true)
	d := usbDrive("/dev/sdb")
	v := &mocks.FakeVolume{
		Device:    "/dev/sdb1",
		ID:        "E5F6",
		Label:     "KEY",
		Mountable: true,
		Ejectable: true,
		OnMount:   fakeMount("file:///media/u/KEY", "/media/u/KEY"),
	}
	d.AddVolume(v)

	h.event(t, devices.Event{Kind: devices.VolumeAdded, Volume: v})

	require.Eventually(t, func() bool {
		return h.count(t) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, v.MountCalls())

	ns := h.drain()
	popups := byMethod(ns, models.NotificationDevicesPopup)
	require.Len(t, popups, 1)
	var p models.PopupParams
	require.NoError(t, json.Unmarshal(popups[0].Params, &p))
	assert.Equal(t, "file:///media/u/KEY", p.URI)
	assert.NotEmpty(t, p.RequestID)

	// the monitor reports the same mount afterwards
	h.event(t, devices.Event{Kind: devices.MountAdded, Mount: v.CurrentMount()})
	assert.Equal(t, 1, h.count(t))
	assert.Empty(t, byMethod(h.drain(), models.NotificationDevicesPopup), "popup is shown once")
}

func TestReconciler_AutoMountOffLeavesVolumeUnmounted(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	d := usbDrive("/dev/sdb")
	v := &mocks.FakeVolume{
		Device:    "/dev/sdb1",
		ID:        "E5F6",
		Ejectable: true,
		OnMount:   fakeMount("file:///media/u/KEY", "/media/u/KEY"),
	}
	d.AddVolume(v)

	h.event(t, devices.Event{Kind: devices.VolumeAdded, Volume: v})

	assert.Equal(t, 0, v.MountCalls())
	assert.Equal(t, 0, h.count(t))
	var snap devices.Snapshot
	h.do(t, func() { snap = h.recon.Snapshot() })
	require.Len(t, snap.Drives, 1)
	assert.Len(t, snap.Drives[0].Volumes, 1, "unmounted volume is still tracked")
}

func TestReconciler_FailedAutoMountIsQuiet(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.autoMount.Store(true)
	d := usbDrive("/dev/sdb")
	v := &mocks.FakeVolume{
		Device:       "/dev/sdb1",
		ID:           "E5F6",
		Ejectable:    true,
		MountErr:     assert.AnError,
		MountStarted: make(chan struct{}, 1),
	}
	d.AddVolume(v)

	h.event(t, devices.Event{Kind: devices.VolumeAdded, Volume: v})
	<-v.MountStarted
	h.orch.Wait()

	// completion is queued before Wait returns
	assert.Equal(t, 0, h.count(t))
	assert.Empty(t, byMethod(h.drain(), models.NotificationDevicesPopup))
}

func TestReconciler_VisibilityOnlyOnTransitions(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	a := &mocks.FakeMount{URI: "mtp://A/", Ejectable: true}
	b := &mocks.FakeMount{URI: "mtp://B/", Ejectable: true}

	h.event(t, devices.Event{Kind: devices.MountAdded, Mount: a})
	h.event(t, devices.Event{Kind: devices.MountAdded, Mount: b})
	h.event(t, devices.Event{Kind: devices.MountRemoved, Mount: a})
	h.event(t, devices.Event{Kind: devices.MountRemoved, Mount: a})
	h.event(t, devices.Event{Kind: devices.MountRemoved, Mount: b})
	h.event(t, devices.Event{Kind: devices.MountAdded, Mount: a})

	ns := h.drain()
	assert.Equal(t, []bool{true, false, true}, visibilityChanges(t, ns))
	assert.Len(t, byMethod(ns, models.NotificationDevicesChanged), 6)

	var visible bool
	h.do(t, func() { visible = h.recon.Visible() })
	assert.True(t, visible)
}

func TestReconciler_RemovalEvents(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	d := usbDrive("/dev/sdb")
	v1 := mountedVolume(d, "/dev/sdb1", "A1B2", "file:///media/u/A")
	v2 := mountedVolume(d, "/dev/sdb2", "C3D4", "file:///media/u/B")

	h.event(t, devices.Event{Kind: devices.VolumeAdded, Volume: v1})
	h.event(t, devices.Event{Kind: devices.VolumeAdded, Volume: v2})
	require.Equal(t, 2, h.count(t))

	h.event(t, devices.Event{Kind: devices.MountRemoved, Mount: v1.CurrentMount()})
	assert.Equal(t, 1, h.count(t), "unmounted volume is not counted")

	h.event(t, devices.Event{Kind: devices.VolumeRemoved, Volume: v1})
	assert.Equal(t, 1, h.count(t))

	h.event(t, devices.Event{Kind: devices.DriveDisconnected, Drive: d})
	assert.Equal(t, 0, h.count(t))

	var size int
	h.do(t, func() { size = h.registry.Size() })
	assert.Equal(t, 0, size)
}

func TestReconciler_UnacceptedMountsSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	fixed := &mocks.FakeMount{URI: "file:///mnt/backup", Ejectable: false}
	sysVol := &mocks.FakeVolume{Device: "/dev/sda2", ID: "SYS"}
	sysVol.SetMount(&mocks.FakeMount{URI: "file:///boot", Ejectable: true})

	h.event(t, devices.Event{Kind: devices.MountAdded, Mount: fixed})
	h.event(t, devices.Event{Kind: devices.MountAdded, Mount: sysVol.CurrentMount()})
	h.event(t, devices.Event{Kind: devices.VolumeAdded, Volume: sysVol})

	assert.Equal(t, 0, h.count(t))
	assert.Empty(t, byMethod(h.drain(), models.NotificationDevicesMounted))
}
