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
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/api/notifications"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
	"github.com/rs/zerolog/log"
)

// Reconciler applies volume monitor events to the registry. All methods run
// on the event loop.
type Reconciler struct {
	registry *devices.Registry
	extract  *devices.Extractor
	orch     *Orchestrator
	policy   *Policy
	notify   *notifications.Sender
	visible  bool
}

func NewReconciler(
	registry *devices.Registry,
	extract *devices.Extractor,
	orch *Orchestrator,
	policy *Policy,
	notify *notifications.Sender,
) *Reconciler {
	r := &Reconciler{
		registry: registry,
		extract:  extract,
		orch:     orch,
		policy:   policy,
		notify:   notify,
	}
	if orch != nil {
		orch.OnComplete(r.HandleMountCompleted)
	}
	return r
}

func (r *Reconciler) classifier() *devices.Classifier {
	return r.extract.Classifier()
}

// Snapshot is only safe to call on the loop.
func (r *Reconciler) Snapshot() devices.Snapshot {
	return r.registry.Snapshot()
}

func (r *Reconciler) ValidCount() int {
	return r.registry.ValidCount()
}

func (r *Reconciler) Visible() bool {
	return r.visible
}

// Enumerate registers everything the monitor currently knows about:
// accepted drives with their volumes, then drive-less volumes, then
// ejectable mounts with no volume. Unmounted ejectable volumes are
// auto-mounted when the policy allows. Malformed drives are skipped without
// a problem notification.
func (r *Reconciler) Enumerate(m devices.VolumeMonitor) {
	autoMount := r.policy.AutoMount()

	for _, d := range m.ConnectedDrives() {
		r.enumerateDrive(d, autoMount)
	}

	for _, v := range m.Volumes() {
		if v.Drive() != nil {
			continue
		}
		r.drivelessVolumeAdded(v, autoMount)
	}

	for _, mt := range m.Mounts() {
		if mt.Volume() != nil {
			continue
		}
		rec, ok := r.extract.Mount(mt)
		if !ok || !rec.CanEject {
			continue
		}
		r.registry.AddMount(rec)
	}

	log.Info().
		Int("valid", r.registry.ValidCount()).
		Int("ignored", r.registry.IgnoredCount()).
		Msg("startup enumeration complete")
	r.refresh()
}

func (r *Reconciler) enumerateDrive(d devices.Drive, autoMount bool) {
	rec, ok := r.extract.DriveInfo(d)
	if !ok || !r.extract.Accepted(rec) {
		return
	}
	for _, v := range d.Volumes() {
		vrec, ok := r.extract.Volume(v)
		if !ok {
			continue
		}
		if !vrec.Mounted() {
			r.orch.MaybeAutoMount(v, autoMount)
		}
		rec.Volumes = append(rec.Volumes, vrec)
	}
	r.registry.AddDrive(rec)
}

// HandleEvent applies one monitor event and re-evaluates visibility.
//
//nolint:gocritic // event is small
func (r *Reconciler) HandleEvent(ev devices.Event) {
	autoMount := r.policy.AutoMount()
	log.Debug().Str("event", ev.Kind.String()).Msg("handling volume monitor event")

	switch ev.Kind {
	case devices.DriveConnected:
		if ev.Drive != nil {
			r.driveConnected(ev.Drive)
		}
	case devices.DriveDisconnected:
		if ev.Drive != nil {
			r.registry.RemoveDrive(ev.Drive.UnixDevice())
		}
	case devices.VolumeAdded:
		if ev.Volume != nil {
			r.volumeAdded(ev.Volume, autoMount)
		}
	case devices.VolumeRemoved:
		if ev.Volume != nil {
			r.registry.RemoveVolume(volumeIdentity(ev.Volume))
		}
	case devices.MountAdded:
		if ev.Mount != nil {
			r.mountAdded(ev.Mount)
		}
	case devices.MountRemoved:
		if ev.Mount != nil {
			r.registry.RemoveMount(mountIdentity(ev.Mount))
		}
	default:
		log.Warn().Int("kind", int(ev.Kind)).Msg("unknown volume monitor event")
		return
	}
	r.refresh()
}

// driveConnected registers the drive itself. Its volumes arrive as their
// own volume-added events. A drive with no identity or no volumes is
// reported as a problem and not registered.
func (r *Reconciler) driveConnected(d devices.Drive) {
	rec, ok := r.extract.DriveInfo(d)
	if !ok || len(d.Volumes()) == 0 {
		device := rec.ID
		if device == "" {
			device = d.Name()
		}
		log.Warn().Str("drive", device).Msg("connected drive has no volumes")
		r.notify.DeviceProblem(device)
		return
	}
	if !r.extract.Accepted(rec) {
		log.Debug().Str("drive", rec.ID).Msg("ignoring drive")
		return
	}
	r.registry.AddDrive(rec)
}

func (r *Reconciler) volumeAdded(v devices.Volume, autoMount bool) {
	d := v.Drive()
	if d == nil {
		r.drivelessVolumeAdded(v, autoMount)
		return
	}

	drec, ok := r.extract.DriveInfo(d)
	if !ok || !r.extract.Accepted(drec) {
		return
	}
	vrec, ok := r.extract.Volume(v)
	if !ok {
		log.Debug().Str("device", v.UnixDevice()).Msg("volume has no identity, skipping")
		return
	}
	if !vrec.Mounted() {
		r.orch.MaybeAutoMount(v, autoMount)
	}
	if _, known := r.registry.Drive(drec.ID); !known {
		r.registry.AddDrive(drec)
	}
	r.registry.AddVolumeToDrive(drec.ID, vrec)
}

func (r *Reconciler) drivelessVolumeAdded(v devices.Volume, autoMount bool) {
	if !r.classifier().AcceptsDrivelessVolume(v.UnixDevice()) {
		return
	}
	vrec, ok := r.extract.Volume(v)
	if !ok {
		log.Debug().Str("device", v.UnixDevice()).Msg("volume has no identity, skipping")
		return
	}
	if !vrec.Mounted() {
		r.orch.MaybeAutoMount(v, autoMount)
	}
	r.registry.AddVolume(vrec)
}

func (r *Reconciler) mountAdded(m devices.Mount) {
	rec, ok := r.extract.Mount(m)
	if !ok {
		return
	}
	if r.classifier().IsReservedMountURI(rec.URI) {
		log.Debug().Str("uri", rec.URI).Msg("ignoring reserved mount")
		r.registry.MarkIgnored(rec.ID)
		return
	}
	attached, standalone := r.attachMount(m, rec)
	if !attached {
		log.Debug().Str("uri", rec.URI).Msg("mount does not pass filters")
		return
	}
	r.notify.DeviceMounted(rec, standalone)
}

// attachMount stores a mount under its volume and drive when it has them,
// or on its own otherwise. standalone is true when no drive was found.
//
//nolint:gocritic // record copied into the registry
func (r *Reconciler) attachMount(m devices.Mount, rec devices.MountRecord) (attached, standalone bool) {
	vol := m.Volume()
	var volPath string
	if vol != nil {
		volPath = vol.UnixDevice()
	}
	if !r.classifier().AcceptsMountSource(volPath, rec.CanEject) {
		return false, false
	}

	var vrec *devices.VolumeRecord
	if vol != nil {
		if v, ok := r.extract.Volume(vol); ok {
			v.Mount = &rec
			vrec = &v
		}
	}

	drec, hasDrive := r.extract.DriveInfo(m.Drive())
	switch {
	case hasDrive && vrec != nil:
		r.registry.AddDrive(drec)
		return r.registry.AddVolumeToDrive(drec.ID, *vrec), false
	case hasDrive:
		return r.registry.AddMount(rec), false
	case vrec != nil:
		return r.registry.AddVolume(*vrec), true
	default:
		return r.registry.AddMount(rec), true
	}
}

// HandleMountCompleted attaches the mount produced by an auto-mount
// request and asks for the popup once. Failures are only logged.
func (r *Reconciler) HandleMountCompleted(v devices.Volume, requestID string, err error) {
	if err != nil {
		log.Warn().Err(err).
			Str("request", requestID).
			Str("volume", v.Name()).
			Msg("auto-mount failed")
		return
	}

	m := v.CurrentMount()
	rec, ok := r.extract.Mount(m)
	if !ok {
		log.Warn().Str("request", requestID).Msg("mount completed without a usable mount")
		return
	}
	if r.classifier().IsReservedMountURI(rec.URI) {
		r.registry.MarkIgnored(rec.ID)
		return
	}
	if attached, _ := r.attachMount(m, rec); !attached {
		return
	}

	log.Info().Str("request", requestID).Str("uri", rec.URI).Msg("auto-mount completed")
	r.refresh()
	r.notify.ShowPopup(rec, requestID)
}

// refresh publishes the visibility when the valid count crosses zero and
// the registry state after every change.
func (r *Reconciler) refresh() {
	count := r.registry.ValidCount()
	visible := count > 0
	if visible != r.visible {
		r.visible = visible
		log.Info().Bool("visible", visible).Int("count", count).Msg("tray visibility changed")
		r.notify.TrayVisibility(visible, count)
	}
	r.notify.DevicesChanged(r.registry.Snapshot(), count)
}

func mountIdentity(m devices.Mount) string {
	if id := m.UUID(); id != "" {
		return id
	}
	return m.RootURI()
}

func volumeIdentity(v devices.Volume) string {
	if id := v.UUID(); id != "" {
		return id
	}
	if m := v.CurrentMount(); m != nil {
		return m.RootURI()
	}
	return ""
}
