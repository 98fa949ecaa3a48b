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

package devices

import (
	"slices"

	"github.com/rs/zerolog/log"
)

// Registry is the in-memory store of tracked drives, drive-less volumes and
// volume-less mounts.
//
// A Registry is not safe for concurrent use. It is owned by the service
// event loop and every call must happen on that goroutine.
type Registry struct {
	classifier  *Classifier
	drives      map[string]*DriveRecord
	volumes     map[string]*VolumeRecord
	mounts      map[string]*MountRecord
	ignored     map[string]struct{}
	driveOrder  []string
	volumeOrder []string
	mountOrder  []string
}

// NewRegistry creates an empty registry. The classifier is consulted on
// every insert so nothing reserved or belonging to the system disk can be
// stored, whichever path the record came through.
func NewRegistry(classifier *Classifier) *Registry {
	if classifier == nil {
		classifier = NewClassifier(DefaultClassifierRules())
	}
	return &Registry{
		classifier: classifier,
		drives:     make(map[string]*DriveRecord),
		volumes:    make(map[string]*VolumeRecord),
		mounts:     make(map[string]*MountRecord),
		ignored:    make(map[string]struct{}),
	}
}

// volumeAllowed drops volumes from the system disk and volumes whose mount
// lands on the reserved prefix. The latter are remembered as ignored.
func (r *Registry) volumeAllowed(v *VolumeRecord) bool {
	if v.ID == "" {
		return false
	}
	if r.classifier.ClassifyDevicePath(v.Device) == SystemDisk {
		return false
	}
	if v.Mount != nil && r.classifier.IsReservedMountURI(v.Mount.URI) {
		r.MarkIgnored(v.Mount.ID)
		return false
	}
	return true
}

// AddDrive inserts or replaces a drive. The drive's own attributes are
// replaced; volumes carried by the record are upserted into the existing
// volume list so a late drive-connected never drops attached volumes.
// Returns false when the record was refused.
//
//nolint:gocritic // record taken by value, registry keeps its own copy
func (r *Registry) AddDrive(record DriveRecord) bool {
	if record.ID == "" {
		return false
	}
	if r.classifier.ClassifyDevicePath(record.ID) == SystemDisk {
		log.Debug().Str("drive", record.ID).Msg("refusing system disk")
		return false
	}

	existing, ok := r.drives[record.ID]
	if !ok {
		d := record
		d.Volumes = nil
		existing = &d
		r.drives[record.ID] = existing
		r.driveOrder = append(r.driveOrder, record.ID)
	} else {
		vols := existing.Volumes
		*existing = record
		existing.Volumes = vols
	}

	for i := range record.Volumes {
		r.attachVolume(existing, record.Volumes[i])
	}
	return true
}

// RemoveDrive discards a drive and every volume and mount it owns.
func (r *Registry) RemoveDrive(id string) {
	if _, ok := r.drives[id]; !ok {
		return
	}
	delete(r.drives, id)
	r.driveOrder = removeID(r.driveOrder, id)
}

// AddVolume inserts or replaces a volume that has no owning drive.
//
//nolint:gocritic // record taken by value, registry keeps its own copy
func (r *Registry) AddVolume(record VolumeRecord) bool {
	if !r.volumeAllowed(&record) {
		return false
	}
	v := cloneVolume(record)
	if _, ok := r.volumes[v.ID]; !ok {
		r.detachFromDrives(v.ID)
		r.volumeOrder = append(r.volumeOrder, v.ID)
	}
	r.volumes[v.ID] = &v
	return true
}

func (r *Registry) detachFromDrives(id string) {
	for _, driveID := range r.driveOrder {
		d := r.drives[driveID]
		for i := range d.Volumes {
			if d.Volumes[i].ID == id {
				d.Volumes = append(d.Volumes[:i], d.Volumes[i+1:]...)
				return
			}
		}
	}
}

// AddVolumeToDrive attaches a volume under the drive with the given id,
// creating a default drive entry when none exists yet.
//
//nolint:gocritic // record taken by value, registry keeps its own copy
func (r *Registry) AddVolumeToDrive(driveID string, record VolumeRecord) bool {
	if driveID == "" {
		return false
	}
	if r.classifier.ClassifyDevicePath(driveID) == SystemDisk {
		return false
	}
	if !r.volumeAllowed(&record) {
		return false
	}
	d, ok := r.drives[driveID]
	if !ok {
		d = &DriveRecord{ID: driveID, Name: driveID}
		r.drives[driveID] = d
		r.driveOrder = append(r.driveOrder, driveID)
	}
	return r.attachVolume(d, record)
}

//nolint:gocritic // record taken by value, registry keeps its own copy
func (r *Registry) attachVolume(d *DriveRecord, record VolumeRecord) bool {
	if !r.volumeAllowed(&record) {
		return false
	}
	v := cloneVolume(record)

	// a volume lives in exactly one place
	if _, ok := r.volumes[v.ID]; ok {
		delete(r.volumes, v.ID)
		r.volumeOrder = removeID(r.volumeOrder, v.ID)
	}

	for i := range d.Volumes {
		if d.Volumes[i].ID == v.ID {
			d.Volumes[i] = v
			return true
		}
	}
	r.detachFromDrives(v.ID)
	d.Volumes = append(d.Volumes, v)
	return true
}

// RemoveVolume discards a volume wherever it is held.
func (r *Registry) RemoveVolume(id string) {
	if _, ok := r.volumes[id]; ok {
		delete(r.volumes, id)
		r.volumeOrder = removeID(r.volumeOrder, id)
		return
	}
	r.detachFromDrives(id)
}

// AddMount inserts or replaces a mount that has no owning volume. Mounts on
// the reserved prefix are only recorded as ignored.
//
//nolint:gocritic // record taken by value, registry keeps its own copy
func (r *Registry) AddMount(record MountRecord) bool {
	if record.ID == "" {
		return false
	}
	if r.classifier.IsReservedMountURI(record.URI) {
		r.MarkIgnored(record.ID)
		return false
	}
	m := record
	if _, ok := r.mounts[m.ID]; !ok {
		r.mountOrder = append(r.mountOrder, m.ID)
	}
	r.mounts[m.ID] = &m
	return true
}

// RemoveMount discards a standalone mount and detaches a mount with the
// same id from any volume holding it. The volume stays registered unless
// its identity was the mount's URI, in which case it goes with the mount.
func (r *Registry) RemoveMount(id string) {
	if id == "" {
		return
	}
	delete(r.ignored, id)
	if _, ok := r.mounts[id]; ok {
		delete(r.mounts, id)
		r.mountOrder = removeID(r.mountOrder, id)
	}
	if _, ok := r.volumes[id]; ok {
		r.RemoveVolume(id)
	}
	for _, v := range r.volumes {
		if v.Mount != nil && v.Mount.ID == id {
			v.Mount = nil
		}
	}
	for _, d := range r.drives {
		d.Volumes = slices.DeleteFunc(d.Volumes, func(v VolumeRecord) bool {
			return v.ID == id
		})
		for i := range d.Volumes {
			if d.Volumes[i].Mount != nil && d.Volumes[i].Mount.ID == id {
				d.Volumes[i].Mount = nil
			}
		}
	}
}

// MarkIgnored remembers a mount that was seen but is not valid.
func (r *Registry) MarkIgnored(id string) {
	if id != "" {
		r.ignored[id] = struct{}{}
	}
}

// IgnoredCount is the number of mounts seen but excluded.
func (r *Registry) IgnoredCount() int {
	return len(r.ignored)
}

// ValidCount is the number of entries the user can see: every mounted
// volume, under a drive or drive-less, plus every volume-less mount. An
// unmounted volume stays registered but is not counted, and a mount held by
// a volume is counted through that volume only.
func (r *Registry) ValidCount() int {
	n := len(r.mounts)
	for _, v := range r.volumes {
		if v.Mounted() {
			n++
		}
	}
	for _, d := range r.drives {
		for i := range d.Volumes {
			if d.Volumes[i].Mounted() {
				n++
			}
		}
	}
	return n
}

// Size is the total number of stored records of every kind.
func (r *Registry) Size() int {
	n := len(r.drives) + len(r.volumes) + len(r.mounts)
	for _, d := range r.drives {
		n += len(d.Volumes)
	}
	return n
}

// Drive returns a copy of the drive with the given id.
func (r *Registry) Drive(id string) (DriveRecord, bool) {
	d, ok := r.drives[id]
	if !ok {
		return DriveRecord{}, false
	}
	return cloneDrive(d), true
}

// Snapshot returns a detached, ordered copy of the registry: drives in
// insertion order with their volumes in attach order, then drive-less
// volumes, then standalone mounts.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		Drives:  make([]DriveRecord, 0, len(r.driveOrder)),
		Volumes: make([]VolumeRecord, 0, len(r.volumeOrder)),
		Mounts:  make([]MountRecord, 0, len(r.mountOrder)),
	}
	for _, id := range r.driveOrder {
		s.Drives = append(s.Drives, cloneDrive(r.drives[id]))
	}
	for _, id := range r.volumeOrder {
		s.Volumes = append(s.Volumes, cloneVolume(*r.volumes[id]))
	}
	for _, id := range r.mountOrder {
		s.Mounts = append(s.Mounts, *r.mounts[id])
	}
	return s
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
