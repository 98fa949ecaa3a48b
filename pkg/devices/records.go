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

// MountRecord is a value copy of a mounted filesystem taken at the boundary.
// It never holds a live handle into the volume monitor.
type MountRecord struct {
	// ID is the mount UUID, or the mount URI when no UUID is reported.
	ID      string `json:"id"`
	Name    string `json:"name"`
	URI     string `json:"uri"`
	Tooltip string `json:"tooltip,omitempty"`
	// Path is the local filesystem path of the mount root, empty for
	// non-native mounts.
	Path       string `json:"path,omitempty"`
	TotalBytes uint64 `json:"totalBytes,omitempty"`
	FreeBytes  uint64 `json:"freeBytes,omitempty"`
	IsNative   bool   `json:"isNative"`
	CanEject   bool   `json:"canEject"`
	CanUnmount bool   `json:"canUnmount"`
}

// VolumeRecord is a value copy of a volume, optionally carrying its mount.
type VolumeRecord struct {
	Mount *MountRecord `json:"mount,omitempty"`
	// ID is the volume UUID, or the URI of its mount when no UUID exists.
	ID   string `json:"id"`
	Name string `json:"name"`
	// Device is the unix device path of the volume, kept for diagnostics.
	Device          string `json:"device,omitempty"`
	CanMount        bool   `json:"canMount"`
	CanEject        bool   `json:"canEject"`
	ShouldAutoMount bool   `json:"shouldAutoMount"`
}

// Mounted reports whether the volume currently carries a mount.
func (v *VolumeRecord) Mounted() bool {
	return v.Mount != nil
}

// DriveRecord is a value copy of a physical drive. Volumes are kept in the
// order they were first attached.
type DriveRecord struct {
	// ID is the unix device path of the drive, e.g. "/dev/sdb".
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Volumes     []VolumeRecord `json:"volumes"`
	CanEject    bool           `json:"canEject"`
	CanStop     bool           `json:"canStop"`
	CanStart    bool           `json:"canStart"`
	IsRemovable bool           `json:"isRemovable"`
}

// Snapshot is an ordered, detached view of the registry for rendering.
type Snapshot struct {
	Drives  []DriveRecord  `json:"drives"`
	Volumes []VolumeRecord `json:"volumes"`
	Mounts  []MountRecord  `json:"mounts"`
}

// Empty reports whether the snapshot has nothing to show.
func (s *Snapshot) Empty() bool {
	return len(s.Drives) == 0 && len(s.Volumes) == 0 && len(s.Mounts) == 0
}

func cloneVolume(v VolumeRecord) VolumeRecord {
	if v.Mount != nil {
		m := *v.Mount
		v.Mount = &m
	}
	return v
}

func cloneDrive(d *DriveRecord) DriveRecord {
	out := *d
	out.Volumes = make([]VolumeRecord, len(d.Volumes))
	for i := range d.Volumes {
		out.Volumes[i] = cloneVolume(d.Volumes[i])
	}
	return out
}
