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

import "context"

// Drive is a live handle to a physical drive owned by a volume monitor.
// Handles must not be kept past the handling of the event that carried them.
type Drive interface {
	// UnixDevice returns the device path, e.g. "/dev/sdb", or "".
	UnixDevice() string
	Name() string
	CanEject() bool
	CanStop() bool
	CanStart() bool
	IsRemovable() bool
	// Volumes returns the volumes currently on the drive.
	Volumes() []Volume
	// Eject ejects the drive, unmounting its volumes. It blocks until the
	// monitor reports a result.
	Eject(ctx context.Context) error
}

// Volume is a live handle to a volume.
type Volume interface {
	// UnixDevice returns the device path, e.g. "/dev/sdb1", or "".
	UnixDevice() string
	UUID() string
	Name() string
	CanMount() bool
	CanEject() bool
	ShouldAutoMount() bool
	// Drive returns the owning drive, or nil for a drive-less volume.
	Drive() Drive
	// CurrentMount returns the mount of the volume, or nil when unmounted.
	CurrentMount() Mount
	// RequestMount mounts the volume. It blocks until the monitor reports
	// a result and is called off the event loop.
	RequestMount(ctx context.Context) error
}

// Mount is a live handle to a mounted filesystem.
type Mount interface {
	UUID() string
	Name() string
	CanEject() bool
	CanUnmount() bool
	// RootURI is the URI of the default location, e.g. "file:///media/u/KEY"
	// or "mtp://Phone_123/".
	RootURI() string
	// RootPath is the local path of the mount root, or "" when the mount
	// has no local path.
	RootPath() string
	// IsNative reports whether the mount is a local filesystem.
	IsNative() bool
	// Tooltip is the human readable location of the mount.
	Tooltip() string
	// Volume returns the owning volume, or nil for a standalone mount.
	Volume() Volume
	// Drive returns the owning drive, or nil.
	Drive() Drive
}

// EventKind identifies a volume monitor lifecycle event.
type EventKind int

const (
	DriveConnected EventKind = iota + 1
	DriveDisconnected
	VolumeAdded
	VolumeRemoved
	MountAdded
	MountRemoved
)

func (k EventKind) String() string {
	switch k {
	case DriveConnected:
		return "drive-connected"
	case DriveDisconnected:
		return "drive-disconnected"
	case VolumeAdded:
		return "volume-added"
	case VolumeRemoved:
		return "volume-removed"
	case MountAdded:
		return "mount-added"
	case MountRemoved:
		return "mount-removed"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification. Exactly one of Drive, Volume or Mount
// is set, matching Kind.
type Event struct {
	Drive  Drive
	Volume Volume
	Mount  Mount
	Kind   EventKind
}

// VolumeMonitor is the boundary to the platform service that tracks
// drives, volumes and mounts.
type VolumeMonitor interface {
	// ConnectedDrives, Volumes and Mounts enumerate current state. They are
	// called once at startup.
	ConnectedDrives() []Drive
	Volumes() []Volume
	Mounts() []Mount

	// Events emits lifecycle events in the order they happen. The channel
	// is closed when Stop is called.
	Events() <-chan Event

	// Start begins monitoring. Enumeration is valid after Start returns.
	Start() error

	// Stop ends monitoring and releases resources.
	Stop()
}
