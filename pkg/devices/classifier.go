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

import "strings"

// DeviceClass is the result of classifying a unix device path.
type DeviceClass int

const (
	// Rejected paths are not removable storage and are never tracked.
	Rejected DeviceClass = iota
	// SystemDisk is the boot disk. It is never shown, even when it matches a
	// removable pattern.
	SystemDisk
	// OpticalOrUSB covers USB mass storage, optical drives and bus-attached
	// MTP/PTP devices.
	OpticalOrUSB
)

func (c DeviceClass) String() string {
	switch c {
	case SystemDisk:
		return "system"
	case OpticalOrUSB:
		return "removable"
	default:
		return "rejected"
	}
}

const (
	DefaultSystemDiskPrefix    = "/dev/sda"
	DefaultReservedMountPrefix = "file:///data"
)

var (
	DefaultRemovablePrefixes = []string{"/dev/sd"}
	DefaultOpticalPrefixes   = []string{"/dev/sr"}
	DefaultBusPrefixes       = []string{"/dev/bus"}
)

// ClassifierRules holds the prefix sets the classifier matches against.
type ClassifierRules struct {
	SystemDiskPrefix    string
	ReservedMountPrefix string
	RemovablePrefixes   []string
	OpticalPrefixes     []string
	BusPrefixes         []string
}

// DefaultClassifierRules returns the stock rule set.
func DefaultClassifierRules() ClassifierRules {
	return ClassifierRules{
		SystemDiskPrefix:    DefaultSystemDiskPrefix,
		ReservedMountPrefix: DefaultReservedMountPrefix,
		RemovablePrefixes:   append([]string(nil), DefaultRemovablePrefixes...),
		OpticalPrefixes:     append([]string(nil), DefaultOpticalPrefixes...),
		BusPrefixes:         append([]string(nil), DefaultBusPrefixes...),
	}
}

// Classifier decides whether a device or mount is something the user should
// see. Every registry insertion path goes through it. The zero value is not
// useful, use NewClassifier.
type Classifier struct {
	rules ClassifierRules
}

// NewClassifier builds a classifier. Empty fields in rules fall back to the
// defaults so a partially filled config still excludes the system disk.
//
//nolint:gocritic // rules copied so later config edits can't leak in
func NewClassifier(rules ClassifierRules) *Classifier {
	def := DefaultClassifierRules()
	if rules.SystemDiskPrefix == "" {
		rules.SystemDiskPrefix = def.SystemDiskPrefix
	}
	if rules.ReservedMountPrefix == "" {
		rules.ReservedMountPrefix = def.ReservedMountPrefix
	}
	if len(rules.RemovablePrefixes) == 0 {
		rules.RemovablePrefixes = def.RemovablePrefixes
	}
	if len(rules.OpticalPrefixes) == 0 {
		rules.OpticalPrefixes = def.OpticalPrefixes
	}
	if len(rules.BusPrefixes) == 0 {
		rules.BusPrefixes = def.BusPrefixes
	}
	return &Classifier{rules: rules}
}

// Rules returns a copy of the active rule set.
func (c *Classifier) Rules() ClassifierRules {
	r := c.rules
	r.RemovablePrefixes = append([]string(nil), c.rules.RemovablePrefixes...)
	r.OpticalPrefixes = append([]string(nil), c.rules.OpticalPrefixes...)
	r.BusPrefixes = append([]string(nil), c.rules.BusPrefixes...)
	return r
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// ClassifyDevicePath classifies a unix device path such as "/dev/sdb1".
// The system disk check runs first so "/dev/sda1" is never OpticalOrUSB
// even though it also matches "/dev/sd".
func (c *Classifier) ClassifyDevicePath(path string) DeviceClass {
	if path == "" {
		return Rejected
	}
	if strings.HasPrefix(path, c.rules.SystemDiskPrefix) {
		return SystemDisk
	}
	if hasAnyPrefix(path, c.rules.RemovablePrefixes) ||
		hasAnyPrefix(path, c.rules.OpticalPrefixes) ||
		hasAnyPrefix(path, c.rules.BusPrefixes) {
		return OpticalOrUSB
	}
	return Rejected
}

// IsReservedMountURI reports whether uri is under the application-private
// mount point. Such mounts are never counted or shown.
func (c *Classifier) IsReservedMountURI(uri string) bool {
	return uri != "" && strings.HasPrefix(uri, c.rules.ReservedMountPrefix)
}

// AcceptsDrive reports whether a drive should be registered: its path must
// classify as removable and it must be ejectable or stoppable.
func (c *Classifier) AcceptsDrive(path string, canEject, canStop bool) bool {
	if !canEject && !canStop {
		return false
	}
	return c.ClassifyDevicePath(path) == OpticalOrUSB
}

// AcceptsDrivelessVolume reports whether a volume with no owning drive
// should be registered. Volumes that report no device path (network and
// gvfs backed volumes) are accepted and judged by their mount instead.
func (c *Classifier) AcceptsDrivelessVolume(path string) bool {
	if path == "" {
		return true
	}
	return c.ClassifyDevicePath(path) == OpticalOrUSB
}

// AcceptsMountSource reports whether a freshly added mount should be
// attached, given the device path of the volume it came from. The system
// disk is always refused. Otherwise the mount must be ejectable, unless it
// comes from an optical drive or a bus-attached device.
func (c *Classifier) AcceptsMountSource(volumePath string, mountCanEject bool) bool {
	if volumePath != "" && strings.HasPrefix(volumePath, c.rules.SystemDiskPrefix) {
		return false
	}
	if mountCanEject {
		return true
	}
	return hasAnyPrefix(volumePath, c.rules.BusPrefixes) ||
		hasAnyPrefix(volumePath, c.rules.OpticalPrefixes)
}
