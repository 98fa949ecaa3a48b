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
	"github.com/rs/zerolog/log"
)

// Extractor copies live monitor handles into value records. Missing fields
// are left empty; only a missing identity makes extraction fail.
type Extractor struct {
	classifier *Classifier
	usage      UsageProbe
}

// NewExtractor creates an extractor. usage may be nil, in which case sizes
// are left at zero.
func NewExtractor(classifier *Classifier, usage UsageProbe) *Extractor {
	if classifier == nil {
		classifier = NewClassifier(DefaultClassifierRules())
	}
	return &Extractor{classifier: classifier, usage: usage}
}

// Classifier returns the classifier records are judged by.
func (e *Extractor) Classifier() *Classifier {
	return e.classifier
}

// Mount extracts a mount record. It fails when the mount has neither a UUID
// nor a root URI.
func (e *Extractor) Mount(m Mount) (MountRecord, bool) {
	if m == nil {
		return MountRecord{}, false
	}
	rec := MountRecord{
		ID:         m.UUID(),
		Name:       m.Name(),
		URI:        m.RootURI(),
		Tooltip:    m.Tooltip(),
		Path:       m.RootPath(),
		IsNative:   m.IsNative(),
		CanEject:   m.CanEject(),
		CanUnmount: m.CanUnmount(),
	}
	if rec.ID == "" {
		rec.ID = rec.URI
	}
	if rec.ID == "" {
		return MountRecord{}, false
	}

	if e.usage != nil && rec.Path != "" && !e.classifier.IsReservedMountURI(rec.URI) {
		total, free, err := e.usage.Usage(rec.Path)
		if err != nil {
			log.Debug().Err(err).Str("path", rec.Path).Msg("filesystem usage unavailable")
		} else {
			rec.TotalBytes = total
			rec.FreeBytes = free
		}
	}
	return rec, true
}

// Volume extracts a volume record together with its current mount. The
// volume id is its UUID, or its mount's URI when it has no UUID.
func (e *Extractor) Volume(v Volume) (VolumeRecord, bool) {
	if v == nil {
		return VolumeRecord{}, false
	}
	rec := VolumeRecord{
		ID:              v.UUID(),
		Name:            v.Name(),
		Device:          v.UnixDevice(),
		CanMount:        v.CanMount(),
		CanEject:        v.CanEject(),
		ShouldAutoMount: v.ShouldAutoMount(),
	}
	if m, ok := e.Mount(v.CurrentMount()); ok {
		rec.Mount = &m
	}
	if rec.ID == "" && rec.Mount != nil {
		rec.ID = rec.Mount.URI
	}
	if rec.ID == "" {
		return VolumeRecord{}, false
	}
	return rec, true
}

// DriveInfo extracts the drive's own attributes without its volumes.
func (*Extractor) DriveInfo(d Drive) (DriveRecord, bool) {
	if d == nil {
		return DriveRecord{}, false
	}
	rec := DriveRecord{
		ID:          d.UnixDevice(),
		Name:        d.Name(),
		CanEject:    d.CanEject(),
		CanStop:     d.CanStop(),
		CanStart:    d.CanStart(),
		IsRemovable: d.IsRemovable(),
	}
	if rec.ID == "" {
		return DriveRecord{}, false
	}
	return rec, true
}

// Accepted reports whether a drive record passes the classifier.
//
//nolint:gocritic // small record, read only
func (e *Extractor) Accepted(d DriveRecord) bool {
	return e.classifier.AcceptsDrive(d.ID, d.CanEject, d.CanStop)
}

// VolumeValid reports whether a volume record may be shown: its mount, if
// any, must not be under the reserved prefix.
//
//nolint:gocritic // small record, read only
func (e *Extractor) VolumeValid(v VolumeRecord) bool {
	return v.Mount == nil || !e.classifier.IsReservedMountURI(v.Mount.URI)
}
