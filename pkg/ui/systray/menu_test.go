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

package systray

import (
	"encoding/json"
	"testing"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mounted(name, uri string) *devices.MountRecord {
	return &devices.MountRecord{ID: uri, Name: name, URI: uri, Tooltip: uri}
}

func testSnapshot() devices.Snapshot {
	return devices.Snapshot{
		Drives: []devices.DriveRecord{{
			ID:       "/dev/sdb",
			CanEject: true,
			Volumes: []devices.VolumeRecord{
				{ID: "A", Name: "A", Mount: mounted("KINGSTON", "file:///media/u/KINGSTON")},
				{ID: "B", Name: "B"},
			},
		}},
		Volumes: []devices.VolumeRecord{
			{ID: "mtp://Phone/", Name: "Phone", Mount: mounted("", "mtp://Phone/")},
		},
		Mounts: []devices.MountRecord{*mounted("Camera", "gphoto2://Camera/")},
	}
}

func TestEntries(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	got := Entries(&snap, MaxEntries)

	require.Len(t, got, 3, "unmounted volume is not listed")
	assert.Equal(t, Entry{
		Label:   "KINGSTON",
		Tooltip: "file:///media/u/KINGSTON",
		DriveID: "/dev/sdb",
	}, got[0])
	assert.Equal(t, "Phone", got[1].Label, "volume name when mount has none")
	assert.Empty(t, got[1].DriveID)
	assert.Equal(t, "Camera", got[2].Label)
}

func TestEntries_Limit(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	assert.Len(t, Entries(&snap, 1), 1)
	assert.Empty(t, Entries(&snap, 0))
}

func TestEntries_SizeInLabel(t *testing.T) {
	t.Parallel()

	m := mounted("KEY", "file:///media/u/KEY")
	m.TotalBytes = 8_000_000_000
	m.FreeBytes = 2_000_000_000
	snap := devices.Snapshot{Mounts: []devices.MountRecord{*m}}

	got := Entries(&snap, MaxEntries)
	require.Len(t, got, 1)
	assert.Equal(t, "KEY (2GB free of 8GB)", got[0].Label)
}

func TestEntries_FixedDriveNotEjectable(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	snap.Drives[0].CanEject = false

	got := Entries(&snap, MaxEntries)
	assert.Empty(t, got[0].DriveID)
}

func encode(t *testing.T, method string, params any) models.Notification {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return models.Notification{Method: method, Params: raw}
}

func TestState_Apply(t *testing.T) {
	t.Parallel()

	var s State

	changed, err := s.Apply(encode(t, models.NotificationTrayVisibility,
		models.TrayVisibilityParams{Visible: true, Count: 1}))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, s.Visible)

	changed, err = s.Apply(encode(t, models.NotificationTrayVisibility,
		models.TrayVisibilityParams{Visible: true, Count: 2}))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.Apply(encode(t, models.NotificationDevicesChanged,
		models.DevicesChangedParams{Snapshot: testSnapshot(), Count: 3}))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, s.Entries, 3)

	changed, err = s.Apply(encode(t, models.NotificationDevicesPopup, models.PopupParams{}))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestState_ApplyBadParams(t *testing.T) {
	t.Parallel()

	var s State
	_, err := s.Apply(models.Notification{
		Method: models.NotificationDevicesChanged,
		Params: json.RawMessage(`[`),
	})
	require.Error(t, err)
}
