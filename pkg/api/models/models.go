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

// Package models defines the notifications the reconciler publishes to the
// tray, the desktop notifier and the CLI.
package models

import (
	"encoding/json"
	"time"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
)

const (
	NotificationTrayVisibility = "tray.visibility"
	NotificationDevicesChanged = "devices.changed"
	NotificationDevicesMounted = "devices.mounted"
	NotificationDevicesPopup   = "devices.popup"
	NotificationDevicesProblem = "devices.problem"
	NotificationDevicesEjected = "devices.ejected"
)

type Notification struct {
	Time   time.Time
	Method string
	Params json.RawMessage
}

// TrayVisibilityParams is sent each time the valid count crosses zero.
type TrayVisibilityParams struct {
	Count   int  `json:"count"`
	Visible bool `json:"visible"`
}

// DevicesChangedParams carries the registry state after a handled event.
type DevicesChangedParams struct {
	Snapshot devices.Snapshot `json:"snapshot"`
	Count    int              `json:"count"`
}

type DeviceMountedParams struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
	// Standalone is set for mounts with no drive, such as MTP phones.
	Standalone bool `json:"standalone"`
}

// PopupParams asks the UI to show the device popup after a mount it
// requested has completed.
type PopupParams struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URI       string `json:"uri"`
	RequestID string `json:"requestId,omitempty"`
}

type DeviceProblemParams struct {
	Device  string `json:"device"`
	Message string `json:"message"`
}

// DeviceEjectedParams reports the outcome of an eject. Privileged is set
// when the result comes from the unmount helper fallback.
type DeviceEjectedParams struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Error      string `json:"error,omitempty"`
	Success    bool   `json:"success"`
	Privileged bool   `json:"privileged"`
}
