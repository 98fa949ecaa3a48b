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

// Package notifications publishes typed notifications onto the broker
// source channel.
package notifications

import (
	"encoding/json"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ProblemMessage is the text shown for a drive that reports no volumes.
const ProblemMessage = "There is a problem with this device"

// Sender stamps and queues notifications. Sends never block: when the
// queue is full the notification is dropped and logged, so the event loop
// is never held up by a slow consumer.
type Sender struct {
	ns    chan<- models.Notification
	clock clockwork.Clock
}

func NewSender(ns chan<- models.Notification, clock clockwork.Clock) *Sender {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sender{ns: ns, clock: clock}
}

func (s *Sender) send(method string, payload any) {
	if s == nil || s.ns == nil {
		return
	}
	var params json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("method", method).Msg("error marshalling notification params")
			return
		}
		params = data
	}
	select {
	case s.ns <- models.Notification{Time: s.clock.Now(), Method: method, Params: params}:
	default:
		log.Warn().Str("method", method).Msg("notification queue full, dropping notification")
	}
}

func (s *Sender) TrayVisibility(visible bool, count int) {
	s.send(models.NotificationTrayVisibility, models.TrayVisibilityParams{
		Visible: visible,
		Count:   count,
	})
}

//nolint:gocritic // snapshot is passed through to json
func (s *Sender) DevicesChanged(snapshot devices.Snapshot, count int) {
	s.send(models.NotificationDevicesChanged, models.DevicesChangedParams{
		Snapshot: snapshot,
		Count:    count,
	})
}

//nolint:gocritic // record is passed through to json
func (s *Sender) DeviceMounted(m devices.MountRecord, standalone bool) {
	s.send(models.NotificationDevicesMounted, models.DeviceMountedParams{
		ID:         m.ID,
		Name:       m.Name,
		URI:        m.URI,
		Standalone: standalone,
	})
}

//nolint:gocritic // record is passed through to json
func (s *Sender) ShowPopup(m devices.MountRecord, requestID string) {
	s.send(models.NotificationDevicesPopup, models.PopupParams{
		ID:        m.ID,
		Name:      m.Name,
		URI:       m.URI,
		RequestID: requestID,
	})
}

func (s *Sender) DeviceProblem(device string) {
	s.send(models.NotificationDevicesProblem, models.DeviceProblemParams{
		Device:  device,
		Message: ProblemMessage,
	})
}

func (s *Sender) DeviceEjected(p models.DeviceEjectedParams) {
	s.send(models.NotificationDevicesEjected, p)
}
