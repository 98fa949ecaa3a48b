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
	"errors"
	"sync"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/api/notifications"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/helpers/command"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrUnknownDrive is returned when an eject targets a drive that is not
// tracked or no longer connected.
var ErrUnknownDrive = errors.New("unknown drive")

const privilegedHelper = "pkexec"

// Ejector ejects tracked drives. When the monitor refuses, each mounted
// volume of the drive is unmounted through the privileged helper instead.
type Ejector struct {
	ctx      context.Context
	monitor  devices.VolumeMonitor
	registry *devices.Registry
	exec     command.Executor
	notify   *notifications.Sender
	post     func(func()) bool
	wg       sync.WaitGroup
}

func NewEjector(
	ctx context.Context,
	monitor devices.VolumeMonitor,
	registry *devices.Registry,
	exec command.Executor,
	notify *notifications.Sender,
	post func(func()) bool,
) *Ejector {
	if exec == nil {
		exec = &command.RealExecutor{}
	}
	return &Ejector{
		ctx:      ctx,
		monitor:  monitor,
		registry: registry,
		exec:     exec,
		notify:   notify,
		post:     post,
	}
}

func (e *Ejector) findDrive(id string) devices.Drive {
	for _, d := range e.monitor.ConnectedDrives() {
		if d.UnixDevice() == id {
			return d
		}
	}
	return nil
}

// Eject starts ejecting the drive with the given id. It must run on the
// event loop. The result is reported as a devices.ejected notification.
func (e *Ejector) Eject(driveID string) error {
	rec, ok := e.registry.Drive(driveID)
	if !ok {
		return ErrUnknownDrive
	}
	d := e.findDrive(driveID)
	if d == nil {
		return ErrUnknownDrive
	}

	requestID := uuid.NewString()
	log.Info().Str("request", requestID).Str("drive", driveID).Msg("ejecting drive")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := d.Eject(e.ctx)
		if !e.post(func() { e.finish(rec, d, requestID, err) }) {
			log.Debug().Str("request", requestID).Msg("event loop stopped, dropping eject result")
		}
	}()
	return nil
}

//nolint:gocritic // record copied from the registry
func (e *Ejector) finish(rec devices.DriveRecord, d devices.Drive, requestID string, err error) {
	if err == nil {
		log.Info().Str("request", requestID).Str("drive", rec.ID).Msg("drive ejected")
		e.notify.DeviceEjected(models.DeviceEjectedParams{
			ID:      rec.ID,
			Name:    rec.Name,
			Success: true,
		})
		return
	}

	log.Warn().Err(err).Str("request", requestID).Str("drive", rec.ID).
		Msg("eject failed, trying privileged unmount")

	unmounted := 0
	for _, v := range d.Volumes() {
		m := v.CurrentMount()
		if m == nil || !m.CanUnmount() || m.RootPath() == "" {
			continue
		}
		unmounted++
		e.privilegedUnmount(v, m)
	}

	if unmounted == 0 {
		e.notify.DeviceEjected(models.DeviceEjectedParams{
			ID:    rec.ID,
			Name:  rec.Name,
			Error: err.Error(),
		})
	}
}

// privilegedUnmount blocks the loop until the helper exits.
func (e *Ejector) privilegedUnmount(v devices.Volume, m devices.Mount) {
	path := m.RootPath()
	runErr := e.exec.Run(e.ctx, privilegedHelper, "umount", path)

	p := models.DeviceEjectedParams{
		ID:         volumeIdentity(v),
		Name:       v.Name(),
		Success:    runErr == nil,
		Privileged: true,
	}
	if runErr != nil {
		p.Error = runErr.Error()
		log.Error().Err(runErr).
			Str("path", path).
			Int("exitCode", command.ExitCode(runErr)).
			Msg("privileged unmount failed")
	} else {
		log.Info().Str("path", path).Msg("privileged unmount succeeded")
	}
	e.notify.DeviceEjected(p)
}

// Wait blocks until every issued eject has finished.
func (e *Ejector) Wait() {
	e.wg.Wait()
}
