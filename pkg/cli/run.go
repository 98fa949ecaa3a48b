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

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/assets"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/config"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices/gvfs"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices/udisks"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/service"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/ui/notify"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/ui/systray"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// App runs the service in one of the command line modes.
type App struct {
	Config *config.Instance
	// NewMonitor builds the volume monitor, DefaultMonitor when nil.
	NewMonitor func(dirs helpers.Dirs) devices.VolumeMonitor
	Stdout     io.Writer
	Fs         afero.Fs
	Dirs       helpers.Dirs
}

// DefaultMonitor watches UDisks2 for drives and the gvfs FUSE directory for
// phones and cameras.
func DefaultMonitor(dirs helpers.Dirs) devices.VolumeMonitor {
	return devices.NewCompositeMonitor(
		udisks.NewMonitor(),
		gvfs.NewWatcher(nil, nil, filepath.Join(dirs.Runtime, "gvfs")),
	)
}

func (a *App) start() (*service.Service, error) {
	newMonitor := a.NewMonitor
	if newMonitor == nil {
		newMonitor = DefaultMonitor
	}
	fs := a.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	svc, err := service.Start(a.Config, service.Options{
		Monitor:     newMonitor(a.Dirs),
		Usage:       devices.DiskUsage{},
		LiveSession: helpers.IsLiveSession(fs),
	})
	if err != nil {
		return nil, fmt.Errorf("error starting service: %w", err)
	}
	return svc, nil
}

// List prints the devices found at startup as JSON.
func (a *App) List(ctx context.Context) error {
	svc, err := a.start()
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			log.Error().Err(err).Msg("error stopping service")
		}
	}()

	snap, count, err := svc.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("error reading devices: %w", err)
	}
	return WriteSnapshot(a.Stdout, snap, count)
}

type listOutput struct {
	devices.Snapshot
	Count int `json:"count"`
}

// WriteSnapshot writes the snapshot and valid count as indented JSON.
func WriteSnapshot(w io.Writer, snap devices.Snapshot, count int) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(listOutput{Snapshot: snap, Count: count}); err != nil {
		return fmt.Errorf("error writing devices: %w", err)
	}
	return nil
}

// Serve runs until ctx is done. Without daemon the tray icon runs on the
// calling goroutine, which must be the main one.
func (a *App) Serve(ctx context.Context, daemon bool) error {
	pid := helpers.NewPidFile(a.Dirs)
	if err := pid.Acquire(); err != nil {
		if errors.Is(err, helpers.ErrAlreadyRunning) {
			return fmt.Errorf("%s is already running", config.AppName)
		}
		return fmt.Errorf("error writing pid file: %w", err)
	}
	defer func() {
		if err := pid.Release(); err != nil {
			log.Warn().Err(err).Msg("error removing pid file")
		}
	}()

	svc, err := a.start()
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			log.Error().Err(err).Msg("error stopping service")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notifier, err := notify.Connect(a.Config)
	if err != nil {
		log.Warn().Err(err).Msg("desktop notifications unavailable")
	} else {
		defer func() { _ = notifier.Close() }()
		done := make(chan struct{})
		go func() {
			defer close(done)
			notifier.Subscribe(ctx, svc.Broker())
		}()
		defer func() { <-done }()
		defer cancel()
	}

	if daemon {
		log.Info().Msg("started in daemon mode")
		<-ctx.Done()
		return nil
	}

	systray.Run(ctx, svc.Broker(), svc, assets.TrayIcon, cancel)
	return nil
}
