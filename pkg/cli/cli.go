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

// Package cli holds the command line entry points shared by the binaries:
// flag handling, environment setup and the run modes.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/ZaparooProject/zaparoo-flashdisk/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/config"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/helpers"
	"github.com/rs/zerolog/log"
)

type Flags struct {
	Daemon  *bool
	List    *bool
	Version *bool
}

// SetupFlags defines the flags on fs.
func SetupFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		Daemon: fs.Bool(
			"daemon",
			false,
			"run in the foreground with no tray icon, logging to stderr",
		),
		List: fs.Bool(
			"list",
			false,
			"print connected removable devices as JSON and exit",
		),
		Version: fs.Bool(
			"version",
			false,
			"print version and exit",
		),
	}
}

// VersionString is printed by -version.
func VersionString() string {
	return fmt.Sprintf("Zaparoo Flash Disk v%s", config.AppVersion)
}

// Setup creates the directories, starts logging, loads the config and turns
// on error reporting when configured.
//
//nolint:gocritic // config struct copied for immutability
func Setup(
	dirs helpers.Dirs,
	defaultConfig config.Values,
	writers []io.Writer,
) (*config.Instance, error) {
	if err := helpers.EnsureDirectories(dirs); err != nil {
		return nil, fmt.Errorf("error creating directories: %w", err)
	}

	if err := helpers.InitLogging(dirs, writers); err != nil {
		return nil, fmt.Errorf("error initializing logging: %w", err)
	}

	cfg, err := config.NewConfig(dirs.Config, defaultConfig)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	helpers.SetLogLevel(cfg.DebugLogging())

	err = telemetry.Init(
		cfg.ErrorReporting(),
		cfg.ErrorReportingDSN(),
		cfg.DeviceID(),
		config.AppVersion,
	)
	switch {
	case errors.Is(err, telemetry.ErrNoDSN):
		log.Warn().Msg("error reporting is enabled but no DSN is set")
	case err != nil:
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg, nil
}
