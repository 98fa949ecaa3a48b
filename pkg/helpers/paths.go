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

package helpers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/config"
	"github.com/adrg/xdg"
)

// Dirs are the per-user directories the daemon reads and writes.
type Dirs struct {
	// Config holds config.toml.
	Config string
	// State holds the rotating log file.
	State string
	// Runtime is the session runtime directory, parent of the gvfs
	// FUSE mount.
	Runtime string
}

// DefaultDirs resolves Dirs from the XDG base directory variables.
func DefaultDirs() Dirs {
	return Dirs{
		Config:  filepath.Join(xdg.ConfigHome, config.AppName),
		State:   filepath.Join(xdg.StateHome, config.AppName),
		Runtime: xdg.RuntimeDir,
	}
}

// LogPath is the location of the daemon log file.
func (d Dirs) LogPath() string {
	return filepath.Join(d.State, config.LogFile)
}

// EnsureDirectories creates the config and state directories. The runtime
// directory belongs to the session and is never created here.
func EnsureDirectories(d Dirs) error {
	if err := os.MkdirAll(d.Config, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.MkdirAll(d.State, 0o750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return nil
}
