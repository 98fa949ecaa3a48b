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
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const cmdlinePath = "/proc/cmdline"

// IsLiveSession reports whether the kernel was booted with the "live"
// parameter. Auto-mount is always off in a live session.
func IsLiveSession(fs afero.Fs) bool {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	data, err := afero.ReadFile(fs, cmdlinePath)
	if err != nil {
		log.Debug().Err(err).Msg("cannot read kernel command line")
		return false
	}
	for _, field := range strings.Fields(string(data)) {
		if field == "live" {
			return true
		}
	}
	return false
}
