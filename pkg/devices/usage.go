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
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
)

// usageTimeout bounds a statfs on a slow or hung device.
const usageTimeout = 2 * time.Second

// UsageProbe reports the size of the filesystem mounted at path.
type UsageProbe interface {
	Usage(path string) (total, free uint64, err error)
}

// DiskUsage probes filesystem sizes through gopsutil.
type DiskUsage struct{}

func (DiskUsage) Usage(path string) (total, free uint64, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), usageTimeout)
	defer cancel()

	stat, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get usage for %s: %w", path, err)
	}
	return stat.Total, stat.Free, nil
}
