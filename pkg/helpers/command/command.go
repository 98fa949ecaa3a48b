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

// Package command wraps exec.Command so external helpers such as the
// privileged unmount can be replaced in tests.
package command

import (
	"context"
	"errors"
	"os/exec"
)

// Executor runs external programs.
type Executor interface {
	// Run executes a command and waits for it to finish. A non-zero exit
	// status is reported as an error; see ExitCode.
	Run(ctx context.Context, name string, args ...string) error
}

// RealExecutor runs commands with exec.CommandContext.
type RealExecutor struct{}

//nolint:wrapcheck // callers inspect the exec error via ExitCode
func (*RealExecutor) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// ExitCode returns the exit status carried by an error from Run: 0 for a
// nil error and -1 when the command never produced a status (not found,
// killed, cancelled).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
