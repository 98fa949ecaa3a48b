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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/config"
	"github.com/rs/zerolog/log"
)

// ErrAlreadyRunning is returned by Acquire when another live process owns
// the pid file.
var ErrAlreadyRunning = errors.New("flash disk daemon already running")

// PidFile guards against two daemons reconciling the same session.
type PidFile struct {
	path string
}

// NewPidFile places the pid file in the runtime directory, falling back to
// the state directory when the session has none.
func NewPidFile(dirs Dirs) *PidFile {
	dir := dirs.Runtime
	if dir == "" {
		dir = dirs.State
	}
	return &PidFile{path: filepath.Join(dir, config.PidFile)}
}

func (p *PidFile) Path() string {
	return p.path
}

// Pid returns the pid recorded in the file, or 0 when there is no file.
func (p *PidFile) Pid() (int, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("error reading pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("error parsing pid: %w", err)
	}
	return pid, nil
}

// Running reports whether the recorded process is alive.
func (p *PidFile) Running() bool {
	pid, err := p.Pid()
	if err != nil || pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return true
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// Acquire records the current process. A stale file left by a dead process
// is overwritten.
func (p *PidFile) Acquire() error {
	if pid, _ := p.Pid(); pid != os.Getpid() && p.Running() {
		return ErrAlreadyRunning
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o750); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}
	err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
	if err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// Release removes the file if it still belongs to this process.
func (p *PidFile) Release() error {
	pid, err := p.Pid()
	if err != nil {
		return err
	}
	if pid != os.Getpid() {
		log.Debug().Int("pid", pid).Msg("pid file owned by another process, leaving it")
		return nil
	}
	if err := os.Remove(p.path); err != nil {
		return fmt.Errorf("failed to remove pid file: %w", err)
	}
	return nil
}
