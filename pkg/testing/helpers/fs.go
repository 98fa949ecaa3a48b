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

// Package helpers holds shared test setup for filesystems and external
// commands.
package helpers

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// FSHelper builds filesystem fixtures on an afero filesystem.
type FSHelper struct {
	Fs afero.Fs
}

// NewMemoryFS creates a helper over an in-memory filesystem.
func NewMemoryFS() *FSHelper {
	return &FSHelper{Fs: afero.NewMemMapFs()}
}

// WriteFile writes content, creating parent directories.
func (h *FSHelper) WriteFile(path string, content []byte) error {
	if err := h.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for file %s: %w", path, err)
	}
	if err := afero.WriteFile(h.Fs, path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return nil
}

// CreateGvfsMounts creates the gvfs FUSE directory with one entry per
// name, e.g. "mtp:host=Phone_123".
func (h *FSHelper) CreateGvfsMounts(dir string, names ...string) error {
	if err := h.Fs.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create gvfs directory %s: %w", dir, err)
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := h.Fs.Mkdir(path, 0o700); err != nil {
			return fmt.Errorf("failed to create gvfs mount %s: %w", path, err)
		}
	}
	return nil
}

// RemoveGvfsMount removes one entry from the gvfs directory.
func (h *FSHelper) RemoveGvfsMount(dir, name string) error {
	path := filepath.Join(dir, name)
	if err := h.Fs.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove gvfs mount %s: %w", path, err)
	}
	return nil
}

// FileExists reports whether path exists.
func (h *FSHelper) FileExists(path string) bool {
	exists, err := afero.Exists(h.Fs, path)
	if err != nil {
		return false
	}
	return exists
}
