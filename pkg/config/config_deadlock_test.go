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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInstance_ConcurrentReadsDuringReload runs the getters the event loop
// and the tray use while the file is reloaded. With -tags=deadlock,
// go-deadlock panics on lock misuse.
func TestInstance_ConcurrentReadsDuringReload(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfig(t.TempDir(), BaseDefaults)
	require.NoError(t, err)

	done := make(chan struct{})
	for range 8 {
		go func() {
			for range 200 {
				_ = cfg.AutoMount()
				_ = cfg.ClassifierRules()
				_ = cfg.DesktopNotifications()
				_ = cfg.DebugLogging()
			}
			done <- struct{}{}
		}()
	}
	go func() {
		for i := range 50 {
			cfg.SetAutoMount(i%2 == 0)
			_ = cfg.Load()
		}
		done <- struct{}{}
	}()

	for range 9 {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("concurrent config access deadlocked")
		}
	}
}

// TestInstance_ZeroValue checks the getters on an unloaded instance.
func TestInstance_ZeroValue(t *testing.T) {
	t.Parallel()

	cfg := &Instance{}
	assert.False(t, cfg.AutoMount())
	assert.False(t, cfg.ErrorReporting())
	assert.Empty(t, cfg.ClassifierRules().RemovablePrefixes)
}
