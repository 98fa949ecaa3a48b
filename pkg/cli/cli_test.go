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
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"path/filepath"
	"testing"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/config"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/helpers"
	testhelpers "github.com/ZaparooProject/zaparoo-flashdisk/pkg/testing/helpers"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/testing/mocks"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupFlags(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := SetupFlags(fs)
	require.NoError(t, fs.Parse([]string{"-daemon", "-list"}))

	assert.True(t, *flags.Daemon)
	assert.True(t, *flags.List)
	assert.False(t, *flags.Version)
}

func TestVersionString(t *testing.T) {
	t.Parallel()

	assert.Contains(t, VersionString(), config.AppVersion)
}

func TestWriteSnapshot(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	snap := devices.Snapshot{
		Mounts: []devices.MountRecord{{ID: "mtp://Phone/", URI: "mtp://Phone/", CanEject: true}},
	}
	require.NoError(t, WriteSnapshot(&buf, snap, 1))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.InDelta(t, 1, out["count"], 0)
	mounts, ok := out["mounts"].([]any)
	require.True(t, ok)
	assert.Len(t, mounts, 1)
}

func testDirs(t *testing.T) helpers.Dirs {
	t.Helper()
	root := t.TempDir()
	return helpers.Dirs{
		Config:  filepath.Join(root, "config"),
		State:   filepath.Join(root, "state"),
		Runtime: filepath.Join(root, "run"),
	}
}

// Setup replaces the global logger so it runs alone.
//
//nolint:paralleltest // global logger
func TestSetup(t *testing.T) {
	dirs := testDirs(t)

	cfg, err := Setup(dirs, config.BaseDefaults, nil)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dirs.Config, config.CfgFile))
	assert.True(t, cfg.AutoMount())
}

func TestApp_List(t *testing.T) {
	t.Parallel()

	dirs := testDirs(t)
	cfg, err := config.NewConfig(dirs.Config, config.BaseDefaults)
	require.NoError(t, err)

	mon := mocks.NewFakeMonitor()
	mon.MountsList = []devices.Mount{
		&mocks.FakeMount{Label: "Phone", URI: "mtp://Phone_123/", Ejectable: true},
	}

	var buf bytes.Buffer
	app := &App{
		Config:     cfg,
		Dirs:       dirs,
		Stdout:     &buf,
		Fs:         afero.NewMemMapFs(),
		NewMonitor: func(helpers.Dirs) devices.VolumeMonitor { return mon },
	}
	require.NoError(t, app.List(context.Background()))

	var out struct {
		Mounts []devices.MountRecord `json:"mounts"`
		Count  int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 1, out.Count)
	require.Len(t, out.Mounts, 1)
	assert.Equal(t, "mtp://Phone_123/", out.Mounts[0].ID)
}

func TestApp_ServeDaemonStopsOnCancel(t *testing.T) {
	t.Parallel()

	dirs := testDirs(t)
	cfg, err := config.NewConfig(dirs.Config, config.BaseDefaults)
	require.NoError(t, err)

	mon := mocks.NewFakeMonitor()
	app := &App{
		Config:     cfg,
		Dirs:       dirs,
		Fs:         afero.NewMemMapFs(),
		NewMonitor: func(helpers.Dirs) devices.VolumeMonitor { return mon },
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.Serve(ctx, true))

	assert.True(t, mon.Started())
	assert.NoFileExists(t, helpers.NewPidFile(dirs).Path(), "pid file released")
}

func TestApp_ListInLiveSessionDoesNotMount(t *testing.T) {
	t.Parallel()

	dirs := testDirs(t)
	cfg, err := config.NewConfig(dirs.Config, config.BaseDefaults)
	require.NoError(t, err)
	require.True(t, cfg.AutoMount())

	fsh := testhelpers.NewMemoryFS()
	require.NoError(t, fsh.WriteFile("/proc/cmdline", []byte("boot=casper live quiet\n")))

	d := &mocks.FakeDrive{Device: "/dev/sdb", Ejectable: true, Removable: true}
	v := &mocks.FakeVolume{Device: "/dev/sdb1", ID: "A1B2", Ejectable: true}
	d.AddVolume(v)
	mon := mocks.NewFakeMonitor()
	mon.DrivesList = []devices.Drive{d}

	var buf bytes.Buffer
	app := &App{
		Config:     cfg,
		Dirs:       dirs,
		Stdout:     &buf,
		Fs:         fsh.Fs,
		NewMonitor: func(helpers.Dirs) devices.VolumeMonitor { return mon },
	}
	require.NoError(t, app.List(context.Background()))

	assert.Equal(t, 0, v.MountCalls())
	assert.Contains(t, buf.String(), `"count": 0`)
}
