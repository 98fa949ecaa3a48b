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

// Package gvfs watches the GVfs FUSE directory for phones and cameras that
// are mounted without a block device and reports them as standalone mounts.
package gvfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/helpers/syncutil"
	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	// debounceDelay coalesces bursts of directory events into one rescan.
	debounceDelay = 250 * time.Millisecond
	// rescanInterval is the maximum time between rescans. Changes made by
	// the FUSE daemon inside its own mount are not reported by inotify.
	rescanInterval = 2 * time.Second
)

// schemes are the GVfs backends that represent removable devices.
var schemes = map[string]bool{
	"mtp":     true,
	"gphoto2": true,
	"afc":     true,
}

// DefaultDir returns the GVfs FUSE mount point of the current user.
func DefaultDir() string {
	return filepath.Join(xdg.RuntimeDir, "gvfs")
}

// Watcher implements devices.VolumeMonitor for GVfs standalone mounts. It
// never reports drives or volumes.
type Watcher struct {
	fs       afero.Fs
	clock    clockwork.Clock
	fsw      *fsnotify.Watcher
	mounts   map[string]*mount
	events   chan devices.Event
	stopChan chan struct{}
	dir      string
	wg       sync.WaitGroup
	mu       syncutil.RWMutex
	stopOnce sync.Once
}

// NewWatcher creates a watcher over dir. fs and clock may be nil to use the
// real filesystem and clock.
func NewWatcher(fs afero.Fs, clock clockwork.Clock, dir string) *Watcher {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Watcher{
		fs:       fs,
		clock:    clock,
		dir:      dir,
		mounts:   make(map[string]*mount),
		events:   make(chan devices.Event, 16),
		stopChan: make(chan struct{}),
	}
}

func (*Watcher) ConnectedDrives() []devices.Drive { return nil }
func (*Watcher) Volumes() []devices.Volume        { return nil }

func (w *Watcher) Mounts() []devices.Mount {
	w.mu.RLock()
	defer w.mu.RUnlock()

	names := make([]string, 0, len(w.mounts))
	for name := range w.mounts {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]devices.Mount, 0, len(names))
	for _, name := range names {
		out = append(out, w.mounts[name])
	}
	return out
}

func (w *Watcher) Events() <-chan devices.Event {
	return w.events
}

// Start takes the initial listing and begins watching. The GVfs directory
// only exists while the FUSE daemon runs, so its parent is watched too and
// the directory is picked up when it appears.
func (w *Watcher) Start() error {
	w.mu.Lock()
	w.mounts = w.scan()
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create gvfs watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.dir)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.dir), err)
	}
	if err := fsw.Add(w.dir); err != nil {
		log.Debug().Err(err).Str("dir", w.dir).Msg("gvfs directory not watchable yet")
	}
	w.fsw = fsw

	log.Debug().Str("dir", w.dir).Int("mounts", len(w.mounts)).Msg("gvfs watcher started")

	w.wg.Add(1)
	go w.run(fsw.Events, fsw.Errors)
	return nil
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
		close(w.events)
	})
}

func (w *Watcher) run(fsEvents <-chan fsnotify.Event, fsErrors <-chan error) {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(rescanInterval)
	defer ticker.Stop()

	var timer clockwork.Timer
	var debounce <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.stopChan:
			return
		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if ev.Name == w.dir && ev.Has(fsnotify.Create) && w.fsw != nil {
				if err := w.fsw.Add(w.dir); err != nil {
					log.Debug().Err(err).Msg("failed to watch gvfs directory")
				}
			}
			if ev.Name != w.dir && filepath.Dir(ev.Name) != w.dir {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = w.clock.NewTimer(debounceDelay)
			debounce = timer.Chan()
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			log.Warn().Err(err).Msg("gvfs watcher error")
		case <-debounce:
			debounce = nil
			w.rescan()
		case <-ticker.Chan():
			w.rescan()
		}
	}
}

// scan lists the GVfs directory. A missing directory means no mounts.
func (w *Watcher) scan() map[string]*mount {
	out := make(map[string]*mount)
	entries, err := afero.ReadDir(w.fs, w.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Debug().Err(err).Str("dir", w.dir).Msg("failed to list gvfs directory")
		}
		return out
	}
	for _, entry := range entries {
		if m, ok := parseEntry(w.dir, entry.Name()); ok {
			out[entry.Name()] = m
		}
	}
	return out
}

// rescan diffs a fresh listing against the known mounts and emits
// mount-removed before mount-added, each sorted by name.
func (w *Watcher) rescan() {
	current := w.scan()

	w.mu.Lock()
	var removed, added []string
	for name := range w.mounts {
		if _, ok := current[name]; !ok {
			removed = append(removed, name)
		}
	}
	for name := range current {
		if _, ok := w.mounts[name]; !ok {
			added = append(added, name)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)

	events := make([]devices.Event, 0, len(removed)+len(added))
	for _, name := range removed {
		events = append(events, devices.Event{Kind: devices.MountRemoved, Mount: w.mounts[name]})
	}
	for _, name := range added {
		events = append(events, devices.Event{Kind: devices.MountAdded, Mount: current[name]})
	}
	w.mounts = current
	w.mu.Unlock()

	for _, ev := range events {
		select {
		case w.events <- ev:
			log.Debug().
				Str("event", ev.Kind.String()).
				Str("uri", ev.Mount.RootURI()).
				Msg("gvfs mount event")
		case <-w.stopChan:
			return
		}
	}
}

// parseEntry decodes a GVfs FUSE entry name such as
// "mtp:host=SAMSUNG_Android_R58M12345" into a mount rooted at dir/name.
func parseEntry(dir, name string) (*mount, bool) {
	scheme, params, ok := strings.Cut(name, ":")
	if !ok || !schemes[scheme] {
		return nil, false
	}
	var host string
	for _, kv := range strings.Split(params, ",") {
		if k, v, ok := strings.Cut(kv, "="); ok && k == "host" {
			host = v
		}
	}
	if host == "" {
		return nil, false
	}
	return &mount{
		uri:  scheme + "://" + host + "/",
		name: strings.ReplaceAll(host, "_", " "),
		path: filepath.Join(dir, name),
	}, true
}

// mount is a standalone GVfs mount. It has no volume and no drive.
type mount struct {
	uri  string
	name string
	path string
}

func (*mount) UUID() string           { return "" }
func (m *mount) Name() string         { return m.name }
func (*mount) CanEject() bool         { return true }
func (*mount) CanUnmount() bool       { return true }
func (m *mount) RootURI() string      { return m.uri }
func (m *mount) RootPath() string     { return m.path }
func (*mount) IsNative() bool         { return false }
func (m *mount) Tooltip() string      { return m.uri }
func (*mount) Volume() devices.Volume { return nil }
func (*mount) Drive() devices.Drive   { return nil }
