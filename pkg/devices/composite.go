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
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// CompositeMonitor merges several monitors into one. Events from a single
// source keep their order; events from different sources interleave in
// arrival order.
type CompositeMonitor struct {
	events   chan Event
	stopChan chan struct{}
	sources  []VolumeMonitor
	started  []VolumeMonitor
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewCompositeMonitor creates a monitor over the given sources.
func NewCompositeMonitor(sources ...VolumeMonitor) *CompositeMonitor {
	return &CompositeMonitor{
		sources:  sources,
		events:   make(chan Event, 32),
		stopChan: make(chan struct{}),
	}
}

func (c *CompositeMonitor) ConnectedDrives() []Drive {
	var out []Drive
	for _, s := range c.started {
		out = append(out, s.ConnectedDrives()...)
	}
	return out
}

func (c *CompositeMonitor) Volumes() []Volume {
	var out []Volume
	for _, s := range c.started {
		out = append(out, s.Volumes()...)
	}
	return out
}

func (c *CompositeMonitor) Mounts() []Mount {
	var out []Mount
	for _, s := range c.started {
		out = append(out, s.Mounts()...)
	}
	return out
}

func (c *CompositeMonitor) Events() <-chan Event {
	return c.events
}

// Start starts every source. A source that fails to start is logged and
// skipped; Start only fails when no source could be started.
func (c *CompositeMonitor) Start() error {
	var errs []error
	for _, s := range c.sources {
		if err := s.Start(); err != nil {
			log.Warn().Err(err).Msgf("volume monitor source %T failed to start", s)
			errs = append(errs, err)
			continue
		}
		c.started = append(c.started, s)
		c.wg.Add(1)
		go c.forward(s)
	}
	if len(c.started) == 0 && len(c.sources) > 0 {
		return fmt.Errorf("no volume monitor could be started: %w", errors.Join(errs...))
	}
	return nil
}

func (c *CompositeMonitor) forward(s VolumeMonitor) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopChan:
			return
		case ev, ok := <-s.Events():
			if !ok {
				return
			}
			select {
			case c.events <- ev:
			case <-c.stopChan:
				return
			}
		}
	}
}

func (c *CompositeMonitor) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		for _, s := range c.started {
			s.Stop()
		}
		c.wg.Wait()
		close(c.events)
	})
}
