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

// Package service runs the device reconciliation core: one event loop that
// owns the registry, fed by the volume monitor, with notifications fanned
// out through the broker.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/api/notifications"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/config"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/helpers/command"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/service/broker"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	notificationQueueSize = 100
	taskQueueSize         = 64
)

// Options supplies the platform pieces the service runs against.
type Options struct {
	Monitor devices.VolumeMonitor
	// Usage fills mount sizes, nil leaves them at zero.
	Usage    devices.UsageProbe
	Executor command.Executor
	Clock    clockwork.Clock
	// LiveSession forces auto-mount off.
	LiveSession bool
}

// Service is a running reconciliation core.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	monitor  devices.VolumeMonitor
	broker   *broker.Broker
	loop     *Loop
	recon    *Reconciler
	orch     *Orchestrator
	ejector  *Ejector
	group    *errgroup.Group
	stopOnce sync.Once
	stopErr  error
}

// Start builds the core, starts the monitor and enumerates what is already
// connected. The initial enumeration is the first task the loop runs.
func Start(cfg *config.Instance, opts Options) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if opts.Monitor == nil {
		return nil, errors.New("volume monitor is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	ns := make(chan models.Notification, notificationQueueSize)
	b := broker.NewBroker(ctx, ns, models.NotificationTrayVisibility, models.NotificationDevicesChanged)
	b.Start()

	classifier := devices.NewClassifier(cfg.ClassifierRules())
	registry := devices.NewRegistry(classifier)
	extractor := devices.NewExtractor(classifier, opts.Usage)

	loop := NewLoop(taskQueueSize)
	orch := NewOrchestrator(ctx, loop.Post)
	policy := NewPolicy(cfg.AutoMount, opts.LiveSession)
	sender := notifications.NewSender(ns, opts.Clock)
	recon := NewReconciler(registry, extractor, orch, policy, sender)
	ejector := NewEjector(ctx, opts.Monitor, registry, opts.Executor, sender, loop.Post)

	if opts.LiveSession {
		log.Info().Msg("live session detected, auto-mount disabled")
	}

	if err := opts.Monitor.Start(); err != nil {
		cancel()
		<-b.Done()
		return nil, fmt.Errorf("failed to start volume monitor: %w", err)
	}

	s := &Service{
		ctx:     ctx,
		cancel:  cancel,
		monitor: opts.Monitor,
		broker:  b,
		loop:    loop,
		recon:   recon,
		orch:    orch,
		ejector: ejector,
	}

	// queued before Run so it is the first task
	loop.Post(func() { recon.Enumerate(opts.Monitor) })

	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		s.pumpEvents(gctx)
		return nil
	})
	g.Go(func() error {
		err := cfg.Watch(gctx, func() {
			helpers.SetLogLevel(cfg.DebugLogging())
		})
		if err != nil {
			log.Warn().Err(err).Msg("config watcher unavailable")
		}
		return nil
	})

	log.Info().Msg("device service started")
	return s, nil
}

func (s *Service) pumpEvents(ctx context.Context) {
	events := s.monitor.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				log.Debug().Msg("volume monitor event stream closed")
				return
			}
			if !s.loop.Post(func() { s.recon.HandleEvent(ev) }) {
				return
			}
		}
	}
}

// Broker returns the notification broker UI components subscribe to.
func (s *Service) Broker() *broker.Broker {
	return s.broker
}

// Snapshot returns the current registry contents and valid count.
func (s *Service) Snapshot(ctx context.Context) (devices.Snapshot, int, error) {
	var (
		snap  devices.Snapshot
		count int
	)
	err := s.loop.Do(ctx, func() {
		snap = s.recon.Snapshot()
		count = s.recon.ValidCount()
	})
	if err != nil {
		return devices.Snapshot{}, 0, err
	}
	return snap, count, nil
}

// Eject asks for the drive with the given id to be ejected. The outcome is
// reported through the broker.
func (s *Service) Eject(ctx context.Context, driveID string) error {
	var ejectErr error
	if err := s.loop.Do(ctx, func() {
		ejectErr = s.ejector.Eject(driveID)
	}); err != nil {
		return err
	}
	return ejectErr
}

// Stop shuts the service down and waits for every goroutine it started.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		log.Info().Msg("stopping device service")
		s.cancel()
		s.monitor.Stop()
		if err := s.group.Wait(); err != nil {
			s.stopErr = fmt.Errorf("service goroutine failed: %w", err)
		}
		s.orch.Wait()
		s.ejector.Wait()
		<-s.broker.Done()
	})
	return s.stopErr
}
