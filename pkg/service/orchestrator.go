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

package service

import (
	"context"
	"sync"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/devices"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MountCompletion receives the result of a mount request on the event loop.
type MountCompletion func(v devices.Volume, requestID string, err error)

// Orchestrator issues auto-mount requests off the loop and posts their
// results back onto it.
//
// Concurrent requests for the same volume are not collapsed: the volume
// monitor serializes them itself.
type Orchestrator struct {
	ctx      context.Context
	post     func(func()) bool
	complete MountCompletion
	wg       sync.WaitGroup
}

// NewOrchestrator creates an orchestrator posting completions through post.
// ctx only ends outstanding requests at shutdown.
func NewOrchestrator(ctx context.Context, post func(func()) bool) *Orchestrator {
	return &Orchestrator{ctx: ctx, post: post}
}

// OnComplete sets the completion handler. It must be set before the first
// request.
func (o *Orchestrator) OnComplete(fn MountCompletion) {
	o.complete = fn
}

// MaybeAutoMount requests a mount of v when the policy allows it and v is
// ejectable and not yet mounted. It returns whether a request was issued.
func (o *Orchestrator) MaybeAutoMount(v devices.Volume, policyEnabled bool) bool {
	if v == nil || !policyEnabled {
		return false
	}
	if !v.CanEject() || v.CurrentMount() != nil {
		return false
	}

	requestID := uuid.NewString()
	log.Info().
		Str("request", requestID).
		Str("volume", v.Name()).
		Str("device", v.UnixDevice()).
		Msg("auto-mounting volume")

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := v.RequestMount(o.ctx)
		if !o.post(func() {
			if o.complete != nil {
				o.complete(v, requestID, err)
			}
		}) {
			log.Debug().Str("request", requestID).Msg("event loop stopped, dropping mount result")
		}
	}()
	return true
}

// Wait blocks until every issued request has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
