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

// Package broker fans notifications from the reconciler out to the tray,
// the desktop notifier and any other subscriber.
package broker

import (
	"context"
	"slices"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

type subscriber struct {
	ch      chan models.Notification
	methods []string
}

func (s *subscriber) wants(method string) bool {
	return len(s.methods) == 0 || slices.Contains(s.methods, method)
}

type Broker struct {
	ctx         context.Context
	source      <-chan models.Notification
	subscribers map[int]*subscriber
	last        map[string]models.Notification
	done        chan struct{}
	retained    []string
	mu          syncutil.Mutex
	nextID      int
}

// NewBroker creates a broker reading from source. The latest notification
// of each retained method is replayed to subscribers that join later, so a
// UI started after the first enumeration still sees the current state.
func NewBroker(ctx context.Context, source <-chan models.Notification, retained ...string) *Broker {
	return &Broker{
		ctx:         ctx,
		source:      source,
		subscribers: make(map[int]*subscriber),
		last:        make(map[string]models.Notification),
		done:        make(chan struct{}),
		retained:    retained,
	}
}

// Start broadcasts notifications until the source closes or the context is
// cancelled, then closes every subscriber channel.
func (b *Broker) Start() {
	go func() {
		defer close(b.done)
		for {
			select {
			case notif, ok := <-b.source:
				if !ok {
					log.Debug().Msg("broker: source channel closed")
					b.closeAllSubscribers()
					return
				}
				b.broadcast(notif)
			case <-b.ctx.Done():
				log.Debug().Msg("broker: context cancelled, shutting down")
				b.closeAllSubscribers()
				return
			}
		}
	}()
}

// Done is closed once the broadcast goroutine has exited.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

//nolint:gocritic // notification passed by value to every subscriber
func (b *Broker) broadcast(notif models.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if slices.Contains(b.retained, notif.Method) {
		b.last[notif.Method] = notif
	}

	for id, sub := range b.subscribers {
		if !sub.wants(notif.Method) {
			continue
		}
		select {
		case sub.ch <- notif:
		default:
			log.Warn().
				Int("subscriber_id", id).
				Str("method", notif.Method).
				Msg("subscriber channel full, dropping notification")
		}
	}
}

// Subscribe registers a subscriber. When methods are given only those
// notifications are delivered. Retained notifications already seen are
// queued on the new channel first. A full subscriber channel drops
// notifications rather than holding up the others.
func (b *Broker) Subscribe(
	bufferSize int,
	methods ...string,
) (notifChan <-chan models.Notification, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id = b.nextID
	b.nextID++

	ch := make(chan models.Notification, bufferSize)
	sub := &subscriber{ch: ch, methods: methods}
	b.subscribers[id] = sub

	for _, method := range b.retained {
		notif, ok := b.last[method]
		if !ok || !sub.wants(method) {
			continue
		}
		select {
		case ch <- notif:
		default:
			log.Warn().Int("subscriber_id", id).Str("method", method).Msg("no room to replay notification")
		}
	}

	log.Debug().
		Int("subscriber_id", id).
		Int("buffer_size", bufferSize).
		Strs("methods", methods).
		Msg("new subscriber registered")

	return ch, id
}

func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
		log.Debug().Int("subscriber_id", id).Msg("subscriber unsubscribed")
	}
}

func (b *Broker) closeAllSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		close(sub.ch)
		log.Debug().Int("subscriber_id", id).Msg("closed subscriber channel on shutdown")
	}
	b.subscribers = make(map[int]*subscriber)
}
