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

// Package notify shows desktop notifications for device problems, finished
// auto-mounts and eject results through org.freedesktop.Notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/config"
	"github.com/ZaparooProject/zaparoo-flashdisk/pkg/service/broker"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod         = notificationsService + ".Notify"

	iconName      = "drive-removable-media"
	summary       = "Flash Disk"
	expireDefault = int32(-1)
	bufferSize    = 16

	// A hub with several partitions mounts them all at once; only the
	// first few popups are shown.
	popupInterval = 2 * time.Second
	popupBurst    = 2

	PopupMessage = "Please do not pull out the USB flash disk when reading or writing"
)

// Methods are the notifications the notifier subscribes to.
var Methods = []string{
	models.NotificationDevicesProblem,
	models.NotificationDevicesPopup,
	models.NotificationDevicesEjected,
}

type caller interface {
	call(ctx context.Context, method string, args ...any) *dbus.Call
}

type sessionCaller struct {
	conn *dbus.Conn
}

func (c sessionCaller) call(ctx context.Context, method string, args ...any) *dbus.Call {
	return c.conn.Object(notificationsService, notificationsPath).CallWithContext(ctx, method, 0, args...)
}

// Notifier sends desktop notifications. It is disabled at runtime by the
// notifications.desktop config setting.
type Notifier struct {
	bus     caller
	conn    *dbus.Conn
	enabled func() bool
	popups  *rate.Limiter
}

// Connect opens a private session bus connection.
func Connect(cfg *config.Instance) (*Notifier, error) {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session D-Bus: %w", err)
	}
	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to authenticate to session D-Bus: %w", err)
	}
	if err := conn.Hello(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to register on session D-Bus: %w", err)
	}
	return &Notifier{
		bus:     sessionCaller{conn: conn},
		conn:    conn,
		enabled: cfg.DesktopNotifications,
		popups:  rate.NewLimiter(rate.Every(popupInterval), popupBurst),
	}, nil
}

// Close releases the bus connection.
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	if err := n.conn.Close(); err != nil {
		return fmt.Errorf("failed to close session D-Bus: %w", err)
	}
	return nil
}

// Message turns a notification into the text shown to the user. ok is
// false for notifications that are not shown.
//
//nolint:gocritic // notification read only
func Message(notif models.Notification) (body string, ok bool) {
	switch notif.Method {
	case models.NotificationDevicesProblem:
		var p models.DeviceProblemParams
		if err := json.Unmarshal(notif.Params, &p); err != nil {
			return "", false
		}
		return p.Message, true
	case models.NotificationDevicesPopup:
		return PopupMessage, true
	case models.NotificationDevicesEjected:
		var p models.DeviceEjectedParams
		if err := json.Unmarshal(notif.Params, &p); err != nil {
			return "", false
		}
		name := p.Name
		if name == "" {
			name = p.ID
		}
		if p.Success {
			return name + " can be removed safely", true
		}
		if p.Error != "" {
			return fmt.Sprintf("%s could not be ejected: %s", name, p.Error), true
		}
		return name + " could not be ejected", true
	default:
		return "", false
	}
}

// Show sends one notification and returns its server id.
func (n *Notifier) Show(ctx context.Context, body string) (uint32, error) {
	call := n.bus.call(ctx, notifyMethod,
		config.AppName,
		uint32(0),
		iconName,
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{},
		expireDefault,
	)
	if call.Err != nil {
		return 0, fmt.Errorf("failed to send notification: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("failed to read notification id: %w", err)
	}
	return id, nil
}

// Run shows notifications from ch until it closes or ctx is done.
func (n *Notifier) Run(ctx context.Context, ch <-chan models.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-ch:
			if !ok {
				return
			}
			n.handle(ctx, notif)
		}
	}
}

//nolint:gocritic // notification read only
func (n *Notifier) handle(ctx context.Context, notif models.Notification) {
	if n.enabled != nil && !n.enabled() {
		return
	}
	body, ok := Message(notif)
	if !ok {
		return
	}
	if notif.Method == models.NotificationDevicesPopup && n.popups != nil && !n.popups.Allow() {
		log.Debug().Msg("popup suppressed, too many in a short time")
		return
	}
	if _, err := n.Show(ctx, body); err != nil {
		log.Warn().Err(err).Str("method", notif.Method).Msg("desktop notification failed")
	}
}

// Subscribe runs the notifier against the broker until ctx is done.
func (n *Notifier) Subscribe(ctx context.Context, b *broker.Broker) {
	ch, id := b.Subscribe(bufferSize, Methods...)
	defer b.Unsubscribe(id)
	n.Run(ctx, ch)
}
