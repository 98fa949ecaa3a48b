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

//go:build linux

package udisks

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const connectTimeout = 5 * time.Second

type dbusCaller struct {
	conn *dbus.Conn
}

func (c dbusCaller) callMethod(
	ctx context.Context,
	path dbus.ObjectPath,
	method string,
	args ...any,
) *dbus.Call {
	return c.conn.Object(udisks2Service, path).CallWithContext(ctx, method, 0, args...)
}

// connectSystemBus opens a private system bus connection that can be closed
// without affecting other users of the shared one.
func connectSystemBus() (*dbus.Conn, error) {
	conn, err := dbus.SystemBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system D-Bus: %w", err)
	}
	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to authenticate to system D-Bus: %w", err)
	}
	if err := conn.Hello(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to register on system D-Bus: %w", err)
	}
	return conn, nil
}

func (m *Monitor) Start() error {
	conn, err := connectSystemBus()
	if err != nil {
		return err
	}

	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchObjectPath(udisks2Path),
			dbus.WithMatchInterface(dbusObjectManager),
			dbus.WithMatchMember("InterfacesAdded"),
		},
		{
			dbus.WithMatchObjectPath(udisks2Path),
			dbus.WithMatchInterface(dbusObjectManager),
			dbus.WithMatchMember("InterfacesRemoved"),
		},
		{
			dbus.WithMatchPathNamespace(udisks2Path),
			dbus.WithMatchInterface(dbusPropertiesIface),
			dbus.WithMatchMember("PropertiesChanged"),
		},
	}
	for _, opts := range matches {
		if err := conn.AddMatchSignal(opts...); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to add udisks2 signal match: %w", err)
		}
	}

	signalChan := make(chan *dbus.Signal, 32)
	conn.Signal(signalChan)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var raw map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err = conn.Object(udisks2Service, udisks2Path).
		CallWithContext(ctx, dbusObjectManager+".GetManagedObjects", 0).
		Store(&raw)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to get udisks2 managed objects: %w", err)
	}

	objects := make(ManagedObjects, len(raw))
	for path, ifaces := range raw {
		objects[path] = Interfaces(ifaces)
	}
	m.load(objects)

	m.caller = dbusCaller{conn: conn}
	m.closer = func() { _ = conn.Close() }

	log.Debug().Int("objects", len(objects)).Msg("udisks2 monitor started")

	m.wg.Add(1)
	go m.listenForSignals(signalChan)

	return nil
}

func (m *Monitor) listenForSignals(signalChan chan *dbus.Signal) {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopChan:
			return
		case signal := <-signalChan:
			if signal == nil {
				return
			}
			m.handleSignal(signal)
		}
	}
}

func (m *Monitor) handleSignal(signal *dbus.Signal) {
	switch signal.Name {
	case dbusObjectManager + ".InterfacesAdded":
		if len(signal.Body) < 2 {
			return
		}
		path, ok := signal.Body[0].(dbus.ObjectPath)
		if !ok {
			return
		}
		ifaces, ok := signal.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return
		}
		m.interfacesAdded(path, ifaces)

	case dbusObjectManager + ".InterfacesRemoved":
		if len(signal.Body) < 2 {
			return
		}
		path, ok := signal.Body[0].(dbus.ObjectPath)
		if !ok {
			return
		}
		names, ok := signal.Body[1].([]string)
		if !ok {
			return
		}
		m.interfacesRemoved(path, names)

	case dbusPropertiesIface + ".PropertiesChanged":
		if len(signal.Body) < 3 {
			return
		}
		iface, ok := signal.Body[0].(string)
		if !ok {
			return
		}
		changed, ok := signal.Body[1].(map[string]dbus.Variant)
		if !ok {
			return
		}
		invalidated, _ := signal.Body[2].([]string)
		m.propertiesChanged(signal.Path, iface, changed, invalidated)
	}
}
