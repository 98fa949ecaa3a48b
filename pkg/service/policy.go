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

// Policy answers whether newly seen volumes should be mounted
// automatically.
type Policy struct {
	autoMount func() bool
	live      bool
}

// NewPolicy creates a policy over a setting that is read on every call.
// When live is set, auto-mount is always off.
func NewPolicy(autoMount func() bool, live bool) *Policy {
	return &Policy{autoMount: autoMount, live: live}
}

// AutoMount is read once at the start of each handled event.
func (p *Policy) AutoMount() bool {
	if p == nil || p.live || p.autoMount == nil {
		return false
	}
	return p.autoMount()
}
