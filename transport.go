// go-it8951
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-it8951.
//
// go-it8951 is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-it8951 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-it8951; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package it8951

import (
	"context"
	"fmt"
)

// Transport is the platform adapter the Link drives. Implementations only move
// bytes and report pin state; all protocol framing lives in Link.
//
// Write and Read are only called between Select and Deselect. Ready reports
// the controller's HRDY line (true when the host interface can accept the next
// phase).
type Transport interface {
	// Select asserts chip select
	Select() error

	// Deselect releases chip select
	Deselect() error

	// Write transfers raw bytes to the controller
	Write(p []byte) error

	// Read receives len(p) raw bytes from the controller
	Read(p []byte) error

	// Ready returns the level of the HRDY line
	Ready() (bool, error)

	// Reset pulses the controller's reset line
	Reset(ctx context.Context) error

	// Close releases the bus and pins
	Close() error
}

// portName returns a human readable identifier for a transport, used in errors.
func portName(t Transport) string {
	if s, ok := t.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", t)
}
