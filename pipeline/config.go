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

package pipeline

import (
	"time"

	"github.com/ZaparooProject/go-it8951"
)

// Config holds pipeline configuration options
type Config struct {
	// DisplayTimeout bounds every wait for the refresh engine to go idle
	DisplayTimeout time.Duration

	// Endian, PixelFormat and Rotation parameterize the bulk upload. The
	// FrameBuffer words are produced in the byte order matching Endian.
	Endian      it8951.Endianness
	PixelFormat it8951.PixelFormat
	Rotation    it8951.Rotation

	// ClearOnStart fills the panel white with ClearMode before the first frame
	ClearOnStart bool
	ClearMode    it8951.DisplayMode

	// SleepOnStop puts the controller to sleep when a stop message arrives
	SleepOnStop bool
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() *Config {
	return &Config{
		DisplayTimeout: 10 * time.Second,
		Endian:         it8951.EndianLittle,
		PixelFormat:    it8951.PixelFormat4BPP,
		Rotation:       it8951.Rotate0,
		ClearMode:      it8951.ModeInit,
	}
}
