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

import "fmt"

// Area is a rectangle on the panel in pixels
type Area struct {
	X      uint16
	Y      uint16
	Width  uint16
	Height uint16
}

// Empty reports whether the area covers no pixels
func (a Area) Empty() bool {
	return a.Width == 0 || a.Height == 0
}

// Within reports whether the area lies inside a panel of the given size
func (a Area) Within(panelWidth, panelHeight uint16) bool {
	return uint32(a.X)+uint32(a.Width) <= uint32(panelWidth) &&
		uint32(a.Y)+uint32(a.Height) <= uint32(panelHeight)
}

func (a Area) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", a.X, a.Y, a.Width, a.Height)
}

// LoadImageDescriptor parameterizes an image load. The pixel source is the
// word sequence handed to LoadImage / LoadImageArea.
type LoadImageDescriptor struct {
	Endian      Endianness
	PixelFormat PixelFormat
	Rotation    Rotation
	// Target is the controller image buffer address the data is loaded into
	Target uint32
}

// Argument packs endianness, pixel format and rotation into the load
// command's first argument word.
func (d LoadImageDescriptor) Argument() uint16 {
	return uint16(d.Endian)<<8 | uint16(d.PixelFormat)<<4 | uint16(d.Rotation)
}
