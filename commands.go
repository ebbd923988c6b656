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

import "strconv"

// Preambles sent ahead of every bus phase so the controller knows what follows
const (
	preambleCommand   uint16 = 0x6000
	preambleDataWrite uint16 = 0x0000
	preambleDataRead  uint16 = 0x1000
)

// Built-in I80 command codes
const (
	cmdSysRun    uint16 = 0x0001
	cmdStandby   uint16 = 0x0002
	cmdSleep     uint16 = 0x0003
	cmdRegRead   uint16 = 0x0010
	cmdRegWrite  uint16 = 0x0011
	cmdLoadImage uint16 = 0x0020
	cmdLoadArea  uint16 = 0x0021
	cmdLoadEnd   uint16 = 0x0022
)

// User defined I80 command codes
const (
	cmdDisplayArea    uint16 = 0x0034
	cmdDisplayBufArea uint16 = 0x0037
	cmdGetDevInfo     uint16 = 0x0302
)

// Register base addresses
const (
	sysRegBase     uint16 = 0x0000
	displayRegBase uint16 = 0x1000 // I80 access only
	memConvRegBase uint16 = 0x0200
)

// System registers
const (
	// RegI80CPCR is the I80 packed-mode configuration register.
	RegI80CPCR = sysRegBase + 0x04
)

// Display (LUT engine) registers
const (
	RegLUT0EWHR  = displayRegBase + 0x000 // LUT0 engine width/height
	RegLUT0XYR   = displayRegBase + 0x040 // LUT0 XY
	RegLUT0BADDR = displayRegBase + 0x080 // LUT0 base address
	RegLUT0MFN   = displayRegBase + 0x0C0 // LUT0 mode and frame number
	RegLUT01AF   = displayRegBase + 0x114 // LUT0/LUT1 active flag
	RegUP0SR     = displayRegBase + 0x134 // update parameter 0
	RegUP1SR     = displayRegBase + 0x138 // update parameter 1
	RegLUT0ABFRV = displayRegBase + 0x13C // alpha blend and fill rectangle value
	RegUPBBADDR  = displayRegBase + 0x17C // update buffer base address
	RegLUT0IMXY  = displayRegBase + 0x180 // image buffer X/Y offset
	RegLUTAFSR   = displayRegBase + 0x224 // status of all LUT engines, 0 = idle
	RegBGVR      = displayRegBase + 0x250 // 1bpp colour table
)

// Memory converter registers
const (
	RegMCSR  = memConvRegBase + 0x0000
	RegLISAR = memConvRegBase + 0x0008 // image buffer address, low half; high half at +2
)

// packedModeEnable is written to RegI80CPCR during initialization.
const packedModeEnable uint16 = 0x0001

// deviceInfoWords is the size of the GET_DEV_INFO burst.
const deviceInfoWords = 20

// Endianness selects how the controller interprets streamed pixel words.
type Endianness uint16

const (
	EndianLittle Endianness = 0
	EndianBig    Endianness = 1
)

// PixelFormat is the bits-per-pixel packing of streamed image data.
type PixelFormat uint16

const (
	PixelFormat2BPP PixelFormat = 0
	PixelFormat3BPP PixelFormat = 1
	PixelFormat4BPP PixelFormat = 2
	PixelFormat8BPP PixelFormat = 3
)

// Rotation is applied by the controller while loading image data.
type Rotation uint16

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 1
	Rotate180 Rotation = 2
	Rotate270 Rotation = 3
)

// DisplayMode selects the waveform used for a refresh. The mapping of numbers
// to waveforms is defined by the panel's LUT; these are the common IT8951 ones.
type DisplayMode uint16

const (
	ModeInit  DisplayMode = 0 // full clear to white
	ModeDU    DisplayMode = 1 // fast monochrome
	ModeGC16  DisplayMode = 2 // 16 level grayscale, flashing
	ModeGL16  DisplayMode = 3 // 16 level grayscale, non flashing
	ModeGLR16 DisplayMode = 4
	ModeGLD16 DisplayMode = 5
	ModeA2    DisplayMode = 6 // fastest, black and white
	ModeDU4   DisplayMode = 7
)

// String returns the waveform name for known modes
func (m DisplayMode) String() string {
	names := map[DisplayMode]string{
		ModeInit:  "INIT",
		ModeDU:    "DU",
		ModeGC16:  "GC16",
		ModeGL16:  "GL16",
		ModeGLR16: "GLR16",
		ModeGLD16: "GLD16",
		ModeA2:    "A2",
		ModeDU4:   "DU4",
	}
	if name, ok := names[m]; ok {
		return name
	}
	return "MODE_" + strconv.Itoa(int(m))
}
