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
	"fmt"
	"strings"
)

// versionWords is the number of words holding each version string
const versionWords = 8

// DeviceInfo is the controller's answer to GET_DEV_INFO
type DeviceInfo struct {
	FirmwareVersion    string
	LUTVersion         string
	ImageBufferAddress uint32
	Width              uint16
	Height             uint16
}

// Valid reports whether the controller returned a usable panel geometry.
// Zero width or height means the controller did not answer.
func (i DeviceInfo) Valid() bool {
	return i.Width != 0 && i.Height != 0
}

// Area returns the whole-panel area
func (i DeviceInfo) Area() Area {
	return Area{Width: i.Width, Height: i.Height}
}

// String returns a one-line summary
func (i DeviceInfo) String() string {
	return fmt.Sprintf("panel %dx%d, image buffer 0x%08X, firmware %q, LUT %q",
		i.Width, i.Height, i.ImageBufferAddress, i.FirmwareVersion, i.LUTVersion)
}

// DecodeDeviceInfo decodes the 20-word GET_DEV_INFO burst:
//
//	[0] width  [1] height  [2] buffer address low  [3] buffer address high
//	[4:12] firmware version  [12:20] LUT version
//
// Version strings carry two bytes per word, low byte first, NUL padded.
func DecodeDeviceInfo(words []uint16) (DeviceInfo, error) {
	if len(words) != deviceInfoWords {
		return DeviceInfo{}, fmt.Errorf("%w: device info needs %d words, got %d",
			ErrInvalidParameter, deviceInfoWords, len(words))
	}
	return DeviceInfo{
		Width:              words[0],
		Height:             words[1],
		ImageBufferAddress: uint32(words[2]) | uint32(words[3])<<16,
		FirmwareVersion:    decodeVersion(words[4 : 4+versionWords]),
		LUTVersion:         decodeVersion(words[4+versionWords : 4+2*versionWords]),
	}, nil
}

// Words encodes the device info in the GET_DEV_INFO layout. Version strings
// longer than 16 bytes are truncated.
func (i DeviceInfo) Words() []uint16 {
	words := make([]uint16, deviceInfoWords)
	words[0] = i.Width
	words[1] = i.Height
	words[2] = uint16(i.ImageBufferAddress)
	words[3] = uint16(i.ImageBufferAddress >> 16)
	encodeVersion(words[4:4+versionWords], i.FirmwareVersion)
	encodeVersion(words[4+versionWords:4+2*versionWords], i.LUTVersion)
	return words
}

func decodeVersion(words []uint16) string {
	raw := make([]byte, 0, 2*len(words))
	for _, w := range words {
		raw = append(raw, byte(w), byte(w>>8))
	}
	if idx := strings.IndexByte(string(raw), 0); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.TrimSpace(string(raw))
}

func encodeVersion(dst []uint16, s string) {
	raw := make([]byte, 2*len(dst))
	copy(raw, s)
	for i := range dst {
		dst[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
}
