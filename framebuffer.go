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
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"iter"
)

// Gray levels of the 4bpp format
const (
	LevelBlack uint8 = 0x0
	LevelWhite uint8 = 0xF
)

// FrameBuffer is the host-side copy of the panel in the controller's packed
// 4bpp layout: two pixels per byte, the even pixel in the high nibble.
//
// FrameBuffer implements draw.Image so the standard image/draw package can
// render into it.
type FrameBuffer struct {
	buf    []byte
	width  int
	height int
}

// NewFrameBuffer allocates a white buffer for a width x height panel
func NewFrameBuffer(width, height int) *FrameBuffer {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	fb := &FrameBuffer{
		buf:    make([]byte, width*height/2),
		width:  width,
		height: height,
	}
	fb.Fill(LevelWhite)
	return fb
}

// Width returns the panel width in pixels
func (fb *FrameBuffer) Width() int { return fb.width }

// Height returns the panel height in pixels
func (fb *FrameBuffer) Height() int { return fb.height }

// Len returns the packed size in bytes, width*height/2
func (fb *FrameBuffer) Len() int { return len(fb.buf) }

// Bytes returns the packed pixels. The slice aliases the buffer.
func (fb *FrameBuffer) Bytes() []byte { return fb.buf }

// Fill sets every pixel to level
func (fb *FrameBuffer) Fill(level uint8) {
	level &= 0x0F
	packed := level<<4 | level
	for i := range fb.buf {
		fb.buf[i] = packed
	}
}

// SetPixel replaces one pixel's nibble. Coordinates outside the panel are
// ignored.
func (fb *FrameBuffer) SetPixel(x, y int, level uint8) {
	pos, high, ok := fb.locate(x, y)
	if !ok {
		return
	}
	level &= 0x0F
	if high {
		fb.buf[pos] = fb.buf[pos]&0x0F | level<<4
	} else {
		fb.buf[pos] = fb.buf[pos]&0xF0 | level
	}
}

// Pixel returns the level at x, y, or 0 outside the panel
func (fb *FrameBuffer) Pixel(x, y int) uint8 {
	pos, high, ok := fb.locate(x, y)
	if !ok {
		return 0
	}
	if high {
		return fb.buf[pos] >> 4
	}
	return fb.buf[pos] & 0x0F
}

func (fb *FrameBuffer) locate(x, y int) (pos int, high, ok bool) {
	if x < 0 || y < 0 || x >= fb.width || y >= fb.height {
		return 0, false, false
	}
	idx := x + y*fb.width
	pos = idx / 2
	if pos >= len(fb.buf) {
		// last pixel of an odd-sized panel has no byte
		return 0, false, false
	}
	return pos, idx%2 == 0, true
}

// Replace overwrites the whole buffer with an already packed payload
func (fb *FrameBuffer) Replace(packed []byte) error {
	if len(packed) != len(fb.buf) {
		return fmt.Errorf("%w: payload is %d bytes, frame buffer is %d",
			ErrInvalidParameter, len(packed), len(fb.buf))
	}
	copy(fb.buf, packed)
	return nil
}

// Words returns the buffer as a stream of 16-bit words, two bytes per word
// assembled in the given byte order. The sequence reads the live buffer each
// time it is ranged over. An odd trailing byte is padded with white.
func (fb *FrameBuffer) Words(order binary.ByteOrder) iter.Seq[uint16] {
	return func(yield func(uint16) bool) {
		n := len(fb.buf)
		for i := 0; i+1 < n; i += 2 {
			if !yield(order.Uint16(fb.buf[i:])) {
				return
			}
		}
		if n%2 == 1 {
			yield(order.Uint16([]byte{fb.buf[n-1], 0xFF}))
		}
	}
}

// WordCount returns the number of words Words yields
func (fb *FrameBuffer) WordCount() int {
	return (len(fb.buf) + 1) / 2
}

// ColorModel implements image.Image
func (*FrameBuffer) ColorModel() color.Model {
	return color.GrayModel
}

// Bounds implements image.Image
func (fb *FrameBuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, fb.width, fb.height)
}

// At implements image.Image
func (fb *FrameBuffer) At(x, y int) color.Color {
	return color.Gray{Y: fb.Pixel(x, y) * 0x11}
}

// Set implements draw.Image
func (fb *FrameBuffer) Set(x, y int, c color.Color) {
	g, _ := color.GrayModel.Convert(c).(color.Gray)
	fb.SetPixel(x, y, g.Y>>4)
}

// ByteOrder returns the host byte order matching the controller endianness
// flag used when loading image data.
func (e Endianness) ByteOrder() binary.ByteOrder {
	if e == EndianBig {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
