// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Decoder reads messages from an update stream. It never returns a partially
// valid message: each call yields a complete message, a stop message or an
// error. Errors are fatal; the stream is not resynchronised.
type Decoder struct {
	r      io.Reader
	header [HeaderSize]byte
	magic  [len(Magic)]byte
	frames int
	width  uint16
	height uint16
}

// NewDecoder creates a decoder that accepts only width x height messages
func NewDecoder(r io.Reader, width, height uint16) *Decoder {
	return &Decoder{r: r, width: width, height: height}
}

// Frames returns the number of messages decoded so far, stop included
func (d *Decoder) Frames() int {
	return d.frames
}

// Next decodes the next message. A short magic is a protocol violation;
// other short reads are reported as ErrShortRead. Both wrap the underlying
// io error, so a stream that ends between messages satisfies
// errors.Is(err, io.EOF).
func (d *Decoder) Next() (*Message, error) {
	if err := d.readPreamble(); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		return nil, d.shortRead(StageHeader, HeaderSize, err)
	}
	if d.header[0] != 0 {
		d.frames++
		return &Message{Stop: true}, nil
	}

	msg := &Message{
		Width:  binary.BigEndian.Uint16(d.header[1:3]),
		Height: binary.BigEndian.Uint16(d.header[3:5]),
	}
	count := int(d.header[5])
	if msg.Width != d.width {
		return nil, d.violation(StageHeader, "width", d.width, msg.Width)
	}
	if msg.Height != d.height {
		return nil, d.violation(StageHeader, "height", d.height, msg.Height)
	}
	if count > MaxRects {
		return nil, d.errorf(StageHeader, "rectangle count", "at most "+strconv.Itoa(MaxRects),
			strconv.Itoa(count), ErrProtocolViolation)
	}

	rects, err := d.readRects(count)
	if err != nil {
		return nil, err
	}
	msg.Rects = rects

	msg.Pixels = make([]byte, PayloadSize(msg.Width, msg.Height))
	if _, err := io.ReadFull(d.r, msg.Pixels); err != nil {
		return nil, d.shortRead(StagePayload, len(msg.Pixels), err)
	}

	d.frames++
	return msg, nil
}

func (d *Decoder) readPreamble() error {
	n, err := io.ReadFull(d.r, d.magic[:])
	if !bytes.Equal(d.magic[:n], Magic[:n]) {
		return d.errorf(StagePreamble, "magic", fmt.Sprintf("% X", Magic[:]),
			fmt.Sprintf("% X", d.magic[:n]), ErrProtocolViolation)
	}
	if err != nil {
		return d.errorf(StagePreamble, "magic", strconv.Itoa(len(Magic))+" bytes",
			strconv.Itoa(n)+" bytes", fmt.Errorf("%w: %w", ErrProtocolViolation, err))
	}
	return nil
}

func (d *Decoder) readRects(count int) ([]Rect, error) {
	if count == 0 {
		return nil, nil
	}
	table := make([]byte, RectSize*count)
	if _, err := io.ReadFull(d.r, table); err != nil {
		return nil, d.shortRead(StageRectTable, len(table), err)
	}

	rects := make([]Rect, count)
	for i := range rects {
		rec := table[i*RectSize:]
		r := Rect{
			X:      binary.BigEndian.Uint16(rec[0:2]),
			Y:      binary.BigEndian.Uint16(rec[2:4]),
			Width:  binary.BigEndian.Uint16(rec[4:6]),
			Height: binary.BigEndian.Uint16(rec[6:8]),
			Mode:   rec[8],
		}
		if r.Width == 0 || r.Height == 0 ||
			uint32(r.X)+uint32(r.Width) > uint32(d.width) ||
			uint32(r.Y)+uint32(r.Height) > uint32(d.height) {
			return nil, d.errorf(StageRectTable, fmt.Sprintf("rect[%d]", i),
				fmt.Sprintf("non-empty within %dx%d", d.width, d.height), r.String(), ErrProtocolViolation)
		}
		rects[i] = r
	}
	return rects, nil
}

func (d *Decoder) violation(stage Stage, field string, expected, actual uint16) error {
	return d.errorf(stage, field, strconv.Itoa(int(expected)), strconv.Itoa(int(actual)), ErrProtocolViolation)
}

func (d *Decoder) shortRead(stage Stage, want int, err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return d.errorf(stage, "", strconv.Itoa(want)+" bytes", "short read",
			fmt.Errorf("%w: %w", ErrShortRead, err))
	}
	return d.errorf(stage, "", "", "", fmt.Errorf("%w: %w", ErrShortRead, err))
}

func (d *Decoder) errorf(stage Stage, field, expected, actual string, err error) error {
	return &DecodeError{
		Err:      err,
		Frame:    d.frames,
		Stage:    stage,
		Field:    field,
		Expected: expected,
		Actual:   actual,
	}
}
