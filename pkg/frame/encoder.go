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
	"encoding/binary"
	"fmt"
	"io"
)

// Encoder writes messages to an update stream
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an encoder writing to w
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes m. Stop messages are written as a bare stop header.
func (e *Encoder) Encode(m *Message) error {
	if m.Stop {
		return e.EncodeStop()
	}
	buf, err := Marshal(m)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("frame: write failed: %w", err)
	}
	return nil
}

// EncodeStop writes a stop message
func (e *Encoder) EncodeStop() error {
	buf := append(Magic[:], 0x01, 0, 0, 0, 0, 0)
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("frame: write failed: %w", err)
	}
	return nil
}

// Marshal serializes a non-stop message after checking its table size,
// rectangle bounds and payload length.
func Marshal(m *Message) ([]byte, error) {
	if len(m.Rects) > MaxRects {
		return nil, fmt.Errorf("%w: %d rectangles, at most %d", ErrProtocolViolation, len(m.Rects), MaxRects)
	}
	if want := PayloadSize(m.Width, m.Height); len(m.Pixels) != want {
		return nil, fmt.Errorf("%w: payload is %d bytes, want %d", ErrProtocolViolation, len(m.Pixels), want)
	}
	for i, r := range m.Rects {
		if r.Width == 0 || r.Height == 0 ||
			uint32(r.X)+uint32(r.Width) > uint32(m.Width) ||
			uint32(r.Y)+uint32(r.Height) > uint32(m.Height) {
			return nil, fmt.Errorf("%w: rect[%d] %s outside %dx%d", ErrProtocolViolation, i, r, m.Width, m.Height)
		}
	}

	buf := make([]byte, 0, len(Magic)+HeaderSize+RectSize*len(m.Rects)+len(m.Pixels))
	buf = append(buf, Magic[:]...)
	buf = append(buf, 0x00)
	buf = binary.BigEndian.AppendUint16(buf, m.Width)
	buf = binary.BigEndian.AppendUint16(buf, m.Height)
	buf = append(buf, byte(len(m.Rects)))
	for _, r := range m.Rects {
		buf = binary.BigEndian.AppendUint16(buf, r.X)
		buf = binary.BigEndian.AppendUint16(buf, r.Y)
		buf = binary.BigEndian.AppendUint16(buf, r.Width)
		buf = binary.BigEndian.AppendUint16(buf, r.Height)
		buf = append(buf, r.Mode)
	}
	return append(buf, m.Pixels...), nil
}
