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

// Package frame implements the framed update stream consumed by the display
// pipeline.
//
// Each message is, with big-endian multi-byte fields:
//
//	magic     8 bytes  00 01 02 03 04 05 06 07
//	stop      1 byte   nonzero ends the session; nothing follows
//	width     2 bytes  must equal the panel width
//	height    2 bytes  must equal the panel height
//	count     1 byte   at most MaxRects
//	rects     9*count  x(2) y(2) w(2) h(2) mode(1)
//	pixels    width*height/2 bytes, 4-bit gray, two pixels per byte
package frame

import (
	"errors"
	"fmt"
)

const (
	// MaxRects is the largest rectangle table a message may carry
	MaxRects = 10

	// HeaderSize is the size of the fields following the magic
	HeaderSize = 6

	// RectSize is the size of one rectangle table record
	RectSize = 9

	// White is the packed byte for two white pixels
	White byte = 0xFF
)

// Magic starts every message
var Magic = [8]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}

// Common errors.
var (
	ErrProtocolViolation = errors.New("frame: protocol violation")
	ErrShortRead         = errors.New("frame: short read")
)

// Rect is one dirty rectangle with its refresh waveform
type Rect struct {
	X      uint16
	Y      uint16
	Width  uint16
	Height uint16
	Mode   uint8
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d mode %d)", r.X, r.Y, r.Width, r.Height, r.Mode)
}

// Message is one decoded update. A stop message carries no other fields.
type Message struct {
	Rects  []Rect
	Pixels []byte
	Width  uint16
	Height uint16
	Stop   bool
}

// PayloadSize returns the packed pixel size for a width x height panel
func PayloadSize(width, height uint16) int {
	return int(width) * int(height) / 2
}

// NonWhite counts payload bytes that are not fully white. It is a diagnostic
// only.
func (m *Message) NonWhite() int {
	n := 0
	for _, b := range m.Pixels {
		if b != White {
			n++
		}
	}
	return n
}

// Stage names the decoder state in which an error occurred
type Stage int

const (
	StagePreamble Stage = iota
	StageHeader
	StageRectTable
	StagePayload
)

func (s Stage) String() string {
	switch s {
	case StagePreamble:
		return "preamble"
	case StageHeader:
		return "header"
	case StageRectTable:
		return "rectangle table"
	case StagePayload:
		return "pixel payload"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// DecodeError describes why a message was rejected
type DecodeError struct {
	Err      error
	Field    string
	Expected string
	Actual   string
	Frame    int
	Stage    Stage
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("frame %d: %s", e.Frame, e.Stage)
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Expected != "" || e.Actual != "" {
		msg += fmt.Sprintf(": expected %s, got %s", e.Expected, e.Actual)
	}
	return msg + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
