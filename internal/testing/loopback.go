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

package testing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-it8951/internal/syncutil"
)

// Loopback is a transport double that queues every word written in a
// data-write phase and returns it from later data-read phases, after the
// usual dummy word. Command phases are logged but not interpreted.
type Loopback struct {
	// WriteErr, when set, is returned by the Nth Write (1-based FailWriteAt)
	WriteErr    error
	queue       []byte
	pending     []byte
	commands    []uint16
	preambles   []uint16
	FailWriteAt int
	mu          syncutil.Mutex
	writes      int
	selects     int
	deselects   int
	phase       phase
	selected    bool
	dummyQueued bool
	notReady    bool
	closed      bool
}

// NewLoopback creates an empty loopback transport
func NewLoopback() *Loopback {
	return &Loopback{}
}

// SetReady drives the simulated HRDY line
func (l *Loopback) SetReady(ready bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notReady = !ready
}

// Select asserts chip select
func (l *Loopback) Select() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.selected = true
	l.selects++
	l.phase = phasePreamble
	l.pending = l.pending[:0]
	return nil
}

// Deselect releases chip select
func (l *Loopback) Deselect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.selected {
		return ErrNotSelected
	}
	l.selected = false
	l.deselects++
	l.phase = phaseIdle
	return nil
}

// Write consumes bytes in the current phase
func (l *Loopback) Write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.selected {
		return ErrNotSelected
	}
	l.writes++
	if l.WriteErr != nil && l.writes == l.FailWriteAt {
		return l.WriteErr
	}
	l.pending = append(l.pending, p...)
	for len(l.pending) >= 2 {
		w := uint16(l.pending[0])<<8 | uint16(l.pending[1])
		l.pending = l.pending[2:]
		switch l.phase {
		case phasePreamble:
			l.preambles = append(l.preambles, w)
			switch w {
			case preambleCommand:
				l.phase = phaseCommand
			case preambleDataWrite:
				l.phase = phaseDataWrite
			case preambleDataRead:
				l.phase = phaseDataRead
				l.dummyQueued = true
			default:
				return fmt.Errorf("unknown preamble 0x%04X", w)
			}
		case phaseCommand:
			l.commands = append(l.commands, w)
		case phaseDataWrite:
			l.queue = append(l.queue, byte(w>>8), byte(w))
		default:
			return errors.New("write outside a write phase")
		}
	}
	return nil
}

// Read returns the dummy word, then queued words in FIFO order
func (l *Loopback) Read(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.selected {
		return ErrNotSelected
	}
	if l.phase != phaseDataRead {
		return ErrUnexpectedRead
	}
	n := 0
	if l.dummyQueued && len(p) >= 2 {
		p[0], p[1] = 0, 0
		l.dummyQueued = false
		n = 2
	}
	need := len(p) - n
	if need > len(l.queue) {
		return ErrNoReadData
	}
	copy(p[n:], l.queue[:need])
	l.queue = l.queue[need:]
	return nil
}

// Ready reports the simulated HRDY line
func (l *Loopback) Ready() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.notReady, nil
}

// Reset drops queued data
func (l *Loopback) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = nil
	return nil
}

// Close marks the loopback closed
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Commands returns the command words seen so far
func (l *Loopback) Commands() []uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]uint16(nil), l.commands...)
}

// Preambles returns every preamble seen so far
func (l *Loopback) Preambles() []uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]uint16(nil), l.preambles...)
}

// Selects returns how many chip-select windows were opened and closed
func (l *Loopback) Selects() (selects, deselects int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selects, l.deselects
}

// Selected reports whether chip select is asserted
func (l *Loopback) Selected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selected
}
