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

// Package testing provides a wire-level IT8951 simulator and other transport
// doubles for tests.
//
// VirtualIT8951 implements the same method set as it8951.Transport and decodes
// the byte stream the way the controller does: every chip-select window starts
// with a 16-bit preamble (0x6000 command, 0x0000 data write, 0x1000 data read),
// words travel high byte first and a data read clocks out one dummy word
// before the payload.
package testing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-it8951/internal/syncutil"
)

// Protocol constants, mirrored to avoid an import cycle with the root package
const (
	preambleCommand   uint16 = 0x6000
	preambleDataWrite uint16 = 0x0000
	preambleDataRead  uint16 = 0x1000

	cmdSysRun         uint16 = 0x0001
	cmdStandby        uint16 = 0x0002
	cmdSleep          uint16 = 0x0003
	cmdRegRead        uint16 = 0x0010
	cmdRegWrite       uint16 = 0x0011
	cmdLoadImage      uint16 = 0x0020
	cmdLoadArea       uint16 = 0x0021
	cmdLoadEnd        uint16 = 0x0022
	cmdDisplayArea    uint16 = 0x0034
	cmdDisplayBufArea uint16 = 0x0037
	cmdGetDevInfo     uint16 = 0x0302

	regI80CPCR   uint16 = 0x0004
	regLISAR     uint16 = 0x0208
	regLUTAFSR   uint16 = 0x1224
	dummyReadout uint16 = 0x0000
)

// Wire errors reported by the simulator
var (
	ErrNotSelected    = errors.New("transfer outside chip select")
	ErrNotReady       = errors.New("transfer while HRDY deasserted")
	ErrUnexpectedRead = errors.New("read outside a data-read phase")
	ErrNoReadData     = errors.New("read with no pending response")
	ErrClosed         = errors.New("simulator closed")
)

// PowerState is the controller system state
type PowerState int

const (
	PowerRun PowerState = iota
	PowerStandby
	PowerSleep
)

type phase int

const (
	phaseIdle phase = iota
	phasePreamble
	phaseCommand
	phaseDataWrite
	phaseDataRead
)

// LoadRecord is one completed image load
type LoadRecord struct {
	Address  uint32
	Argument uint16
	// Area is empty for a full LD_IMG load
	Area  [4]uint16
	Words []uint16
	Full  bool
}

// DisplayRecord is one display trigger
type DisplayRecord struct {
	Area [4]uint16
	Mode uint16
	// Address is set for DPY_BUF_AREA triggers
	Address  uint32
	Buffered bool
	// WhileBusy is true when the LUT engine had not finished the previous refresh
	WhileBusy bool
}

// CommandRecord is one decoded command with its arguments
type CommandRecord struct {
	Cmd  uint16
	Args []uint16
}

// VirtualIT8951 simulates an IT8951 at the wire level.
type VirtualIT8951 struct {
	regs       map[uint16]uint16
	pending    []byte
	readQueue  []uint16
	current    *CommandRecord
	loadWords  []uint16
	width      uint16
	height     uint16
	bufferAddr uint32
	firmware   string
	lut        string

	commands []CommandRecord
	loads    []LoadRecord
	displays []DisplayRecord
	errs     []error

	// DisplayBusyReads is how many LUTAFSR reads report busy after a trigger
	DisplayBusyReads int
	// HRDYBusyPolls makes Ready report false this many times before each true
	HRDYBusyPolls int

	mu          syncutil.Mutex
	phase       phase
	power       PowerState
	busyReads   int
	hrdyPolls   int
	resets      int
	selects     int
	dummyQueued bool
	selected    bool
	hrdyStuck   bool
	lutStuck    bool
	closed      bool
	loading     bool
}

// NewVirtualIT8951 creates a simulator for a width x height panel with the
// given image buffer base address.
func NewVirtualIT8951(width, height uint16, bufferAddr uint32) *VirtualIT8951 {
	return &VirtualIT8951{
		regs:       make(map[uint16]uint16),
		width:      width,
		height:     height,
		bufferAddr: bufferAddr,
		firmware:   "SWv_0.1.1",
		lut:        "M641",
	}
}

// SetVersions sets the firmware and LUT version strings (up to 16 bytes each)
func (v *VirtualIT8951) SetVersions(firmware, lut string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.firmware, v.lut = firmware, lut
}

// SetGeometry changes the reported panel size, e.g. 0x0 to simulate an
// unresponsive controller.
func (v *VirtualIT8951) SetGeometry(width, height uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.width, v.height = width, height
}

// SetHRDYStuck holds HRDY deasserted
func (v *VirtualIT8951) SetHRDYStuck(stuck bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hrdyStuck = stuck
}

// SetLUTStuck makes the LUT status register report busy forever
func (v *VirtualIT8951) SetLUTStuck(stuck bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lutStuck = stuck
}

// Select asserts chip select
func (v *VirtualIT8951) Select() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	v.selected = true
	v.selects++
	v.phase = phasePreamble
	v.pending = v.pending[:0]
	return nil
}

// Deselect releases chip select. A dangling odd byte is a wire error.
func (v *VirtualIT8951) Deselect() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.selected {
		return v.fail(ErrNotSelected)
	}
	if len(v.pending) != 0 {
		_ = v.fail(fmt.Errorf("%d dangling bytes at deselect", len(v.pending)))
	}
	v.selected = false
	v.phase = phaseIdle
	v.pending = v.pending[:0]
	return nil
}

// Write feeds bytes into the controller
func (v *VirtualIT8951) Write(p []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if !v.selected {
		return v.fail(ErrNotSelected)
	}
	v.pending = append(v.pending, p...)
	for len(v.pending) >= 2 {
		word := uint16(v.pending[0])<<8 | uint16(v.pending[1])
		v.pending = v.pending[2:]
		if err := v.word(word); err != nil {
			return v.fail(err)
		}
	}
	return nil
}

// Read clocks response bytes out of the controller
func (v *VirtualIT8951) Read(p []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if !v.selected {
		return v.fail(ErrNotSelected)
	}
	if v.phase != phaseDataRead {
		return v.fail(ErrUnexpectedRead)
	}
	if len(p)%2 != 0 {
		return v.fail(fmt.Errorf("odd read length %d", len(p)))
	}
	for i := 0; i < len(p); i += 2 {
		var word uint16
		switch {
		case v.dummyQueued:
			word = dummyReadout
			v.dummyQueued = false
		case len(v.readQueue) > 0:
			word = v.readQueue[0]
			v.readQueue = v.readQueue[1:]
		default:
			return v.fail(ErrNoReadData)
		}
		p[i], p[i+1] = byte(word>>8), byte(word)
	}
	return nil
}

// Ready reports the HRDY line
func (v *VirtualIT8951) Ready() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false, ErrClosed
	}
	if v.hrdyStuck {
		return false, nil
	}
	if v.hrdyPolls < v.HRDYBusyPolls {
		v.hrdyPolls++
		return false, nil
	}
	v.hrdyPolls = 0
	return true, nil
}

// Reset returns the controller to its power-on state. Recorded history is kept.
func (v *VirtualIT8951) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	v.resets++
	v.regs = make(map[uint16]uint16)
	v.readQueue = nil
	v.current = nil
	v.loading = false
	v.loadWords = nil
	v.busyReads = 0
	v.power = PowerRun
	return nil
}

// Close marks the simulator closed
func (v *VirtualIT8951) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func (*VirtualIT8951) String() string {
	return "virtual-it8951"
}

// word consumes one 16-bit word in the current phase
func (v *VirtualIT8951) word(w uint16) error {
	switch v.phase {
	case phasePreamble:
		switch w {
		case preambleCommand:
			v.phase = phaseCommand
		case preambleDataWrite:
			v.phase = phaseDataWrite
		case preambleDataRead:
			v.phase = phaseDataRead
			v.dummyQueued = true
		default:
			return fmt.Errorf("unknown preamble 0x%04X", w)
		}
		return nil
	case phaseCommand:
		return v.command(w)
	case phaseDataWrite:
		return v.data(w)
	case phaseDataRead:
		return errors.New("write during data-read phase")
	default:
		return ErrNotSelected
	}
}

// argCount returns the number of argument words a command takes before it
// executes.
func argCount(cmd uint16) int {
	switch cmd {
	case cmdRegRead, cmdLoadImage:
		return 1
	case cmdRegWrite:
		return 2
	case cmdLoadArea, cmdDisplayArea:
		return 5
	case cmdDisplayBufArea:
		return 7
	default:
		return 0
	}
}

func (v *VirtualIT8951) command(cmd uint16) error {
	if v.current != nil && len(v.current.Args) < argCount(v.current.Cmd) {
		pending := v.current.Cmd
		v.current = nil
		return fmt.Errorf("command 0x%04X before 0x%04X received all arguments", cmd, pending)
	}
	if v.loading && cmd != cmdLoadEnd {
		return fmt.Errorf("command 0x%04X during image load", cmd)
	}
	rec := CommandRecord{Cmd: cmd}
	v.current = &rec
	if argCount(cmd) == 0 {
		return v.execute()
	}
	return nil
}

func (v *VirtualIT8951) data(w uint16) error {
	if v.loading {
		v.loadWords = append(v.loadWords, w)
		return nil
	}
	if v.current == nil || len(v.current.Args) >= argCount(v.current.Cmd) {
		return fmt.Errorf("unexpected data word 0x%04X", w)
	}
	v.current.Args = append(v.current.Args, w)
	if len(v.current.Args) == argCount(v.current.Cmd) {
		return v.execute()
	}
	return nil
}

//nolint:gocyclo,cyclop // one case per controller command
func (v *VirtualIT8951) execute() error {
	// a command's arguments may span several chip-select windows, so the
	// latch is only dropped once the command has run or been rejected
	rec := *v.current
	v.current = nil
	v.commands = append(v.commands, rec)
	args := rec.Args

	switch rec.Cmd {
	case cmdSysRun:
		v.power = PowerRun
	case cmdStandby:
		v.power = PowerStandby
	case cmdSleep:
		v.power = PowerSleep
	case cmdRegWrite:
		v.regs[args[0]] = args[1]
	case cmdRegRead:
		v.readQueue = append(v.readQueue, v.register(args[0]))
	case cmdGetDevInfo:
		v.readQueue = append(v.readQueue, v.deviceInfo()...)
	case cmdLoadImage, cmdLoadArea:
		if v.power != PowerRun {
			return fmt.Errorf("image load while not running (state %d)", v.power)
		}
		v.loading = true
		v.loadWords = nil
	case cmdLoadEnd:
		if !v.loading {
			return errors.New("LD_IMG_END without a load in progress")
		}
		v.finishLoad()
	case cmdDisplayArea, cmdDisplayBufArea:
		if v.power != PowerRun {
			return fmt.Errorf("display trigger while not running (state %d)", v.power)
		}
		d := DisplayRecord{
			Area:      [4]uint16{args[0], args[1], args[2], args[3]},
			Mode:      args[4],
			WhileBusy: v.busyReads > 0,
		}
		if rec.Cmd == cmdDisplayBufArea {
			d.Buffered = true
			d.Address = uint32(args[6])<<16 | uint32(args[5])
		}
		v.displays = append(v.displays, d)
		v.busyReads = v.DisplayBusyReads
	default:
		return fmt.Errorf("unknown command 0x%04X", rec.Cmd)
	}

	return nil
}

func (v *VirtualIT8951) finishLoad() {
	var start CommandRecord
	for i := len(v.commands) - 2; i >= 0; i-- {
		if c := v.commands[i].Cmd; c == cmdLoadArea || c == cmdLoadImage {
			start = v.commands[i]
			break
		}
	}
	rec := LoadRecord{
		Address:  v.imageAddress(),
		Argument: start.Args[0],
		Words:    v.loadWords,
		Full:     start.Cmd == cmdLoadImage,
	}
	if !rec.Full {
		rec.Area = [4]uint16{start.Args[1], start.Args[2], start.Args[3], start.Args[4]}
	}
	v.loads = append(v.loads, rec)
	v.loading = false
	v.loadWords = nil
}

func (v *VirtualIT8951) register(addr uint16) uint16 {
	if addr == regLUTAFSR {
		if v.lutStuck {
			return 0x0001
		}
		if v.busyReads > 0 {
			v.busyReads--
			return 0x0001
		}
		return 0
	}
	return v.regs[addr]
}

func (v *VirtualIT8951) imageAddress() uint32 {
	return uint32(v.regs[regLISAR+2])<<16 | uint32(v.regs[regLISAR])
}

// deviceInfo lays out the 20-word GET_DEV_INFO block. Version strings are
// packed two bytes per word, low byte first.
func (v *VirtualIT8951) deviceInfo() []uint16 {
	words := make([]uint16, 20)
	words[0] = v.width
	words[1] = v.height
	words[2] = uint16(v.bufferAddr)
	words[3] = uint16(v.bufferAddr >> 16)
	packVersion(words[4:12], v.firmware)
	packVersion(words[12:20], v.lut)
	return words
}

func packVersion(dst []uint16, s string) {
	for i := range dst {
		var lo, hi byte
		if 2*i < len(s) {
			lo = s[2*i]
		}
		if 2*i+1 < len(s) {
			hi = s[2*i+1]
		}
		dst[i] = uint16(hi)<<8 | uint16(lo)
	}
}

func (v *VirtualIT8951) fail(err error) error {
	v.errs = append(v.errs, err)
	return err
}

// Commands returns every decoded command in order
func (v *VirtualIT8951) Commands() []CommandRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]CommandRecord(nil), v.commands...)
}

// Loads returns every completed image load
func (v *VirtualIT8951) Loads() []LoadRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]LoadRecord(nil), v.loads...)
}

// Displays returns every display trigger
func (v *VirtualIT8951) Displays() []DisplayRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]DisplayRecord(nil), v.displays...)
}

// Errors returns wire protocol errors seen so far
func (v *VirtualIT8951) Errors() []error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]error(nil), v.errs...)
}

// Register returns a register value without a bus exchange
func (v *VirtualIT8951) Register(addr uint16) uint16 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.regs[addr]
}

// ImageAddress returns the address composed from the LISAR registers
func (v *VirtualIT8951) ImageAddress() uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.imageAddress()
}

// PackedMode reports whether I80CPCR packed mode was enabled
func (v *VirtualIT8951) PackedMode() bool {
	return v.Register(regI80CPCR) == 1
}

// Power returns the system power state
func (v *VirtualIT8951) Power() PowerState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.power
}

// Resets returns how many times Reset was called
func (v *VirtualIT8951) Resets() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resets
}

// Selected reports whether chip select is currently asserted
func (v *VirtualIT8951) Selected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selected
}

// Closed reports whether Close was called
func (v *VirtualIT8951) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}
